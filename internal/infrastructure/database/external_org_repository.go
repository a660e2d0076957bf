package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	domainerrors "github.com/compilo/compilo-backend/internal/domain/errors"
	"github.com/compilo/compilo-backend/internal/domain/recipient"
)

// ExternalOrgRepository implements recipient.ExternalOrgRepository on
// PostgreSQL.
type ExternalOrgRepository struct {
	db  querier
	rdb querier
}

// NewExternalOrgRepository creates a PostgreSQL external organization
// repository.
func NewExternalOrgRepository(pool *ConnectionPool) *ExternalOrgRepository {
	return &ExternalOrgRepository{db: pool.Primary(), rdb: pool.Replica()}
}

const externalOrgColumns = `id, organization_id, legal_name, trading_name,
	country_id, created_at, updated_at`

func scanExternalOrg(row pgx.Row) (*recipient.ExternalOrganization, error) {
	var e recipient.ExternalOrganization
	err := row.Scan(
		&e.ID, &e.OrganizationID, &e.LegalName, &e.TradingName,
		&e.CountryID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrExternalOrgNotFound
		}
		return nil, domainerrors.NewInternalError("failed to scan external organization").WithCause(err)
	}
	return &e, nil
}

// Create inserts an external organization.
func (r *ExternalOrgRepository) Create(ctx context.Context, e *recipient.ExternalOrganization) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO external_organizations (
			id, organization_id, legal_name, trading_name, country_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.OrganizationID, e.LegalName, e.TradingName, e.CountryID,
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.NewConflictError("external organization already exists")
		}
		return domainerrors.NewInternalError("failed to insert external organization").WithCause(err)
	}
	return nil
}

// GetByID retrieves an external organization within the organization.
func (r *ExternalOrgRepository) GetByID(ctx context.Context, id, orgID uuid.UUID) (*recipient.ExternalOrganization, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+externalOrgColumns+`
		FROM external_organizations
		WHERE id = $1 AND organization_id = $2
	`, id, orgID)
	return scanExternalOrg(row)
}

// Update persists external organization mutations.
func (r *ExternalOrgRepository) Update(ctx context.Context, e *recipient.ExternalOrganization) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE external_organizations SET
			legal_name = $3, trading_name = $4, country_id = $5, updated_at = $6
		WHERE id = $1 AND organization_id = $2
	`, e.ID, e.OrganizationID, e.LegalName, e.TradingName, e.CountryID, e.UpdatedAt)
	if err != nil {
		return domainerrors.NewInternalError("failed to update external organization").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrExternalOrgNotFound
	}
	return nil
}

// Delete removes an external organization row. The recipients foreign key
// restricts deletion while recipient roles still reference it.
func (r *ExternalOrgRepository) Delete(ctx context.Context, id, orgID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM external_organizations WHERE id = $1 AND organization_id = $2
	`, id, orgID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domainerrors.NewDeleteBlockedError("external organization",
				"recipients still reference this organization")
		}
		return domainerrors.NewInternalError("failed to delete external organization").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrExternalOrgNotFound
	}
	return nil
}

// List returns all external organizations in the tenant.
func (r *ExternalOrgRepository) List(ctx context.Context, orgID uuid.UUID) ([]*recipient.ExternalOrganization, error) {
	rows, err := r.rdb.Query(ctx, `
		SELECT `+externalOrgColumns+`
		FROM external_organizations
		WHERE organization_id = $1
		ORDER BY legal_name
	`, orgID)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to list external organizations").WithCause(err)
	}
	defer rows.Close()

	var out []*recipient.ExternalOrganization
	for rows.Next() {
		e, err := scanExternalOrg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerrors.NewInternalError("failed to read external organizations").WithCause(err)
	}
	return out, nil
}
