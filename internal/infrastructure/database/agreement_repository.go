package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domainerrors "github.com/compilo/compilo-backend/internal/domain/errors"
	"github.com/compilo/compilo-backend/internal/domain/recipient"
)

// AgreementRepository implements recipient.AgreementRepository on PostgreSQL.
type AgreementRepository struct {
	db  querier
	rdb querier
}

// NewAgreementRepository creates a PostgreSQL agreement repository.
func NewAgreementRepository(pool *ConnectionPool) *AgreementRepository {
	return &AgreementRepository{db: pool.Primary(), rdb: pool.Replica()}
}

const agreementColumns = `id, organization_id, recipient_id, external_org_id,
	type, status, signed_at, expires_at, created_at, updated_at`

func scanAgreement(row pgx.Row) (*recipient.Agreement, error) {
	var a recipient.Agreement
	err := row.Scan(
		&a.ID, &a.OrganizationID, &a.RecipientID, &a.ExternalOrgID,
		&a.Type, &a.Status, &a.SignedAt, &a.ExpiresAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrAgreementNotFound
		}
		return nil, domainerrors.NewInternalError("failed to scan agreement").WithCause(err)
	}
	return &a, nil
}

// Create inserts an agreement.
func (r *AgreementRepository) Create(ctx context.Context, a *recipient.Agreement) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO agreements (
			id, organization_id, recipient_id, external_org_id,
			type, status, signed_at, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.OrganizationID, a.RecipientID, a.ExternalOrgID,
		a.Type, a.Status, a.SignedAt, a.ExpiresAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domainerrors.ErrRecipientNotFound
		}
		return domainerrors.NewInternalError("failed to insert agreement").WithCause(err)
	}
	return nil
}

// GetByID retrieves an agreement within the organization.
func (r *AgreementRepository) GetByID(ctx context.Context, id, orgID uuid.UUID) (*recipient.Agreement, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+agreementColumns+`
		FROM agreements
		WHERE id = $1 AND organization_id = $2
	`, id, orgID)
	return scanAgreement(row)
}

// Update persists agreement mutations.
func (r *AgreementRepository) Update(ctx context.Context, a *recipient.Agreement) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE agreements SET
			external_org_id = $3, type = $4, status = $5,
			signed_at = $6, expires_at = $7, updated_at = $8
		WHERE id = $1 AND organization_id = $2
	`, a.ID, a.OrganizationID, a.ExternalOrgID, a.Type, a.Status,
		a.SignedAt, a.ExpiresAt, a.UpdatedAt)
	if err != nil {
		return domainerrors.NewInternalError("failed to update agreement").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrAgreementNotFound
	}
	return nil
}

// Delete removes an agreement row.
func (r *AgreementRepository) Delete(ctx context.Context, id, orgID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM agreements WHERE id = $1 AND organization_id = $2
	`, id, orgID)
	if err != nil {
		return domainerrors.NewInternalError("failed to delete agreement").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrAgreementNotFound
	}
	return nil
}

// ListByRecipient returns all agreements for a recipient.
func (r *AgreementRepository) ListByRecipient(ctx context.Context, recipientID, orgID uuid.UUID) ([]*recipient.Agreement, error) {
	rows, err := r.rdb.Query(ctx, `
		SELECT `+agreementColumns+`
		FROM agreements
		WHERE recipient_id = $1 AND organization_id = $2
		ORDER BY created_at DESC
	`, recipientID, orgID)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to list agreements").WithCause(err)
	}
	return collectAgreements(rows)
}

// HasActiveForRecipient reports whether the recipient has at least one
// agreement in force right now.
func (r *AgreementRepository) HasActiveForRecipient(ctx context.Context, recipientID, orgID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM agreements
			WHERE recipient_id = $1 AND organization_id = $2
				AND status = 'ACTIVE'
				AND (expires_at IS NULL OR expires_at > NOW())
		)
	`, recipientID, orgID).Scan(&exists)
	if err != nil {
		return false, domainerrors.NewInternalError("failed to check active agreements").WithCause(err)
	}
	return exists, nil
}

// CountForRecipient returns the number of agreements referencing a recipient.
func (r *AgreementRepository) CountForRecipient(ctx context.Context, recipientID, orgID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM agreements
		WHERE recipient_id = $1 AND organization_id = $2
	`, recipientID, orgID).Scan(&count)
	if err != nil {
		return 0, domainerrors.NewInternalError("failed to count agreements").WithCause(err)
	}
	return count, nil
}

// ExpiringWithin returns active agreements that run out within the window.
func (r *AgreementRepository) ExpiringWithin(ctx context.Context, orgID uuid.UUID, window time.Duration) ([]*recipient.Agreement, error) {
	rows, err := r.rdb.Query(ctx, `
		SELECT `+agreementColumns+`
		FROM agreements
		WHERE organization_id = $1
			AND status = 'ACTIVE'
			AND expires_at IS NOT NULL
			AND expires_at > NOW()
			AND expires_at < NOW() + $2::interval
		ORDER BY expires_at
	`, orgID, window)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to query expiring agreements").WithCause(err)
	}
	return collectAgreements(rows)
}

func collectAgreements(rows pgx.Rows) ([]*recipient.Agreement, error) {
	defer rows.Close()
	var out []*recipient.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerrors.NewInternalError("failed to read agreements").WithCause(err)
	}
	return out, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
