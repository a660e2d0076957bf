package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	domainerrors "github.com/compilo/compilo-backend/internal/domain/errors"
	"github.com/compilo/compilo-backend/internal/domain/transfer"
)

// ReferenceRepository implements transfer.ReferenceRepository on PostgreSQL.
// Countries and transfer mechanisms are global reference data, not
// tenant-scoped, and all reads go to the replica.
type ReferenceRepository struct {
	rdb querier
}

// NewReferenceRepository creates a PostgreSQL reference data repository.
func NewReferenceRepository(pool *ConnectionPool) *ReferenceRepository {
	return &ReferenceRepository{rdb: pool.Replica()}
}

func scanCountry(row pgx.Row) (*transfer.Country, error) {
	var c transfer.Country
	var tags []string
	err := row.Scan(&c.ID, &c.Code, &c.Name, &tags, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrCountryNotFound
		}
		return nil, domainerrors.NewInternalError("failed to scan country").WithCause(err)
	}
	c.GdprStatus = make([]transfer.StatusTag, len(tags))
	for i, tag := range tags {
		c.GdprStatus[i] = transfer.StatusTag(tag)
	}
	return &c, nil
}

// GetCountry retrieves a country by id.
func (r *ReferenceRepository) GetCountry(ctx context.Context, id uuid.UUID) (*transfer.Country, error) {
	row := r.rdb.QueryRow(ctx, `
		SELECT id, code, name, gdpr_status, updated_at
		FROM countries WHERE id = $1
	`, id)
	return scanCountry(row)
}

// GetCountryByCode retrieves a country by ISO code.
func (r *ReferenceRepository) GetCountryByCode(ctx context.Context, code string) (*transfer.Country, error) {
	row := r.rdb.QueryRow(ctx, `
		SELECT id, code, name, gdpr_status, updated_at
		FROM countries WHERE code = $1
	`, code)
	return scanCountry(row)
}

// ListCountries returns all countries ordered by name.
func (r *ReferenceRepository) ListCountries(ctx context.Context) ([]*transfer.Country, error) {
	rows, err := r.rdb.Query(ctx, `
		SELECT id, code, name, gdpr_status, updated_at
		FROM countries ORDER BY name
	`)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to list countries").WithCause(err)
	}
	defer rows.Close()

	var out []*transfer.Country
	for rows.Next() {
		c, err := scanCountry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerrors.NewInternalError("failed to read countries").WithCause(err)
	}
	return out, nil
}

// GetMechanism retrieves a transfer mechanism by id.
func (r *ReferenceRepository) GetMechanism(ctx context.Context, id uuid.UUID) (*transfer.TransferMechanism, error) {
	var m transfer.TransferMechanism
	err := r.rdb.QueryRow(ctx, `
		SELECT id, name, category, is_active, updated_at
		FROM transfer_mechanisms WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Category, &m.IsActive, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrMechanismNotFound
		}
		return nil, domainerrors.NewInternalError("failed to scan transfer mechanism").WithCause(err)
	}
	return &m, nil
}

// ListMechanisms returns all transfer mechanisms ordered by name.
func (r *ReferenceRepository) ListMechanisms(ctx context.Context) ([]*transfer.TransferMechanism, error) {
	rows, err := r.rdb.Query(ctx, `
		SELECT id, name, category, is_active, updated_at
		FROM transfer_mechanisms ORDER BY name
	`)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to list transfer mechanisms").WithCause(err)
	}
	defer rows.Close()

	var out []*transfer.TransferMechanism
	for rows.Next() {
		var m transfer.TransferMechanism
		if err := rows.Scan(&m.ID, &m.Name, &m.Category, &m.IsActive, &m.UpdatedAt); err != nil {
			return nil, domainerrors.NewInternalError("failed to scan transfer mechanism").WithCause(err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerrors.NewInternalError("failed to read transfer mechanisms").WithCause(err)
	}
	return out, nil
}
