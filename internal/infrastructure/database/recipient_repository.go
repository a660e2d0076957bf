package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domainerrors "github.com/compilo/compilo-backend/internal/domain/errors"
	"github.com/compilo/compilo-backend/internal/domain/recipient"
)

// querier is the subset of pgxpool.Pool and pgx.Tx the repositories use, so
// the same query code runs inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RecipientRepository implements recipient.Repository on PostgreSQL.
type RecipientRepository struct {
	db   querier
	rdb  querier
	pool *ConnectionPool
}

// NewRecipientRepository creates a PostgreSQL recipient repository. Listing
// and aggregate queries run against the replica when one is configured.
func NewRecipientRepository(pool *ConnectionPool) *RecipientRepository {
	return &RecipientRepository{
		db:   pool.Primary(),
		rdb:  pool.Replica(),
		pool: pool,
	}
}

const recipientColumns = `id, organization_id, name, type, description,
	external_org_id, parent_recipient_id, hierarchy_type, country_id,
	is_active, created_at, updated_at`

func scanRecipient(row pgx.Row) (*recipient.Recipient, error) {
	var r recipient.Recipient
	err := row.Scan(
		&r.ID, &r.OrganizationID, &r.Name, &r.Type, &r.Description,
		&r.ExternalOrgID, &r.ParentRecipientID, &r.HierarchyType, &r.CountryID,
		&r.IsActive, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrRecipientNotFound
		}
		return nil, domainerrors.NewInternalError("failed to scan recipient").WithCause(err)
	}
	return &r, nil
}

func collectRecipients(rows pgx.Rows) ([]*recipient.Recipient, error) {
	defer rows.Close()
	var out []*recipient.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerrors.NewInternalError("failed to read recipients").WithCause(err)
	}
	return out, nil
}

// Create inserts a recipient.
func (r *RecipientRepository) Create(ctx context.Context, rec *recipient.Recipient) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO recipients (
			id, organization_id, name, type, description,
			external_org_id, parent_recipient_id, hierarchy_type, country_id,
			is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rec.ID, rec.OrganizationID, rec.Name, rec.Type, rec.Description,
		rec.ExternalOrgID, rec.ParentRecipientID, rec.HierarchyType, rec.CountryID,
		rec.IsActive, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.NewConflictError("recipient already exists")
		}
		return domainerrors.NewInternalError("failed to insert recipient").WithCause(err)
	}
	return nil
}

// GetByID retrieves a recipient within the organization.
func (r *RecipientRepository) GetByID(ctx context.Context, id, orgID uuid.UUID) (*recipient.Recipient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+recipientColumns+`
		FROM recipients
		WHERE id = $1 AND organization_id = $2
	`, id, orgID)
	return scanRecipient(row)
}

// GetByIDForUpdate retrieves a recipient and locks its row for the duration
// of the surrounding transaction.
func (r *RecipientRepository) GetByIDForUpdate(ctx context.Context, id, orgID uuid.UUID) (*recipient.Recipient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+recipientColumns+`
		FROM recipients
		WHERE id = $1 AND organization_id = $2
		FOR UPDATE
	`, id, orgID)
	return scanRecipient(row)
}

// Update persists recipient mutations.
func (r *RecipientRepository) Update(ctx context.Context, rec *recipient.Recipient) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE recipients SET
			name = $3, type = $4, description = $5,
			external_org_id = $6, parent_recipient_id = $7, hierarchy_type = $8,
			country_id = $9, is_active = $10, updated_at = $11
		WHERE id = $1 AND organization_id = $2
	`, rec.ID, rec.OrganizationID, rec.Name, rec.Type, rec.Description,
		rec.ExternalOrgID, rec.ParentRecipientID, rec.HierarchyType,
		rec.CountryID, rec.IsActive, rec.UpdatedAt)
	if err != nil {
		return domainerrors.NewInternalError("failed to update recipient").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrRecipientNotFound
	}
	return nil
}

// Delete removes a recipient row.
func (r *RecipientRepository) Delete(ctx context.Context, id, orgID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM recipients WHERE id = $1 AND organization_id = $2
	`, id, orgID)
	if err != nil {
		return domainerrors.NewInternalError("failed to delete recipient").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrRecipientNotFound
	}
	return nil
}

// List returns recipients matching the filter, newest first.
func (r *RecipientRepository) List(ctx context.Context, orgID uuid.UUID, filter recipient.Filter) ([]*recipient.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE organization_id = $1`
	args := []any{orgID}

	if filter.Type != nil {
		args = append(args, *filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.HierarchyType != nil {
		args = append(args, *filter.HierarchyType)
		query += fmt.Sprintf(" AND hierarchy_type = $%d", len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		query += fmt.Sprintf(" AND is_active = $%d", len(args))
	}
	if filter.ExternalOrgID != nil {
		args = append(args, *filter.ExternalOrgID)
		query += fmt.Sprintf(" AND external_org_id = $%d", len(args))
	}
	if filter.RootsOnly {
		query += " AND parent_recipient_id IS NULL"
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.rdb.Query(ctx, query, args...)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to list recipients").WithCause(err)
	}
	return collectRecipients(rows)
}

// GetChildren returns the direct children of parentID.
func (r *RecipientRepository) GetChildren(ctx context.Context, parentID, orgID uuid.UUID) ([]*recipient.Recipient, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+recipientColumns+`
		FROM recipients
		WHERE parent_recipient_id = $1 AND organization_id = $2
		ORDER BY name
	`, parentID, orgID)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to query children").WithCause(err)
	}
	return collectRecipients(rows)
}

// HasChildren reports whether any recipient references parentID as parent.
func (r *RecipientRepository) HasChildren(ctx context.Context, parentID, orgID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM recipients
			WHERE parent_recipient_id = $1 AND organization_id = $2
		)
	`, parentID, orgID).Scan(&exists)
	if err != nil {
		return false, domainerrors.NewInternalError("failed to check children").WithCause(err)
	}
	return exists, nil
}

// Descendants returns the subtree rooted at rootID as flat depth-annotated
// rows, root included at depth 0. The recursive walk is bounded by maxDepth
// so a cycle that slipped into the data cannot make it run away.
func (r *RecipientRepository) Descendants(ctx context.Context, rootID, orgID uuid.UUID, maxDepth int) ([]recipient.DescendantRow, error) {
	rows, err := r.db.Query(ctx, `
		WITH RECURSIVE tree AS (
			SELECT `+recipientColumns+`, 0 AS depth
			FROM recipients
			WHERE id = $1 AND organization_id = $2
			UNION ALL
			SELECT r.id, r.organization_id, r.name, r.type, r.description,
				r.external_org_id, r.parent_recipient_id, r.hierarchy_type,
				r.country_id, r.is_active, r.created_at, r.updated_at,
				t.depth + 1
			FROM recipients r
			JOIN tree t ON r.parent_recipient_id = t.id
			WHERE r.organization_id = $2 AND t.depth < $3
		)
		SELECT `+recipientColumns+`, depth FROM tree ORDER BY depth, name
	`, rootID, orgID, maxDepth)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to query descendants").WithCause(err)
	}
	defer rows.Close()

	var out []recipient.DescendantRow
	for rows.Next() {
		var rec recipient.Recipient
		var depth int
		err := rows.Scan(
			&rec.ID, &rec.OrganizationID, &rec.Name, &rec.Type, &rec.Description,
			&rec.ExternalOrgID, &rec.ParentRecipientID, &rec.HierarchyType,
			&rec.CountryID, &rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt,
			&depth,
		)
		if err != nil {
			return nil, domainerrors.NewInternalError("failed to scan descendant row").WithCause(err)
		}
		out = append(out, recipient.DescendantRow{Recipient: &rec, Depth: depth})
	}
	if err := rows.Err(); err != nil {
		return nil, domainerrors.NewInternalError("failed to read descendants").WithCause(err)
	}
	if len(out) == 0 {
		return nil, domainerrors.ErrRecipientNotFound
	}
	return out, nil
}

// Orphaned returns recipients whose parent reference points at a missing or
// deactivated recipient.
func (r *RecipientRepository) Orphaned(ctx context.Context, orgID uuid.UUID) ([]*recipient.Recipient, error) {
	rows, err := r.rdb.Query(ctx, `
		SELECT `+qualifiedRecipientColumns("c")+`
		FROM recipients c
		LEFT JOIN recipients p ON p.id = c.parent_recipient_id
		WHERE c.organization_id = $1
			AND c.parent_recipient_id IS NOT NULL
			AND (p.id IS NULL OR p.is_active = FALSE)
		ORDER BY c.name
	`, orgID)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to query orphans").WithCause(err)
	}
	return collectRecipients(rows)
}

// ListThirdCountry returns recipients whose processing location has neither
// EU/EEA membership nor an adequacy decision.
func (r *RecipientRepository) ListThirdCountry(ctx context.Context, orgID uuid.UUID) ([]*recipient.Recipient, error) {
	rows, err := r.rdb.Query(ctx, `
		SELECT `+qualifiedRecipientColumns("r")+`
		FROM recipients r
		JOIN countries c ON c.id = r.country_id
		WHERE r.organization_id = $1
			AND NOT (c.gdpr_status && ARRAY['EU', 'EEA', 'ADEQUATE'])
		ORDER BY r.name
	`, orgID)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to query third-country recipients").WithCause(err)
	}
	return collectRecipients(rows)
}

// CountByType returns recipient counts grouped by type.
func (r *RecipientRepository) CountByType(ctx context.Context, orgID uuid.UUID) (map[recipient.Type]int, error) {
	rows, err := r.rdb.Query(ctx, `
		SELECT type, COUNT(*) FROM recipients
		WHERE organization_id = $1
		GROUP BY type
	`, orgID)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to count recipients by type").WithCause(err)
	}
	defer rows.Close()

	counts := make(map[recipient.Type]int)
	for rows.Next() {
		var t recipient.Type
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, domainerrors.NewInternalError("failed to scan type count").WithCause(err)
		}
		counts[t] = n
	}
	if err := rows.Err(); err != nil {
		return nil, domainerrors.NewInternalError("failed to read type counts").WithCause(err)
	}
	return counts, nil
}

// CountByStatus returns active and inactive recipient counts.
func (r *RecipientRepository) CountByStatus(ctx context.Context, orgID uuid.UUID) (int, int, error) {
	var active, inactive int
	err := r.rdb.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE NOT is_active)
		FROM recipients
		WHERE organization_id = $1
	`, orgID).Scan(&active, &inactive)
	if err != nil {
		return 0, 0, domainerrors.NewInternalError("failed to count recipients by status").WithCause(err)
	}
	return active, inactive, nil
}

// Transact runs fn against a repository bound to a single transaction. Calls
// on an already transactional repository join the surrounding transaction.
func (r *RecipientRepository) Transact(ctx context.Context, fn func(ctx context.Context, repo recipient.Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return r.pool.Transaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		txRepo := &RecipientRepository{db: tx, rdb: tx}
		return fn(ctx, txRepo)
	})
}

func qualifiedRecipientColumns(alias string) string {
	return alias + `.id, ` + alias + `.organization_id, ` + alias + `.name, ` +
		alias + `.type, ` + alias + `.description, ` + alias + `.external_org_id, ` +
		alias + `.parent_recipient_id, ` + alias + `.hierarchy_type, ` +
		alias + `.country_id, ` + alias + `.is_active, ` + alias + `.created_at, ` +
		alias + `.updated_at`
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
