package recipient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines recipient persistence. Every method is scoped by
// organization id; implementations must return a not-found error for ids that
// resolve only in another tenant. Implementations back onto a relational
// store and use a recursive query for Descendants.
type Repository interface {
	// Create inserts a new recipient
	Create(ctx context.Context, r *Recipient) error

	// GetByID retrieves a recipient within the organization scope
	GetByID(ctx context.Context, id, orgID uuid.UUID) (*Recipient, error)

	// GetByIDForUpdate retrieves a recipient and takes a row lock on it.
	// Only meaningful inside Transact.
	GetByIDForUpdate(ctx context.Context, id, orgID uuid.UUID) (*Recipient, error)

	// Update persists recipient mutations
	Update(ctx context.Context, r *Recipient) error

	// Delete hard-deletes a recipient
	Delete(ctx context.Context, id, orgID uuid.UUID) error

	// List returns recipients matching the filter
	List(ctx context.Context, orgID uuid.UUID, filter Filter) ([]*Recipient, error)

	// GetChildren returns the direct children of a recipient
	GetChildren(ctx context.Context, parentID, orgID uuid.UUID) ([]*Recipient, error)

	// HasChildren reports whether any recipient references parentID
	HasChildren(ctx context.Context, parentID, orgID uuid.UUID) (bool, error)

	// Descendants returns the subtree rooted at rootID as a flat list with
	// depth relative to the root, bounded by maxDepth. The root itself is
	// included at depth 0.
	Descendants(ctx context.Context, rootID, orgID uuid.UUID, maxDepth int) ([]DescendantRow, error)

	// Orphaned returns recipients whose parent reference points at a missing
	// or deactivated recipient
	Orphaned(ctx context.Context, orgID uuid.UUID) ([]*Recipient, error)

	// ListThirdCountry returns recipients whose processing location carries
	// no EU, EEA or adequacy status
	ListThirdCountry(ctx context.Context, orgID uuid.UUID) ([]*Recipient, error)

	// CountByType returns recipient counts grouped by type
	CountByType(ctx context.Context, orgID uuid.UUID) (map[Type]int, error)

	// CountByStatus returns active and inactive recipient counts
	CountByStatus(ctx context.Context, orgID uuid.UUID) (active int, inactive int, err error)

	// Transact runs fn inside a single storage transaction. The Repository
	// handed to fn operates on that transaction, so a lock taken via
	// GetByIDForUpdate holds until fn returns.
	Transact(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// DescendantRow is one flat row of a recursive subtree query.
type DescendantRow struct {
	Recipient *Recipient
	Depth     int
}

// Filter defines listing options for recipients.
type Filter struct {
	Type          *Type
	HierarchyType *HierarchyType
	IsActive      *bool
	ExternalOrgID *uuid.UUID
	RootsOnly     bool

	Limit  int
	Offset int
}

// ExternalOrgRepository persists external organizations, tenant-scoped.
type ExternalOrgRepository interface {
	Create(ctx context.Context, e *ExternalOrganization) error
	GetByID(ctx context.Context, id, orgID uuid.UUID) (*ExternalOrganization, error)
	Update(ctx context.Context, e *ExternalOrganization) error
	Delete(ctx context.Context, id, orgID uuid.UUID) error
	List(ctx context.Context, orgID uuid.UUID) ([]*ExternalOrganization, error)
}

// AgreementRepository persists agreements, tenant-scoped.
type AgreementRepository interface {
	Create(ctx context.Context, a *Agreement) error
	GetByID(ctx context.Context, id, orgID uuid.UUID) (*Agreement, error)
	Update(ctx context.Context, a *Agreement) error
	Delete(ctx context.Context, id, orgID uuid.UUID) error
	ListByRecipient(ctx context.Context, recipientID, orgID uuid.UUID) ([]*Agreement, error)

	// HasActiveForRecipient reports whether the recipient holds at least one
	// agreement in force
	HasActiveForRecipient(ctx context.Context, recipientID, orgID uuid.UUID) (bool, error)

	// CountForRecipient counts agreements in any status for the recipient
	CountForRecipient(ctx context.Context, recipientID, orgID uuid.UUID) (int, error)

	// ExpiringWithin returns active agreements that run out within the window
	ExpiringWithin(ctx context.Context, orgID uuid.UUID, window time.Duration) ([]*Agreement, error)
}
