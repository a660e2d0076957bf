package transferrisk

import (
	"context"

	"github.com/compilo/compilo-backend/internal/domain/recipient"
	"github.com/google/uuid"
)

// HierarchyValidator is the slice of the hierarchy service this evaluator
// needs to judge whether a recipient's position in the graph is structurally
// valid before a transfer involving it is considered compliant.
type HierarchyValidator interface {
	GetRecipient(ctx context.Context, id, orgID uuid.UUID) (*recipient.Recipient, error)
	ValidatePlacement(ctx context.Context, child *recipient.Recipient, parentID *uuid.UUID) (*recipient.ValidationResult, error)
}
