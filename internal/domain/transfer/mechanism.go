package transfer

import (
	"time"

	"github.com/google/uuid"
)

// MechanismCategory groups transfer mechanisms by their legal basis.
type MechanismCategory string

const (
	CategoryAdequacy   MechanismCategory = "ADEQUACY"
	CategorySafeguard  MechanismCategory = "SAFEGUARD"
	CategoryDerogation MechanismCategory = "DEROGATION"
	CategoryNone       MechanismCategory = "NONE"
)

// TransferMechanism is a legal instrument permitting cross-border transfer
// (e.g. Standard Contractual Clauses). Shared reference data, not
// tenant-scoped.
type TransferMechanism struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Category  MechanismCategory `json:"category"`
	IsActive  bool              `json:"is_active"`
	UpdatedAt time.Time         `json:"updated_at"`
}
