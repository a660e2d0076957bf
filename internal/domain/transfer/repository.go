package transfer

import (
	"context"

	"github.com/google/uuid"
)

// ReferenceRepository serves the shared, pre-seeded reference data the
// evaluator needs. Not tenant-scoped.
type ReferenceRepository interface {
	GetCountry(ctx context.Context, id uuid.UUID) (*Country, error)
	GetCountryByCode(ctx context.Context, code string) (*Country, error)
	ListCountries(ctx context.Context) ([]*Country, error)

	GetMechanism(ctx context.Context, id uuid.UUID) (*TransferMechanism, error)
	ListMechanisms(ctx context.Context) ([]*TransferMechanism, error)
}
