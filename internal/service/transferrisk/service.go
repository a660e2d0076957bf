package transferrisk

import (
	"context"

	"go.uber.org/zap"

	"github.com/compilo/compilo-backend/internal/domain/errors"
	"github.com/compilo/compilo-backend/internal/domain/recipient"
	"github.com/compilo/compilo-backend/internal/domain/transfer"
	"github.com/google/uuid"
)

// Service resolves reference data and applies the pure transfer risk
// evaluator. Countries and mechanisms are shared reference data, typically
// served through a cache in front of the repository.
type Service struct {
	logger    *zap.Logger
	refs      transfer.ReferenceRepository
	hierarchy HierarchyValidator
}

// NewService creates a transfer risk service. hierarchy may be nil when only
// country-pair evaluation is needed.
func NewService(logger *zap.Logger, refs transfer.ReferenceRepository, hierarchy HierarchyValidator) *Service {
	return &Service{
		logger:    logger,
		refs:      refs,
		hierarchy: hierarchy,
	}
}

// EvaluateTransfer classifies the data flow between two countries under an
// optional safeguard mechanism.
func (s *Service) EvaluateTransfer(ctx context.Context, sourceCountryID, destCountryID uuid.UUID, mechanismID *uuid.UUID) (*transfer.TransferRisk, error) {
	source, err := s.refs.GetCountry(ctx, sourceCountryID)
	if err != nil {
		return nil, err
	}
	destination, err := s.refs.GetCountry(ctx, destCountryID)
	if err != nil {
		return nil, err
	}

	var mechanism *transfer.TransferMechanism
	if mechanismID != nil {
		mechanism, err = s.refs.GetMechanism(ctx, *mechanismID)
		if err != nil {
			return nil, err
		}
	}

	risk := transfer.DeriveTransferRisk(*source, *destination, mechanism)

	s.logger.Debug("transfer risk derived",
		zap.String("source", source.Code),
		zap.String("destination", destination.Code),
		zap.String("level", string(risk.Level)),
		zap.String("reason", string(risk.Reason)),
	)
	return &risk, nil
}

// ValidateMechanismRequirement checks whether the country pair legally
// requires a safeguard mechanism and whether one was supplied. The mechanism
// id is not resolved against reference data here; persisting callers must do
// that themselves.
func (s *Service) ValidateMechanismRequirement(ctx context.Context, sourceCountryID, destCountryID uuid.UUID, mechanismID *uuid.UUID) (*transfer.MechanismRequirement, error) {
	source, err := s.refs.GetCountry(ctx, sourceCountryID)
	if err != nil {
		return nil, err
	}
	destination, err := s.refs.GetCountry(ctx, destCountryID)
	if err != nil {
		return nil, err
	}

	req := transfer.ValidateMechanismRequirement(*source, *destination, mechanismID)
	return &req, nil
}

// RecipientTransferAssessment combines the structural view of a recipient
// with the risk classification of the transfer it implies.
type RecipientTransferAssessment struct {
	Recipient   *recipient.Recipient          `json:"recipient"`
	Risk        transfer.TransferRisk         `json:"risk"`
	Requirement transfer.MechanismRequirement `json:"requirement"`
	Placement   *recipient.ValidationResult   `json:"placement"`
	Compliant   bool                          `json:"compliant"`
}

// AssessRecipientTransfer classifies the transfer implied by sending data
// from sourceCountryID to the recipient's processing location, and checks
// that the recipient's position in the organization's graph is structurally
// valid. Compliance requires both.
func (s *Service) AssessRecipientTransfer(ctx context.Context, orgID, recipientID, sourceCountryID uuid.UUID, mechanismID *uuid.UUID) (*RecipientTransferAssessment, error) {
	if s.hierarchy == nil {
		return nil, errors.NewInternalError("transfer risk service configured without hierarchy access")
	}

	r, err := s.hierarchy.GetRecipient(ctx, recipientID, orgID)
	if err != nil {
		return nil, err
	}
	if r.CountryID == nil {
		return nil, errors.NewValidationError("MISSING_PROCESSING_LOCATION",
			"recipient has no processing location country")
	}

	risk, err := s.EvaluateTransfer(ctx, sourceCountryID, *r.CountryID, mechanismID)
	if err != nil {
		return nil, err
	}
	requirement, err := s.ValidateMechanismRequirement(ctx, sourceCountryID, *r.CountryID, mechanismID)
	if err != nil {
		return nil, err
	}
	placement, err := s.hierarchy.ValidatePlacement(ctx, r, r.ParentRecipientID)
	if err != nil {
		return nil, err
	}

	return &RecipientTransferAssessment{
		Recipient:   r,
		Risk:        *risk,
		Requirement: *requirement,
		Placement:   placement,
		Compliant:   placement.Valid() && requirement.Valid,
	}, nil
}
