package rest

import (
	"github.com/google/uuid"
)

// CreateRecipientRequest registers a new recipient.
type CreateRecipientRequest struct {
	Name              string     `json:"name" validate:"required,min=1,max=255"`
	Type              string     `json:"type" validate:"required"`
	Description       string     `json:"description" validate:"max=2000"`
	ExternalOrgID     *uuid.UUID `json:"external_org_id"`
	ParentRecipientID *uuid.UUID `json:"parent_recipient_id"`
	HierarchyType     string     `json:"hierarchy_type" validate:"omitempty,oneof=PROCESSOR_CHAIN ORGANIZATIONAL GROUPING"`
	CountryID         *uuid.UUID `json:"country_id"`
}

// UpdateRecipientRequest mutates name, type or description. Absent fields are
// left untouched.
type UpdateRecipientRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Type        *string `json:"type"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// ReparentRequest moves a recipient under a new parent. A null parent makes
// it a root.
type ReparentRequest struct {
	ParentRecipientID *uuid.UUID `json:"parent_recipient_id"`
}

// ValidatePlacementRequest asks whether a hypothetical placement would be
// accepted, without creating anything.
type ValidatePlacementRequest struct {
	RecipientID       *uuid.UUID `json:"recipient_id"`
	Type              string     `json:"type" validate:"required_without=RecipientID"`
	ParentRecipientID *uuid.UUID `json:"parent_recipient_id"`
	HierarchyType     string     `json:"hierarchy_type" validate:"omitempty,oneof=PROCESSOR_CHAIN ORGANIZATIONAL GROUPING"`
	ExternalOrgID     *uuid.UUID `json:"external_org_id"`
}

// EvaluateTransferRequest classifies a country-to-country data flow.
type EvaluateTransferRequest struct {
	SourceCountryID      uuid.UUID  `json:"source_country_id" validate:"required"`
	DestinationCountryID uuid.UUID  `json:"destination_country_id" validate:"required"`
	MechanismID          *uuid.UUID `json:"mechanism_id"`
}

// ValidateMechanismRequest checks whether a safeguard mechanism is legally
// required for the country pair and whether one was supplied.
type ValidateMechanismRequest struct {
	SourceCountryID      uuid.UUID  `json:"source_country_id" validate:"required"`
	DestinationCountryID uuid.UUID  `json:"destination_country_id" validate:"required"`
	MechanismID          *uuid.UUID `json:"mechanism_id"`
}
