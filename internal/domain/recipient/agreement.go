package recipient

import (
	"time"

	"github.com/google/uuid"
)

// AgreementType is the kind of contractual safeguard binding a recipient and
// an external organization.
type AgreementType string

const (
	AgreementDPA             AgreementType = "DPA"
	AgreementSCCAnnex        AgreementType = "SCC_ANNEX"
	AgreementJointController AgreementType = "JOINT_CONTROLLER_AGREEMENT"
	AgreementServiceContract AgreementType = "SERVICE_CONTRACT"
)

// AgreementStatus tracks the contract lifecycle.
type AgreementStatus string

const (
	AgreementDraft      AgreementStatus = "DRAFT"
	AgreementActive     AgreementStatus = "ACTIVE"
	AgreementExpired    AgreementStatus = "EXPIRED"
	AgreementTerminated AgreementStatus = "TERMINATED"
)

// Agreement binds a recipient/external-organization pair. Lifecycle is plain
// CRUD; its presence feeds hierarchy validation as a warning-level concern.
type Agreement struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	RecipientID    uuid.UUID       `json:"recipient_id"`
	ExternalOrgID  *uuid.UUID      `json:"external_org_id,omitempty"`
	Type           AgreementType   `json:"type"`
	Status         AgreementStatus `json:"status"`
	SignedAt       *time.Time      `json:"signed_at,omitempty"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewAgreement creates a draft agreement for the recipient.
func NewAgreement(orgID, recipientID uuid.UUID, agreementType AgreementType) *Agreement {
	now := time.Now()
	return &Agreement{
		ID:             uuid.New(),
		OrganizationID: orgID,
		RecipientID:    recipientID,
		Type:           agreementType,
		Status:         AgreementDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsActive reports whether the agreement is in force right now.
func (a *Agreement) IsActive() bool {
	if a.Status != AgreementActive {
		return false
	}
	if a.ExpiresAt != nil && time.Now().After(*a.ExpiresAt) {
		return false
	}
	return true
}

// ExpiresWithin reports whether an active agreement runs out within d.
func (a *Agreement) ExpiresWithin(d time.Duration) bool {
	if !a.IsActive() || a.ExpiresAt == nil {
		return false
	}
	return a.ExpiresAt.Before(time.Now().Add(d))
}
