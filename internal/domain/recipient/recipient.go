package recipient

import (
	"time"

	"github.com/google/uuid"
)

// Type is the role through which personal data flows to a party.
type Type string

const (
	TypeProcessor          Type = "PROCESSOR"
	TypeSubProcessor       Type = "SUB_PROCESSOR"
	TypeJointController    Type = "JOINT_CONTROLLER"
	TypeServiceProvider    Type = "SERVICE_PROVIDER"
	TypeSeparateController Type = "SEPARATE_CONTROLLER"
	TypePublicAuthority    Type = "PUBLIC_AUTHORITY"
	TypeInternalDepartment Type = "INTERNAL_DEPARTMENT"
)

// IsValid reports whether t is one of the defined recipient types.
func (t Type) IsValid() bool {
	switch t {
	case TypeProcessor, TypeSubProcessor, TypeJointController, TypeServiceProvider,
		TypeSeparateController, TypePublicAuthority, TypeInternalDepartment:
		return true
	}
	return false
}

// HierarchyType distinguishes the three kinds of recipient trees, each with
// its own depth cap.
type HierarchyType string

const (
	HierarchyProcessorChain HierarchyType = "PROCESSOR_CHAIN"
	HierarchyOrganizational HierarchyType = "ORGANIZATIONAL"
	HierarchyGrouping       HierarchyType = "GROUPING"
	HierarchyNone           HierarchyType = ""
)

// Recipient is a party (internal or external) that receives or processes
// personal data on behalf of an organization. Every read and write is scoped
// to OrganizationID; a parent reference must stay inside the same tenant.
type Recipient struct {
	ID                uuid.UUID     `json:"id"`
	OrganizationID    uuid.UUID     `json:"organization_id"`
	Name              string        `json:"name"`
	Type              Type          `json:"type"`
	Description       string        `json:"description,omitempty"`
	ExternalOrgID     *uuid.UUID    `json:"external_org_id,omitempty"`
	ParentRecipientID *uuid.UUID    `json:"parent_recipient_id,omitempty"`
	HierarchyType     HierarchyType `json:"hierarchy_type,omitempty"`
	CountryID         *uuid.UUID    `json:"country_id,omitempty"` // processing location
	IsActive          bool          `json:"is_active"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// NewRecipient creates an active recipient in the given organization.
func NewRecipient(orgID uuid.UUID, name string, recipientType Type) *Recipient {
	now := time.Now()
	return &Recipient{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           name,
		Type:           recipientType,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Deactivate soft-deletes the recipient. Children are not cascaded; they
// surface as orphans until re-parented.
func (r *Recipient) Deactivate() {
	r.IsActive = false
	r.UpdatedAt = time.Now()
}

// Rename updates the display name.
func (r *Recipient) Rename(name string) {
	r.Name = name
	r.UpdatedAt = time.Now()
}

// SetParent records a new parent reference. Callers must run placement
// validation (cycle, depth, type rules) before persisting.
func (r *Recipient) SetParent(parentID *uuid.UUID, hierarchyType HierarchyType) {
	r.ParentRecipientID = parentID
	r.HierarchyType = hierarchyType
	r.UpdatedAt = time.Now()
}

// IsRoot reports whether the recipient has no parent.
func (r *Recipient) IsRoot() bool {
	return r.ParentRecipientID == nil
}

// ExpectsAgreement reports whether this recipient type is expected to have
// at least one active agreement when it fronts an external organization.
// Absence is a warning, not a blocking error.
func (r *Recipient) ExpectsAgreement() bool {
	if r.ExternalOrgID == nil {
		return false
	}
	switch r.Type {
	case TypeProcessor, TypeSubProcessor, TypeJointController, TypeServiceProvider:
		return true
	}
	return false
}

// TreeNode is one entry of a descendant tree, annotated with its depth
// relative to the queried root.
type TreeNode struct {
	Recipient *Recipient  `json:"recipient"`
	Depth     int         `json:"depth"`
	Children  []*TreeNode `json:"children,omitempty"`
}
