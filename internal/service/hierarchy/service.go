package hierarchy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/compilo/compilo-backend/internal/domain/errors"
	"github.com/compilo/compilo-backend/internal/domain/recipient"
	"github.com/google/uuid"
)

// Service maintains and queries the parent/child recipient graph within one
// organization's tenant scope, guaranteeing acyclicity and depth/type
// compliance at every mutation.
type Service struct {
	logger       *zap.Logger
	recipients   recipient.Repository
	externalOrgs recipient.ExternalOrgRepository
	agreements   recipient.AgreementRepository
	config       Config
}

// Config holds hierarchy service settings.
type Config struct {
	// AgreementExpiryWindow is the look-ahead used by the expiring-agreements
	// query.
	AgreementExpiryWindow time.Duration `json:"agreement_expiry_window"`
}

// DefaultConfig returns the default hierarchy service configuration.
func DefaultConfig() Config {
	return Config{
		AgreementExpiryWindow: 90 * 24 * time.Hour,
	}
}

// NewService creates a hierarchy service.
func NewService(
	logger *zap.Logger,
	recipients recipient.Repository,
	externalOrgs recipient.ExternalOrgRepository,
	agreements recipient.AgreementRepository,
	config Config,
) *Service {
	return &Service{
		logger:       logger,
		recipients:   recipients,
		externalOrgs: externalOrgs,
		agreements:   agreements,
		config:       config,
	}
}

// GetRecipient retrieves a recipient within the caller's organization.
func (s *Service) GetRecipient(ctx context.Context, id, orgID uuid.UUID) (*recipient.Recipient, error) {
	return s.recipients.GetByID(ctx, id, orgID)
}

// GetDirectChildren returns all recipients whose parent is recipientID.
func (s *Service) GetDirectChildren(ctx context.Context, recipientID, orgID uuid.UUID) ([]*recipient.Recipient, error) {
	if _, err := s.recipients.GetByID(ctx, recipientID, orgID); err != nil {
		return nil, err
	}
	return s.recipients.GetChildren(ctx, recipientID, orgID)
}

// GetDescendantTree returns the full subtree rooted at recipientID, each node
// annotated with its depth relative to the root. The storage layer produces a
// flat depth-annotated list via a recursive query; the tree is reassembled
// here so no traversal recurses over attacker-influenced depth.
func (s *Service) GetDescendantTree(ctx context.Context, recipientID, orgID uuid.UUID) (*recipient.TreeNode, error) {
	root, err := s.recipients.GetByID(ctx, recipientID, orgID)
	if err != nil {
		return nil, err
	}

	maxDepth := recipient.MaxDepthFor(root.HierarchyType)
	rows, err := s.recipients.Descendants(ctx, recipientID, orgID, maxDepth)
	if err != nil {
		return nil, err
	}

	nodes := make(map[uuid.UUID]*recipient.TreeNode, len(rows))
	for _, row := range rows {
		nodes[row.Recipient.ID] = &recipient.TreeNode{Recipient: row.Recipient, Depth: row.Depth}
	}
	var rootNode *recipient.TreeNode
	for _, row := range rows {
		node := nodes[row.Recipient.ID]
		if row.Depth == 0 {
			rootNode = node
			continue
		}
		parent, ok := nodes[*row.Recipient.ParentRecipientID]
		if !ok {
			return nil, errors.NewInternalError("descendant query returned a node with no parent row").
				WithDetails(map[string]interface{}{"recipient_id": row.Recipient.ID.String()})
		}
		parent.Children = append(parent.Children, node)
	}
	if rootNode == nil {
		return nil, errors.NewInternalError("descendant query returned no root row")
	}
	return rootNode, nil
}

// GetAncestorChain returns the ordered list from immediate parent up to the
// root. The walk is iterative with a visited set: revisiting a node means a
// cycle slipped past validation and is surfaced as an internal error, never
// an endless loop. A dangling parent reference terminates the chain early;
// such recipients surface through the orphan query.
func (s *Service) GetAncestorChain(ctx context.Context, recipientID, orgID uuid.UUID) ([]*recipient.Recipient, error) {
	current, err := s.recipients.GetByID(ctx, recipientID, orgID)
	if err != nil {
		return nil, err
	}

	visited := map[uuid.UUID]bool{current.ID: true}
	chain := make([]*recipient.Recipient, 0, 4)

	for current.ParentRecipientID != nil {
		parentID := *current.ParentRecipientID
		if visited[parentID] {
			s.logger.Error("cycle detected in ancestor chain",
				zap.String("recipient_id", recipientID.String()),
				zap.String("organization_id", orgID.String()),
				zap.String("revisited_id", parentID.String()),
			)
			return nil, errors.NewInternalError("recipient hierarchy contains a cycle").
				WithDetails(map[string]interface{}{"recipient_id": parentID.String()})
		}
		if len(chain) >= recipient.MaxDepthOrganizational {
			return nil, errors.NewInternalError("ancestor chain exceeds the maximum hierarchy depth")
		}

		parent, err := s.recipients.GetByID(ctx, parentID, orgID)
		if err != nil {
			if errors.IsNotFound(err) {
				break // orphaned: parent deleted or outside the tenant
			}
			return nil, err
		}
		visited[parentID] = true
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}

// CheckCircularReference answers: would setting recipientID's parent to
// candidateParentID create a cycle? The trivial self-parent case counts.
func (s *Service) CheckCircularReference(ctx context.Context, candidateParentID, recipientID, orgID uuid.UUID) (bool, error) {
	if candidateParentID == recipientID {
		return true, nil
	}
	chain, err := s.GetAncestorChain(ctx, candidateParentID, orgID)
	if err != nil {
		return false, err
	}
	for _, ancestor := range chain {
		if ancestor.ID == recipientID {
			return true, nil
		}
	}
	return false, nil
}

// CalculateHierarchyDepth returns the recipient's depth from its root
// (root = 0).
func (s *Service) CalculateHierarchyDepth(ctx context.Context, recipientID, orgID uuid.UUID) (int, error) {
	chain, err := s.GetAncestorChain(ctx, recipientID, orgID)
	if err != nil {
		return 0, err
	}
	return len(chain), nil
}

// subtreeHeight returns the height of the subtree rooted at the recipient
// (0 when it has no children or is not persisted yet).
func (s *Service) subtreeHeight(ctx context.Context, recipientID, orgID uuid.UUID) (int, error) {
	rows, err := s.recipients.Descendants(ctx, recipientID, orgID, recipient.MaxDepthOrganizational)
	if err != nil {
		if errors.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	height := 0
	for _, row := range rows {
		if row.Depth > height {
			height = row.Depth
		}
	}
	return height, nil
}

// ValidatePlacement runs the full placement rule set for attaching child to
// parentID: parent resolution (tenant-scoped), type compatibility, hierarchy
// type consistency, acyclicity, depth caps, and the agreement advisory.
// Blocking violations and warnings come back together in one result so
// callers can render a complete remediation checklist.
func (s *Service) ValidatePlacement(ctx context.Context, child *recipient.Recipient, parentID *uuid.UUID) (*recipient.ValidationResult, error) {
	result := &recipient.ValidationResult{}

	var parent *recipient.Recipient
	if parentID != nil {
		var err error
		parent, err = s.recipients.GetByID(ctx, *parentID, child.OrganizationID)
		if err != nil {
			if errors.IsNotFound(err) {
				// Nonexistent and cross-tenant parents are indistinguishable
				// on purpose.
				result.AddError(recipient.RuleCrossTenantParent, "parent_recipient_id",
					"parent recipient not found in organization", parentID.String())
				return result, nil
			}
			return nil, err
		}
	}

	result.Merge(recipient.ValidatePlacement(child, parent))
	if !result.Valid() {
		return result, nil
	}

	if parent != nil {
		cycle, err := s.CheckCircularReference(ctx, parent.ID, child.ID, child.OrganizationID)
		if err != nil {
			return nil, err
		}
		if cycle {
			result.AddError(recipient.RuleCycle, "parent_recipient_id",
				"setting this parent would create a cycle", parent.ID.String())
			return result, nil
		}

		parentDepth, err := s.CalculateHierarchyDepth(ctx, parent.ID, child.OrganizationID)
		if err != nil {
			return nil, err
		}
		height, err := s.subtreeHeight(ctx, child.ID, child.OrganizationID)
		if err != nil {
			return nil, err
		}
		hierarchyType := child.HierarchyType
		if hierarchyType == recipient.HierarchyNone {
			hierarchyType = recipient.DefaultHierarchyType(child)
		}
		depthCap := recipient.MaxDepthFor(hierarchyType)
		deepest := parentDepth + 1 + height
		if deepest > depthCap {
			result.AddError(recipient.RuleDepthExceeded, "parent_recipient_id",
				"placement would exceed the maximum hierarchy depth", "")
		}
	}

	if child.ExpectsAgreement() {
		hasActive, err := s.agreements.HasActiveForRecipient(ctx, child.ID, child.OrganizationID)
		if err != nil && !errors.IsNotFound(err) {
			return nil, err
		}
		if !hasActive {
			result.AddWarning(recipient.RuleMissingAgreement, "agreements",
				"recipient references an external organization but has no active agreement", "")
		}
	}

	return result, nil
}

// CreateInput describes a recipient to register.
type CreateInput struct {
	Name              string
	Type              recipient.Type
	Description       string
	ExternalOrgID     *uuid.UUID
	ParentRecipientID *uuid.UUID
	HierarchyType     recipient.HierarchyType
	CountryID         *uuid.UUID
}

// CreateRecipient registers a new recipient. The cycle-and-depth check and
// the insert run in one transaction with the candidate parent locked, so a
// concurrent re-parent cannot invalidate the validation (check-then-act).
// A non-nil ValidationResult with errors means the create was rejected; the
// error return is reserved for not-found and internal conditions.
func (s *Service) CreateRecipient(ctx context.Context, orgID uuid.UUID, input CreateInput) (*recipient.Recipient, *recipient.ValidationResult, error) {
	r := recipient.NewRecipient(orgID, input.Name, input.Type)
	r.Description = input.Description
	r.ExternalOrgID = input.ExternalOrgID
	r.CountryID = input.CountryID
	r.HierarchyType = input.HierarchyType
	if input.ParentRecipientID != nil {
		r.ParentRecipientID = input.ParentRecipientID
		if r.HierarchyType == recipient.HierarchyNone {
			r.HierarchyType = recipient.DefaultHierarchyType(r)
		}
	}

	if input.ExternalOrgID != nil {
		if _, err := s.externalOrgs.GetByID(ctx, *input.ExternalOrgID, orgID); err != nil {
			return nil, nil, err
		}
	}

	var result *recipient.ValidationResult
	err := s.recipients.Transact(ctx, func(ctx context.Context, repo recipient.Repository) error {
		if input.ParentRecipientID != nil {
			if _, err := repo.GetByIDForUpdate(ctx, *input.ParentRecipientID, orgID); err != nil {
				if errors.IsNotFound(err) {
					result = &recipient.ValidationResult{}
					result.AddError(recipient.RuleCrossTenantParent, "parent_recipient_id",
						"parent recipient not found in organization", input.ParentRecipientID.String())
					return nil
				}
				return err
			}
		}

		txService := s.withRepository(repo)
		var err error
		result, err = txService.ValidatePlacement(ctx, r, input.ParentRecipientID)
		if err != nil {
			return err
		}
		if !result.Valid() {
			return nil
		}
		return repo.Create(ctx, r)
	})
	if err != nil {
		return nil, nil, err
	}
	if !result.Valid() {
		return nil, result, nil
	}

	s.logger.Info("recipient created",
		zap.String("recipient_id", r.ID.String()),
		zap.String("organization_id", orgID.String()),
		zap.String("type", string(r.Type)),
		zap.Int("warnings", len(result.Warnings)),
	)
	return r, result, nil
}

// UpdateInput describes recipient mutations. Nil fields are left untouched.
type UpdateInput struct {
	Name        *string
	Type        *recipient.Type
	Description *string
}

// UpdateRecipient applies rename/retype/description changes. A type change
// is re-validated against the current parent and against every direct child.
func (s *Service) UpdateRecipient(ctx context.Context, id, orgID uuid.UUID, input UpdateInput) (*recipient.Recipient, *recipient.ValidationResult, error) {
	var updated *recipient.Recipient
	var result *recipient.ValidationResult

	err := s.recipients.Transact(ctx, func(ctx context.Context, repo recipient.Repository) error {
		r, err := repo.GetByIDForUpdate(ctx, id, orgID)
		if err != nil {
			return err
		}

		if input.Name != nil {
			r.Rename(*input.Name)
		}
		if input.Description != nil {
			r.Description = *input.Description
		}
		if input.Type != nil && *input.Type != r.Type {
			r.Type = *input.Type
			r.UpdatedAt = time.Now()
		}

		txService := s.withRepository(repo)
		result, err = txService.ValidatePlacement(ctx, r, r.ParentRecipientID)
		if err != nil {
			return err
		}

		// A retype must stay compatible with existing children.
		if input.Type != nil {
			children, err := repo.GetChildren(ctx, r.ID, orgID)
			if err != nil {
				return err
			}
			for _, child := range children {
				if !recipient.CanParent(child.Type, r.Type) {
					result.AddError(recipient.RuleParentTypeIncompatible, "type",
						"new type is incompatible with an existing child", string(child.Type))
				}
			}
		}

		if !result.Valid() {
			return nil
		}
		updated = r
		return repo.Update(ctx, r)
	})
	if err != nil {
		return nil, nil, err
	}
	if !result.Valid() {
		return nil, result, nil
	}
	return updated, result, nil
}

// Reparent moves a recipient under a new parent (nil makes it a root). The
// recipient and the candidate parent are row-locked for the duration of the
// check-and-write. Re-parenting to the current parent is a validated no-op.
func (s *Service) Reparent(ctx context.Context, id, orgID uuid.UUID, newParentID *uuid.UUID) (*recipient.Recipient, *recipient.ValidationResult, error) {
	var updated *recipient.Recipient
	var result *recipient.ValidationResult

	err := s.recipients.Transact(ctx, func(ctx context.Context, repo recipient.Repository) error {
		r, err := repo.GetByIDForUpdate(ctx, id, orgID)
		if err != nil {
			return err
		}

		if sameParent(r.ParentRecipientID, newParentID) {
			result = &recipient.ValidationResult{}
			updated = r
			return nil
		}

		if newParentID != nil {
			if _, err := repo.GetByIDForUpdate(ctx, *newParentID, orgID); err != nil {
				if errors.IsNotFound(err) {
					result = &recipient.ValidationResult{}
					result.AddError(recipient.RuleCrossTenantParent, "parent_recipient_id",
						"parent recipient not found in organization", newParentID.String())
					return nil
				}
				return err
			}
		}

		candidate := *r
		candidate.ParentRecipientID = newParentID
		if newParentID != nil && candidate.HierarchyType == recipient.HierarchyNone {
			candidate.HierarchyType = recipient.DefaultHierarchyType(&candidate)
		}
		if newParentID == nil {
			candidate.HierarchyType = r.HierarchyType
		}

		txService := s.withRepository(repo)
		result, err = txService.ValidatePlacement(ctx, &candidate, newParentID)
		if err != nil {
			return err
		}
		if !result.Valid() {
			return nil
		}

		r.SetParent(newParentID, candidate.HierarchyType)
		updated = r
		return repo.Update(ctx, r)
	})
	if err != nil {
		return nil, nil, err
	}
	if !result.Valid() {
		return nil, result, nil
	}

	s.logger.Info("recipient re-parented",
		zap.String("recipient_id", id.String()),
		zap.String("organization_id", orgID.String()),
	)
	return updated, result, nil
}

// DeactivateRecipient soft-deletes a recipient. Children are not cascaded;
// they become orphans until re-parented and surface in the orphan query.
func (s *Service) DeactivateRecipient(ctx context.Context, id, orgID uuid.UUID) (*recipient.Recipient, error) {
	var r *recipient.Recipient
	err := s.recipients.Transact(ctx, func(ctx context.Context, repo recipient.Repository) error {
		var err error
		r, err = repo.GetByIDForUpdate(ctx, id, orgID)
		if err != nil {
			return err
		}
		r.Deactivate()
		return repo.Update(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRecipient hard-deletes a recipient. Blocked while children or
// agreements still reference it.
func (s *Service) DeleteRecipient(ctx context.Context, id, orgID uuid.UUID) error {
	return s.recipients.Transact(ctx, func(ctx context.Context, repo recipient.Repository) error {
		if _, err := repo.GetByIDForUpdate(ctx, id, orgID); err != nil {
			return err
		}

		hasChildren, err := repo.HasChildren(ctx, id, orgID)
		if err != nil {
			return err
		}
		if hasChildren {
			return errors.NewDeleteBlockedError("recipient", "recipient still has child recipients")
		}

		count, err := s.agreements.CountForRecipient(ctx, id, orgID)
		if err != nil {
			return err
		}
		if count > 0 {
			return errors.NewDeleteBlockedError("recipient", "recipient still has agreements")
		}

		return repo.Delete(ctx, id, orgID)
	})
}

// withRepository returns a shallow copy of the service bound to the given
// repository, so validation helpers observe the surrounding transaction.
func (s *Service) withRepository(repo recipient.Repository) *Service {
	clone := *s
	clone.recipients = repo
	return &clone
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
