package hierarchy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/compilo/compilo-backend/internal/domain/recipient"
	"github.com/google/uuid"
)

// Read-only derived views over the recipient graph. None of these mutate
// state and all tolerate "reasonably recent" data, so they may be served
// from a read replica.

// ListByType returns recipients of the given type.
func (s *Service) ListByType(ctx context.Context, orgID uuid.UUID, t recipient.Type) ([]*recipient.Recipient, error) {
	return s.recipients.List(ctx, orgID, recipient.Filter{Type: &t})
}

// ListRecipients returns recipients matching the filter.
func (s *Service) ListRecipients(ctx context.Context, orgID uuid.UUID, filter recipient.Filter) ([]*recipient.Recipient, error) {
	return s.recipients.List(ctx, orgID, filter)
}

// OrphanedRecipients returns recipients whose parent reference points at a
// missing or deactivated recipient.
func (s *Service) OrphanedRecipients(ctx context.Context, orgID uuid.UUID) ([]*recipient.Recipient, error) {
	return s.recipients.Orphaned(ctx, orgID)
}

// ThirdCountryRecipients returns recipients whose processing location has
// neither EU/EEA status nor an adequacy decision.
func (s *Service) ThirdCountryRecipients(ctx context.Context, orgID uuid.UUID) ([]*recipient.Recipient, error) {
	return s.recipients.ListThirdCountry(ctx, orgID)
}

// Statistics aggregates recipient counts for dashboards.
type Statistics struct {
	Total    int                    `json:"total"`
	ByType   map[recipient.Type]int `json:"by_type"`
	Active   int                    `json:"active"`
	Inactive int                    `json:"inactive"`
	Orphans  int                    `json:"orphans"`
}

// GetStatistics returns aggregate recipient counts for the organization.
func (s *Service) GetStatistics(ctx context.Context, orgID uuid.UUID) (*Statistics, error) {
	byType, err := s.recipients.CountByType(ctx, orgID)
	if err != nil {
		return nil, err
	}
	active, inactive, err := s.recipients.CountByStatus(ctx, orgID)
	if err != nil {
		return nil, err
	}
	orphans, err := s.recipients.Orphaned(ctx, orgID)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		ByType:   byType,
		Active:   active,
		Inactive: inactive,
		Orphans:  len(orphans),
	}
	for _, count := range byType {
		stats.Total += count
	}
	return stats, nil
}

// DuplicateExternalOrgs groups external organizations within the tenant whose
// legal or trading names normalize to the same comparison key.
func (s *Service) DuplicateExternalOrgs(ctx context.Context, orgID uuid.UUID) ([]recipient.DuplicateGroup, error) {
	orgs, err := s.externalOrgs.List(ctx, orgID)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string][]*recipient.ExternalOrganization)
	for _, org := range orgs {
		seen := make(map[string]bool)
		for _, key := range org.MatchKeys() {
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			byKey[key] = append(byKey[key], org)
		}
	}

	groups := make([]recipient.DuplicateGroup, 0)
	for key, members := range byKey {
		if len(members) > 1 {
			groups = append(groups, recipient.DuplicateGroup{MatchKey: key, Organizations: members})
		}
	}
	return groups, nil
}

// ExpiringAgreements returns active agreements that run out within the
// configured look-ahead window.
func (s *Service) ExpiringAgreements(ctx context.Context, orgID uuid.UUID) ([]*recipient.Agreement, error) {
	return s.agreements.ExpiringWithin(ctx, orgID, s.config.AgreementExpiryWindow)
}

// HealthReport summarizes structural violations across the whole
// organization's recipient graph, for dashboards.
type HealthReport struct {
	GeneratedAt     time.Time `json:"generated_at"`
	TotalRecipients int       `json:"total_recipients"`
	CycleViolations int       `json:"cycle_violations"`
	DepthViolations int       `json:"depth_violations"`
	TypeViolations  int       `json:"type_violations"`
	Orphans         int       `json:"orphans"`
}

// Healthy reports whether the graph carries no structural violations.
func (h *HealthReport) Healthy() bool {
	return h.CycleViolations == 0 && h.DepthViolations == 0 && h.TypeViolations == 0
}

// GetHealthReport walks the organization's full recipient graph in memory:
// a breadth-first sweep from the roots measures depth and checks parent/child
// type pairs; nodes whose parent exists but that the sweep never reaches are
// trapped in a cycle.
func (s *Service) GetHealthReport(ctx context.Context, orgID uuid.UUID) (*HealthReport, error) {
	all, err := s.recipients.List(ctx, orgID, recipient.Filter{})
	if err != nil {
		return nil, err
	}

	report := &HealthReport{
		GeneratedAt:     time.Now(),
		TotalRecipients: len(all),
	}

	index := make(map[uuid.UUID]*recipient.Recipient, len(all))
	children := make(map[uuid.UUID][]*recipient.Recipient)
	var roots []*recipient.Recipient
	for _, r := range all {
		index[r.ID] = r
	}
	for _, r := range all {
		if r.ParentRecipientID == nil {
			roots = append(roots, r)
			continue
		}
		parent, ok := index[*r.ParentRecipientID]
		if !ok {
			report.Orphans++
			roots = append(roots, r) // treat as root for the sweep below
			continue
		}
		children[parent.ID] = append(children[parent.ID], r)
		if !recipient.CanParent(r.Type, parent.Type) {
			report.TypeViolations++
		}
	}

	type queued struct {
		node  *recipient.Recipient
		depth int
	}
	visited := make(map[uuid.UUID]bool, len(all))
	queue := make([]queued, 0, len(all))
	for _, root := range roots {
		queue = append(queue, queued{root, 0})
	}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if visited[item.node.ID] {
			// A revisit during a BFS over parent pointers means two parents
			// claim the same child, which the schema forbids; count it
			// defensively as a cycle symptom.
			report.CycleViolations++
			continue
		}
		visited[item.node.ID] = true

		if item.depth > recipient.MaxDepthFor(item.node.HierarchyType) {
			report.DepthViolations++
		}
		for _, child := range children[item.node.ID] {
			queue = append(queue, queued{child, item.depth + 1})
		}
	}

	// Anything the sweep never reached hangs off a cycle.
	for _, r := range all {
		if !visited[r.ID] {
			report.CycleViolations++
		}
	}

	if !report.Healthy() {
		s.logger.Warn("hierarchy health violations detected",
			zap.String("organization_id", orgID.String()),
			zap.Int("cycles", report.CycleViolations),
			zap.Int("depth", report.DepthViolations),
			zap.Int("types", report.TypeViolations),
		)
	}
	return report, nil
}
