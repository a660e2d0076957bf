package hierarchy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/compilo/compilo-backend/internal/domain/errors"
	"github.com/compilo/compilo-backend/internal/domain/recipient"
	"github.com/google/uuid"
)

// memoryRepo is an in-memory recipient.Repository. Traversal operations need
// real graph behavior, which canned mock expectations cannot express.
type memoryRepo struct {
	mu              sync.Mutex
	recipients      map[uuid.UUID]*recipient.Recipient
	thirdCountryIDs map[uuid.UUID]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		recipients:      make(map[uuid.UUID]*recipient.Recipient),
		thirdCountryIDs: make(map[uuid.UUID]bool),
	}
}

func (m *memoryRepo) put(r *recipient.Recipient) *recipient.Recipient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipients[r.ID] = r
	return r
}

func (m *memoryRepo) Create(ctx context.Context, r *recipient.Recipient) error {
	m.put(r)
	return nil
}

func (m *memoryRepo) GetByID(ctx context.Context, id, orgID uuid.UUID) (*recipient.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok || r.OrganizationID != orgID {
		return nil, errors.ErrRecipientNotFound
	}
	return r, nil
}

func (m *memoryRepo) GetByIDForUpdate(ctx context.Context, id, orgID uuid.UUID) (*recipient.Recipient, error) {
	return m.GetByID(ctx, id, orgID)
}

func (m *memoryRepo) Update(ctx context.Context, r *recipient.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recipients[r.ID]; !ok {
		return errors.ErrRecipientNotFound
	}
	m.recipients[r.ID] = r
	return nil
}

func (m *memoryRepo) Delete(ctx context.Context, id, orgID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok || r.OrganizationID != orgID {
		return errors.ErrRecipientNotFound
	}
	delete(m.recipients, id)
	return nil
}

func (m *memoryRepo) List(ctx context.Context, orgID uuid.UUID, filter recipient.Filter) ([]*recipient.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*recipient.Recipient
	for _, r := range m.recipients {
		if r.OrganizationID != orgID {
			continue
		}
		if filter.Type != nil && r.Type != *filter.Type {
			continue
		}
		if filter.IsActive != nil && r.IsActive != *filter.IsActive {
			continue
		}
		if filter.RootsOnly && r.ParentRecipientID != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryRepo) GetChildren(ctx context.Context, parentID, orgID uuid.UUID) ([]*recipient.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*recipient.Recipient
	for _, r := range m.recipients {
		if r.OrganizationID == orgID && r.ParentRecipientID != nil && *r.ParentRecipientID == parentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRepo) HasChildren(ctx context.Context, parentID, orgID uuid.UUID) (bool, error) {
	children, _ := m.GetChildren(ctx, parentID, orgID)
	return len(children) > 0, nil
}

func (m *memoryRepo) Descendants(ctx context.Context, rootID, orgID uuid.UUID, maxDepth int) ([]recipient.DescendantRow, error) {
	root, err := m.GetByID(ctx, rootID, orgID)
	if err != nil {
		return nil, err
	}
	rows := []recipient.DescendantRow{{Recipient: root, Depth: 0}}
	frontier := []uuid.UUID{rootID}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []uuid.UUID
		for _, id := range frontier {
			children, _ := m.GetChildren(ctx, id, orgID)
			for _, child := range children {
				rows = append(rows, recipient.DescendantRow{Recipient: child, Depth: depth})
				next = append(next, child.ID)
			}
		}
		frontier = next
	}
	return rows, nil
}

func (m *memoryRepo) Orphaned(ctx context.Context, orgID uuid.UUID) ([]*recipient.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*recipient.Recipient
	for _, r := range m.recipients {
		if r.OrganizationID != orgID || r.ParentRecipientID == nil {
			continue
		}
		parent, ok := m.recipients[*r.ParentRecipientID]
		if !ok || !parent.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListThirdCountry(ctx context.Context, orgID uuid.UUID) ([]*recipient.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*recipient.Recipient
	for _, r := range m.recipients {
		if r.OrganizationID == orgID && r.CountryID != nil && m.thirdCountryIDs[*r.CountryID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRepo) CountByType(ctx context.Context, orgID uuid.UUID) (map[recipient.Type]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[recipient.Type]int)
	for _, r := range m.recipients {
		if r.OrganizationID == orgID {
			counts[r.Type]++
		}
	}
	return counts, nil
}

func (m *memoryRepo) CountByStatus(ctx context.Context, orgID uuid.UUID) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active, inactive := 0, 0
	for _, r := range m.recipients {
		if r.OrganizationID != orgID {
			continue
		}
		if r.IsActive {
			active++
		} else {
			inactive++
		}
	}
	return active, inactive, nil
}

func (m *memoryRepo) Transact(ctx context.Context, fn func(ctx context.Context, repo recipient.Repository) error) error {
	return fn(ctx, m)
}

// MockAgreementRepository mocks recipient.AgreementRepository.
type MockAgreementRepository struct {
	mock.Mock
}

func (m *MockAgreementRepository) Create(ctx context.Context, a *recipient.Agreement) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAgreementRepository) GetByID(ctx context.Context, id, orgID uuid.UUID) (*recipient.Agreement, error) {
	args := m.Called(ctx, id, orgID)
	return args.Get(0).(*recipient.Agreement), args.Error(1)
}

func (m *MockAgreementRepository) Update(ctx context.Context, a *recipient.Agreement) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAgreementRepository) Delete(ctx context.Context, id, orgID uuid.UUID) error {
	args := m.Called(ctx, id, orgID)
	return args.Error(0)
}

func (m *MockAgreementRepository) ListByRecipient(ctx context.Context, recipientID, orgID uuid.UUID) ([]*recipient.Agreement, error) {
	args := m.Called(ctx, recipientID, orgID)
	return args.Get(0).([]*recipient.Agreement), args.Error(1)
}

func (m *MockAgreementRepository) HasActiveForRecipient(ctx context.Context, recipientID, orgID uuid.UUID) (bool, error) {
	args := m.Called(ctx, recipientID, orgID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAgreementRepository) CountForRecipient(ctx context.Context, recipientID, orgID uuid.UUID) (int, error) {
	args := m.Called(ctx, recipientID, orgID)
	return args.Int(0), args.Error(1)
}

func (m *MockAgreementRepository) ExpiringWithin(ctx context.Context, orgID uuid.UUID, window time.Duration) ([]*recipient.Agreement, error) {
	args := m.Called(ctx, orgID, window)
	return args.Get(0).([]*recipient.Agreement), args.Error(1)
}

// MockExternalOrgRepository mocks recipient.ExternalOrgRepository.
type MockExternalOrgRepository struct {
	mock.Mock
}

func (m *MockExternalOrgRepository) Create(ctx context.Context, e *recipient.ExternalOrganization) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockExternalOrgRepository) GetByID(ctx context.Context, id, orgID uuid.UUID) (*recipient.ExternalOrganization, error) {
	args := m.Called(ctx, id, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*recipient.ExternalOrganization), args.Error(1)
}

func (m *MockExternalOrgRepository) Update(ctx context.Context, e *recipient.ExternalOrganization) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockExternalOrgRepository) Delete(ctx context.Context, id, orgID uuid.UUID) error {
	args := m.Called(ctx, id, orgID)
	return args.Error(0)
}

func (m *MockExternalOrgRepository) List(ctx context.Context, orgID uuid.UUID) ([]*recipient.ExternalOrganization, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).([]*recipient.ExternalOrganization), args.Error(1)
}

type testEnv struct {
	service    *Service
	repo       *memoryRepo
	agreements *MockAgreementRepository
	extOrgs    *MockExternalOrgRepository
	orgID      uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	repo := newMemoryRepo()
	agreements := new(MockAgreementRepository)
	extOrgs := new(MockExternalOrgRepository)
	return &testEnv{
		service:    NewService(zaptest.NewLogger(t), repo, extOrgs, agreements, DefaultConfig()),
		repo:       repo,
		agreements: agreements,
		extOrgs:    extOrgs,
		orgID:      uuid.New(),
	}
}

// chain builds a linked processor chain of the given length and returns it
// root-first.
func (e *testEnv) chain(length int) []*recipient.Recipient {
	nodes := make([]*recipient.Recipient, length)
	for i := 0; i < length; i++ {
		t := recipient.TypeProcessor
		if i > 0 {
			t = recipient.TypeSubProcessor
		}
		r := recipient.NewRecipient(e.orgID, "node", t)
		r.HierarchyType = recipient.HierarchyProcessorChain
		if i > 0 {
			parentID := nodes[i-1].ID
			r.ParentRecipientID = &parentID
		}
		nodes[i] = e.repo.put(r)
	}
	return nodes
}

func TestGetAncestorChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nodes := env.chain(3)

	chain, err := env.service.GetAncestorChain(ctx, nodes[2].ID, env.orgID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, nodes[1].ID, chain[0].ID, "immediate parent first")
	assert.Equal(t, nodes[0].ID, chain[1].ID, "root last")

	depth, err := env.service.CalculateHierarchyDepth(ctx, nodes[2].ID, env.orgID)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)

	rootDepth, err := env.service.CalculateHierarchyDepth(ctx, nodes[0].ID, env.orgID)
	require.NoError(t, err)
	assert.Equal(t, 0, rootDepth)
}

func TestGetAncestorChainDetectsCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := recipient.NewRecipient(env.orgID, "a", recipient.TypeProcessor)
	b := recipient.NewRecipient(env.orgID, "b", recipient.TypeSubProcessor)
	a.ParentRecipientID = &b.ID
	b.ParentRecipientID = &a.ID
	env.repo.put(a)
	env.repo.put(b)

	_, err := env.service.GetAncestorChain(ctx, a.ID, env.orgID)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal),
		"a cycle that slipped past validation is an internal error")
}

func TestGetAncestorChainStopsAtDanglingParent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	missing := uuid.New()
	orphan := recipient.NewRecipient(env.orgID, "orphan", recipient.TypeProcessor)
	orphan.ParentRecipientID = &missing
	env.repo.put(orphan)

	chain, err := env.service.GetAncestorChain(ctx, orphan.ID, env.orgID)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestCheckCircularReference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nodes := env.chain(3)

	t.Run("self parent", func(t *testing.T) {
		cycle, err := env.service.CheckCircularReference(ctx, nodes[0].ID, nodes[0].ID, env.orgID)
		require.NoError(t, err)
		assert.True(t, cycle)
	})

	t.Run("descendant as parent", func(t *testing.T) {
		cycle, err := env.service.CheckCircularReference(ctx, nodes[2].ID, nodes[0].ID, env.orgID)
		require.NoError(t, err)
		assert.True(t, cycle)
	})

	t.Run("unrelated parent", func(t *testing.T) {
		other := env.repo.put(recipient.NewRecipient(env.orgID, "other", recipient.TypeProcessor))
		cycle, err := env.service.CheckCircularReference(ctx, other.ID, nodes[2].ID, env.orgID)
		require.NoError(t, err)
		assert.False(t, cycle)
	})
}

func TestGetDescendantTree(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.repo.put(recipient.NewRecipient(env.orgID, "root", recipient.TypeProcessor))
	childA := recipient.NewRecipient(env.orgID, "a", recipient.TypeSubProcessor)
	childA.ParentRecipientID = &root.ID
	env.repo.put(childA)
	childB := recipient.NewRecipient(env.orgID, "b", recipient.TypeSubProcessor)
	childB.ParentRecipientID = &root.ID
	env.repo.put(childB)
	grandchild := recipient.NewRecipient(env.orgID, "aa", recipient.TypeSubProcessor)
	grandchild.ParentRecipientID = &childA.ID
	env.repo.put(grandchild)

	tree, err := env.service.GetDescendantTree(ctx, root.ID, env.orgID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, tree.Recipient.ID)
	assert.Equal(t, 0, tree.Depth)
	require.Len(t, tree.Children, 2)

	var aNode *recipient.TreeNode
	for _, child := range tree.Children {
		assert.Equal(t, 1, child.Depth)
		if child.Recipient.ID == childA.ID {
			aNode = child
		}
	}
	require.NotNil(t, aNode)
	require.Len(t, aNode.Children, 1)
	assert.Equal(t, grandchild.ID, aNode.Children[0].Recipient.ID)
	assert.Equal(t, 2, aNode.Children[0].Depth)
}

func TestTenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	r := env.repo.put(recipient.NewRecipient(env.orgID, "mine", recipient.TypeProcessor))

	otherOrg := uuid.New()
	_, err := env.service.GetRecipient(ctx, r.ID, otherOrg)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err),
		"a recipient in another org must look exactly like a missing one")

	_, err = env.service.GetDirectChildren(ctx, r.ID, otherOrg)
	assert.True(t, errors.IsNotFound(err))
}

func TestCreateRecipient(t *testing.T) {
	ctx := context.Background()

	t.Run("valid sub-processor under processor", func(t *testing.T) {
		env := newTestEnv(t)
		nodes := env.chain(1)

		created, result, err := env.service.CreateRecipient(ctx, env.orgID, CreateInput{
			Name:              "CDN Vendor",
			Type:              recipient.TypeSubProcessor,
			ParentRecipientID: &nodes[0].ID,
		})
		require.NoError(t, err)
		require.True(t, result.Valid())
		require.NotNil(t, created)
		assert.Equal(t, recipient.HierarchyProcessorChain, created.HierarchyType)

		_, err = env.repo.GetByID(ctx, created.ID, env.orgID)
		assert.NoError(t, err, "recipient persisted")
	})

	t.Run("incompatible parent type is blocked", func(t *testing.T) {
		env := newTestEnv(t)
		dept := env.repo.put(recipient.NewRecipient(env.orgID, "HR", recipient.TypeInternalDepartment))

		created, result, err := env.service.CreateRecipient(ctx, env.orgID, CreateInput{
			Name:              "CDN Vendor",
			Type:              recipient.TypeSubProcessor,
			ParentRecipientID: &dept.ID,
		})
		require.NoError(t, err)
		assert.Nil(t, created)
		require.False(t, result.Valid())
		assert.Equal(t, recipient.RuleParentTypeIncompatible, result.Errors[0].Rule)
	})

	t.Run("processor chain rejects depth six", func(t *testing.T) {
		env := newTestEnv(t)
		nodes := env.chain(6) // depths 0..5

		_, result, err := env.service.CreateRecipient(ctx, env.orgID, CreateInput{
			Name:              "too deep",
			Type:              recipient.TypeSubProcessor,
			ParentRecipientID: &nodes[5].ID,
		})
		require.NoError(t, err)
		require.False(t, result.Valid())
		assert.Equal(t, recipient.RuleDepthExceeded, result.Errors[0].Rule)

		// one level up still fits
		_, result, err = env.service.CreateRecipient(ctx, env.orgID, CreateInput{
			Name:              "fits",
			Type:              recipient.TypeSubProcessor,
			ParentRecipientID: &nodes[4].ID,
		})
		require.NoError(t, err)
		assert.True(t, result.Valid())
	})

	t.Run("organizational hierarchy allows depth ten", func(t *testing.T) {
		env := newTestEnv(t)
		var parentID *uuid.UUID
		var nodes []*recipient.Recipient
		for i := 0; i < 10; i++ {
			r := recipient.NewRecipient(env.orgID, "dept", recipient.TypeInternalDepartment)
			r.HierarchyType = recipient.HierarchyOrganizational
			r.ParentRecipientID = parentID
			env.repo.put(r)
			nodes = append(nodes, r)
			parentID = &r.ID
		}

		// depth 10 fits
		_, result, err := env.service.CreateRecipient(ctx, env.orgID, CreateInput{
			Name:              "deep team",
			Type:              recipient.TypeInternalDepartment,
			HierarchyType:     recipient.HierarchyOrganizational,
			ParentRecipientID: &nodes[9].ID,
		})
		require.NoError(t, err)
		require.True(t, result.Valid())

		// depth 11 does not
		deepest, err := env.repo.List(ctx, env.orgID, recipient.Filter{})
		require.NoError(t, err)
		var depth10 *recipient.Recipient
		for _, r := range deepest {
			d, err := env.service.CalculateHierarchyDepth(ctx, r.ID, env.orgID)
			require.NoError(t, err)
			if d == 10 {
				depth10 = r
			}
		}
		require.NotNil(t, depth10)
		_, result, err = env.service.CreateRecipient(ctx, env.orgID, CreateInput{
			Name:              "too deep",
			Type:              recipient.TypeInternalDepartment,
			HierarchyType:     recipient.HierarchyOrganizational,
			ParentRecipientID: &depth10.ID,
		})
		require.NoError(t, err)
		require.False(t, result.Valid())
		assert.Equal(t, recipient.RuleDepthExceeded, result.Errors[0].Rule)
	})

	t.Run("missing agreement is a warning, not an error", func(t *testing.T) {
		env := newTestEnv(t)
		extID := uuid.New()
		env.extOrgs.On("GetByID", mock.Anything, extID, env.orgID).
			Return(&recipient.ExternalOrganization{ID: extID, OrganizationID: env.orgID, LegalName: "Acme"}, nil)
		env.agreements.On("HasActiveForRecipient", mock.Anything, mock.Anything, env.orgID).
			Return(false, nil)

		created, result, err := env.service.CreateRecipient(ctx, env.orgID, CreateInput{
			Name:          "Payroll Vendor",
			Type:          recipient.TypeProcessor,
			ExternalOrgID: &extID,
		})
		require.NoError(t, err)
		require.NotNil(t, created)
		require.True(t, result.Valid())
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, recipient.RuleMissingAgreement, result.Warnings[0].Rule)
	})

	t.Run("parent in another org reads as not found", func(t *testing.T) {
		env := newTestEnv(t)
		foreign := recipient.NewRecipient(uuid.New(), "foreign", recipient.TypeProcessor)
		env.repo.put(foreign)

		_, result, err := env.service.CreateRecipient(ctx, env.orgID, CreateInput{
			Name:              "CDN Vendor",
			Type:              recipient.TypeSubProcessor,
			ParentRecipientID: &foreign.ID,
		})
		require.NoError(t, err)
		require.False(t, result.Valid())
		assert.Equal(t, recipient.RuleCrossTenantParent, result.Errors[0].Rule)
	})
}

func TestReparent(t *testing.T) {
	ctx := context.Background()

	t.Run("to current parent is a validated no-op", func(t *testing.T) {
		env := newTestEnv(t)
		nodes := env.chain(2)

		updated, result, err := env.service.Reparent(ctx, nodes[1].ID, env.orgID, &nodes[0].ID)
		require.NoError(t, err)
		require.True(t, result.Valid())
		assert.Empty(t, result.Warnings)
		assert.Equal(t, nodes[0].ID, *updated.ParentRecipientID)
	})

	t.Run("under own descendant is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		nodes := env.chain(3)

		_, result, err := env.service.Reparent(ctx, nodes[0].ID, env.orgID, &nodes[2].ID)
		require.NoError(t, err)
		require.False(t, result.Valid())
		assert.Equal(t, recipient.RuleCycle, result.Errors[0].Rule)
	})

	t.Run("moving a subtree respects the depth cap", func(t *testing.T) {
		env := newTestEnv(t)
		nodes := env.chain(4) // depths 0..3

		// a detached two-node sub-processor chain; moving its root under depth 3
		// puts its leaf at depth 5, which fits; under depth 4 it would not
		subRoot := recipient.NewRecipient(env.orgID, "sub-root", recipient.TypeSubProcessor)
		subRoot.HierarchyType = recipient.HierarchyProcessorChain
		env.repo.put(subRoot)
		subLeaf := recipient.NewRecipient(env.orgID, "sub-leaf", recipient.TypeSubProcessor)
		subLeaf.HierarchyType = recipient.HierarchyProcessorChain
		subLeaf.ParentRecipientID = &subRoot.ID
		env.repo.put(subLeaf)

		_, result, err := env.service.Reparent(ctx, subRoot.ID, env.orgID, &nodes[3].ID)
		require.NoError(t, err)
		require.True(t, result.Valid(), "leaf lands exactly on the cap")

		deeper := env.chain(5) // depths 0..4
		_, result, err = env.service.Reparent(ctx, subRoot.ID, env.orgID, &deeper[4].ID)
		require.NoError(t, err)
		require.False(t, result.Valid())
		assert.Equal(t, recipient.RuleDepthExceeded, result.Errors[0].Rule)
	})

	t.Run("detaching makes a root", func(t *testing.T) {
		env := newTestEnv(t)
		nodes := env.chain(2)

		updated, result, err := env.service.Reparent(ctx, nodes[1].ID, env.orgID, nil)
		require.NoError(t, err)
		require.True(t, result.Valid())
		assert.Nil(t, updated.ParentRecipientID)
	})
}

func TestUpdateRecipientRetypeChecksChildren(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nodes := env.chain(2) // processor with a sub-processor child

	newType := recipient.TypeInternalDepartment
	_, result, err := env.service.UpdateRecipient(ctx, nodes[0].ID, env.orgID, UpdateInput{Type: &newType})
	require.NoError(t, err)
	require.False(t, result.Valid())

	found := false
	for _, issue := range result.Errors {
		if issue.Rule == recipient.RuleParentTypeIncompatible && issue.Field == "type" {
			found = true
		}
	}
	assert.True(t, found, "retype must stay compatible with existing children")
}

func TestDeleteRecipient(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked by children", func(t *testing.T) {
		env := newTestEnv(t)
		nodes := env.chain(2)

		err := env.service.DeleteRecipient(ctx, nodes[0].ID, env.orgID)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
	})

	t.Run("blocked by agreements", func(t *testing.T) {
		env := newTestEnv(t)
		r := env.repo.put(recipient.NewRecipient(env.orgID, "vendor", recipient.TypeProcessor))
		env.agreements.On("CountForRecipient", mock.Anything, r.ID, env.orgID).Return(2, nil)

		err := env.service.DeleteRecipient(ctx, r.ID, env.orgID)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
	})

	t.Run("leaf without agreements deletes", func(t *testing.T) {
		env := newTestEnv(t)
		r := env.repo.put(recipient.NewRecipient(env.orgID, "vendor", recipient.TypeProcessor))
		env.agreements.On("CountForRecipient", mock.Anything, r.ID, env.orgID).Return(0, nil)

		require.NoError(t, env.service.DeleteRecipient(ctx, r.ID, env.orgID))
		_, err := env.repo.GetByID(ctx, r.ID, env.orgID)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestDeactivateDoesNotCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nodes := env.chain(2)

	parent, err := env.service.DeactivateRecipient(ctx, nodes[0].ID, env.orgID)
	require.NoError(t, err)
	assert.False(t, parent.IsActive)

	child, err := env.repo.GetByID(ctx, nodes[1].ID, env.orgID)
	require.NoError(t, err)
	assert.True(t, child.IsActive, "children are not cascaded")

	orphans, err := env.service.OrphanedRecipients(ctx, env.orgID)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, nodes[1].ID, orphans[0].ID)
}
