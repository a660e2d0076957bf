package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	domainerrors "github.com/compilo/compilo-backend/internal/domain/errors"
	"github.com/compilo/compilo-backend/internal/domain/recipient"
	"github.com/compilo/compilo-backend/internal/domain/transfer"
	"github.com/compilo/compilo-backend/internal/infrastructure/config"
)

func setupTestPool(t *testing.T) *ConnectionPool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("compilo_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewConnectionPool(ctx, &config.DatabaseConfig{
		URL:             connStr,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applyMigrations(t, ctx, pool)
	return pool
}

func applyMigrations(t *testing.T, ctx context.Context, pool *ConnectionPool) {
	t.Helper()

	files, err := filepath.Glob(filepath.Join("..", "..", "..", "migrations", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "no migration files found")

	sort.Strings(files)
	for _, file := range files {
		if strings.HasSuffix(file, ".down.sql") {
			continue
		}
		content, err := os.ReadFile(file)
		require.NoError(t, err)
		_, err = pool.Primary().Exec(ctx, string(content))
		require.NoError(t, err, "applying %s", file)
	}
}

func TestRecipientRepositoryRoundTrip(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewRecipientRepository(pool)
	ctx := context.Background()
	orgID := uuid.New()

	rec := recipient.NewRecipient(orgID, "Acme Hosting", recipient.TypeProcessor)
	rec.Description = "Primary hosting provider"
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.GetByID(ctx, rec.ID, orgID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "Acme Hosting", got.Name)
	assert.Equal(t, recipient.TypeProcessor, got.Type)
	assert.True(t, got.IsActive)

	// A different tenant must not see the row.
	_, err = repo.GetByID(ctx, rec.ID, uuid.New())
	assert.True(t, domainerrors.IsNotFound(err))

	got.Rename("Acme Cloud Hosting")
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, rec.ID, orgID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Cloud Hosting", got.Name)

	require.NoError(t, repo.Delete(ctx, rec.ID, orgID))
	_, err = repo.GetByID(ctx, rec.ID, orgID)
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestDescendantsRecursiveQuery(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewRecipientRepository(pool)
	ctx := context.Background()
	orgID := uuid.New()

	root := recipient.NewRecipient(orgID, "Root Processor", recipient.TypeProcessor)
	require.NoError(t, repo.Create(ctx, root))

	child := recipient.NewRecipient(orgID, "Child Sub", recipient.TypeSubProcessor)
	child.SetParent(&root.ID, recipient.HierarchyProcessorChain)
	require.NoError(t, repo.Create(ctx, child))

	grandchild := recipient.NewRecipient(orgID, "Grandchild Sub", recipient.TypeSubProcessor)
	grandchild.SetParent(&child.ID, recipient.HierarchyProcessorChain)
	require.NoError(t, repo.Create(ctx, grandchild))

	sibling := recipient.NewRecipient(orgID, "Sibling Sub", recipient.TypeSubProcessor)
	sibling.SetParent(&root.ID, recipient.HierarchyProcessorChain)
	require.NoError(t, repo.Create(ctx, sibling))

	rows, err := repo.Descendants(ctx, root.ID, orgID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, root.ID, rows[0].Recipient.ID)
	assert.Equal(t, 0, rows[0].Depth)

	depths := make(map[uuid.UUID]int)
	for _, row := range rows {
		depths[row.Recipient.ID] = row.Depth
	}
	assert.Equal(t, 1, depths[child.ID])
	assert.Equal(t, 1, depths[sibling.ID])
	assert.Equal(t, 2, depths[grandchild.ID])

	// maxDepth bounds the walk.
	rows, err = repo.Descendants(ctx, root.ID, orgID, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	children, err := repo.GetChildren(ctx, root.ID, orgID)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	has, err := repo.HasChildren(ctx, grandchild.ID, orgID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestOrphanedDetection(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewRecipientRepository(pool)
	ctx := context.Background()
	orgID := uuid.New()

	parent := recipient.NewRecipient(orgID, "Parent Dept", recipient.TypeInternalDepartment)
	require.NoError(t, repo.Create(ctx, parent))

	child := recipient.NewRecipient(orgID, "Child Dept", recipient.TypeInternalDepartment)
	child.SetParent(&parent.ID, recipient.HierarchyOrganizational)
	require.NoError(t, repo.Create(ctx, child))

	orphans, err := repo.Orphaned(ctx, orgID)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	parent.Deactivate()
	require.NoError(t, repo.Update(ctx, parent))

	orphans, err = repo.Orphaned(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, child.ID, orphans[0].ID)
}

func TestTransactRollsBackOnError(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewRecipientRepository(pool)
	ctx := context.Background()
	orgID := uuid.New()

	rec := recipient.NewRecipient(orgID, "Doomed", recipient.TypeProcessor)
	sentinel := errors.New("abort")

	err := repo.Transact(ctx, func(ctx context.Context, txRepo recipient.Repository) error {
		if err := txRepo.Create(ctx, rec); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = repo.GetByID(ctx, rec.ID, orgID)
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestTransactLocksAndUpdates(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewRecipientRepository(pool)
	ctx := context.Background()
	orgID := uuid.New()

	rec := recipient.NewRecipient(orgID, "Locked", recipient.TypeProcessor)
	require.NoError(t, repo.Create(ctx, rec))

	err := repo.Transact(ctx, func(ctx context.Context, txRepo recipient.Repository) error {
		locked, err := txRepo.GetByIDForUpdate(ctx, rec.ID, orgID)
		if err != nil {
			return err
		}
		locked.Rename("Locked And Renamed")
		return txRepo.Update(ctx, locked)
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, rec.ID, orgID)
	require.NoError(t, err)
	assert.Equal(t, "Locked And Renamed", got.Name)
}

func TestListThirdCountryRecipients(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewRecipientRepository(pool)
	refs := NewReferenceRepository(pool)
	ctx := context.Background()
	orgID := uuid.New()

	us, err := refs.GetCountryByCode(ctx, "US")
	require.NoError(t, err)
	fr, err := refs.GetCountryByCode(ctx, "FR")
	require.NoError(t, err)
	ca, err := refs.GetCountryByCode(ctx, "CA")
	require.NoError(t, err)

	usRec := recipient.NewRecipient(orgID, "US Analytics", recipient.TypeProcessor)
	usRec.CountryID = &us.ID
	require.NoError(t, repo.Create(ctx, usRec))

	frRec := recipient.NewRecipient(orgID, "FR Hosting", recipient.TypeProcessor)
	frRec.CountryID = &fr.ID
	require.NoError(t, repo.Create(ctx, frRec))

	caRec := recipient.NewRecipient(orgID, "CA Support", recipient.TypeProcessor)
	caRec.CountryID = &ca.ID
	require.NoError(t, repo.Create(ctx, caRec))

	// Adequate and EU countries stay out of the third-country listing.
	listed, err := repo.ListThirdCountry(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, usRec.ID, listed[0].ID)
}

func TestAgreementLifecycle(t *testing.T) {
	pool := setupTestPool(t)
	recipients := NewRecipientRepository(pool)
	agreements := NewAgreementRepository(pool)
	ctx := context.Background()
	orgID := uuid.New()

	rec := recipient.NewRecipient(orgID, "Contracted Processor", recipient.TypeProcessor)
	require.NoError(t, recipients.Create(ctx, rec))

	a := recipient.NewAgreement(orgID, rec.ID, recipient.AgreementDPA)
	a.Status = recipient.AgreementActive
	signed := time.Now().Add(-24 * time.Hour)
	expires := time.Now().Add(10 * 24 * time.Hour)
	a.SignedAt = &signed
	a.ExpiresAt = &expires
	require.NoError(t, agreements.Create(ctx, a))

	active, err := agreements.HasActiveForRecipient(ctx, rec.ID, orgID)
	require.NoError(t, err)
	assert.True(t, active)

	count, err := agreements.CountForRecipient(ctx, rec.ID, orgID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expiring, err := agreements.ExpiringWithin(ctx, orgID, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, a.ID, expiring[0].ID)

	expiring, err = agreements.ExpiringWithin(ctx, orgID, 5*24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, expiring)

	// Agreements against unknown recipients are rejected by the FK.
	bad := recipient.NewAgreement(orgID, uuid.New(), recipient.AgreementDPA)
	err = agreements.Create(ctx, bad)
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestExternalOrgDeleteBlockedByRecipients(t *testing.T) {
	pool := setupTestPool(t)
	recipients := NewRecipientRepository(pool)
	orgs := NewExternalOrgRepository(pool)
	ctx := context.Background()
	orgID := uuid.New()

	ext := recipient.NewExternalOrganization(orgID, "Blocked GmbH")
	require.NoError(t, orgs.Create(ctx, ext))

	rec := recipient.NewRecipient(orgID, "Fronting Role", recipient.TypeProcessor)
	rec.ExternalOrgID = &ext.ID
	require.NoError(t, recipients.Create(ctx, rec))

	err := orgs.Delete(ctx, ext.ID, orgID)
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "DELETE_BLOCKED", appErr.Code)

	require.NoError(t, recipients.Delete(ctx, rec.ID, orgID))
	require.NoError(t, orgs.Delete(ctx, ext.ID, orgID))
}

func TestReferenceDataSeed(t *testing.T) {
	pool := setupTestPool(t)
	refs := NewReferenceRepository(pool)
	ctx := context.Background()

	fr, err := refs.GetCountryByCode(ctx, "FR")
	require.NoError(t, err)
	assert.Equal(t, "France", fr.Name)
	assert.Contains(t, fr.GdprStatus, transfer.StatusEU)

	_, err = refs.GetCountryByCode(ctx, "XX")
	assert.True(t, domainerrors.IsNotFound(err))

	mechanisms, err := refs.ListMechanisms(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, mechanisms)

	var scc *transfer.TransferMechanism
	for _, m := range mechanisms {
		if m.Name == "Standard Contractual Clauses" {
			scc = m
		}
	}
	require.NotNil(t, scc)
	assert.Equal(t, transfer.CategorySafeguard, scc.Category)
	assert.True(t, scc.IsActive)
}
