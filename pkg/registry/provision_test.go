package registry_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenancy/pkg/limits"
	"github.com/dmitrymomot/tenancy/pkg/registry"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantdb"
)

var tenantSchema = fstest.MapFS{
	"00001_init.sql": {Data: []byte("-- +goose Up\nCREATE TABLE organizations (id UUID PRIMARY KEY);\n")},
}

func newLimits(t *testing.T) *limits.Service {
	t.Helper()
	svc, err := limits.NewService(context.Background(), limits.NewInMemSource(limits.DefaultPlans()), limits.NewRegistry())
	require.NoError(t, err)
	return svc
}

func TestProvisioner_Provision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates record database and schema", func(t *testing.T) {
		t.Parallel()

		store := registry.NewMemoryStore()
		exec := &fakeExecutor{}
		mig := &fakeMigrator{}
		p := registry.NewProvisioner(store, exec,
			registry.WithMigrator(mig),
			registry.WithTenantMigrations(tenantSchema, ""),
			registry.WithPlanLimits(newLimits(t)),
			registry.WithDefaultDatabase("db-1.internal", 5432),
		)

		got, err := p.Provision(ctx, registry.ProvisionRequest{
			Domain:    " Acme.Example.com ",
			Subdomain: "acme",
			Plan:      tenant.PlanProfessional,
		})
		require.NoError(t, err)

		assert.Equal(t, "acme.example.com", got.Domain)
		assert.Equal(t, "acme.example.com", got.Name)
		assert.Equal(t, tenant.StatusTrial, got.Status)
		assert.True(t, strings.HasPrefix(got.Database.Name, registry.DatabasePrefix))
		assert.True(t, tenantdb.ValidDatabaseName(got.Database.Name))
		assert.Equal(t, "db-1.internal", got.Database.Host)
		assert.Equal(t, 5432, got.Database.Port)
		assert.Equal(t, tenant.Limits{MaxUsers: 50, MaxOrganizations: 5, MaxStorageMB: 10240}, got.Limits)
		assert.NotNil(t, got.SubscriptionStart)

		assert.Equal(t, []string{`CREATE DATABASE "` + got.Database.Name + `"`}, exec.statements())
		assert.Equal(t, []string{got.Database.Name}, mig.migrated)

		stored, err := store.FindBySubdomain(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, got.ID, stored.ID)
	})

	t.Run("clears cached not found answers", func(t *testing.T) {
		t.Parallel()

		store := registry.NewMemoryStore()
		dir := tenant.NewDirectory(store)
		t.Cleanup(func() { _ = dir.Close() })

		_, err := dir.Resolve(ctx, "new.example.com")
		require.ErrorIs(t, err, tenant.ErrTenantNotFound)

		p := registry.NewProvisioner(store, &fakeExecutor{}, registry.WithForgetter(dir))
		created, err := p.Provision(ctx, registry.ProvisionRequest{Domain: "new.example.com"})
		require.NoError(t, err)

		got, err := dir.Resolve(ctx, "new.example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("rejects invalid requests before touching anything", func(t *testing.T) {
		t.Parallel()

		exec := &fakeExecutor{}
		p := registry.NewProvisioner(registry.NewMemoryStore(), exec, registry.WithPlanLimits(newLimits(t)))

		for name, req := range map[string]registry.ProvisionRequest{
			"empty domain":  {},
			"bad domain":    {Domain: "acme example.com"},
			"bad database":  {Domain: "acme.example.com", DatabaseName: "acme; DROP DATABASE central"},
			"unknown plan":  {Domain: "acme.example.com", Plan: "gold"},
			"unknown state": {Domain: "acme.example.com", Status: "archived"},
		} {
			_, err := p.Provision(ctx, req)
			assert.Error(t, err, name)
		}
		assert.Empty(t, exec.statements())

		_, err := p.Provision(ctx, registry.ProvisionRequest{Domain: "acme.example.com", Plan: "gold"})
		assert.ErrorIs(t, err, registry.ErrUnknownPlan)
		_, err = p.Provision(ctx, registry.ProvisionRequest{Domain: "acme.example.com", DatabaseName: "a-b"})
		assert.ErrorIs(t, err, registry.ErrInvalidTenant)
	})

	t.Run("duplicate domain", func(t *testing.T) {
		t.Parallel()

		existing := newTenant("acme.example.com", "", tenant.StatusActive)
		exec := &fakeExecutor{}
		p := registry.NewProvisioner(registry.NewMemoryStore(existing), exec)

		_, err := p.Provision(ctx, registry.ProvisionRequest{Domain: "acme.example.com"})
		require.ErrorIs(t, err, registry.ErrDuplicate)
		require.ErrorIs(t, err, registry.ErrProvisioningFailed)
		assert.Empty(t, exec.statements())
	})

	t.Run("migration failure rolls back", func(t *testing.T) {
		t.Parallel()

		store := registry.NewMemoryStore()
		exec := &fakeExecutor{}
		mig := &fakeMigrator{err: errors.New("syntax error")}
		p := registry.NewProvisioner(store, exec,
			registry.WithMigrator(mig),
			registry.WithTenantMigrations(tenantSchema, ""),
		)

		_, err := p.Provision(ctx, registry.ProvisionRequest{Domain: "acme.example.com", DatabaseName: "tenant_acme"})
		require.ErrorIs(t, err, registry.ErrProvisioningFailed)

		assert.Equal(t, []string{
			`CREATE DATABASE "tenant_acme"`,
			`DROP DATABASE IF EXISTS "tenant_acme"`,
		}, exec.statements())

		_, err = store.FindByDomain(ctx, "acme.example.com")
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound, "record removed on failure")
	})

	t.Run("existing database is never dropped", func(t *testing.T) {
		t.Parallel()

		store := registry.NewMemoryStore()
		exec := &fakeExecutor{fail: map[string]error{
			"CREATE DATABASE": &pgconn.PgError{Code: "42P04"},
		}}
		p := registry.NewProvisioner(store, exec)

		_, err := p.Provision(ctx, registry.ProvisionRequest{Domain: "acme.example.com", DatabaseName: "tenant_acme"})
		require.ErrorIs(t, err, registry.ErrDuplicate)
		assert.Equal(t, []string{`CREATE DATABASE "tenant_acme"`}, exec.statements())

		_, err = store.FindByDomain(ctx, "acme.example.com")
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	})

	t.Run("creates an owner role from the credential template", func(t *testing.T) {
		t.Parallel()

		exec := &fakeExecutor{fail: map[string]error{
			"CREATE DATABASE": errors.New("disk full"),
		}}
		p := registry.NewProvisioner(registry.NewMemoryStore(), exec,
			registry.WithDefaultDatabase("127.0.0.1", 5432),
			registry.WithDatabaseOwner(tenantdb.Credentials{User: "{database}_owner", Password: "it's"}),
		)

		_, err := p.Provision(ctx, registry.ProvisionRequest{Domain: "acme.example.com", DatabaseName: "tenant_acme"})
		require.Error(t, err)

		assert.Equal(t, []string{
			`CREATE ROLE "tenant_acme_owner" LOGIN PASSWORD 'it''s'`,
			`CREATE DATABASE "tenant_acme" OWNER "tenant_acme_owner"`,
			`DROP ROLE IF EXISTS "tenant_acme_owner"`,
		}, exec.statements())
	})
}
