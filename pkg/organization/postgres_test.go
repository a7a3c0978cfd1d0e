package organization_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenancy/pkg/organization"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantdb"
)

// stubDB answers every statement with fixed results.
type stubDB struct {
	execTag pgconn.CommandTag
	execErr error
	rowErr  error
	sql     []string
}

func (d *stubDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	d.sql = append(d.sql, sql)
	return d.execTag, d.execErr
}
func (d *stubDB) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, pgx.ErrNoRows }
func (d *stubDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	d.sql = append(d.sql, sql)
	return errRow{d.rowErr}
}
func (d *stubDB) Begin(context.Context) (pgx.Tx, error) { return nil, pgx.ErrTxClosed }
func (d *stubDB) Ping(context.Context) error            { return nil }
func (d *stubDB) Close()                                {}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func boundContext(t *testing.T, db *stubDB) context.Context {
	t.Helper()

	connector := tenantdb.ConnectorFunc(func(context.Context, tenantdb.Descriptor) (tenantdb.DB, error) {
		return db, nil
	})
	router := tenantdb.NewRouter(&stubDB{}, connector, tenantdb.Credentials{User: "app", DefaultHost: "127.0.0.1", DefaultPort: 5432})
	t.Cleanup(func() { _ = router.Close() })

	tn := &tenant.Tenant{ID: uuid.New(), Domain: "acme.example.com", Database: tenant.DatabaseConfig{Name: "tenant_acme"}}
	ctx, release, err := router.Bind(tenant.WithTenant(context.Background(), tn), tn)
	require.NoError(t, err)
	t.Cleanup(release)
	return ctx
}

func TestPostgresStore(t *testing.T) {
	t.Parallel()

	t.Run("requires a bound tenant database", func(t *testing.T) {
		t.Parallel()
		store := organization.NewPostgresStore()
		ctx, _ := tenantContext(tenant.PlanBasic)

		_, err := store.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, tenantdb.ErrNotBound)
		_, err = store.Count(ctx)
		assert.ErrorIs(t, err, tenantdb.ErrNotBound)
	})

	t.Run("no rows is not found", func(t *testing.T) {
		t.Parallel()
		db := &stubDB{rowErr: pgx.ErrNoRows}
		store := organization.NewPostgresStore()

		_, err := store.GetByCode(boundContext(t, db), "HQ")
		assert.ErrorIs(t, err, organization.ErrNotFound)
		require.Len(t, db.sql, 1)
		assert.Contains(t, db.sql[0], "FROM organizations WHERE code = $1 AND deleted_at IS NULL")
	})

	t.Run("unique violation is a duplicate code", func(t *testing.T) {
		t.Parallel()
		db := &stubDB{execErr: &pgconn.PgError{Code: "23505"}}
		store := organization.NewPostgresStore()

		err := store.Create(boundContext(t, db), &organization.Organization{ID: uuid.New(), Name: "HQ", Code: "HQ"})
		assert.ErrorIs(t, err, organization.ErrDuplicateCode)
	})

	t.Run("missing parent is reported", func(t *testing.T) {
		t.Parallel()
		db := &stubDB{execErr: &pgconn.PgError{Code: "23503"}}
		store := organization.NewPostgresStore()

		err := store.Create(boundContext(t, db), &organization.Organization{ID: uuid.New(), Name: "HQ", Code: "HQ"})
		assert.ErrorIs(t, err, organization.ErrParentNotFound)
	})

	t.Run("delete of missing row", func(t *testing.T) {
		t.Parallel()
		db := &stubDB{execTag: pgconn.NewCommandTag("UPDATE 0")}
		store := organization.NewPostgresStore()

		err := store.Delete(boundContext(t, db), uuid.New())
		assert.ErrorIs(t, err, organization.ErrNotFound)
	})

	t.Run("update", func(t *testing.T) {
		t.Parallel()
		db := &stubDB{execTag: pgconn.NewCommandTag("UPDATE 1")}
		store := organization.NewPostgresStore()

		err := store.Update(boundContext(t, db), &organization.Organization{ID: uuid.New(), Name: "HQ", Code: "HQ"})
		require.NoError(t, err)
		assert.Contains(t, db.sql[0], "UPDATE organizations SET")
	})
}
