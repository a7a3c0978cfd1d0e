package tenantdb_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantdb"
)

func newRouter(t *testing.T, conn *fakeConnector, opts ...tenantdb.Option) (*tenantdb.Router, *fakeDB) {
	t.Helper()
	central := &fakeDB{name: "central"}
	r := tenantdb.NewRouter(central, conn, testCredentials, opts...)
	t.Cleanup(func() { _ = r.Close() })
	return r, central
}

func TestRouter_BindLifecycle(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{}
	r, central := newRouter(t, conn)
	acme := newTenant("tenant_acme")

	base := context.Background()
	db, err := r.Conn(base)
	require.NoError(t, err)
	assert.Same(t, central, db, "no binding means central")

	ctx, release, err := r.Bind(base, acme)
	require.NoError(t, err)

	b, ok := tenantdb.BindingFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, tenantdb.StateTenantBound, b.State())
	assert.Same(t, acme, b.Tenant())
	assert.Equal(t, int64(1), r.Active())

	db, err = r.Conn(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme", dbName(t, db))

	db, err = tenantdb.TenantConn(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme", dbName(t, db))

	release()
	release()

	assert.Equal(t, tenantdb.StateDefault, b.State())
	assert.Equal(t, int64(0), r.Active())

	_, err = r.Conn(ctx)
	assert.ErrorIs(t, err, tenantdb.ErrNotBound, "released binding never falls back to central")
	_, err = tenantdb.TenantConn(base)
	assert.ErrorIs(t, err, tenantdb.ErrNotBound)

	db, err = r.Conn(base)
	require.NoError(t, err)
	assert.Same(t, central, db, "parent context is untouched")

	assert.False(t, conn.opened()[0].closed.Load(), "pool stays open for reuse")
}

func TestRouter_ReusesPoolPerTenant(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{}
	r, _ := newRouter(t, conn)
	acme := newTenant("tenant_acme")

	for range 5 {
		_, release, err := r.Bind(context.Background(), acme)
		require.NoError(t, err)
		release()
	}

	assert.Equal(t, int32(1), conn.calls.Load())
	assert.Equal(t, 1, r.Pools())
}

func TestRouter_ConnectFailure(t *testing.T) {
	t.Parallel()

	dialErr := errors.New("password authentication failed")
	conn := &fakeConnector{err: dialErr}
	r, _ := newRouter(t, conn)

	ctx, release, err := r.Bind(context.Background(), newTenant("tenant_acme"))
	require.ErrorIs(t, err, tenant.ErrConnectionSwitch)
	require.ErrorIs(t, err, dialErr)
	assert.NotPanics(t, release)

	_, ok := tenantdb.BindingFromContext(ctx)
	assert.False(t, ok)
	assert.Zero(t, r.Active())
	assert.Zero(t, r.Pools())
}

func TestRouter_InvalidDescriptor(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{}
	r, _ := newRouter(t, conn)

	_, _, err := r.Bind(context.Background(), newTenant("bad-name"))
	require.ErrorIs(t, err, tenant.ErrConnectionSwitch)
	require.ErrorIs(t, err, tenantdb.ErrInvalidDescriptor)
	assert.Zero(t, conn.calls.Load())
}

func TestRouter_ConcurrentDialsCollapse(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{delay: 20 * time.Millisecond}
	r, _ := newRouter(t, conn)
	acme := newTenant("tenant_acme")

	var wg sync.WaitGroup
	for range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release, err := r.Bind(context.Background(), acme)
			if assert.NoError(t, err) {
				release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), conn.calls.Load())
	assert.Zero(t, r.Active())
}

func TestRouter_DescriptorChangeRetiresPool(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{}
	r, _ := newRouter(t, conn)
	acme := newTenant("tenant_acme")

	ctx, release, err := r.Bind(context.Background(), acme)
	require.NoError(t, err)

	moved := *acme
	moved.Database.Name = "tenant_acme_v2"
	ctx2, release2, err := r.Bind(context.Background(), &moved)
	require.NoError(t, err)
	defer release2()

	dbs := conn.opened()
	require.Len(t, dbs, 2)
	assert.False(t, dbs[0].closed.Load(), "old pool open while still referenced")

	db, err := tenantdb.TenantConn(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme", dbName(t, db))
	db, err = tenantdb.TenantConn(ctx2)
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme_v2", dbName(t, db))

	release()
	assert.True(t, dbs[0].closed.Load(), "old pool closed after last release")
	assert.False(t, dbs[1].closed.Load())
	assert.Equal(t, 1, r.Pools())
}

func TestRouter_ConcurrentDescriptorChangeClosesEveryPool(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{delay: 50 * time.Millisecond}
	r, _ := newRouter(t, conn)
	acme := newTenant("tenant_acme")
	moved := *acme
	moved.Database.Host = "10.0.0.2"

	var wg sync.WaitGroup
	releases := make(chan func(), 2)
	for _, tn := range []*tenant.Tenant{acme, &moved} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release, err := r.Bind(context.Background(), tn)
			if assert.NoError(t, err) {
				releases <- release
			}
		}()
	}
	wg.Wait()
	close(releases)
	for release := range releases {
		release()
	}

	dbs := conn.opened()
	require.Len(t, dbs, 2, "different descriptors never share a dial")
	assert.Equal(t, 1, r.Pools())

	require.NoError(t, r.Close())
	for _, db := range dbs {
		assert.True(t, db.closed.Load(), "pool %s left open", db.name)
	}
}

func TestRouter_EvictionWaitsForRelease(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{}
	r, _ := newRouter(t, conn, tenantdb.WithMaxPools(1))

	_, releaseA, err := r.Bind(context.Background(), newTenant("tenant_a"))
	require.NoError(t, err)
	_, releaseB, err := r.Bind(context.Background(), newTenant("tenant_b"))
	require.NoError(t, err)

	dbs := conn.opened()
	require.Len(t, dbs, 2)
	assert.Equal(t, 1, r.Pools())
	assert.False(t, dbs[0].closed.Load(), "evicted pool still referenced")

	releaseA()
	assert.True(t, dbs[0].closed.Load())

	releaseB()
	assert.False(t, dbs[1].closed.Load(), "pool in the LRU stays open")
}

func TestRouter_Purge(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{}
	r, _ := newRouter(t, conn)
	acme := newTenant("tenant_acme")

	_, release, err := r.Bind(context.Background(), acme)
	require.NoError(t, err)
	release()

	r.Purge(acme.ID)
	assert.True(t, conn.opened()[0].closed.Load())
	assert.Zero(t, r.Pools())

	_, release, err = r.Bind(context.Background(), acme)
	require.NoError(t, err)
	release()
	assert.Equal(t, int32(2), conn.calls.Load(), "purged pool is dialed again")
}

func TestRouter_Close(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{}
	r, central := newRouter(t, conn)

	_, release, err := r.Bind(context.Background(), newTenant("tenant_acme"))
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.False(t, conn.opened()[0].closed.Load(), "bound pool survives until release")
	release()
	assert.True(t, conn.opened()[0].closed.Load())
	assert.False(t, central.closed.Load())

	_, _, err = r.Bind(context.Background(), newTenant("tenant_beta"))
	assert.ErrorIs(t, err, tenantdb.ErrRouterClosed)
	assert.ErrorIs(t, err, tenant.ErrConnectionSwitch)
}

func TestRouter_ReleaseNeverPanics(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{panicClose: true}
	r, _ := newRouter(t, conn)
	acme := newTenant("tenant_acme")

	_, release, err := r.Bind(context.Background(), acme)
	require.NoError(t, err)

	r.Purge(acme.ID)
	assert.NotPanics(t, release)
	assert.Zero(t, r.Active())
}

func TestRouter_CallerCancellation(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{delay: 50 * time.Millisecond}
	r, _ := newRouter(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, _, err := r.Bind(ctx, newTenant("tenant_acme"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, tenant.ErrConnectionSwitch)
	assert.Zero(t, r.Active())
}

func TestRouter_ConcurrentTenantsIsolated(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{}
	r, _ := newRouter(t, conn, tenantdb.WithMaxPools(4))

	tenants := make([]*tenant.Tenant, 10)
	for i := range tenants {
		tenants[i] = newTenant(fmt.Sprintf("tenant_%02d", i))
	}

	var wg sync.WaitGroup
	for i := range 500 {
		wg.Add(1)
		go func(tn *tenant.Tenant) {
			defer wg.Done()

			ctx, release, err := r.Bind(context.Background(), tn)
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			for range 3 {
				db, err := r.Conn(ctx)
				if assert.NoError(t, err) {
					assert.Equal(t, tn.Database.Name, dbName(t, db))
					_, err = db.Exec(ctx, "SELECT 1")
					assert.NoError(t, err, "bound pool must not be closed under a live binding")
				}
			}
		}(tenants[i%len(tenants)])
	}
	wg.Wait()

	assert.Zero(t, r.Active())
	assert.LessOrEqual(t, r.Pools(), 4)
}

func TestRouter_WithMiddleware(t *testing.T) {
	t.Parallel()

	acme := newTenant("tenant_acme")
	lookup := lookupFunc(func(_ context.Context, key string) (*tenant.Tenant, error) {
		if key == acme.Domain {
			return acme, nil
		}
		return nil, tenant.ErrTenantNotFound
	})

	conn := &fakeConnector{}
	r, central := newRouter(t, conn)

	var seen string
	h := tenant.Middleware(lookup,
		tenant.WithBinder(r),
		tenant.WithCentralRoutes(tenant.NewCentralRoutes("api/v1/central/*")),
	)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		db, err := r.Conn(req.Context())
		require.NoError(t, err)
		seen = dbName(t, db)
	}))

	req := httptest.NewRequest("GET", "/api/v1/organizations", nil)
	req.Host = acme.Domain
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "tenant_acme", seen)
	assert.Zero(t, r.Active(), "released after the handler")

	req = httptest.NewRequest("GET", "/api/v1/central/tenants", nil)
	req.Host = acme.Domain
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, central.name, seen)
}

type lookupFunc func(ctx context.Context, key string) (*tenant.Tenant, error)

func (f lookupFunc) Resolve(ctx context.Context, key string) (*tenant.Tenant, error) {
	return f(ctx, key)
}
