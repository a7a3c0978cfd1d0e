package tenant_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

type bindingKey struct{}

// fakeBinder records binds and releases and stores the bound database name
// in the request context.
type fakeBinder struct {
	err      error
	binds    atomic.Int32
	releases atomic.Int32
}

func (b *fakeBinder) Bind(ctx context.Context, t *tenant.Tenant) (context.Context, func(), error) {
	if b.err != nil {
		return ctx, nil, b.err
	}
	b.binds.Add(1)
	return context.WithValue(ctx, bindingKey{}, t.Database.Name), func() { b.releases.Add(1) }, nil
}

func serve(t *testing.T, h http.Handler, host, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	req.Host = host
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	acme := newTenant("acme.example.com", "acme", tenant.StatusActive)
	suspended := newTenant("frozen.example.com", "frozen", tenant.StatusSuspended)
	trial := newTenant("try.example.com", "try", tenant.StatusTrial)
	tenant1 := newTenant("tenant1-corp.com", "tenant1", tenant.StatusActive)

	newPipeline := func(binder *fakeBinder, opts ...tenant.Option) (http.Handler, *atomic.Int32, *mockRegistry) {
		reg := newMockRegistry(acme, suspended, trial, tenant1)
		dir := tenant.NewDirectory(reg)
		t.Cleanup(func() { _ = dir.Close() })

		var calls atomic.Int32
		opts = append([]tenant.Option{
			tenant.WithBinder(binder),
			tenant.WithCentralRoutes(tenant.NewCentralRoutes("api/v1/central/*", "healthz")),
		}, opts...)

		h := tenant.Middleware(dir, opts...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			if tn, ok := tenant.FromContext(r.Context()); ok {
				w.Header().Set("X-Bound-Tenant", tn.Domain)
			}
			if db, ok := r.Context().Value(bindingKey{}).(string); ok {
				w.Header().Set("X-Bound-Database", db)
			}
			w.WriteHeader(http.StatusOK)
		}))
		return h, &calls, reg
	}

	t.Run("active tenant is bound and released", func(t *testing.T) {
		t.Parallel()

		binder := &fakeBinder{}
		h, calls, _ := newPipeline(binder)

		w := serve(t, h, "acme.example.com", "/api/v1/tenant")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "acme.example.com", w.Header().Get("X-Bound-Tenant"))
		assert.Equal(t, "tenant_acme", w.Header().Get("X-Bound-Database"))
		assert.Empty(t, w.Header().Get(tenant.NoticeHeader))
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, int32(1), binder.binds.Load())
		assert.Equal(t, int32(1), binder.releases.Load())
	})

	t.Run("central route skips resolution", func(t *testing.T) {
		t.Parallel()

		binder := &fakeBinder{}
		h, calls, reg := newPipeline(binder)

		w := serve(t, h, "ghost.example.com", "/api/v1/central/tenants")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-Bound-Tenant"))
		assert.Equal(t, int32(1), calls.Load())
		assert.Zero(t, reg.calls.Load())
		assert.Zero(t, binder.binds.Load())
	})

	t.Run("disabled mode passes through", func(t *testing.T) {
		t.Parallel()

		binder := &fakeBinder{}
		h, calls, reg := newPipeline(binder, tenant.WithDisabled(true))

		w := serve(t, h, "ghost.example.com", "/api/v1/tenant")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int32(1), calls.Load())
		assert.Zero(t, reg.calls.Load())
	})

	t.Run("unknown tenant is 404 without binding", func(t *testing.T) {
		t.Parallel()

		binder := &fakeBinder{}
		h, calls, _ := newPipeline(binder)

		w := serve(t, h, "ghost.example.com", "/api/v1/tenant")
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "tenant_not_found", decodeError(t, w)["error"])
		assert.Zero(t, calls.Load())
		assert.Zero(t, binder.binds.Load())
	})

	t.Run("suspended tenant is 403 with reason", func(t *testing.T) {
		t.Parallel()

		binder := &fakeBinder{}
		h, calls, _ := newPipeline(binder)

		w := serve(t, h, "frozen.example.com", "/api/v1/tenant")
		require.Equal(t, http.StatusForbidden, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "tenant_not_active", body["error"])
		assert.Equal(t, "suspended", body["reason"])
		assert.Equal(t, "This tenant has been suspended. Please contact support.", body["message"])
		assert.Zero(t, calls.Load())
		assert.Zero(t, binder.binds.Load())
	})

	t.Run("trial tenant gets advisory header", func(t *testing.T) {
		t.Parallel()

		h, _, _ := newPipeline(&fakeBinder{})

		w := serve(t, h, "try.example.com", "/")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "This tenant is in trial mode.", w.Header().Get(tenant.NoticeHeader))
	})

	t.Run("trial tenant blocked when trial access is off", func(t *testing.T) {
		t.Parallel()

		h, _, _ := newPipeline(&fakeBinder{}, tenant.WithGate(tenant.NewGate(tenant.WithTrialAccess(false))))

		w := serve(t, h, "try.example.com", "/")
		require.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "trial", decodeError(t, w)["reason"])
	})

	t.Run("subdomain method resolves by subdomain field", func(t *testing.T) {
		t.Parallel()

		h, _, _ := newPipeline(&fakeBinder{}, tenant.WithResolver(tenant.NewSubdomainResolver()))

		w := serve(t, h, "tenant1.app.com", "/")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "tenant1-corp.com", w.Header().Get("X-Bound-Tenant"))
	})

	t.Run("bind failure is 502 and handler never runs", func(t *testing.T) {
		t.Parallel()

		binder := &fakeBinder{err: errors.New("dial tcp: connection refused")}
		h, calls, _ := newPipeline(binder)

		w := serve(t, h, "acme.example.com", "/")
		require.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "tenant_database_unavailable", decodeError(t, w)["error"])
		assert.Zero(t, calls.Load())
	})

	t.Run("registry failure is 503", func(t *testing.T) {
		t.Parallel()

		h, calls, reg := newPipeline(&fakeBinder{})
		reg.setError(errors.New("central database down"))

		w := serve(t, h, "acme.example.com", "/")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "registry_unavailable", decodeError(t, w)["error"])
		assert.Zero(t, calls.Load())
	})
}

func TestMiddleware_ReleaseOnPanic(t *testing.T) {
	t.Parallel()

	reg := newMockRegistry(newTenant("acme.example.com", "acme", tenant.StatusActive))
	binder := &fakeBinder{}
	h := tenant.Middleware(tenant.NewDirectory(reg), tenant.WithBinder(binder))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
	)

	assert.Panics(t, func() { serve(t, h, "acme.example.com", "/") })
	assert.Equal(t, int32(1), binder.binds.Load())
	assert.Equal(t, int32(1), binder.releases.Load())
}

func TestMiddleware_Recorder(t *testing.T) {
	t.Parallel()

	reg := newMockRegistry(newTenant("acme.example.com", "acme", tenant.StatusActive))
	rec := newCountingRecorder()
	h := tenant.Middleware(tenant.NewDirectory(reg),
		tenant.WithRecorder(rec),
		tenant.WithCentralRoutes(tenant.NewCentralRoutes("healthz")),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	serve(t, h, "acme.example.com", "/")
	serve(t, h, "ghost.example.com", "/")
	serve(t, h, "ghost.example.com", "/healthz")

	assert.Equal(t, 1, rec.resolution(tenant.OutcomeBound))
	assert.Equal(t, 1, rec.resolution(tenant.OutcomeNotFound))
	assert.Equal(t, 1, rec.resolution(tenant.OutcomeBypass))
}

func TestMiddleware_ConcurrentTenantsIsolated(t *testing.T) {
	t.Parallel()

	tenants := []*tenant.Tenant{
		newTenant("a.example.com", "a", tenant.StatusActive),
		newTenant("b.example.com", "b", tenant.StatusActive),
		newTenant("c.example.com", "c", tenant.StatusActive),
	}
	binder := &fakeBinder{}
	h := tenant.Middleware(tenant.NewDirectory(newMockRegistry(tenants...)), tenant.WithBinder(binder))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tn, err := tenant.Current(r.Context())
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, "tenant_"+tn.Subdomain, r.Context().Value(bindingKey{}))
			assert.Equal(t, tn.Domain, tenant.RequestHost(r))
		}),
	)

	var wg sync.WaitGroup
	for i := range 300 {
		wg.Add(1)
		go func(tn *tenant.Tenant) {
			defer wg.Done()
			w := serve(t, h, tn.Domain, "/")
			assert.Equal(t, http.StatusOK, w.Code)
		}(tenants[i%len(tenants)])
	}
	wg.Wait()

	assert.Equal(t, binder.binds.Load(), binder.releases.Load())
}

func TestRequireTenant(t *testing.T) {
	t.Parallel()

	h := tenant.RequireTenant(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	h.ServeHTTP(w, req.WithContext(tenant.WithTenant(req.Context(), newTenant("a.example.com", "", tenant.StatusActive))))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
