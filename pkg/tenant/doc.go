// Package tenant resolves the tenant of an inbound HTTP request and gates it
// before any tenant-scoped work runs.
//
// # Architecture
//
// A request flows through four pieces:
//
//  1. CentralRoutes - path prefixes served from the central database without resolution
//  2. Resolver - derives the directory key from the host or a trust header
//  3. Directory - resolves the key through a Cache and the Registry
//  4. Gate - accepts or rejects the tenant based on its status and subscription
//
// Middleware composes them and hands the accepted tenant to a Binder (see
// package tenantdb) which attaches the tenant database to the request context
// and releases it when the handler returns, panics included.
//
// # Usage
//
//	directory := tenant.NewDirectory(store,
//		tenant.WithCache(tenant.NewRedisCache(rdb, "tenant:")),
//		tenant.WithTTL(time.Hour),
//		tenant.WithNegativeTTL(30*time.Second),
//	)
//
//	r := chi.NewRouter()
//	r.Use(tenant.Middleware(directory,
//		tenant.WithResolver(tenant.NewResolver(tenant.MethodSubdomain, "")),
//		tenant.WithCentralRoutes(tenant.NewCentralRoutes("api/v1/central/*", "healthz")),
//		tenant.WithBinder(router),
//	))
//
//	r.Get("/api/v1/tenant", func(w http.ResponseWriter, r *http.Request) {
//		t, err := tenant.Current(r.Context())
//		// ...
//	})
//
// # Caching
//
// Resolved tenants are cached for the TTL (one hour by default). Unknown keys
// are cached as tombstones for the negative TTL so that random hosts do not
// hammer the registry; provisioning clears them through Directory.Forget.
// Registry failures are never cached and surface as ErrRegistryUnavailable.
//
// # Errors
//
// DefaultErrorHandler maps ErrTenantNotFound to 404, ErrTenantNotActive to 403
// (with the gate reason), ErrRegistryUnavailable to 503 and
// ErrConnectionSwitch to 502.
package tenant
