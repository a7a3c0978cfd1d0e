// Package tenantdb routes data access of a request to the dedicated database
// of its tenant.
//
// A Router keeps one connection pool per tenant, keyed by tenant id and
// bounded by an LRU. Each request gets its own Binding, a small state machine
//
//	default -> routing -> tenant_bound -> restoring -> default
//	              \-> default (on failure)
//
// that holds a reference to the tenant pool while the request runs. The
// binding travels in the request context, so concurrent requests for different
// tenants never observe each other's database. Releasing a binding is
// idempotent and never panics; pools that were purged, evicted or replaced
// close once their last binding is released.
//
// Router implements tenant.Binder and plugs into tenant.Middleware:
//
//	router := tenantdb.NewRouter(centralPool, tenantdb.NewPgxConnector(pgCfg), tenantdb.Credentials{
//		User:        "postgres",
//		Password:    os.Getenv("TENANCY_DB_PASSWORD"),
//		DefaultHost: "127.0.0.1",
//		DefaultPort: 5432,
//	})
//	defer router.Close()
//
//	mw := tenant.Middleware(directory, tenant.WithBinder(router))
//
// Tenant-scoped code fetches its database from the request context:
//
//	db, err := tenantdb.TenantConn(ctx)
package tenantdb
