// Package registry owns the central tenant records: the stores behind
// tenant.Registry, status transitions and provisioning of new tenants.
//
// Two stores are provided. PostgresStore keeps records in the central
// database and is built on database/sql with the pgx driver; MemoryStore is
// an in-process equivalent for tests and development. Both hide soft-deleted
// records from lookups and enforce unique domains, subdomains and database
// names among live tenants.
//
// Lifecycle validates every status change against a transition table
// (trial → active, active ↔ suspended, active/trial → expired, renew) and
// runs hooks after each change. Wire InvalidateDirectory and PurgePools as
// hooks so that the next request observes the new status:
//
//	lc := registry.NewLifecycle(store, registry.WithHooks(
//		registry.InvalidateDirectory(directory),
//		registry.PurgePools(router),
//	))
//	_, err := lc.Suspend(ctx, id)
//
// Provisioner creates a tenant end to end: it fills in defaults, inserts the
// record, creates the dedicated database, applies the tenant schema and
// clears cached "not found" answers for the new keys. Any failure after the
// insert removes what was created.
//
// Migrations returns the embedded central schema for pg.Migrate.
package registry
