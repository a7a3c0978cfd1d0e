// Package organization manages the organization tree of a tenant.
//
// Organizations live in the tenant's own database. Every Store method is
// scoped to the tenant bound to the request context: PostgresStore reads the
// connection with tenantdb.TenantConn and fails with tenantdb.ErrNotBound
// when no tenant database is bound; MemoryStore partitions by the tenant in
// the context.
//
// Service adds the hierarchy rules: a parent must exist, an organization can
// never become its own ancestor (ErrCycle) and organizations with children
// cannot be deleted (ErrHasChildren). With WithLimits the organization limit
// of the tenant plan is enforced on Create.
package organization
