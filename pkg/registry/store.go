package registry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// Store is the central tenant registry. Lookups never return soft-deleted
// records and report tenant.ErrTenantNotFound when nothing matches.
type Store interface {
	tenant.Registry

	FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)

	// Create inserts a new record. Domain, subdomain and database name must be
	// unique among live tenants; a violation returns ErrDuplicate.
	Create(ctx context.Context, t *tenant.Tenant) error

	// List returns live tenants ordered by creation time, narrowed by the
	// filter when its fields are set.
	List(ctx context.Context, f Filter) ([]*tenant.Tenant, error)

	// Update rewrites the mutable profile of a live tenant: domain,
	// subdomain, name, billing email, plan, limits and custom settings.
	// Database coordinates, status and subscription dates are left alone.
	Update(ctx context.Context, t *tenant.Tenant) error

	UpdateStatus(ctx context.Context, id uuid.UUID, status tenant.Status) error
	UpdateSubscription(ctx context.Context, id uuid.UUID, start, end *time.Time) error

	// SoftDelete hides the record from lookups and keeps the row.
	SoftDelete(ctx context.Context, id uuid.UUID) error

	// Delete removes the record for good. It is used to roll back a failed
	// provisioning.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListOverdue returns active and trial tenants whose subscription ended
	// before now.
	ListOverdue(ctx context.Context, now time.Time) ([]*tenant.Tenant, error)
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status tenant.Status
	Plan   tenant.Plan
}

func (f Filter) match(t *tenant.Tenant) bool {
	return (f.Status == "" || t.Status == f.Status) && (f.Plan == "" || t.Plan == f.Plan)
}
