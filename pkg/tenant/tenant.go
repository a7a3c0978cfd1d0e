package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle status of a tenant.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusTrial     Status = "trial"
	StatusExpired   Status = "expired"
)

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusActive, StatusSuspended, StatusTrial, StatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("tenant: unknown status %q", s)
}

func (s Status) String() string { return string(s) }

// Plan is the subscription plan of a tenant.
type Plan string

const (
	PlanBasic        Plan = "basic"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// ParsePlan converts a stored string into a Plan.
func ParsePlan(s string) (Plan, error) {
	switch p := Plan(s); p {
	case PlanBasic, PlanProfessional, PlanEnterprise:
		return p, nil
	}
	return "", fmt.Errorf("tenant: unknown plan %q", s)
}

func (p Plan) String() string { return string(p) }

// Limits holds per-tenant resource ceilings. Zero means "use the plan default",
// -1 means unlimited.
type Limits struct {
	MaxUsers         int64 `json:"max_users"`
	MaxOrganizations int64 `json:"max_organizations"`
	MaxStorageMB     int64 `json:"max_storage_mb"`
}

// DatabaseConfig identifies the dedicated database of a tenant.
type DatabaseConfig struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Tenant is the routing record of a tenant as stored in the central database.
// Values handed out by the Directory are shared between requests and must be
// treated as read-only.
type Tenant struct {
	ID                uuid.UUID      `json:"id"`
	Domain            string         `json:"domain"`
	Subdomain         string         `json:"subdomain,omitempty"`
	Name              string         `json:"name"`
	BillingEmail      string         `json:"billing_email,omitempty"`
	Database          DatabaseConfig `json:"database"`
	Status            Status         `json:"status"`
	Plan              Plan           `json:"plan"`
	Limits            Limits         `json:"limits"`
	SubscriptionStart *time.Time     `json:"subscription_start,omitempty"`
	SubscriptionEnd   *time.Time     `json:"subscription_end,omitempty"`
	Settings          map[string]any `json:"settings,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         *time.Time     `json:"deleted_at,omitempty"`
}

// IsExpired reports effective expiry: the stored status says expired or the
// subscription window has closed before now.
func (t *Tenant) IsExpired(now time.Time) bool {
	if t.Status == StatusExpired {
		return true
	}
	return t.SubscriptionEnd != nil && t.SubscriptionEnd.Before(now)
}

func (t *Tenant) IsSuspended() bool { return t.Status == StatusSuspended }

func (t *Tenant) IsTrial() bool { return t.Status == StatusTrial }

func (t *Tenant) IsDeleted() bool { return t.DeletedAt != nil }

// Keys returns the directory keys under which the tenant can be resolved.
func (t *Tenant) Keys() []string {
	keys := []string{t.Domain}
	if t.Subdomain != "" && t.Subdomain != t.Domain {
		keys = append(keys, t.Subdomain)
	}
	return keys
}

// Registry is the durable store of tenant records queried on a cache miss.
// Both methods return ErrTenantNotFound when nothing matches; any other error
// means the store itself could not answer.
type Registry interface {
	FindByDomain(ctx context.Context, domain string) (*Tenant, error)
	FindBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
}
