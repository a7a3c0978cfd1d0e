package organization

import (
	"time"

	"github.com/google/uuid"
)

// Type is the role of an organization inside the tenant hierarchy.
type Type string

const (
	TypeHeadquarters Type = "headquarters"
	TypeBranch       Type = "branch"
	TypeSubsidiary   Type = "subsidiary"
)

func (t Type) valid() bool {
	switch t {
	case TypeHeadquarters, TypeBranch, TypeSubsidiary:
		return true
	}
	return false
}

// Status of an organization.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Defaults applied to new organizations.
const (
	DefaultCurrency = "USD"
	DefaultTimezone = "UTC"
	DefaultLocale   = "en"
)

// Organization is a business unit inside a tenant. Organizations form a tree
// through ParentID and live in the tenant's own database.
type Organization struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    uuid.UUID      `json:"tenant_id"`
	ParentID    *uuid.UUID     `json:"parent_id,omitempty"`
	Name        string         `json:"name"`
	Code        string         `json:"code"`
	Description string         `json:"description,omitempty"`
	Type        Type           `json:"type"`
	Status      Status         `json:"status"`
	Email       string         `json:"email,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Address     string         `json:"address,omitempty"`
	City        string         `json:"city,omitempty"`
	State       string         `json:"state,omitempty"`
	Country     string         `json:"country,omitempty"`
	PostalCode  string         `json:"postal_code,omitempty"`
	Currency    string         `json:"currency"`
	Timezone    string         `json:"timezone"`
	Locale      string         `json:"locale"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"-"`
}

func (o *Organization) IsActive() bool { return o.Status == StatusActive }

func (o *Organization) IsHeadquarters() bool { return o.Type == TypeHeadquarters }

func (o *Organization) HasParent() bool { return o.ParentID != nil }

// Filter narrows List results. Zero value lists every live organization.
type Filter struct {
	ParentID  *uuid.UUID
	RootsOnly bool
	Status    Status
}

func (f Filter) match(o *Organization) bool {
	if f.RootsOnly && o.ParentID != nil {
		return false
	}
	if f.ParentID != nil && (o.ParentID == nil || *o.ParentID != *f.ParentID) {
		return false
	}
	return f.Status == "" || o.Status == f.Status
}
