package registry

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// MemoryStore is an in-process Store with the same uniqueness rules as the
// Postgres schema. It is meant for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*tenant.Tenant
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store seeded with the given tenants.
func NewMemoryStore(seed ...*tenant.Tenant) *MemoryStore {
	s := &MemoryStore{
		tenants: make(map[uuid.UUID]*tenant.Tenant, len(seed)),
		now:     time.Now,
	}
	for _, t := range seed {
		s.tenants[t.ID] = clone(t)
	}
	return s
}

func (s *MemoryStore) FindByDomain(_ context.Context, domain string) (*tenant.Tenant, error) {
	return s.find(func(t *tenant.Tenant) bool { return t.Domain == domain })
}

func (s *MemoryStore) FindBySubdomain(_ context.Context, subdomain string) (*tenant.Tenant, error) {
	if subdomain == "" {
		return nil, tenant.ErrTenantNotFound
	}
	return s.find(func(t *tenant.Tenant) bool { return t.Subdomain == subdomain })
}

func (s *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok || t.IsDeleted() {
		return nil, tenant.ErrTenantNotFound
	}
	return clone(t), nil
}

func (s *MemoryStore) find(match func(*tenant.Tenant) bool) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tenants {
		if !t.IsDeleted() && match(t) {
			return clone(t), nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (s *MemoryStore) Create(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[t.ID]; ok {
		return ErrDuplicate
	}
	for _, other := range s.tenants {
		if other.Database.Name == t.Database.Name {
			return ErrDuplicate
		}
		if other.IsDeleted() {
			continue
		}
		if other.Domain == t.Domain || (t.Subdomain != "" && other.Subdomain == t.Subdomain) {
			return ErrDuplicate
		}
	}

	now := s.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.tenants[t.ID] = clone(t)
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*tenant.Tenant
	for _, t := range s.tenants {
		if !t.IsDeleted() && f.match(t) {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tenants[t.ID]
	if !ok || cur.IsDeleted() {
		return tenant.ErrTenantNotFound
	}
	for id, other := range s.tenants {
		if id == t.ID || other.IsDeleted() {
			continue
		}
		if other.Domain == t.Domain || (t.Subdomain != "" && other.Subdomain == t.Subdomain) {
			return ErrDuplicate
		}
	}

	cur.Domain = t.Domain
	cur.Subdomain = t.Subdomain
	cur.Name = t.Name
	cur.BillingEmail = t.BillingEmail
	cur.Plan = t.Plan
	cur.Limits = t.Limits
	cur.Settings = maps.Clone(t.Settings)
	cur.UpdatedAt = s.now().UTC()
	t.UpdatedAt = cur.UpdatedAt
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status tenant.Status) error {
	return s.update(id, func(t *tenant.Tenant) { t.Status = status })
}

func (s *MemoryStore) UpdateSubscription(_ context.Context, id uuid.UUID, start, end *time.Time) error {
	return s.update(id, func(t *tenant.Tenant) {
		t.SubscriptionStart = copyTime(start)
		t.SubscriptionEnd = copyTime(end)
	})
}

func (s *MemoryStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(t *tenant.Tenant) {
		now := s.now().UTC()
		t.DeletedAt = &now
	})
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[id]; !ok {
		return tenant.ErrTenantNotFound
	}
	delete(s.tenants, id)
	return nil
}

func (s *MemoryStore) ListOverdue(_ context.Context, now time.Time) ([]*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*tenant.Tenant
	for _, t := range s.tenants {
		if t.IsDeleted() || t.SubscriptionEnd == nil || !t.SubscriptionEnd.Before(now) {
			continue
		}
		if t.Status == tenant.StatusActive || t.Status == tenant.StatusTrial {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubscriptionEnd.Before(*out[j].SubscriptionEnd)
	})
	return out, nil
}

func (s *MemoryStore) update(id uuid.UUID, fn func(*tenant.Tenant)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok || t.IsDeleted() {
		return tenant.ErrTenantNotFound
	}
	fn(t)
	t.UpdatedAt = s.now().UTC()
	return nil
}

func clone(t *tenant.Tenant) *tenant.Tenant {
	c := *t
	c.SubscriptionStart = copyTime(t.SubscriptionStart)
	c.SubscriptionEnd = copyTime(t.SubscriptionEnd)
	c.DeletedAt = copyTime(t.DeletedAt)
	c.Settings = maps.Clone(t.Settings)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
