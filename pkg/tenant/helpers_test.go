package tenant_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// mockRegistry is an in-memory tenant.Registry that counts queries.
type mockRegistry struct {
	mu      sync.RWMutex
	tenants []*tenant.Tenant
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func newMockRegistry(tenants ...*tenant.Tenant) *mockRegistry {
	return &mockRegistry{tenants: tenants}
}

func (m *mockRegistry) add(t *tenant.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants = append(m.tenants, t)
}

func (m *mockRegistry) setError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockRegistry) FindByDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	return m.find(func(t *tenant.Tenant) bool { return t.Domain == domain })
}

func (m *mockRegistry) FindBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error) {
	return m.find(func(t *tenant.Tenant) bool { return t.Subdomain != "" && t.Subdomain == subdomain })
}

func (m *mockRegistry) find(match func(*tenant.Tenant) bool) (*tenant.Tenant, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, t := range m.tenants {
		if match(t) {
			return t, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func newTenant(domain, subdomain string, status tenant.Status) *tenant.Tenant {
	return &tenant.Tenant{
		ID:        uuid.New(),
		Domain:    domain,
		Subdomain: subdomain,
		Name:      domain,
		Database:  tenant.DatabaseConfig{Name: "tenant_" + subdomain, Host: "127.0.0.1", Port: 5432},
		Status:    status,
		Plan:      tenant.PlanBasic,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// countingRecorder collects recorder events.
type countingRecorder struct {
	mu          sync.Mutex
	resolutions map[string]int
	lookups     map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{resolutions: map[string]int{}, lookups: map[string]int{}}
}

func (r *countingRecorder) Resolution(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolutions[outcome]++
}

func (r *countingRecorder) CacheLookup(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[result]++
}

func (r *countingRecorder) resolution(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolutions[outcome]
}

func (r *countingRecorder) lookup(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups[result]
}
