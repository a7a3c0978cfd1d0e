package registry_test

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

func newTenant(domain, subdomain string, status tenant.Status) *tenant.Tenant {
	id := uuid.New()
	return &tenant.Tenant{
		ID:        id,
		Domain:    domain,
		Subdomain: subdomain,
		Name:      domain,
		Database:  tenant.DatabaseConfig{Name: "tenant_" + strings.ReplaceAll(id.String(), "-", "")},
		Status:    status,
		Plan:      tenant.PlanBasic,
	}
}

func timeRef(t time.Time) *time.Time { return &t }

// fakeExecutor records administrative statements.
type fakeExecutor struct {
	mu    sync.Mutex
	stmts []string
	fail  map[string]error // statement prefix -> error
}

func (e *fakeExecutor) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stmts = append(e.stmts, sql)
	for prefix, err := range e.fail {
		if strings.HasPrefix(sql, prefix) {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (e *fakeExecutor) statements() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.stmts...)
}

// fakeMigrator records migrated tenants.
type fakeMigrator struct {
	mu       sync.Mutex
	migrated []string
	err      error
}

func (m *fakeMigrator) Migrate(_ context.Context, t *tenant.Tenant, fsys fs.FS, _ string) error {
	if fsys == nil {
		return errors.New("no migrations")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.migrated = append(m.migrated, t.Database.Name)
	return nil
}

type hookRecorder struct {
	mu      sync.Mutex
	changes []tenant.Status
	purged  []uuid.UUID
}

func (h *hookRecorder) hook(_ context.Context, t *tenant.Tenant) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, t.Status)
	return nil
}

func (h *hookRecorder) Purge(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.purged = append(h.purged, id)
}
