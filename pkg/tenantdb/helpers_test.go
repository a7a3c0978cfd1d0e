package tenantdb_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantdb"
)

// fakeDB is a tenantdb.DB that only tracks its identity and Close calls.
type fakeDB struct {
	name       string
	closed     atomic.Bool
	panicClose bool
}

func (d *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	if d.closed.Load() {
		return pgconn.CommandTag{}, errors.New("closed pool")
	}
	return pgconn.NewCommandTag("SELECT 1"), nil
}
func (d *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (d *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (d *fakeDB) Begin(context.Context) (pgx.Tx, error)                   { return nil, nil }
func (d *fakeDB) Ping(context.Context) error                              { return nil }
func (d *fakeDB) Close() {
	d.closed.Store(true)
	if d.panicClose {
		panic("close failed")
	}
}

// fakeConnector hands out fakeDBs named after the descriptor database.
type fakeConnector struct {
	mu         sync.Mutex
	dbs        []*fakeDB
	err        error
	delay      time.Duration
	panicClose bool
	calls      atomic.Int32
}

func (c *fakeConnector) Connect(ctx context.Context, d tenantdb.Descriptor) (tenantdb.DB, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	db := &fakeDB{name: d.Database, panicClose: c.panicClose}
	c.dbs = append(c.dbs, db)
	return db, nil
}

func (c *fakeConnector) opened() []*fakeDB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeDB(nil), c.dbs...)
}

var testCredentials = tenantdb.Credentials{
	User:        "app",
	Password:    "secret",
	SSLMode:     "disable",
	DefaultHost: "127.0.0.1",
	DefaultPort: 5432,
}

func newTenant(db string) *tenant.Tenant {
	return &tenant.Tenant{
		ID:       uuid.New(),
		Domain:   db + ".example.com",
		Database: tenant.DatabaseConfig{Name: db},
		Status:   tenant.StatusActive,
		Plan:     tenant.PlanBasic,
	}
}

func dbName(t interface{ Helper() }, db tenantdb.DB) string {
	t.Helper()
	return db.(*fakeDB).name
}
