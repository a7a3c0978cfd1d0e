package tenantdb

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/tenancy/pkg/pg"
)

// DB is the query surface of a database pool. *pgxpool.Pool implements it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var _ DB = (*pgxpool.Pool)(nil)

// Connector opens a pool for a tenant database. Implementations must verify
// the connection before returning.
type Connector interface {
	Connect(ctx context.Context, d Descriptor) (DB, error)
}

// ConnectorFunc is an adapter to allow the use of ordinary functions as Connectors.
type ConnectorFunc func(ctx context.Context, d Descriptor) (DB, error)

// Connect calls the function.
func (f ConnectorFunc) Connect(ctx context.Context, d Descriptor) (DB, error) {
	return f(ctx, d)
}

// PgxConnector opens pgx pools with the pool settings of Config. The
// connection string of Config is ignored; the descriptor provides it.
type PgxConnector struct {
	Config pg.Config
}

// NewPgxConnector returns a connector for small per-tenant pools.
func NewPgxConnector(base pg.Config) *PgxConnector {
	cfg := base
	cfg.MaxOpenConns = min(max(base.MaxOpenConns, 1), 5)
	cfg.MaxIdleConns = 0
	cfg.RetryAttempts = 1
	return &PgxConnector{Config: cfg}
}

// Connect opens and pings a pool for d.
func (c *PgxConnector) Connect(ctx context.Context, d Descriptor) (DB, error) {
	cfg := c.Config
	cfg.ConnectionString = d.ConnString()
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pool, nil
}
