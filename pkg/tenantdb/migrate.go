package tenantdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/pg"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// Migrate applies the migrations in fsys to the database of t over a
// dedicated connection, outside of the pooled bindings.
func (r *Router) Migrate(ctx context.Context, t *tenant.Tenant, fsys fs.FS, table string) error {
	desc, err := r.credentials.Descriptor(t)
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", desc.ConnString())
	if err != nil {
		return fmt.Errorf("open %s: %w", desc, err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close migration connection",
				logger.TenantID(t.ID), logger.Error(err))
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return errors.Join(tenant.ErrConnectionSwitch, fmt.Errorf("ping %s: %w", desc, err))
	}

	log := r.logger.With(logger.TenantID(t.ID))
	return pg.MigrateDB(ctx, db, fsys, table, log)
}
