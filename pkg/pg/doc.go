// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
//   - Config is populated from PG_* environment variables.
//   - Connect opens a *pgxpool.Pool, retrying with a linear backoff until the
//     database answers a ping or the context is done.
//   - Migrate and MigrateDB apply goose migrations from an fs.FS, usually an
//     embedded directory, through a goose Provider.
//   - Healthcheck returns a probe for readiness endpoints.
//
// The error helpers classify pgx errors: IsNotFoundError, IsDuplicateKeyError,
// IsForeignKeyViolationError and IsDuplicateDatabaseError.
//
// # Usage
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg.MigrationsTable, log); err != nil {
//		return err
//	}
package pg
