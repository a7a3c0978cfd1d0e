package pg

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

// DefaultMigrationsTable is used when no table name is given.
const DefaultMigrationsTable = "schema_migrations"

// Migrate applies all pending migrations found in fsys to the pool's database.
// It does not touch goose's package-level state, so several databases can be
// migrated concurrently.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, table string, log migrationLogger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close database connection", "error", err)
		}
	}()
	return MigrateDB(ctx, db, fsys, table, log)
}

// MigrateDB is Migrate for a database/sql handle owned by the caller.
func MigrateDB(ctx context.Context, db *sql.DB, fsys fs.FS, table string, log migrationLogger) error {
	if table == "" {
		table = DefaultMigrationsTable
	}

	store, err := database.NewStore(database.DialectPostgres, table)
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	provider, err := goose.NewProvider("", db, fsys, goose.WithStore(store))
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	for _, res := range results {
		log.InfoContext(ctx, "migration applied",
			"version", res.Source.Version,
			"path", res.Source.Path,
			"duration", res.Duration,
		)
	}
	return nil
}
