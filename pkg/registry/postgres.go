package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrymomot/tenancy/pkg/pg"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

const tenantColumns = `id, domain, subdomain, name, billing_email,
	database_name, database_host, database_port, status, plan,
	max_users, max_organizations, max_storage_mb,
	subscription_start, subscription_end, custom_settings,
	created_at, updated_at, deleted_at`

// PostgresStore keeps tenant records in the central database.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle. The handle stays owned by
// the caller.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// OpenFromPool builds a store on top of the central pgx pool. Close releases
// the database/sql wrapper without closing the pool.
func OpenFromPool(pool *pgxpool.Pool) *PostgresStore {
	return NewPostgresStore(stdlib.OpenDBFromPool(pool))
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) FindByDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	return s.findOne(ctx, "domain = $1", domain)
}

func (s *PostgresStore) FindBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error) {
	return s.findOne(ctx, "subdomain = $1", subdomain)
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return s.findOne(ctx, "id = $1", id)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*tenant.Tenant, error) {
	query := "SELECT " + tenantColumns + " FROM tenants WHERE " + where + " AND deleted_at IS NULL"
	t, err := scanTenant(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Create(ctx context.Context, t *tenant.Tenant) error {
	settings, err := marshalSettings(t.Settings)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NULL)`,
		t.ID, t.Domain, nullString(t.Subdomain), t.Name, nullString(t.BillingEmail),
		t.Database.Name, t.Database.Host, t.Database.Port, string(t.Status), string(t.Plan),
		t.Limits.MaxUsers, t.Limits.MaxOrganizations, t.Limits.MaxStorageMB,
		t.SubscriptionStart, t.SubscriptionEnd, settings,
		t.CreatedAt, t.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return errors.Join(ErrDuplicate, err)
	}
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*tenant.Tenant, error) {
	query := "SELECT " + tenantColumns + " FROM tenants WHERE deleted_at IS NULL"
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Plan != "" {
		args = append(args, string(f.Plan))
		query += fmt.Sprintf(" AND plan = $%d", len(args))
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()
	return collect(rows, "tenants")
}

func (s *PostgresStore) Update(ctx context.Context, t *tenant.Tenant) error {
	settings, err := marshalSettings(t.Settings)
	if err != nil {
		return err
	}
	t.UpdatedAt = s.now().UTC()

	err = s.exec(ctx, "update tenant", `UPDATE tenants SET
		domain = $2, subdomain = $3, name = $4, billing_email = $5, plan = $6,
		max_users = $7, max_organizations = $8, max_storage_mb = $9,
		custom_settings = $10, updated_at = $11
		WHERE id = $1 AND deleted_at IS NULL`,
		t.ID, t.Domain, nullString(t.Subdomain), t.Name, nullString(t.BillingEmail), string(t.Plan),
		t.Limits.MaxUsers, t.Limits.MaxOrganizations, t.Limits.MaxStorageMB,
		settings, t.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return errors.Join(ErrDuplicate, err)
	}
	return err
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, status tenant.Status) error {
	return s.exec(ctx, "update tenant status",
		`UPDATE tenants SET status = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`,
		id, string(status), s.now().UTC())
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, id uuid.UUID, start, end *time.Time) error {
	return s.exec(ctx, "update tenant subscription",
		`UPDATE tenants SET subscription_start = $2, subscription_end = $3, updated_at = $4 WHERE id = $1 AND deleted_at IS NULL`,
		id, start, end, s.now().UTC())
}

func (s *PostgresStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	now := s.now().UTC()
	return s.exec(ctx, "soft delete tenant",
		`UPDATE tenants SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, now)
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, "delete tenant", `DELETE FROM tenants WHERE id = $1`, id)
}

func (s *PostgresStore) ListOverdue(ctx context.Context, now time.Time) ([]*tenant.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+tenantColumns+` FROM tenants
		WHERE deleted_at IS NULL AND status IN ('active', 'trial')
		AND subscription_end IS NOT NULL AND subscription_end < $1
		ORDER BY subscription_end`, now)
	if err != nil {
		return nil, fmt.Errorf("query overdue tenants: %w", err)
	}
	defer rows.Close()
	return collect(rows, "overdue tenants")
}

func collect(rows *sql.Rows, what string) ([]*tenant.Tenant, error) {
	var out []*tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return out, nil
}

func (s *PostgresStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (*tenant.Tenant, error) {
	var (
		t            tenant.Tenant
		subdomain    sql.NullString
		billingEmail sql.NullString
		status, plan string
		start, end   sql.NullTime
		deletedAt    sql.NullTime
		settings     []byte
	)
	err := row.Scan(
		&t.ID, &t.Domain, &subdomain, &t.Name, &billingEmail,
		&t.Database.Name, &t.Database.Host, &t.Database.Port, &status, &plan,
		&t.Limits.MaxUsers, &t.Limits.MaxOrganizations, &t.Limits.MaxStorageMB,
		&start, &end, &settings,
		&t.CreatedAt, &t.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.Status, err = tenant.ParseStatus(status); err != nil {
		return nil, err
	}
	if t.Plan, err = tenant.ParsePlan(plan); err != nil {
		return nil, err
	}
	t.Subdomain = subdomain.String
	t.BillingEmail = billingEmail.String
	t.SubscriptionStart = timePtr(start)
	t.SubscriptionEnd = timePtr(end)
	t.DeletedAt = timePtr(deletedAt)

	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return nil, fmt.Errorf("decode custom settings: %w", err)
		}
	}
	return &t, nil
}

func marshalSettings(settings map[string]any) ([]byte, error) {
	if settings == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(settings)
	if err != nil {
		return nil, errors.Join(ErrInvalidTenant, fmt.Errorf("encode custom settings: %w", err))
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
