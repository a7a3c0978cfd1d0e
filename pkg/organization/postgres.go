package organization

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/tenancy/pkg/pg"
	"github.com/dmitrymomot/tenancy/pkg/tenantdb"
)

const columns = `id, tenant_id, parent_id, name, code, description, type, status,
	email, phone, address, city, state, country, postal_code,
	currency, timezone, locale, settings, created_at, updated_at`

// PostgresStore keeps organizations in the tenant database bound to the
// request context.
type PostgresStore struct {
	conn func(ctx context.Context) (tenantdb.DB, error)
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store that reads the tenant connection with
// tenantdb.TenantConn, so it never falls back to the central database.
func NewPostgresStore() *PostgresStore {
	return &PostgresStore{conn: tenantdb.TenantConn}
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.getOne(ctx, "id = $1", id)
}

func (s *PostgresStore) GetByCode(ctx context.Context, code string) (*Organization, error) {
	return s.getOne(ctx, "code = $1", code)
}

func (s *PostgresStore) getOne(ctx context.Context, where string, arg any) (*Organization, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	row := db.QueryRow(ctx, "SELECT "+columns+" FROM organizations WHERE "+where+" AND deleted_at IS NULL", arg)
	o, err := scanOrganization(row)
	if pg.IsNotFoundError(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query organization: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*Organization, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	where := []string{"deleted_at IS NULL"}
	var args []any
	if f.RootsOnly {
		where = append(where, "parent_id IS NULL")
	}
	if f.ParentID != nil {
		args = append(args, *f.ParentID)
		where = append(where, "parent_id = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}

	rows, err := db.Query(ctx, "SELECT "+columns+" FROM organizations WHERE "+strings.Join(where, " AND ")+" ORDER BY name", args...)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var out []*Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Create(ctx context.Context, o *Organization) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	_, err = db.Exec(ctx, `INSERT INTO organizations (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		o.ID, o.TenantID, o.ParentID, o.Name, o.Code, o.Description, string(o.Type), string(o.Status),
		o.Email, o.Phone, o.Address, o.City, o.State, o.Country, o.PostalCode,
		o.Currency, o.Timezone, o.Locale, settingsOrEmpty(o.Settings), o.CreatedAt, o.UpdatedAt,
	)
	return mapWriteError("insert organization", err)
}

func (s *PostgresStore) Update(ctx context.Context, o *Organization) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	o.UpdatedAt = time.Now().UTC()
	tag, err := db.Exec(ctx, `UPDATE organizations SET
		parent_id = $2, name = $3, code = $4, description = $5, type = $6, status = $7,
		email = $8, phone = $9, address = $10, city = $11, state = $12, country = $13, postal_code = $14,
		currency = $15, timezone = $16, locale = $17, settings = $18, updated_at = $19
		WHERE id = $1 AND deleted_at IS NULL`,
		o.ID, o.ParentID, o.Name, o.Code, o.Description, string(o.Type), string(o.Status),
		o.Email, o.Phone, o.Address, o.City, o.State, o.Country, o.PostalCode,
		o.Currency, o.Timezone, o.Locale, settingsOrEmpty(o.Settings), o.UpdatedAt,
	)
	if err := mapWriteError("update organization", err); err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx,
		`UPDATE organizations SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.QueryRow(ctx, `SELECT count(*) FROM organizations WHERE deleted_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count organizations: %w", err)
	}
	return n, nil
}

func mapWriteError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case pg.IsDuplicateKeyError(err):
		return errors.Join(ErrDuplicateCode, err)
	case pg.IsForeignKeyViolationError(err):
		return errors.Join(ErrParentNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanOrganization(row pgx.Row) (*Organization, error) {
	var (
		o           Organization
		typ, status string
	)
	err := row.Scan(
		&o.ID, &o.TenantID, &o.ParentID, &o.Name, &o.Code, &o.Description, &typ, &status,
		&o.Email, &o.Phone, &o.Address, &o.City, &o.State, &o.Country, &o.PostalCode,
		&o.Currency, &o.Timezone, &o.Locale, &o.Settings, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Type, o.Status = Type(typ), Status(status)
	return &o, nil
}

func settingsOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
