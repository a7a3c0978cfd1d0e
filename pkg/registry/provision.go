package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/pg"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantdb"
)

// DatabasePrefix prefixes generated tenant database names.
const DatabasePrefix = "tenant_"

// Executor runs administrative statements on the central server.
// *pgxpool.Pool implements it.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrator applies the tenant schema to a freshly created database.
// *tenantdb.Router implements it.
type Migrator interface {
	Migrate(ctx context.Context, t *tenant.Tenant, fsys fs.FS, table string) error
}

// Forgetter drops directory keys, including "not found" tombstones.
// *tenant.Directory implements it.
type Forgetter interface {
	Forget(ctx context.Context, keys ...string) error
}

// PlanLimits returns the default limits of a plan. *limits.Service implements it.
type PlanLimits interface {
	DefaultLimits(id tenant.Plan) (tenant.Limits, error)
}

// ProvisionRequest describes a new tenant. Empty fields get defaults.
type ProvisionRequest struct {
	ID              uuid.UUID      `json:"id"`
	Domain          string         `json:"domain"`
	Subdomain       string         `json:"subdomain"`
	Name            string         `json:"name"`
	BillingEmail    string         `json:"billing_email"`
	Plan            tenant.Plan    `json:"plan"`
	Status          tenant.Status  `json:"status"`
	DatabaseName    string         `json:"database_name"`
	DatabaseHost    string         `json:"database_host"`
	DatabasePort    int            `json:"database_port"`
	Limits          *tenant.Limits `json:"limits"`
	SubscriptionEnd *time.Time     `json:"subscription_end"`
	Settings        map[string]any `json:"settings"`
}

// Provisioner creates tenants: the registry record, the dedicated database
// and its schema. A failure after the record was inserted rolls everything
// back so a half-provisioned tenant is never resolvable.
type Provisioner struct {
	store      Store
	admin      Executor
	migrator   Migrator
	forgetter  Forgetter
	plans      PlanLimits
	migrations fs.FS
	table      string
	host       string
	port       int
	owner      *tenantdb.Credentials
	now        func() time.Time
	logger     *slog.Logger
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithTenantMigrations sets the schema applied to every new tenant database.
func WithTenantMigrations(fsys fs.FS, table string) ProvisionerOption {
	return func(p *Provisioner) {
		p.migrations = fsys
		p.table = table
	}
}

// WithMigrator sets the component that applies tenant migrations.
func WithMigrator(m Migrator) ProvisionerOption {
	return func(p *Provisioner) { p.migrator = m }
}

// WithForgetter sets the directory whose keys are cleared after provisioning.
func WithForgetter(f Forgetter) ProvisionerOption {
	return func(p *Provisioner) { p.forgetter = f }
}

// WithPlanLimits sets the source of default limits per plan.
func WithPlanLimits(pl PlanLimits) ProvisionerOption {
	return func(p *Provisioner) { p.plans = pl }
}

// WithDefaultDatabase sets the address stored for tenants that do not name one.
func WithDefaultDatabase(host string, port int) ProvisionerOption {
	return func(p *Provisioner) {
		p.host = host
		p.port = port
	}
}

// WithDatabaseOwner makes the provisioner create a login role per tenant from
// the credential template and hand it the new database.
func WithDatabaseOwner(creds tenantdb.Credentials) ProvisionerOption {
	return func(p *Provisioner) { p.owner = &creds }
}

// WithProvisionerLogger sets the logger.
func WithProvisionerLogger(log *slog.Logger) ProvisionerOption {
	return func(p *Provisioner) {
		if log != nil {
			p.logger = log
		}
	}
}

// NewProvisioner creates a provisioner. admin must be connected with a role
// allowed to create databases.
func NewProvisioner(store Store, admin Executor, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		store:  store,
		admin:  admin,
		now:    time.Now,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logger.Component("provisioner"))
	return p
}

// Provision creates a tenant. It inserts the record, creates the database,
// applies the tenant migrations and finally clears any cached "not found"
// answers for the new domain and subdomain.
func (p *Provisioner) Provision(ctx context.Context, req ProvisionRequest) (*tenant.Tenant, error) {
	t, err := p.build(req)
	if err != nil {
		return nil, err
	}

	if err := p.store.Create(ctx, t); err != nil {
		return nil, errors.Join(ErrProvisioningFailed, err)
	}

	var progress setupProgress
	if err := p.setup(ctx, t, &progress); err != nil {
		p.rollback(ctx, t, progress)
		return nil, errors.Join(ErrProvisioningFailed, err)
	}

	if p.forgetter != nil {
		if err := p.forgetter.Forget(ctx, t.Keys()...); err != nil {
			p.logger.WarnContext(ctx, "failed to clear directory keys",
				logger.TenantID(t.ID), logger.Error(err))
		}
	}

	p.logger.InfoContext(ctx, "tenant provisioned",
		logger.TenantID(t.ID),
		slog.String("domain", t.Domain),
		slog.String("database", t.Database.Name),
	)
	return t, nil
}

func (p *Provisioner) build(req ProvisionRequest) (*tenant.Tenant, error) {
	t := &tenant.Tenant{
		ID:              req.ID,
		Domain:          normalizeHost(req.Domain),
		Subdomain:       normalizeHost(req.Subdomain),
		Name:            strings.TrimSpace(req.Name),
		BillingEmail:    strings.TrimSpace(req.BillingEmail),
		Plan:            req.Plan,
		Status:          req.Status,
		SubscriptionEnd: copyTime(req.SubscriptionEnd),
		Settings:        req.Settings,
		Database: tenant.DatabaseConfig{
			Name: req.DatabaseName,
			Host: req.DatabaseHost,
			Port: req.DatabasePort,
		},
	}

	if t.Domain == "" || !validHost(t.Domain) {
		return nil, errors.Join(ErrInvalidTenant, fmt.Errorf("invalid domain %q", req.Domain))
	}
	if !validHost(t.Subdomain) {
		return nil, errors.Join(ErrInvalidTenant, fmt.Errorf("invalid subdomain %q", req.Subdomain))
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Name == "" {
		t.Name = t.Domain
	}
	if t.Plan == "" {
		t.Plan = tenant.PlanBasic
	}
	if _, err := tenant.ParsePlan(string(t.Plan)); err != nil {
		return nil, errors.Join(ErrUnknownPlan, err)
	}
	if t.Status == "" {
		t.Status = tenant.StatusTrial
	}
	if _, err := tenant.ParseStatus(string(t.Status)); err != nil {
		return nil, errors.Join(ErrInvalidTenant, err)
	}

	if t.Database.Name == "" {
		t.Database.Name = DatabasePrefix + strings.ReplaceAll(t.ID.String(), "-", "")
	}
	if !tenantdb.ValidDatabaseName(t.Database.Name) {
		return nil, errors.Join(ErrInvalidTenant, fmt.Errorf("invalid database name %q", t.Database.Name))
	}
	if t.Database.Host == "" {
		t.Database.Host = p.host
	}
	if t.Database.Port == 0 {
		t.Database.Port = p.port
	}

	switch {
	case req.Limits != nil:
		t.Limits = *req.Limits
	case p.plans != nil:
		l, err := p.plans.DefaultLimits(t.Plan)
		if err != nil {
			return nil, errors.Join(ErrUnknownPlan, err)
		}
		t.Limits = l
	}

	now := p.now().UTC()
	t.SubscriptionStart = &now
	return t, nil
}

// setupProgress records which server objects were created so rollback never
// drops something it does not own.
type setupProgress struct {
	role     string
	database bool
}

func (p *Provisioner) setup(ctx context.Context, t *tenant.Tenant, progress *setupProgress) error {
	dbIdent := pgx.Identifier{t.Database.Name}.Sanitize()
	stmt := "CREATE DATABASE " + dbIdent

	if p.owner != nil {
		desc, err := p.owner.Descriptor(t)
		if err != nil {
			return err
		}
		role := pgx.Identifier{desc.User}.Sanitize()
		if _, err := p.admin.Exec(ctx, "CREATE ROLE "+role+" LOGIN PASSWORD "+quoteLiteral(desc.Password)); err != nil {
			return fmt.Errorf("create role: %w", err)
		}
		progress.role = role
		stmt += " OWNER " + role
	}

	if _, err := p.admin.Exec(ctx, stmt); err != nil {
		if pg.IsDuplicateDatabaseError(err) {
			return errors.Join(ErrDuplicate, err)
		}
		return fmt.Errorf("create database: %w", err)
	}
	progress.database = true

	if p.migrator != nil && p.migrations != nil {
		if err := p.migrator.Migrate(ctx, t, p.migrations, p.table); err != nil {
			return fmt.Errorf("migrate tenant database: %w", err)
		}
	}
	return nil
}

// rollback undoes a partial provisioning. Failures are logged only; the
// original error is what the caller needs to see.
func (p *Provisioner) rollback(ctx context.Context, t *tenant.Tenant, progress setupProgress) {
	ctx = context.WithoutCancel(ctx)
	log := p.logger.With(logger.TenantID(t.ID))

	if progress.database {
		if _, err := p.admin.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{t.Database.Name}.Sanitize()); err != nil {
			log.ErrorContext(ctx, "failed to drop tenant database", logger.Error(err))
		}
	}
	if progress.role != "" {
		if _, err := p.admin.Exec(ctx, "DROP ROLE IF EXISTS "+progress.role); err != nil {
			log.ErrorContext(ctx, "failed to drop tenant role", logger.Error(err))
		}
	}
	if err := p.store.Delete(ctx, t.ID); err != nil {
		log.ErrorContext(ctx, "failed to delete tenant record", logger.Error(err))
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
