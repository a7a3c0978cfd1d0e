// Command tenancyd serves the tenant management API and routes tenant
// requests to their dedicated databases.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrymomot/tenancy/pkg/config"
	"github.com/dmitrymomot/tenancy/pkg/httpserver"
	"github.com/dmitrymomot/tenancy/pkg/limits"
	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/metrics"
	"github.com/dmitrymomot/tenancy/pkg/organization"
	"github.com/dmitrymomot/tenancy/pkg/pg"
	"github.com/dmitrymomot/tenancy/pkg/redis"
	"github.com/dmitrymomot/tenancy/pkg/registry"
	"github.com/dmitrymomot/tenancy/pkg/requestid"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantdb"
)

type settings struct {
	App     config.App
	Tenancy config.Tenancy
	PG      pg.Config
	Redis   redis.Config
	HTTP    httpserver.Config
}

func main() {
	var cfg settings
	if err := loadSettings(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "tenancyd: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.App.Env, cfg.App.Name),
		logger.WithLevelName(cfg.App.LogLevel),
		logger.WithContextExtractors(requestid.LoggerExtractor(), tenant.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("tenancyd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func loadSettings(cfg *settings) error {
	if err := config.Load(&cfg.App); err != nil {
		return err
	}
	if err := config.Load(&cfg.Tenancy); err != nil {
		return err
	}
	if err := cfg.Tenancy.Validate(); err != nil {
		return err
	}
	if err := config.Load(&cfg.PG); err != nil {
		return err
	}
	if err := config.Load(&cfg.HTTP); err != nil {
		return err
	}
	if cfg.Tenancy.CacheDriver == config.CacheDriverRedis {
		return config.Load(&cfg.Redis)
	}
	return nil
}

func run(ctx context.Context, cfg settings, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, registry.Migrations(), cfg.PG.MigrationsTable, log); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}

	cache, closeCache, err := directoryCache(ctx, cfg, &checks)
	if err != nil {
		return err
	}
	defer closeCache()

	store := registry.OpenFromPool(pool)
	defer store.Close()

	dir := tenant.NewDirectory(store,
		tenant.WithCache(cache),
		tenant.WithTTL(cfg.Tenancy.CacheTTL),
		tenant.WithNegativeTTL(cfg.Tenancy.NegativeTTL),
		tenant.WithDirectoryLogger(log),
		tenant.WithDirectoryRecorder(m),
	)
	defer dir.Close()

	router := tenantdb.NewRouter(pool, tenantdb.NewPgxConnector(cfg.PG), credentials(cfg.Tenancy),
		tenantdb.WithMaxPools(cfg.Tenancy.MaxPools),
		tenantdb.WithLogger(log),
		tenantdb.WithRecorder(m),
	)
	defer router.Close()

	plans, err := config.LoadPlans(cfg.Tenancy.PlansFile)
	if err != nil {
		return err
	}
	counters := limits.NewRegistry()
	limitsSvc, err := limits.NewService(ctx, limits.NewInMemSource(plans), counters)
	if err != nil {
		return err
	}

	orgs := organization.NewService(organization.NewPostgresStore(),
		organization.WithLimits(limitsSvc),
		organization.WithLogger(log),
	)
	counters.Register(limits.ResourceOrganizations, orgs.Counter())

	defaults := planDefaults{plans: limitsSvc, fallback: cfg.Tenancy.DefaultLimits()}
	lifecycle := registry.NewLifecycle(store,
		registry.WithHooks(registry.InvalidateDirectory(dir), registry.PurgePools(router)),
		registry.WithPlanGuard(planGuard{planDefaults: defaults, binder: router}),
		registry.WithLifecycleLogger(log),
	)

	provisioner := registry.NewProvisioner(store, pool,
		registry.WithMigrator(router),
		registry.WithTenantMigrations(organization.Migrations(), cfg.PG.MigrationsTable),
		registry.WithForgetter(dir),
		registry.WithPlanLimits(defaults),
		registry.WithDefaultDatabase(cfg.Tenancy.DefaultDBHost, cfg.Tenancy.DefaultDBPort),
		registry.WithProvisionerLogger(log),
	)

	handler := routes(routesConfig{
		tenancy:     cfg.Tenancy,
		log:         log,
		metrics:     m,
		gatherer:    reg,
		checks:      checks,
		directory:   dir,
		router:      router,
		store:       store,
		lifecycle:   lifecycle,
		provisioner: provisioner,
		limits:      limitsSvc,
		orgs:        orgs,
	})

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()

	srv := httpserver.NewFromConfig(cfg.HTTP,
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func(ctx context.Context, addr string) {
			log.InfoContext(ctx, "tenancyd listening",
				slog.String("addr", addr),
				slog.String("identification", string(cfg.Tenancy.IdentificationMethod())),
				slog.String("cache", cfg.Tenancy.CacheDriver),
			)
			go sweepExpired(sweepCtx, lifecycle, cfg.Tenancy.ExpireInterval, log)
		}),
		httpserver.WithStopHook(func(context.Context) error {
			stopSweep()
			return router.Close()
		}),
	)
	return srv.Run(ctx, handler)
}

// directoryCache builds the cache selected by TENANCY_CACHE_DRIVER. Redis is
// added to the readiness checks when used.
func directoryCache(ctx context.Context, cfg settings, checks *[]httpserver.Check) (tenant.Cache, func(), error) {
	switch cfg.Tenancy.CacheDriver {
	case config.CacheDriverRedis:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		*checks = append(*checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
		return tenant.NewRedisCache(client, cfg.Tenancy.CachePrefix), func() { _ = client.Close() }, nil
	case config.CacheDriverNone:
		return tenant.NewNoOpCache(), func() {}, nil
	default:
		return tenant.NewMemoryCache(cfg.Tenancy.CacheSize), func() {}, nil
	}
}

func credentials(cfg config.Tenancy) tenantdb.Credentials {
	creds := tenantdb.Credentials{
		User:        cfg.DBUser,
		Password:    cfg.DBPassword,
		SSLMode:     cfg.DBSSLMode,
		DefaultHost: cfg.DefaultDBHost,
		DefaultPort: cfg.DefaultDBPort,
	}
	if cfg.DerivePasswords {
		creds.PasswordSecret = []byte(cfg.PasswordSecret)
	}
	return creds
}

// planDefaults falls back to the configured limits for plans that define none.
type planDefaults struct {
	plans    *limits.Service
	fallback tenant.Limits
}

func (p planDefaults) DefaultLimits(id tenant.Plan) (tenant.Limits, error) {
	l, err := p.plans.DefaultLimits(id)
	if err != nil {
		return tenant.Limits{}, err
	}
	if l == (tenant.Limits{}) {
		return p.fallback, nil
	}
	return l, nil
}

// planGuard checks plan changes. Usage is counted in the tenant database, so
// the tenant is put in the context and bound for the duration of the check.
type planGuard struct {
	planDefaults
	binder tenant.Binder
}

func (g planGuard) VerifyPlan(id tenant.Plan) error {
	return g.plans.VerifyPlan(id)
}

func (g planGuard) CanDowngrade(ctx context.Context, t *tenant.Tenant, target tenant.Plan) error {
	ctx, release, err := g.binder.Bind(tenant.WithTenant(ctx, t), t)
	if err != nil {
		return err
	}
	defer release()
	return g.plans.CanDowngrade(ctx, t, target)
}

// sweepExpired marks tenants whose subscription ended as expired. A zero
// interval disables the sweep.
func sweepExpired(ctx context.Context, lc *registry.Lifecycle, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := lc.ExpireOverdue(ctx, now)
			if err != nil {
				log.ErrorContext(ctx, "expire overdue tenants failed", logger.Error(err))
				continue
			}
			if n > 0 {
				log.InfoContext(ctx, "overdue tenants expired", slog.Int("count", n))
			}
		}
	}
}
