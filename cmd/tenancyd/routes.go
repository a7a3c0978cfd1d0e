package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/tenancy/pkg/api"
	"github.com/dmitrymomot/tenancy/pkg/config"
	"github.com/dmitrymomot/tenancy/pkg/httpserver"
	"github.com/dmitrymomot/tenancy/pkg/organization"
	"github.com/dmitrymomot/tenancy/pkg/requestid"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

type routesConfig struct {
	tenancy     config.Tenancy
	log         *slog.Logger
	metrics     tenant.Recorder
	gatherer    prometheus.Gatherer
	checks      []httpserver.Check
	directory   tenant.Lookup
	router      tenant.Binder
	store       api.TenantFinder
	lifecycle   api.Lifecycle
	provisioner api.Provisioner
	limits      api.UsageReader
	orgs        *organization.Service
}

// routes builds the HTTP surface. Paths listed in TENANCY_CENTRAL_ROUTES skip
// tenant resolution and run against the central database; everything else is
// bound to the database of the resolved tenant.
func routes(cfg routesConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware())
	r.Use(tenant.Middleware(cfg.directory,
		tenant.WithResolver(tenant.NewResolver(cfg.tenancy.IdentificationMethod(), cfg.tenancy.Header)),
		tenant.WithCentralRoutes(tenant.NewCentralRoutes(cfg.tenancy.CentralRoutes...)),
		tenant.WithGate(tenant.NewGate(tenant.WithTrialAccess(cfg.tenancy.AllowTrial))),
		tenant.WithBinder(cfg.router),
		tenant.WithDisabled(cfg.tenancy.Disabled),
		tenant.WithLogger(cfg.log),
		tenant.WithRecorder(cfg.metrics),
	))

	r.Get("/healthz", httpserver.Liveness())
	r.Get("/readyz", httpserver.Readiness(cfg.log, cfg.checks...))
	r.Handle("/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/central", api.NewCentral(cfg.store, cfg.provisioner, cfg.lifecycle, cfg.log).Routes())

		r.Group(func(r chi.Router) {
			r.Use(tenant.RequireTenant(nil))
			r.Get("/tenant", api.CurrentTenant(cfg.limits))
			r.Mount("/organizations", api.NewOrganizations(cfg.orgs).Routes())
		})
	})
	return r
}
