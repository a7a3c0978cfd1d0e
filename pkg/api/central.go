package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/registry"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// Provisioner creates tenants together with their databases.
// *registry.Provisioner implements it.
type Provisioner interface {
	Provision(ctx context.Context, req registry.ProvisionRequest) (*tenant.Tenant, error)
}

// Lifecycle changes tenant status. *registry.Lifecycle implements it.
type Lifecycle interface {
	Activate(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
	Suspend(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
	MarkExpired(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
	Renew(ctx context.Context, id uuid.UUID, end time.Time) (*tenant.Tenant, error)
	Update(ctx context.Context, id uuid.UUID, req registry.UpdateRequest) (*tenant.Tenant, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TenantFinder reads tenant records. registry.Store implements it.
type TenantFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
	List(ctx context.Context, f registry.Filter) ([]*tenant.Tenant, error)
}

// Central serves the tenant management endpoints. They run against the
// central database and must be mounted on a central route.
type Central struct {
	finder      TenantFinder
	provisioner Provisioner
	lifecycle   Lifecycle
	logger      *slog.Logger
}

// NewCentral creates the central management handler.
func NewCentral(finder TenantFinder, provisioner Provisioner, lifecycle Lifecycle, log *slog.Logger) *Central {
	if log == nil {
		log = logger.Discard()
	}
	return &Central{
		finder:      finder,
		provisioner: provisioner,
		lifecycle:   lifecycle,
		logger:      log.With(logger.Component("api.central")),
	}
}

// Routes returns the tenant management routes.
func (h *Central) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/tenants", h.list)
	r.Post("/tenants", h.provision)
	r.Route("/tenants/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Post("/activate", h.transition(h.lifecycle.Activate))
		r.Post("/suspend", h.transition(h.lifecycle.Suspend))
		r.Post("/expire", h.transition(h.lifecycle.MarkExpired))
		r.Post("/renew", h.renew)
	})
	return r
}

func (h *Central) provision(w http.ResponseWriter, r *http.Request) {
	var req registry.ProvisionRequest
	if err := BindJSON(r, &req); err != nil {
		Error(w, r, err)
		return
	}

	t, err := h.provisioner.Provision(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "tenant provisioning failed",
			slog.String("domain", req.Domain), logger.Error(err))
		Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "tenant provisioned",
		logger.TenantID(t.ID), logger.TenantKey(t.Domain))
	JSON(w, http.StatusCreated, t)
}

func (h *Central) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f registry.Filter
	if v := q.Get("status"); v != "" {
		status, err := tenant.ParseStatus(v)
		if err != nil {
			Error(w, r, errBadRequest)
			return
		}
		f.Status = status
	}
	if v := q.Get("plan"); v != "" {
		plan, err := tenant.ParsePlan(v)
		if err != nil {
			Error(w, r, errBadRequest)
			return
		}
		f.Plan = plan
	}

	tenants, err := h.finder.List(r.Context(), f)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSONWithMeta(w, http.StatusOK, tenants, map[string]int{"total": len(tenants)})
}

func (h *Central) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		Error(w, r, err)
		return
	}
	var req registry.UpdateRequest
	if err := BindJSON(r, &req); err != nil {
		Error(w, r, err)
		return
	}
	t, err := h.lifecycle.Update(r.Context(), id, req)
	if err != nil {
		h.logger.WarnContext(r.Context(), "tenant update rejected",
			logger.TenantID(id), logger.Error(err))
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, t)
}

func (h *Central) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		Error(w, r, err)
		return
	}
	t, err := h.finder.FindByID(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, t)
}

func (h *Central) transition(fn func(context.Context, uuid.UUID) (*tenant.Tenant, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			Error(w, r, err)
			return
		}
		t, err := fn(r.Context(), id)
		if err != nil {
			Error(w, r, err)
			return
		}
		JSON(w, http.StatusOK, t)
	}
}

type renewRequest struct {
	SubscriptionEnd time.Time `json:"subscription_end"`
}

func (h *Central) renew(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		Error(w, r, err)
		return
	}
	var req renewRequest
	if err := BindJSON(r, &req); err != nil {
		Error(w, r, err)
		return
	}
	t, err := h.lifecycle.Renew(r.Context(), id, req.SubscriptionEnd)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, t)
}

func (h *Central) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		Error(w, r, err)
		return
	}
	if err := h.lifecycle.Delete(r.Context(), id); err != nil {
		Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return parseID(chi.URLParam(r, "id"))
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}
