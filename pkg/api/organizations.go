package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/tenancy/pkg/organization"
)

// Organizations serves the organization tree of the current tenant. It must
// be mounted behind the tenant middleware so every call hits the tenant's
// own database.
type Organizations struct {
	svc *organization.Service
}

// NewOrganizations creates the organization handler.
func NewOrganizations(svc *organization.Service) *Organizations {
	return &Organizations{svc: svc}
}

// Routes returns the organization routes.
func (h *Organizations) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/code/{code}", h.getByCode)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Get("/children", h.children)
		r.Post("/move", h.move)
	})
	return r
}

func (h *Organizations) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f organization.Filter
	if v := q.Get("parent_id"); v != "" {
		id, err := parseID(v)
		if err != nil {
			Error(w, r, err)
			return
		}
		f.ParentID = &id
	}
	if v := q.Get("roots"); v != "" {
		roots, err := strconv.ParseBool(v)
		if err != nil {
			Error(w, r, errBadRequest)
			return
		}
		f.RootsOnly = roots
	}
	f.Status = organization.Status(q.Get("status"))

	orgs, err := h.svc.List(r.Context(), f)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSONWithMeta(w, http.StatusOK, orgs, map[string]int{"total": len(orgs)})
}

func (h *Organizations) create(w http.ResponseWriter, r *http.Request) {
	var in organization.CreateInput
	if err := BindJSON(r, &in); err != nil {
		Error(w, r, err)
		return
	}
	org, err := h.svc.Create(r.Context(), in)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, org)
}

func (h *Organizations) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		Error(w, r, err)
		return
	}
	org, err := h.svc.Get(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, org)
}

func (h *Organizations) getByCode(w http.ResponseWriter, r *http.Request) {
	org, err := h.svc.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, org)
}

func (h *Organizations) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		Error(w, r, err)
		return
	}
	var in organization.UpdateInput
	if err := BindJSON(r, &in); err != nil {
		Error(w, r, err)
		return
	}
	org, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, org)
}

func (h *Organizations) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		Error(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Organizations) children(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		Error(w, r, err)
		return
	}
	orgs, err := h.svc.Children(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, orgs)
}

type moveRequest struct {
	ParentID *uuid.UUID `json:"parent_id"`
}

func (h *Organizations) move(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		Error(w, r, err)
		return
	}
	var req moveRequest
	if err := BindJSON(r, &req); err != nil {
		Error(w, r, err)
		return
	}
	org, err := h.svc.Move(r.Context(), id, req.ParentID)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, org)
}
