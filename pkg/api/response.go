package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/tenancy/pkg/limits"
	"github.com/dmitrymomot/tenancy/pkg/organization"
	"github.com/dmitrymomot/tenancy/pkg/registry"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantdb"
)

// Response is the JSON envelope of every management API reply.
type Response struct {
	Data  any          `json:"data,omitempty"`
	Meta  any          `json:"meta,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// HTTPError pairs a status code with a stable error code.
type HTTPError struct {
	Status int
	Code   string
}

func (e HTTPError) Error() string { return e.Code }

var (
	errBadRequest    = HTTPError{Status: http.StatusBadRequest, Code: "bad_request"}
	errNotFound      = HTTPError{Status: http.StatusNotFound, Code: "not_found"}
	errConflict      = HTTPError{Status: http.StatusConflict, Code: "conflict"}
	errForbidden     = HTTPError{Status: http.StatusForbidden, Code: "forbidden"}
	errUnavailable   = HTTPError{Status: http.StatusServiceUnavailable, Code: "service_unavailable"}
	errUnsupported   = HTTPError{Status: http.StatusUnsupportedMediaType, Code: "unsupported_media_type"}
	errUnprocessable = HTTPError{Status: http.StatusUnprocessableEntity, Code: "unprocessable_entity"}
	errInternal      = HTTPError{Status: http.StatusInternalServerError, Code: "internal_server_error"}
)

// JSON writes data wrapped in the response envelope.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Response{Data: data})
}

// JSONWithMeta writes data and metadata wrapped in the response envelope.
func JSONWithMeta(w http.ResponseWriter, status int, data, meta any) {
	write(w, status, Response{Data: data, Meta: meta})
}

// Error writes err as a JSON error. Domain errors map to their status code;
// anything unknown becomes a 500 without leaking the message.
func Error(w http.ResponseWriter, _ *http.Request, err error) {
	httpErr := classify(err)
	detail := &ErrorDetail{Code: httpErr.Code}
	if httpErr.Status < http.StatusInternalServerError {
		detail.Message = err.Error()
	}
	write(w, httpErr.Status, Response{Error: detail})
}

func write(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func classify(err error) HTTPError {
	var httpErr HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.Is(err, ErrUnsupportedMediaType):
		return errUnsupported
	case errors.Is(err, ErrInvalidJSON),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, tenant.ErrNoTenantInContext):
		return errBadRequest
	case errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, organization.ErrNotFound),
		errors.Is(err, organization.ErrParentNotFound):
		return errNotFound
	case errors.Is(err, registry.ErrDuplicate),
		errors.Is(err, organization.ErrDuplicateCode),
		errors.Is(err, organization.ErrHasChildren),
		errors.Is(err, registry.ErrInvalidTransition),
		errors.Is(err, limits.ErrDowngradeNotPossible):
		return errConflict
	case errors.Is(err, limits.ErrLimitExceeded),
		errors.Is(err, tenant.ErrTenantNotActive):
		return errForbidden
	case errors.Is(err, registry.ErrInvalidTenant),
		errors.Is(err, registry.ErrInvalidRenewal),
		errors.Is(err, registry.ErrUnknownPlan),
		errors.Is(err, organization.ErrInvalidOrganization),
		errors.Is(err, organization.ErrCycle):
		return errUnprocessable
	case errors.Is(err, tenant.ErrRegistryUnavailable),
		errors.Is(err, tenantdb.ErrNotBound),
		errors.Is(err, tenantdb.ErrRouterClosed):
		return errUnavailable
	default:
		return errInternal
	}
}
