package tenant

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// ErrorHandler handles errors that occur during tenant resolution.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// config holds middleware configuration.
type config struct {
	resolver     Resolver
	central      CentralRoutes
	gate         *Gate
	binder       Binder
	errorHandler ErrorHandler
	disabled     bool
	logger       *slog.Logger
	recorder     Recorder
}

// Option configures the middleware.
type Option func(*config)

// WithResolver sets how the directory key is derived. Defaults to the full host.
func WithResolver(r Resolver) Option {
	return func(c *config) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithCentralRoutes sets paths that skip tenant resolution.
func WithCentralRoutes(routes CentralRoutes) Option {
	return func(c *config) {
		c.central = routes
	}
}

// WithGate sets the status gate.
func WithGate(g *Gate) Option {
	return func(c *config) {
		if g != nil {
			c.gate = g
		}
	}
}

// WithBinder sets the component that binds the tenant database for the request.
func WithBinder(b Binder) Option {
	return func(c *config) {
		c.binder = b
	}
}

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *config) {
		if handler != nil {
			c.errorHandler = handler
		}
	}
}

// WithDisabled turns the middleware into a pass-through, e.g. for tests.
func WithDisabled(disabled bool) Option {
	return func(c *config) {
		c.disabled = disabled
	}
}

// WithLogger sets a custom logger for the middleware.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder sets the recorder for resolution outcomes.
func WithRecorder(r Recorder) Option {
	return func(c *config) {
		if r != nil {
			c.recorder = r
		}
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Reason  Reason `json:"reason,omitempty"`
}

// DefaultErrorHandler writes a JSON error body with the status code of the failure.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorResponse(err error) (int, errorBody) {
	var notActive *NotActiveError
	switch {
	case errors.As(err, &notActive):
		return http.StatusForbidden, errorBody{
			Error:   "tenant_not_active",
			Message: notActive.Message,
			Reason:  notActive.Reason,
		}
	case errors.Is(err, ErrTenantNotActive):
		return http.StatusForbidden, errorBody{Error: "tenant_not_active", Message: msgNotActive, Reason: ReasonNotActive}
	case errors.Is(err, ErrTenantNotFound):
		return http.StatusNotFound, errorBody{Error: "tenant_not_found", Message: "Tenant not found."}
	case errors.Is(err, ErrRegistryUnavailable):
		return http.StatusServiceUnavailable, errorBody{Error: "registry_unavailable", Message: "Tenant registry is temporarily unavailable."}
	case errors.Is(err, ErrConnectionSwitch):
		return http.StatusBadGateway, errorBody{Error: "tenant_database_unavailable", Message: "Tenant database is unavailable."}
	case errors.Is(err, ErrNoTenantInContext):
		return http.StatusBadRequest, errorBody{Error: "tenant_required", Message: "This endpoint requires a tenant."}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal_error", Message: "Internal server error."}
	}
}
