package tenant

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrymomot/tenancy/pkg/logger"
)

// NoticeHeader carries the gate advisory (e.g. trial mode) on accepted requests.
const NoticeHeader = "X-Tenant-Notice"

// Lookup resolves a directory key to a tenant. *Directory implements it.
type Lookup interface {
	Resolve(ctx context.Context, key string) (*Tenant, error)
}

// Binder attaches the tenant database to the request context. The returned
// release func restores the previous state; it is called exactly once on every
// exit path, including panics in the downstream handler.
type Binder interface {
	Bind(ctx context.Context, t *Tenant) (context.Context, func(), error)
}

// Middleware resolves the tenant of each request, applies the status gate,
// binds the tenant database and stores the tenant in the request context.
// Central routes and disabled mode pass through untouched.
func Middleware(lookup Lookup, opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{
		resolver:     NewDomainResolver(),
		gate:         NewGate(),
		errorHandler: DefaultErrorHandler,
		logger:       logger.Discard(),
		recorder:     nopRecorder{},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.disabled || cfg.central.Match(r.URL.Path) {
				cfg.recorder.Resolution(OutcomeBypass)
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := cfg.resolver.Resolve(r)

			t, err := lookup.Resolve(ctx, key)
			if err != nil {
				cfg.fail(w, r, err, logger.TenantKey(key))
				return
			}

			decision := cfg.gate.Evaluate(t)
			if !decision.Allowed {
				cfg.fail(w, r, decision.Err(t), logger.TenantKey(key), logger.TenantID(t.ID))
				return
			}

			ctx = WithTenant(ctx, t)
			if cfg.binder != nil {
				bound, release, err := cfg.binder.Bind(ctx, t)
				if err != nil {
					if !errors.Is(err, ErrConnectionSwitch) {
						err = errors.Join(ErrConnectionSwitch, err)
					}
					cfg.fail(w, r, err, logger.TenantKey(key), logger.TenantID(t.ID))
					return
				}
				defer release()
				ctx = bound
			}

			if decision.Advisory != "" {
				w.Header().Set(NoticeHeader, decision.Advisory)
			}

			cfg.recorder.Resolution(OutcomeBound)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (c *config) fail(w http.ResponseWriter, r *http.Request, err error, attrs ...any) {
	outcome := outcomeOf(err)
	c.recorder.Resolution(outcome)

	attrs = append(attrs, logger.Reason(outcome), logger.Error(err))
	if outcome == OutcomeNotFound || outcome == OutcomeNotActive {
		c.logger.InfoContext(r.Context(), "tenant request rejected", attrs...)
	} else {
		c.logger.ErrorContext(r.Context(), "tenant resolution failed", attrs...)
	}

	c.errorHandler(w, r, err)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrTenantNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrTenantNotActive):
		return OutcomeNotActive
	case errors.Is(err, ErrRegistryUnavailable):
		return OutcomeRegistryUnavailable
	case errors.Is(err, ErrConnectionSwitch):
		return OutcomeConnectionFailed
	default:
		return OutcomeError
	}
}

// RequireTenant creates middleware that ensures a tenant is present in the context.
// Use it on tenant-only routes mounted next to central ones.
func RequireTenant(errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = DefaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); !ok {
				errorHandler(w, r, ErrNoTenantInContext)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
