package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// PlanGuard validates plan changes. *limits.Service covers VerifyPlan and
// CanDowngrade; usage counters of the tenant database must be reachable from
// the context passed to CanDowngrade.
type PlanGuard interface {
	PlanLimits
	VerifyPlan(id tenant.Plan) error
	CanDowngrade(ctx context.Context, t *tenant.Tenant, target tenant.Plan) error
}

// WithPlanGuard sets the plan checks applied by Update.
func WithPlanGuard(g PlanGuard) LifecycleOption {
	return func(l *Lifecycle) { l.plans = g }
}

// UpdateRequest changes the profile of a tenant. Nil fields are left as they
// are. Status moves through the lifecycle transitions only.
type UpdateRequest struct {
	Domain       *string        `json:"domain"`
	Subdomain    *string        `json:"subdomain"`
	Name         *string        `json:"name"`
	BillingEmail *string        `json:"billing_email"`
	Plan         *tenant.Plan   `json:"plan"`
	Limits       *tenant.Limits `json:"limits"`
	Settings     map[string]any `json:"settings"`
}

// Update applies req to a live tenant. A plan change is checked against the
// plan guard: the target plan must exist and current usage must fit it. When
// the request carries no limits, a new plan brings its default limits.
// Hooks see the previous record too when the tenant changed its keys, so
// cached entries under the old domain are dropped.
func (l *Lifecycle) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*tenant.Tenant, error) {
	cur, err := l.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := applyUpdate(cur, req)
	if err != nil {
		return nil, err
	}
	if next.Plan != cur.Plan {
		if err := l.checkPlan(ctx, cur, next, req.Limits == nil); err != nil {
			return nil, err
		}
	}

	if err := l.store.Update(ctx, next); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "tenant updated",
		logger.TenantID(next.ID),
		slog.String("domain", next.Domain),
		slog.String("plan", string(next.Plan)),
	)
	if !slices.Equal(cur.Keys(), next.Keys()) {
		l.runHooks(ctx, cur)
	}
	l.runHooks(ctx, next)
	return next, nil
}

func (l *Lifecycle) checkPlan(ctx context.Context, cur, next *tenant.Tenant, resetLimits bool) error {
	if l.plans == nil {
		return nil
	}
	if err := l.plans.VerifyPlan(next.Plan); err != nil {
		return errors.Join(ErrUnknownPlan, err)
	}
	if err := l.plans.CanDowngrade(ctx, cur, next.Plan); err != nil {
		return err
	}
	if resetLimits {
		defaults, err := l.plans.DefaultLimits(next.Plan)
		if err != nil {
			return errors.Join(ErrUnknownPlan, err)
		}
		next.Limits = defaults
	}
	return nil
}

func applyUpdate(cur *tenant.Tenant, req UpdateRequest) (*tenant.Tenant, error) {
	next := clone(cur)

	if req.Domain != nil {
		next.Domain = normalizeHost(*req.Domain)
		if next.Domain == "" || !validHost(next.Domain) {
			return nil, errors.Join(ErrInvalidTenant, fmt.Errorf("invalid domain %q", *req.Domain))
		}
	}
	if req.Subdomain != nil {
		next.Subdomain = normalizeHost(*req.Subdomain)
		if !validHost(next.Subdomain) {
			return nil, errors.Join(ErrInvalidTenant, fmt.Errorf("invalid subdomain %q", *req.Subdomain))
		}
	}
	if req.Name != nil {
		next.Name = strings.TrimSpace(*req.Name)
		if next.Name == "" {
			return nil, errors.Join(ErrInvalidTenant, errors.New("name is required"))
		}
	}
	if req.BillingEmail != nil {
		next.BillingEmail = strings.TrimSpace(*req.BillingEmail)
	}
	if req.Plan != nil {
		p, err := tenant.ParsePlan(string(*req.Plan))
		if err != nil {
			return nil, errors.Join(ErrUnknownPlan, err)
		}
		next.Plan = p
	}
	if req.Limits != nil {
		if !validLimits(*req.Limits) {
			return nil, errors.Join(ErrInvalidTenant, fmt.Errorf("invalid limits %+v", *req.Limits))
		}
		next.Limits = *req.Limits
	}
	if req.Settings != nil {
		next.Settings = maps.Clone(req.Settings)
	}
	return next, nil
}

func normalizeHost(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validHost(s string) bool {
	return len(s) <= 253 && !strings.ContainsAny(s, " /:")
}

// validLimits accepts zero (plan default), -1 (unlimited) and positive values.
func validLimits(l tenant.Limits) bool {
	return l.MaxUsers >= -1 && l.MaxOrganizations >= -1 && l.MaxStorageMB >= -1
}
