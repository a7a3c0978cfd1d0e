package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/statemachine"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

type event string

const (
	eventActivate event = "activate"
	eventSuspend  event = "suspend"
	eventExpire   event = "expire"
	eventRenew    event = "renew"
)

// change is the transition payload handed to the persisting actions.
type change struct {
	lc     *Lifecycle
	tenant *tenant.Tenant
	start  *time.Time
	end    *time.Time
}

func persistStatus(ctx context.Context, _, to tenant.Status, _ event, data any) error {
	c := data.(*change)
	return c.lc.store.UpdateStatus(ctx, c.tenant.ID, to)
}

func persistSubscription(ctx context.Context, _, _ tenant.Status, _ event, data any) error {
	c := data.(*change)
	return c.lc.store.UpdateSubscription(ctx, c.tenant.ID, c.start, c.end)
}

func transition(from, to tenant.Status, ev event, actions ...statemachine.Action[tenant.Status, event]) statemachine.Transition[tenant.Status, event] {
	return statemachine.Transition[tenant.Status, event]{
		From:    from,
		To:      to,
		Event:   ev,
		Actions: append(actions, persistStatus),
	}
}

var statusFlow = statemachine.NewBuilder[tenant.Status, event](tenant.StatusTrial).
	Add(transition(tenant.StatusTrial, tenant.StatusActive, eventActivate)).
	Add(transition(tenant.StatusSuspended, tenant.StatusActive, eventActivate)).
	Add(transition(tenant.StatusActive, tenant.StatusSuspended, eventSuspend)).
	Add(transition(tenant.StatusTrial, tenant.StatusSuspended, eventSuspend)).
	Add(transition(tenant.StatusExpired, tenant.StatusSuspended, eventSuspend)).
	Add(transition(tenant.StatusActive, tenant.StatusExpired, eventExpire)).
	Add(transition(tenant.StatusTrial, tenant.StatusExpired, eventExpire)).
	Add(transition(tenant.StatusActive, tenant.StatusActive, eventRenew, persistSubscription)).
	Add(transition(tenant.StatusTrial, tenant.StatusActive, eventRenew, persistSubscription)).
	Add(transition(tenant.StatusExpired, tenant.StatusActive, eventRenew, persistSubscription)).
	MustBuild()

// Hook runs after a tenant record changed. Hook errors are logged and do not
// undo the change.
type Hook func(ctx context.Context, t *tenant.Tenant) error

// Invalidator drops cached directory entries of a tenant. *tenant.Directory
// implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, t *tenant.Tenant) error
}

// Purger retires the database pool of a tenant. *tenantdb.Router implements it.
type Purger interface {
	Purge(id uuid.UUID)
}

// InvalidateDirectory returns a hook that evicts the tenant from the
// directory cache so the next request sees the new record.
func InvalidateDirectory(inv Invalidator) Hook {
	return func(ctx context.Context, t *tenant.Tenant) error {
		return inv.Invalidate(ctx, t)
	}
}

// PurgePools returns a hook that retires the pool of a tenant that can no
// longer be served. Bindings in flight finish on the old pool.
func PurgePools(p Purger) Hook {
	return func(_ context.Context, t *tenant.Tenant) error {
		if t.IsDeleted() || t.IsSuspended() || t.Status == tenant.StatusExpired {
			p.Purge(t.ID)
		}
		return nil
	}
}

// Lifecycle moves tenants between statuses. Every change is validated
// against the status transition table, persisted and then announced to the
// registered hooks.
type Lifecycle struct {
	store  Store
	hooks  []Hook
	plans  PlanGuard
	now    func() time.Time
	logger *slog.Logger
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithHooks appends hooks run after each change.
func WithHooks(hooks ...Hook) LifecycleOption {
	return func(l *Lifecycle) {
		for _, h := range hooks {
			if h != nil {
				l.hooks = append(l.hooks, h)
			}
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLifecycleLogger sets the logger.
func WithLifecycleLogger(log *slog.Logger) LifecycleOption {
	return func(l *Lifecycle) {
		if log != nil {
			l.logger = log
		}
	}
}

// NewLifecycle creates a Lifecycle over store.
func NewLifecycle(store Store, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		store:  store,
		now:    time.Now,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(logger.Component("lifecycle"))
	return l
}

// Activate moves a trial or suspended tenant to active.
func (l *Lifecycle) Activate(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return l.fire(ctx, id, eventActivate, nil)
}

// Suspend blocks a tenant until it is activated again.
func (l *Lifecycle) Suspend(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return l.fire(ctx, id, eventSuspend, nil)
}

// MarkExpired moves an active or trial tenant to expired.
func (l *Lifecycle) MarkExpired(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return l.fire(ctx, id, eventExpire, nil)
}

// Renew extends the subscription to end and makes the tenant active.
// Suspended tenants must be activated first.
func (l *Lifecycle) Renew(ctx context.Context, id uuid.UUID, end time.Time) (*tenant.Tenant, error) {
	now := l.now()
	if !end.After(now) {
		return nil, ErrInvalidRenewal
	}
	return l.fire(ctx, id, eventRenew, func(c *change) {
		start := now
		if c.tenant.SubscriptionStart != nil {
			start = *c.tenant.SubscriptionStart
		}
		c.start, c.end = &start, &end
	})
}

// Delete soft-deletes a tenant and announces it to the hooks.
func (l *Lifecycle) Delete(ctx context.Context, id uuid.UUID) error {
	t, err := l.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := l.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	now := l.now()
	t.DeletedAt = &now
	l.logger.InfoContext(ctx, "tenant deleted", logger.TenantID(t.ID))
	l.runHooks(ctx, t)
	return nil
}

// ExpireOverdue marks every active or trial tenant whose subscription ended
// before now as expired. It returns the number of tenants expired; failures
// for single tenants are joined and do not stop the sweep.
func (l *Lifecycle) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	overdue, err := l.store.ListOverdue(ctx, now)
	if err != nil {
		return 0, err
	}

	var (
		n    int
		errs []error
	)
	for _, t := range overdue {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := l.MarkExpired(ctx, t.ID); err != nil {
			errs = append(errs, fmt.Errorf("expire tenant %s: %w", t.ID, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (l *Lifecycle) fire(ctx context.Context, id uuid.UUID, ev event, prepare func(*change)) (*tenant.Tenant, error) {
	t, err := l.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c := &change{lc: l, tenant: t}
	if prepare != nil {
		prepare(c)
	}

	from := t.Status
	machine := statusFlow.NewAt(from)
	if err := machine.Fire(ctx, ev, c); err != nil {
		if statemachine.IsNoTransitionAvailableError(err) || statemachine.IsTransitionRejectedError(err) {
			return nil, errors.Join(ErrInvalidTransition, err)
		}
		return nil, err
	}

	t.Status = machine.Current()
	if c.end != nil {
		t.SubscriptionStart, t.SubscriptionEnd = c.start, c.end
	}

	l.logger.InfoContext(ctx, "tenant status changed",
		logger.TenantID(t.ID),
		slog.String("from", string(from)),
		slog.String("to", string(t.Status)),
		slog.String("event", string(ev)),
	)
	l.runHooks(ctx, t)
	return t, nil
}

func (l *Lifecycle) runHooks(ctx context.Context, t *tenant.Tenant) {
	for _, h := range l.hooks {
		if err := h(ctx, t); err != nil {
			l.logger.ErrorContext(ctx, "tenant change hook failed",
				logger.TenantID(t.ID), logger.Error(err))
		}
	}
}
