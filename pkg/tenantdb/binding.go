package tenantdb

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/statemachine"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// State is the routing state of a Binding.
type State string

const (
	// StateDefault means data access targets the central database.
	StateDefault State = "default"
	// StateRouting means the tenant is accepted and its pool is being acquired.
	StateRouting State = "routing"
	// StateTenantBound means data access targets the tenant database.
	StateTenantBound State = "tenant_bound"
	// StateRestoring means the binding is releasing its pool.
	StateRestoring State = "restoring"
)

type event string

const (
	eventResolve  event = "resolve"
	eventBind     event = "bind"
	eventFail     event = "fail"
	eventRelease  event = "release"
	eventRestored event = "restored"
)

// bindingFlow is shared by every Binding; only the current state is per binding.
var bindingFlow = statemachine.NewBuilder[State, event](StateDefault).
	Permit(StateDefault, eventResolve, StateRouting).
	Permit(StateRouting, eventBind, StateTenantBound).
	Permit(StateRouting, eventFail, StateDefault).
	Add(statemachine.Transition[State, event]{
		From:    StateTenantBound,
		Event:   eventRelease,
		To:      StateRestoring,
		Actions: []statemachine.Action[State, event]{releasePool},
	}).
	Permit(StateRestoring, eventRestored, StateDefault).
	MustBuild()

func releasePool(_ context.Context, _, _ State, _ event, data any) error {
	b := data.(*Binding)
	b.router.release(b.entry)
	b.router.recorder.BindingsActive(b.router.active.Add(-1))
	return nil
}

// Binding ties one request to one tenant database.
type Binding struct {
	router  *Router
	tenant  *tenant.Tenant
	entry   *poolEntry
	machine *statemachine.Machine[State, event]
	once    sync.Once
}

func newBinding(r *Router, t *tenant.Tenant) *Binding {
	return &Binding{router: r, tenant: t, machine: bindingFlow.New()}
}

// State returns the current routing state.
func (b *Binding) State() State {
	return b.machine.Current()
}

// Tenant returns the bound tenant.
func (b *Binding) Tenant() *tenant.Tenant {
	return b.tenant
}

// DB returns the tenant database, or ErrNotBound once the binding is released.
func (b *Binding) DB() (DB, error) {
	if b.machine.Current() != StateTenantBound {
		return nil, ErrNotBound
	}
	return b.entry.db, nil
}

// Release returns the pool and moves the binding back to StateDefault. It is
// idempotent, never panics and only logs cleanup failures.
func (b *Binding) Release() {
	b.once.Do(func() {
		log := b.router.logger
		defer func() {
			if p := recover(); p != nil {
				log.Error("tenant binding release panicked",
					logger.TenantID(b.tenant.ID), slog.Any("panic", p))
			}
		}()

		ctx := context.Background()
		if err := b.machine.Fire(ctx, eventRelease, b); err != nil {
			log.Error("tenant binding release failed",
				logger.TenantID(b.tenant.ID), logger.State(string(b.State())), logger.Error(err))
			return
		}
		if err := b.machine.Fire(ctx, eventRestored, b); err != nil {
			log.Error("tenant binding restore failed",
				logger.TenantID(b.tenant.ID), logger.State(string(b.State())), logger.Error(err))
		}
	})
}
