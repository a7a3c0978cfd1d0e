package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/tenancy/pkg/cache"
	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

const (
	// DefaultMaxPools bounds the number of tenant pools kept open.
	DefaultMaxPools = 100

	// DefaultDialTimeout bounds opening a tenant pool.
	DefaultDialTimeout = 10 * time.Second
)

// poolEntry is one open tenant pool. refs counts live bindings; a retired
// entry is closed once refs drops to zero.
type poolEntry struct {
	tenantID uuid.UUID
	desc     Descriptor
	db       DB
	refs     int
	retired  bool
	closed   bool
}

// Router hands out per-request bindings to tenant databases. Pools are keyed
// by tenant id so requests for different tenants never share a pool, and the
// active binding lives in the request context rather than in the router.
type Router struct {
	central     DB
	connector   Connector
	credentials Credentials
	dialTimeout time.Duration
	logger      *slog.Logger
	recorder    Recorder

	mu      sync.Mutex
	pools   *cache.LRU[uuid.UUID, *poolEntry]
	closing []*poolEntry // retired entries with no refs, closed outside mu
	closed  bool

	dials  singleflight.Group
	active atomic.Int64
}

// Option configures a Router.
type Option func(*routerConfig)

type routerConfig struct {
	maxPools    int
	dialTimeout time.Duration
	logger      *slog.Logger
	recorder    Recorder
}

// WithMaxPools bounds the number of open tenant pools. The least recently
// used pool is retired when the bound is exceeded.
func WithMaxPools(n int) Option {
	return func(c *routerConfig) {
		if n > 0 {
			c.maxPools = n
		}
	}
}

// WithDialTimeout bounds opening a tenant pool.
func WithDialTimeout(d time.Duration) Option {
	return func(c *routerConfig) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithLogger sets the logger. Cleanup failures are logged, never returned.
func WithLogger(l *slog.Logger) Option {
	return func(c *routerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder sets the recorder for bind and pool events.
func WithRecorder(r Recorder) Option {
	return func(c *routerConfig) {
		if r != nil {
			c.recorder = r
		}
	}
}

// NewRouter creates a router. central serves every request without a tenant
// binding and is owned by the caller.
func NewRouter(central DB, connector Connector, credentials Credentials, opts ...Option) *Router {
	cfg := routerConfig{
		maxPools:    DefaultMaxPools,
		dialTimeout: DefaultDialTimeout,
		logger:      logger.Discard(),
		recorder:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Router{
		central:     central,
		connector:   connector,
		credentials: credentials,
		dialTimeout: cfg.dialTimeout,
		logger:      cfg.logger.With(logger.Component("tenantdb")),
		recorder:    cfg.recorder,
		pools:       cache.New[uuid.UUID, *poolEntry](cfg.maxPools),
	}
	r.pools.SetEvictCallback(r.retire)
	return r
}

// Central returns the central database.
func (r *Router) Central() DB {
	return r.central
}

// Active returns the number of live bindings.
func (r *Router) Active() int64 {
	return r.active.Load()
}

// Pools returns the number of tenant pools currently kept by the router.
func (r *Router) Pools() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pools.Len()
}

// Bind opens a binding for t and returns a context carrying it. The release
// func must be called exactly once when the request is done; it is safe to
// call from a deferred statement and never panics.
func (r *Router) Bind(ctx context.Context, t *tenant.Tenant) (context.Context, func(), error) {
	b, err := r.Open(ctx, t)
	if err != nil {
		return ctx, func() {}, err
	}
	return WithBinding(ctx, b), b.Release, nil
}

// Open creates a Binding for t without attaching it to a context. Failures
// are joined with tenant.ErrConnectionSwitch; the central database is never
// used as a fallback.
func (r *Router) Open(ctx context.Context, t *tenant.Tenant) (*Binding, error) {
	start := time.Now()
	b := newBinding(r, t)

	if err := b.machine.Fire(ctx, eventResolve, b); err != nil {
		return nil, errors.Join(tenant.ErrConnectionSwitch, err)
	}

	entry, err := r.acquire(ctx, t)
	if err != nil {
		_ = b.machine.Fire(ctx, eventFail, b)
		err = errors.Join(tenant.ErrConnectionSwitch, err)
		r.recorder.BindObserved(time.Since(start), err)
		r.logger.ErrorContext(ctx, "tenant database bind failed",
			logger.TenantID(t.ID), logger.Error(err))
		return nil, err
	}

	b.entry = entry
	if err := b.machine.Fire(ctx, eventBind, b); err != nil {
		r.release(entry)
		return nil, errors.Join(tenant.ErrConnectionSwitch, err)
	}

	r.recorder.BindingsActive(r.active.Add(1))
	r.recorder.BindObserved(time.Since(start), nil)
	return b, nil
}

// acquire returns a referenced pool entry for t, dialing one if needed.
func (r *Router) acquire(ctx context.Context, t *tenant.Tenant) (*poolEntry, error) {
	desc, err := r.credentials.Descriptor(t)
	if err != nil {
		return nil, err
	}

	// An entry can be closed between the dial and the reference; retry then.
	for range 3 {
		if e, err := r.reference(t.ID, desc); e != nil || err != nil {
			return e, err
		}

		e, err := r.dial(ctx, t.ID, desc)
		if err != nil {
			return nil, err
		}
		if r.adopt(e) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("tenant %s: pool evicted while binding", t.ID)
}

// reference bumps the refs of a live entry matching desc. A stale entry for
// the same tenant is retired so that the new descriptor gets a fresh pool.
func (r *Router) reference(id uuid.UUID, desc Descriptor) (*poolEntry, error) {
	r.mu.Lock()
	defer r.flushClosing()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRouterClosed
	}

	e, ok := r.pools.Get(id)
	if !ok {
		return nil, nil
	}
	if e.desc != desc {
		r.logger.Info("tenant database descriptor changed, purging pool",
			logger.TenantID(id), slog.String("database", desc.String()))
		r.pools.Remove(id)
		return nil, nil
	}
	e.refs++
	return e, nil
}

// adopt references a freshly dialed entry. An entry retired by eviction is
// still usable as long as it has not been closed.
func (r *Router) adopt(e *poolEntry) bool {
	r.mu.Lock()
	if !r.closed && !e.closed {
		e.refs++
		r.mu.Unlock()
		return true
	}
	// An uncached pool rejected after Close has no other owner.
	orphan := e.retired && e.refs == 0 && !e.closed
	if orphan {
		e.closed = true
	}
	r.mu.Unlock()

	if orphan {
		r.closeDB(e.db, e.tenantID)
	}
	return false
}

// dial opens a pool for desc; concurrent dials for the same tenant and
// descriptor share one connection attempt.
func (r *Router) dial(ctx context.Context, id uuid.UUID, desc Descriptor) (*poolEntry, error) {
	key := id.String() + "|" + desc.ConnString()

	ch := r.dials.DoChan(key, func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.dialTimeout)
		defer cancel()

		db, err := r.connector.Connect(dctx, desc)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", desc, err)
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			r.closeDB(db, id)
			return nil, ErrRouterClosed
		}
		if existing, ok := r.pools.Peek(id); ok {
			r.mu.Unlock()
			if existing.desc == desc {
				r.closeDB(db, id)
				return existing, nil
			}
			// A concurrent bind cached another descriptor. This pool is
			// handed out uncached and closes with its last release.
			return &poolEntry{tenantID: id, desc: desc, db: db, retired: true}, nil
		}
		e := &poolEntry{tenantID: id, desc: desc, db: db}
		r.pools.Put(id, e)
		n := r.pools.Len()
		r.mu.Unlock()

		r.flushClosing()
		r.recorder.PoolsOpen(n)
		r.logger.DebugContext(ctx, "tenant database pool opened",
			logger.TenantID(id), slog.String("database", desc.String()))
		return e, nil
	})

	select {
	case <-ctx.Done():
		go r.reap(ch)
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*poolEntry), nil
	}
}

// reap waits for a dial its caller gave up on and closes the result if it is
// an uncached pool nobody adopted.
func (r *Router) reap(ch <-chan singleflight.Result) {
	res := <-ch
	if res.Err != nil {
		return
	}
	e := res.Val.(*poolEntry)

	r.mu.Lock()
	closeNow := e.retired && e.refs == 0 && !e.closed
	if closeNow {
		e.closed = true
	}
	r.mu.Unlock()

	if closeNow {
		r.closeDB(e.db, e.tenantID)
	}
}

// retire is the LRU evict callback; it runs with r.mu held.
func (r *Router) retire(id uuid.UUID, e *poolEntry, reason cache.EvictReason) {
	e.retired = true
	if e.refs == 0 && !e.closed {
		e.closed = true
		r.closing = append(r.closing, e)
	}
	r.logger.Debug("tenant database pool retired",
		logger.TenantID(id), logger.Reason(reason.String()), slog.Int("refs", e.refs))
}

// release drops one reference and closes the pool if it was retired.
func (r *Router) release(e *poolEntry) {
	r.mu.Lock()
	e.refs--
	closeNow := e.retired && e.refs <= 0 && !e.closed
	if closeNow {
		e.closed = true
	}
	r.mu.Unlock()

	if closeNow {
		r.closeDB(e.db, e.tenantID)
	}
}

func (r *Router) flushClosing() {
	r.mu.Lock()
	pending := r.closing
	r.closing = nil
	n := r.pools.Len()
	r.mu.Unlock()

	for _, e := range pending {
		r.closeDB(e.db, e.tenantID)
	}
	if len(pending) > 0 {
		r.recorder.PoolsOpen(n)
	}
}

func (r *Router) closeDB(db DB, id uuid.UUID) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tenant database pool close panicked",
				logger.TenantID(id), slog.Any("panic", p))
		}
	}()
	db.Close()
}

// Purge retires the pool of a tenant. Bindings still using it keep working
// and the pool closes when the last one is released.
func (r *Router) Purge(id uuid.UUID) {
	r.mu.Lock()
	r.pools.Remove(id)
	r.mu.Unlock()
	r.flushClosing()
}

// Close retires every tenant pool and rejects new bindings. The central
// database is left open.
func (r *Router) Close() error {
	r.mu.Lock()
	r.closed = true
	r.pools.Clear()
	r.mu.Unlock()
	r.flushClosing()
	return nil
}
