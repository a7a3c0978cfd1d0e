package tenant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/tenancy/pkg/logger"
)

const (
	// DefaultTTL is how long a resolved tenant stays cached.
	DefaultTTL = time.Hour

	// DefaultNegativeTTL is how long a "not found" result stays cached.
	DefaultNegativeTTL = 30 * time.Second

	// maxKeyLength is the longest valid DNS name.
	maxKeyLength = 253
)

// Directory resolves directory keys to tenants, consulting the cache before
// the registry.
type Directory struct {
	registry    Registry
	cache       Cache
	ttl         time.Duration
	negativeTTL time.Duration
	group       singleflight.Group
	logger      *slog.Logger
	recorder    Recorder

	// epoch advances on every Forget. A load that started in an older epoch
	// does not write its answer back.
	mu    sync.RWMutex
	epoch uint64
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithCache sets the directory cache. Defaults to a memory cache.
func WithCache(c Cache) DirectoryOption {
	return func(d *Directory) {
		if c != nil {
			d.cache = c
		}
	}
}

// WithTTL sets how long resolved tenants are cached.
func WithTTL(ttl time.Duration) DirectoryOption {
	return func(d *Directory) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithNegativeTTL sets how long "not found" results are cached. Zero disables
// negative caching.
func WithNegativeTTL(ttl time.Duration) DirectoryOption {
	return func(d *Directory) {
		if ttl >= 0 {
			d.negativeTTL = ttl
		}
	}
}

// WithDirectoryLogger sets the logger for cache failures.
func WithDirectoryLogger(l *slog.Logger) DirectoryOption {
	return func(d *Directory) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDirectoryRecorder sets the recorder for cache lookups.
func WithDirectoryRecorder(r Recorder) DirectoryOption {
	return func(d *Directory) {
		if r != nil {
			d.recorder = r
		}
	}
}

// NewDirectory creates a directory over the registry.
func NewDirectory(registry Registry, opts ...DirectoryOption) *Directory {
	d := &Directory{
		registry:    registry,
		ttl:         DefaultTTL,
		negativeTTL: DefaultNegativeTTL,
		logger:      logger.Discard(),
		recorder:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cache == nil {
		d.cache = NewMemoryCache(DefaultCacheSize)
	}
	return d
}

// Resolve returns the tenant for key. Lookup order is cache, registry by
// domain, registry by subdomain. Not-found results are cached for the
// negative TTL; registry failures are never cached and are reported as
// ErrRegistryUnavailable.
func (d *Directory) Resolve(ctx context.Context, key string) (*Tenant, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || len(key) > maxKeyLength {
		return nil, ErrTenantNotFound
	}

	if entry, ok := d.fromCache(ctx, key); ok {
		if !entry.Found() {
			return nil, ErrTenantNotFound
		}
		return entry.Tenant, nil
	}

	// The load outlives a cancelled caller so that other waiters still get an answer.
	ch := d.group.DoChan(key, func() (any, error) {
		return d.load(context.WithoutCancel(ctx), key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Tenant), nil
	}
}

func (d *Directory) fromCache(ctx context.Context, key string) (Entry, bool) {
	entry, ok, err := d.cache.Get(ctx, key)
	switch {
	case err != nil:
		d.recorder.CacheLookup(CacheError)
		d.logger.WarnContext(ctx, "tenant cache read failed",
			logger.TenantKey(key), logger.Error(err))
		return Entry{}, false
	case !ok:
		d.recorder.CacheLookup(CacheMiss)
		return Entry{}, false
	case !entry.Found():
		d.recorder.CacheLookup(CacheNegativeHit)
	default:
		d.recorder.CacheLookup(CacheHit)
	}
	return entry, true
}

func (d *Directory) load(ctx context.Context, key string) (*Tenant, error) {
	d.mu.RLock()
	epoch := d.epoch
	d.mu.RUnlock()

	// A flight that just finished may have filled the cache.
	if entry, ok, err := d.cache.Get(ctx, key); err == nil && ok {
		if !entry.Found() {
			return nil, ErrTenantNotFound
		}
		return entry.Tenant, nil
	}

	t, err := d.query(ctx, key)
	switch {
	case errors.Is(err, ErrTenantNotFound):
		if d.negativeTTL > 0 {
			d.store(ctx, epoch, key, Entry{}, d.negativeTTL)
		}
		return nil, ErrTenantNotFound
	case err != nil:
		return nil, errors.Join(ErrRegistryUnavailable, err)
	}

	d.store(ctx, epoch, key, Entry{Tenant: t}, d.ttl)
	return t, nil
}

func (d *Directory) query(ctx context.Context, key string) (*Tenant, error) {
	t, err := d.registry.FindByDomain(ctx, key)
	if errors.Is(err, ErrTenantNotFound) || (err == nil && t == nil) {
		t, err = d.registry.FindBySubdomain(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	if t == nil || t.IsDeleted() {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

func (d *Directory) store(ctx context.Context, epoch uint64, key string, entry Entry, ttl time.Duration) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.epoch != epoch {
		return
	}
	if err := d.cache.Set(ctx, key, entry, ttl); err != nil {
		d.logger.WarnContext(ctx, "tenant cache write failed",
			logger.TenantKey(key), logger.Error(err))
	}
}

// Invalidate drops every cached key of the tenant. Loads already in flight
// still answer their waiters but do not cache the answer.
func (d *Directory) Invalidate(ctx context.Context, t *Tenant) error {
	if t == nil {
		return nil
	}
	return d.Forget(ctx, t.Keys()...)
}

// Forget drops arbitrary cached keys, including "not found" tombstones.
func (d *Directory) Forget(ctx context.Context, keys ...string) error {
	normalized := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		normalized = append(normalized, key)
		d.group.Forget(key)
	}
	if len(normalized) == 0 {
		return nil
	}

	d.mu.Lock()
	d.epoch++
	d.mu.Unlock()
	return d.cache.Delete(ctx, normalized...)
}

// Close closes the underlying cache.
func (d *Directory) Close() error {
	return d.cache.Close()
}
