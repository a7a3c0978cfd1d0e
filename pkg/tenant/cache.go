package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrymomot/tenancy/pkg/cache"
)

// Entry is a cached directory result. A nil Tenant is a "not found" tombstone.
type Entry struct {
	Tenant *Tenant `json:"tenant,omitempty"`
}

// Found reports whether the entry holds a tenant rather than a tombstone.
func (e Entry) Found() bool { return e.Tenant != nil }

// Cache is the interface for directory cache implementations.
// Errors are advisory: the directory treats a failed read as a miss.
type Cache interface {
	// Get retrieves an entry by key.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Set stores an entry with the given TTL.
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error

	// Delete removes entries.
	Delete(ctx context.Context, keys ...string) error

	// Close releases any resources held by the cache.
	Close() error
}

const (
	// DefaultCacheSize is the default maximum number of entries in the memory cache.
	DefaultCacheSize = 1000

	// DefaultSweepInterval is how often the memory cache drops expired entries.
	DefaultSweepInterval = time.Minute
)

// MemoryCache is an in-process LRU cache with per-entry TTL and a background
// sweep of expired entries.
type MemoryCache struct {
	lru       *cache.LRU[string, Entry]
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryCache creates a memory cache bounded to size entries.
func NewMemoryCache(size int) *MemoryCache {
	return NewMemoryCacheWithSweep(size, DefaultSweepInterval)
}

// NewMemoryCacheWithSweep creates a memory cache with a custom sweep interval.
func NewMemoryCacheWithSweep(size int, sweep time.Duration) *MemoryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}

	c := &MemoryCache{
		lru:  cache.New[string, Entry](size),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go c.sweep(sweep)
	return c
}

// Get returns a live entry. Expired entries are dropped on read.
func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	entry, ok := c.lru.Get(key)
	return entry, ok, nil
}

// Set stores an entry for ttl.
func (c *MemoryCache) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	c.lru.PutWithTTL(key, entry, ttl)
	return nil
}

// Delete removes entries.
func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.lru.Remove(key)
	}
	return nil
}

// Len returns the number of stored entries, including not yet swept ones.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ticker.C:
			c.lru.RemoveExpired()
		case <-c.stop:
			return
		}
	}
}

// Close stops the sweep goroutine and waits for it to finish.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
		c.lru.Clear()
	})
	return nil
}

// noOpCache is a cache that doesn't cache anything.
type noOpCache struct{}

// NewNoOpCache creates a cache that doesn't cache. Every resolve hits the registry.
func NewNoOpCache() Cache {
	return noOpCache{}
}

func (noOpCache) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, nil }

func (noOpCache) Set(context.Context, string, Entry, time.Duration) error { return nil }

func (noOpCache) Delete(context.Context, ...string) error { return nil }

func (noOpCache) Close() error { return nil }
