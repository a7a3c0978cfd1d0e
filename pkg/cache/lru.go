package cache

import (
	"container/list"
	"sync"
	"time"
)

// EvictReason tells an eviction callback why an entry left the cache.
type EvictReason int

const (
	// EvictCapacity means the entry was the least recently used one when capacity was exceeded.
	EvictCapacity EvictReason = iota
	// EvictExpired means the entry's TTL elapsed.
	EvictExpired
	// EvictRemoved means the entry was removed explicitly.
	EvictRemoved
	// EvictCleared means the whole cache was cleared.
	EvictCleared
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictExpired:
		return "expired"
	case EvictRemoved:
		return "removed"
	case EvictCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

type lruEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time // zero means no expiry
}

func (e *lruEntry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// LRU is a thread-safe LRU cache with optional per-entry expiry.
// When the cache reaches its capacity, the least recently used item is evicted.
type LRU[K comparable, V any] struct {
	capacity int
	items    map[K]*list.Element
	order    *list.List
	mu       sync.Mutex
	onEvict  func(key K, value V, reason EvictReason)
	now      func() time.Time
}

// New creates an LRU cache with the specified capacity.
// The capacity must be positive, otherwise it panics.
func New[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		panic("cache: LRU capacity must be positive")
	}
	return &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// SetEvictCallback sets a function called whenever an entry leaves the cache,
// including explicit removal. The callback runs with the cache
// lock held and must not call back into the cache.
func (c *LRU[K, V]) SetEvictCallback(fn func(key K, value V, reason EvictReason)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get retrieves a value and marks it as recently used.
// Expired entries are dropped and reported as missing.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}

	entry := elem.Value.(*lruEntry[K, V])
	if entry.expired(c.now()) {
		c.removeElement(elem, EvictExpired)
		var zero V
		return zero, false
	}

	c.order.MoveToFront(elem)
	return entry.value, true
}

// Peek returns a value without updating recency. Expired entries are reported as missing.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry[K, V])
		if !entry.expired(c.now()) {
			return entry.value, true
		}
	}

	var zero V
	return zero, false
}

// Put adds or updates a value that never expires.
// Returns the previous value and whether it existed.
func (c *LRU[K, V]) Put(key K, value V) (V, bool) {
	return c.PutWithTTL(key, value, 0)
}

// PutWithTTL adds or updates a value that expires after ttl. A non-positive ttl disables expiry.
// Replacing an existing entry does not invoke the evict callback; the previous value is returned instead.
func (c *LRU[K, V]) PutWithTTL(key K, value V, ttl time.Duration) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*lruEntry[K, V])
		old := entry.value
		entry.value = value
		entry.expiresAt = expiresAt
		return old, true
	}

	elem := c.order.PushFront(&lruEntry[K, V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem

	if c.order.Len() > c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest, EvictCapacity)
		}
	}

	var zero V
	return zero, false
}

// Remove deletes an entry. Returns the removed value and whether it existed.
func (c *LRU[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry[K, V])
		c.removeElement(elem, EvictRemoved)
		return entry.value, true
	}

	var zero V
	return zero, false
}

// RemoveExpired drops every expired entry and returns how many were removed.
func (c *LRU[K, V]) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*lruEntry[K, V]).expired(now) {
			c.removeElement(elem, EvictExpired)
			removed++
		}
		elem = prev
	}
	return removed
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear removes all entries, invoking the evict callback for each.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onEvict != nil {
		for _, elem := range c.items {
			entry := elem.Value.(*lruEntry[K, V])
			c.onEvict(entry.key, entry.value, EvictCleared)
		}
	}

	c.items = make(map[K]*list.Element)
	c.order.Init()
}

// Must be called with lock held.
func (c *LRU[K, V]) removeElement(elem *list.Element, reason EvictReason) {
	c.order.Remove(elem)
	entry := elem.Value.(*lruEntry[K, V])
	delete(c.items, entry.key)

	if c.onEvict != nil {
		c.onEvict(entry.key, entry.value, reason)
	}
}
