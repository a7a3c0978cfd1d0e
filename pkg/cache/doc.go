// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry expiry.
//
// The cache evicts the least recently used entry once capacity is exceeded and
// drops entries whose TTL elapsed, either lazily on access or in bulk through
// RemoveExpired. An eviction callback receives the reason an entry left the
// cache, which lets owners release resources such as connection pools.
//
// # Usage
//
//	c := cache.New[string, *Tenant](1000)
//	c.PutWithTTL("acme.example.com", t, time.Hour)
//
//	if t, ok := c.Get("acme.example.com"); ok {
//		// use t
//	}
//
//	c.SetEvictCallback(func(key string, v *Pool, reason cache.EvictReason) {
//		v.Close()
//	})
//
// Get, Peek, Put, PutWithTTL and Remove are O(1). RemoveExpired walks the
// whole cache and is meant for periodic sweeps.
package cache
