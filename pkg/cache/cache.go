// Package cache provides the TTL store backing the relay's block-decision
// and response caches.
package cache

import (
	"sync"
	"time"
)

// Cache is a thread-safe expiring key-value store. Entries are evicted
// lazily on access; there is no background sweep and no capacity bound. The
// key space is naturally limited (domain names seen by querying clients) and
// entries self-expire, so unbounded growth is an accepted limitation rather
// than a bug.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	stats   cacheStats
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type cacheStats struct {
	hits   uint64
	misses uint64
	sets   uint64
}

// Stats is a point-in-time copy of cache counters.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Sets    uint64
	Entries int
	HitRate float64
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
	}
}

// Get returns the live value for key. Expiry is checked against a single
// read of the clock under the lock, so a value is never returned at or past
// its deadline and never evicted before it. Expired entries are deleted on
// the spot.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found {
		c.stats.misses++
		var zero V
		return zero, false
	}

	if !time.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.stats.misses++
		var zero V
		return zero, false
	}

	c.stats.hits++
	return e.value, true
}

// Set stores value under key for the given TTL, replacing any previous
// entry. A non-positive TTL removes the key.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.entries, key)
		return
	}

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	c.stats.sets++
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, including any not yet lazily
// evicted.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Stats returns current cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.stats.hits + c.stats.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.stats.hits) / float64(total)
	}

	return Stats{
		Hits:    c.stats.hits,
		Misses:  c.stats.misses,
		Sets:    c.stats.sets,
		Entries: len(c.entries),
		HitRate: hitRate,
	}
}
