// SPDX-License-Identifier: MIT

package cache

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// lruEntry pairs a cached value with its absolute expiration, since the
// underlying lru.Cache evicts by recency, not by TTL.
type lruEntry struct {
	value      any
	expiration time.Time
}

// LRUCache is the L1, in-process tier: bounded capacity, O(1) get/set,
// least-recently-used eviction on overflow.
type LRUCache struct {
	inner *lru.Cache[string, lruEntry]
	stats struct {
		hits      atomic.Int64
		misses    atomic.Int64
		sets      atomic.Int64
		evictions atomic.Int64
	}
}

// NewLRUCache creates an L1 cache bounded at capacity entries.
func NewLRUCache(capacity int) (*LRUCache, error) {
	c := &LRUCache{}
	inner, err := lru.NewWithEvict[string, lruEntry](capacity, func(key string, value lruEntry) {
		c.stats.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.inner = inner
	return c, nil
}

// Get retrieves a value, treating an expired entry as a miss and purging it.
func (c *LRUCache) Get(key string) (any, bool) {
	e, ok := c.inner.Get(key)
	if !ok {
		c.stats.misses.Add(1)
		return nil, false
	}
	if time.Now().After(e.expiration) {
		c.inner.Remove(key)
		c.stats.misses.Add(1)
		return nil, false
	}
	c.stats.hits.Add(1)
	return e.value, true
}

// Set stores a value with the given TTL.
func (c *LRUCache) Set(key string, value any, ttl time.Duration) {
	c.inner.Add(key, lruEntry{value: value, expiration: time.Now().Add(ttl)})
	c.stats.sets.Add(1)
}

// Delete removes a key.
func (c *LRUCache) Delete(key string) {
	c.inner.Remove(key)
}

// Clear purges all entries.
func (c *LRUCache) Clear() {
	c.inner.Purge()
}

// InvalidatePattern removes every key matching pattern.
func (c *LRUCache) InvalidatePattern(pattern string) {
	for _, key := range c.inner.Keys() {
		if matchPattern(pattern, key) {
			c.inner.Remove(key)
		}
	}
}

// Stats returns cache performance counters.
func (c *LRUCache) Stats() CacheStats {
	return CacheStats{
		Hits:        c.stats.hits.Load(),
		Misses:      c.stats.misses.Load(),
		Sets:        c.stats.sets.Load(),
		Evictions:   c.stats.evictions.Load(),
		CurrentSize: c.inner.Len(),
	}
}
