// Package cache provides a TTL response cache for read-only SP-API calls.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Category selects the TTL a cached response lives under. Order data is
// never cached; the zero TTL for an unknown category disables caching too.
type Category string

const (
	CategoryInventory Category = "inventory"
	CategoryListings  Category = "listings"
	CategoryPricing   Category = "pricing"
	CategoryCatalog   Category = "catalog"
)

// ttls maps each category to how long its responses stay fresh.
var ttls = map[Category]time.Duration{
	CategoryInventory: 5 * time.Minute,
	CategoryListings:  15 * time.Minute,
	CategoryPricing:   1 * time.Minute,
	CategoryCatalog:   1 * time.Hour,
}

// TTLFor returns the cache lifetime for a category, zero when the category
// is not cacheable.
func TTLFor(cat Category) time.Duration {
	return ttls[cat]
}

// entry wraps a cached value with expiry and insertion order tracking.
type entry struct {
	value     any
	expiry    time.Time
	insertIdx int64
}

// ResponseCache caches parsed SP-API responses to avoid duplicate upstream
// round-trips. Keys are "category:marketplace:path?query". Only GET results
// are cached. Thread-safe with sync.RWMutex.
type ResponseCache struct {
	mu         sync.RWMutex
	items      map[string]entry
	maxEntries int
	nextIdx    int64
}

// New creates a ResponseCache with the given max entry count.
func New(maxEntries int) *ResponseCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &ResponseCache{
		items:      make(map[string]entry),
		maxEntries: maxEntries,
	}
}

// MakeKey builds a cache key from category, marketplace, and request path.
func MakeKey(cat Category, marketplace, path string) string {
	return string(cat) + ":" + marketplace + ":" + path
}

// Get returns a cached value if found and not expired.
func (c *ResponseCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Now().After(e.expiry) {
		// Expired: remove lazily
		c.mu.Lock()
		if e2, ok2 := c.items[key]; ok2 && time.Now().After(e2.expiry) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return e.value, true
}

// Set stores a value under the category's TTL. A zero TTL (uncacheable
// category) is a no-op. Evicts the oldest entry if at capacity.
func (c *ResponseCache) Set(key string, cat Category, value any) {
	ttl := TTLFor(cat)
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{
		value:     value,
		expiry:    time.Now().Add(ttl),
		insertIdx: c.nextIdx,
	}
	c.nextIdx++

	// If key already exists, update in place (no capacity change)
	if _, exists := c.items[key]; exists {
		c.items[key] = e
		return
	}

	// Evict oldest if at capacity
	if len(c.items) >= c.maxEntries {
		c.evictOldest()
	}

	c.items[key] = e
}

// InvalidatePrefix removes all entries whose key contains the given fragment.
// Write operations call this so stale reads never survive a mutation.
func (c *ResponseCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.items {
		if strings.Contains(key, prefix) {
			delete(c.items, key)
		}
	}
}

// evictOldest removes the entry with the lowest insertIdx. Must be called with mu held.
func (c *ResponseCache) evictOldest() {
	var oldestKey string
	var oldestIdx int64 = -1

	for key, e := range c.items {
		if oldestIdx == -1 || e.insertIdx < oldestIdx {
			oldestIdx = e.insertIdx
			oldestKey = key
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
