package pipeline

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value     any
	writtenAt time.Time
	expiresAt time.Time
}

// ttlCache is a bounded in-process cache for enrichment results. Expired
// entries are swept on insert when the cache is full; if sweeping frees
// nothing the oldest entry is evicted.
type ttlCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	maxSize int
}

func newTTLCache(maxSize int) *ttlCache {
	return &ttlCache{
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
	}
}

func (c *ttlCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *ttlCache) Put(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.sweepLocked(now)
		if len(c.entries) >= c.maxSize {
			c.evictOldestLocked()
		}
	}

	c.entries[key] = cacheEntry{
		value:     value,
		writtenAt: now,
		expiresAt: now.Add(ttl),
	}
}

func (c *ttlCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ttlCache) sweepLocked(now time.Time) {
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *ttlCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.writtenAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.writtenAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
