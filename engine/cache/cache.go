// Package cache implements the process-local TTL cache shared by every
// retrieval service. Each service owns its own *Cache instance with its own
// TTL; there is no background eviction, entries are evicted lazily on
// access.
package cache

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a mapping from a normalized string key to (value, expiresAt).
// Concurrent access must not corrupt state; a miss may redundantly
// recompute (no single-flight guarantee).
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time // seam for deterministic tests
}

// New creates a Cache with a fixed per-entry TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the value for key only if it has not expired. A failed lookup
// never displaces a good cached entry elsewhere (callers must not write
// back a fallback result over a prior hit).
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with expiry = now + ttl, overwriting any
// existing entry.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate removes key unconditionally.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of entries currently stored, expired or not — used
// only by tests and metrics, never by correctness-sensitive code.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// NormalizePart applies the universal key-normalization rule: trim outer
// whitespace, collapse internal whitespace runs to a single space, and
// lowercase. A nil-valued part becomes the empty string.
func NormalizePart(s *string) string {
	if s == nil {
		return ""
	}
	return normalize(*s)
}

func normalize(s string) string {
	fields := strings.Fields(s)
	return strings.ToLower(strings.Join(fields, " "))
}

// Key joins normalized parts with a separator unlikely to collide with
// normalized content, forming the cache's ordered key tuple.
func Key(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = normalize(p)
	}
	return strings.Join(normalized, "\x1f")
}
