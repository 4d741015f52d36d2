// Package cachemem is an in-memory TTL cache for integrity results.
// Suitable for testing and single-instance deployments.
package cachemem

import (
	"context"
	"sync"
	"time"

	"torrens/internal/domain"
	"torrens/internal/usecase"
)

type cacheKey struct {
	resourceType string
	resourceID   string
}

type cacheEntry struct {
	result    domain.IntegrityResult
	expiresAt time.Time
}

// Cache holds verification results for a fixed TTL. Expired entries are
// dropped on read. A non-positive TTL disables storing entirely.
type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
}

var _ usecase.IntegrityCache = (*Cache)(nil)

func New(ttl time.Duration) *Cache {
	return NewWithClock(ttl, time.Now)
}

func NewWithClock(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[cacheKey]cacheEntry),
	}
}

func (c *Cache) Get(_ context.Context, resourceType, resourceID string) (domain.IntegrityResult, bool) {
	key := cacheKey{resourceType, resourceID}
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return domain.IntegrityResult{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return domain.IntegrityResult{}, false
	}
	return entry.result, true
}

func (c *Cache) Set(_ context.Context, resourceType, resourceID string, res domain.IntegrityResult) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{resourceType, resourceID}] = cacheEntry{
		result:    res,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Len returns the number of entries (including expired ones). For testing.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
