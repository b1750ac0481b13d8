package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

type memoryEntry struct {
	value     models.QueryResponse
	expiresAt time.Time
}

// MemoryCache is an in-process ResponseCache for cacheless deployments and
// tests. Expiry is lazy: entries are checked on read and an expired entry is
// never returned.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (models.QueryResponse, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return models.QueryResponse{}, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return models.QueryResponse{}, false
	}
	return entry.value, true
}

func (c *MemoryCache) Put(_ context.Context, key string, value models.QueryResponse, ttl time.Duration) {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
