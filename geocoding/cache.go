// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"sync"
	"time"

	"github.com/pinmap/pinmap/spatial"
)

// Entry is a definitive provider answer for one canonical address. Point is
// the raw provider coordinate, nil when the provider found nothing; region
// validation happens on every read so a cached entry stays correct when the
// region changes.
type Entry struct {
	Query      string         `json:"query"`
	Point      *spatial.Point `json:"point,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	ResolvedAt time.Time      `json:"resolved_at"`
}

// Cache stores entries by cache key (dataset.CacheKey of the address).
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Set(ctx context.Context, key string, e *Entry)
}

// MemoryCache is a process-lifetime cache. It never evicts.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*Entry)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]

	return e, ok
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = e
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Entries returns a copy of the cache contents.
func (c *MemoryCache) Entries() map[string]*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}

	return out
}
