// ABOUTME: In-memory preview cache that wraps a DOT rendering function with sha256-keyed caching.
// ABOUTME: Entries expire after a TTL and the cache holds a bounded number of previews.
package render

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a cache created with maxEntries <= 0.
const DefaultMaxEntries = 256

// RenderFunc is the signature for a DOT rendering function that the cache wraps.
type RenderFunc func(ctx context.Context, dotText string, format string) ([]byte, error)

type cacheEntry struct {
	data      []byte
	createdAt time.Time
}

// RenderCache wraps a DOT rendering function with an in-memory cache keyed
// by the sha256 of the DOT text and the format. Editing sessions render the
// same topology repeatedly while nothing changes, so identical DOT text is
// rendered once per TTL.
type RenderCache struct {
	renderFn   RenderFunc
	ttl        time.Duration
	maxEntries int
	entries    map[string]*cacheEntry
	mu         sync.RWMutex
}

// NewRenderCache creates a RenderCache wrapping renderFn. A nil renderFn
// uses RenderDOTSource.
func NewRenderCache(renderFn RenderFunc, ttl time.Duration, maxEntries int) *RenderCache {
	if renderFn == nil {
		renderFn = RenderDOTSource
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &RenderCache{
		renderFn:   renderFn,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
	}
}

// RenderDOTSource renders DOT text in the requested format, returning cached results
// when available and not expired. Errors are never cached.
func (c *RenderCache) RenderDOTSource(ctx context.Context, dotText string, format string) ([]byte, error) {
	key := cacheKey(dotText, format)

	c.mu.RLock()
	if entry, ok := c.entries[key]; ok && time.Since(entry.createdAt) < c.ttl {
		data := entry.data
		c.mu.RUnlock()
		return data, nil
	}
	c.mu.RUnlock()

	data, err := c.renderFn(ctx, dotText, format)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.purgeExpiredLocked()
		if len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}
	c.entries[key] = &cacheEntry{data: data, createdAt: time.Now()}
	c.mu.Unlock()

	return data, nil
}

// PurgeExpired drops expired entries and returns how many were removed.
func (c *RenderCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeExpiredLocked()
}

func (c *RenderCache) purgeExpiredLocked() int {
	removed := 0
	for key, entry := range c.entries {
		if time.Since(entry.createdAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *RenderCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldest.IsZero() || entry.createdAt.Before(oldest) {
			oldestKey = key
			oldest = entry.createdAt
		}
	}
	delete(c.entries, oldestKey)
}

// Len returns the number of entries currently in the cache (including expired ones).
func (c *RenderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries from the cache.
func (c *RenderCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

func cacheKey(dotText string, format string) string {
	return fmt.Sprintf("%x:%s", sha256.Sum256([]byte(dotText)), format)
}
