package cache

import (
	"context"
	"sync"
	"time"

	"github.com/i474232898/surfvault/internal/weather"
)

type entry struct {
	series   *weather.HourlySeries
	storedAt time.Time
}

// MemoryCache is a concurrency-safe in-memory series cache.
type MemoryCache struct {
	mu sync.RWMutex

	data  map[string]entry
	order []string // insertion order, oldest first

	// retention configuration
	maxEntries int           // max number of cached series
	maxAge     time.Duration // optional max age for entries

	now func() time.Time
}

// NewMemoryCache creates a new MemoryCache with optional limits.
// If maxEntries is <= 0, it is treated as unlimited.
func NewMemoryCache(maxEntries int, maxAge time.Duration) *MemoryCache {
	return &MemoryCache{
		data:       make(map[string]entry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Get returns the cached series for key unless it has expired.
func (c *MemoryCache) Get(_ context.Context, key string) (*weather.HourlySeries, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if c.maxAge > 0 && c.now().Sub(e.storedAt) > c.maxAge {
		return nil, false
	}
	return e.series, true
}

// Set stores a series and enforces retention.
func (c *MemoryCache) Set(_ context.Context, key string, series *weather.HourlySeries) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists {
		c.order = append(c.order, key)
	}
	c.data[key] = entry{series: series, storedAt: c.now()}

	// Enforce retention by age.
	if c.maxAge > 0 {
		cutoff := c.now().Add(-c.maxAge)
		i := 0
		for ; i < len(c.order); i++ {
			if !c.data[c.order[i]].storedAt.Before(cutoff) {
				break
			}
			delete(c.data, c.order[i])
		}
		c.order = c.order[i:]
	}

	// Enforce retention by count.
	if c.maxEntries > 0 && len(c.order) > c.maxEntries {
		over := len(c.order) - c.maxEntries
		for _, k := range c.order[:over] {
			delete(c.data, k)
		}
		c.order = c.order[over:]
	}
}

// Len returns the number of cached series.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
