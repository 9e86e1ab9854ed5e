// Package cache provides the bounded, per-category expiring store shared by all
// summary requests.
package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"netsummary/internal/metrics"
)

// Categories
const (
	Networks          = "networks"
	Devices           = "devices"
	Appliance         = "appliance"
	NeighborDiscovery = "neighbor-discovery"
	Ports             = "ports"
)

// DefaultTTLs are the lifetimes used when a category is not configured
var DefaultTTLs = map[string]time.Duration{
	Networks:          10 * time.Minute,
	Devices:           3 * time.Minute,
	Appliance:         time.Minute,
	NeighborDiscovery: 10 * time.Minute,
	Ports:             2 * time.Minute,
}

// fallbackTTL applies to categories with no configured lifetime
const fallbackTTL = time.Minute

// DefaultMaxEntries caps every category unless a limit is configured
const DefaultMaxEntries = 1000

// Store is the cache contract used by the orchestrator
type Store interface {
	Get(category, key string) (interface{}, bool)
	Set(category, key string, value interface{})
	Evict(category, key string)
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Stats holds cache counters
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// Cache is an in-memory Store with one namespace per category
type Cache struct {
	mu      sync.RWMutex
	entries map[string]map[string]entry
	ttls    map[string]time.Duration
	limits  map[string]int
	limit   int
	now     func() time.Time
	stats   Stats
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithTTL overrides the lifetime of one category
func WithTTL(category string, ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttls[category] = ttl
		}
	}
}

// WithMaxEntries sets the entry cap of every category without its own limit
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithCategoryMaxEntries sets the entry cap of one category
func WithCategoryMaxEntries(category string, n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.limits[category] = n
		}
	}
}

// New creates a cache with the given per-category lifetimes layered over DefaultTTLs
func New(ttls map[string]time.Duration, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]map[string]entry),
		ttls:    make(map[string]time.Duration, len(DefaultTTLs)),
		limits:  make(map[string]int),
		limit:   DefaultMaxEntries,
		now:     time.Now,
	}
	for k, v := range DefaultTTLs {
		c.ttls[k] = v
	}
	for k, v := range ttls {
		if v > 0 {
			c.ttls[k] = v
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the lifetime of a category
func (c *Cache) TTL(category string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ttl(category)
}

// MaxEntries returns the entry cap of a category
func (c *Cache) MaxEntries(category string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxEntries(category)
}

func (c *Cache) maxEntries(category string) int {
	if n, ok := c.limits[category]; ok {
		return n
	}
	return c.limit
}

func (c *Cache) ttl(category string) time.Duration {
	if d, ok := c.ttls[category]; ok {
		return d
	}
	return fallbackTTL
}

// Get returns the live value stored under key. Expired entries are removed.
func (c *Cache) Get(category, key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[category][key]
	c.mu.RUnlock()

	if !ok {
		c.miss(category)
		return nil, false
	}

	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// re-check under the write lock, a concurrent Set may have refreshed it
		if cur, ok := c.entries[category][key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries[category], key)
			c.stats.Evictions++
			metrics.CacheEvictions.WithLabelValues(category).Inc()
		}
		c.mu.Unlock()
		c.miss(category)
		return nil, false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	metrics.CacheHits.WithLabelValues(category).Inc()
	return e.value, true
}

func (c *Cache) miss(category string) {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	metrics.CacheMisses.WithLabelValues(category).Inc()
}

// Set stores value under key with the category lifetime. A new key in a full
// category first drops its expired entries, then the entry closest to expiry.
func (c *Cache) Set(category, key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.entries[category]
	if !ok {
		ns = make(map[string]entry)
		c.entries[category] = ns
	}
	now := c.now()
	if _, exists := ns[key]; !exists && len(ns) >= c.maxEntries(category) {
		c.makeRoom(category, ns, now)
	}
	ns[key] = entry{value: value, expiresAt: now.Add(c.ttl(category))}
}

// makeRoom frees at least one slot in a full namespace. Caller holds the write lock.
func (c *Cache) makeRoom(category string, ns map[string]entry, now time.Time) {
	removed := 0
	for key, e := range ns {
		if !now.Before(e.expiresAt) {
			delete(ns, key)
			removed++
		}
	}

	if removed == 0 {
		var victim string
		var soonest time.Time
		for key, e := range ns {
			if victim == "" || e.expiresAt.Before(soonest) || (e.expiresAt.Equal(soonest) && key < victim) {
				victim, soonest = key, e.expiresAt
			}
		}
		if victim != "" {
			delete(ns, victim)
			removed++
		}
	}

	c.stats.Evictions += int64(removed)
	metrics.CacheEvictions.WithLabelValues(category).Add(float64(removed))
}

// Evict removes key from a category
func (c *Cache) Evict(category, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries[category], key)
}

// Sweep removes every expired entry and returns how many were dropped
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for category, ns := range c.entries {
		for key, e := range ns {
			if !now.Before(e.expiresAt) {
				delete(ns, key)
				removed++
				metrics.CacheEvictions.WithLabelValues(category).Inc()
			}
		}
	}
	c.stats.Evictions += int64(removed)
	return removed
}

// Stats returns a copy of the cache counters
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	for _, ns := range c.entries {
		s.Entries += len(ns)
	}
	return s
}

// StartSweeper purges expired entries every interval until stop is closed
func (c *Cache) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					log.Debug().Str("component", "cache").Int("removed", n).Msg("Swept expired cache entries")
				}
			case <-stop:
				return
			}
		}
	}()
}
