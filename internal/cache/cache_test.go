// internal/cache/cache_test.go
package cache

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }

func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(ttls map[string]time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return New(ttls, WithClock(clock.Now)), clock
}

// TestGetSet tests basic storage and category isolation
func TestGetSet(t *testing.T) {
	c, _ := newTestCache(nil)

	c.Set(Devices, "N_1", []string{"Q2-1"})

	v, ok := c.Get(Devices, "N_1")
	if !ok {
		t.Fatalf("Expected cached value")
	}
	if got := v.([]string); len(got) != 1 || got[0] != "Q2-1" {
		t.Errorf("Unexpected cached value: %v", got)
	}

	if _, ok := c.Get(Networks, "N_1"); ok {
		t.Errorf("Expected categories to be independent namespaces")
	}
}

// TestExpiry tests that each category honours its own lifetime
func TestExpiry(t *testing.T) {
	c, clock := newTestCache(nil)

	c.Set(Appliance, "k", 1)
	c.Set(Networks, "k", 2)

	clock.Advance(59 * time.Second)
	if _, ok := c.Get(Appliance, "k"); !ok {
		t.Errorf("Expected appliance entry to be live after 59s")
	}

	clock.Advance(time.Second)
	if _, ok := c.Get(Appliance, "k"); ok {
		t.Errorf("Expected appliance entry to expire after 1m")
	}
	if _, ok := c.Get(Networks, "k"); !ok {
		t.Errorf("Expected networks entry to outlive appliance entry")
	}

	clock.Advance(10 * time.Minute)
	if _, ok := c.Get(Networks, "k"); ok {
		t.Errorf("Expected networks entry to expire after 10m")
	}

	stats := c.Stats()
	if stats.Evictions != 2 {
		t.Errorf("Expected 2 evictions, got %d", stats.Evictions)
	}
	if stats.Entries != 0 {
		t.Errorf("Expected empty cache, got %d entries", stats.Entries)
	}
}

// TestConfiguredTTL tests overriding a category lifetime
func TestConfiguredTTL(t *testing.T) {
	c, clock := newTestCache(map[string]time.Duration{NeighborDiscovery: 30 * time.Second})

	if c.TTL(NeighborDiscovery) != 30*time.Second {
		t.Errorf("Expected 30s neighbor TTL, got %v", c.TTL(NeighborDiscovery))
	}
	if c.TTL(Ports) != 2*time.Minute {
		t.Errorf("Expected default ports TTL, got %v", c.TTL(Ports))
	}
	if c.TTL("unknown") != fallbackTTL {
		t.Errorf("Expected fallback TTL for unknown category")
	}

	c.Set(NeighborDiscovery, "N_1", "snap")
	clock.Advance(31 * time.Second)
	if _, ok := c.Get(NeighborDiscovery, "N_1"); ok {
		t.Errorf("Expected configured TTL to apply")
	}
}

// TestEvictAndSweep tests explicit eviction and sweeping
func TestEvictAndSweep(t *testing.T) {
	c, clock := newTestCache(nil)

	c.Set(Ports, "a", 1)
	c.Set(Ports, "b", 2)
	c.Set(Networks, "c", 3)

	c.Evict(Ports, "a")
	if _, ok := c.Get(Ports, "a"); ok {
		t.Errorf("Expected evicted entry to be gone")
	}

	clock.Advance(3 * time.Minute)
	if removed := c.Sweep(); removed != 1 {
		t.Errorf("Expected 1 expired entry swept, got %d", removed)
	}
	if _, ok := c.Get(Networks, "c"); !ok {
		t.Errorf("Expected networks entry to survive the sweep")
	}
}

// TestSetRefreshesExpiry tests last-writer-wins refresh
func TestSetRefreshesExpiry(t *testing.T) {
	c, clock := newTestCache(nil)

	c.Set(Devices, "k", "old")
	clock.Advance(2 * time.Minute)
	c.Set(Devices, "k", "new")
	clock.Advance(2 * time.Minute)

	v, ok := c.Get(Devices, "k")
	if !ok || v != "new" {
		t.Errorf("Expected refreshed entry, got %v (%v)", v, ok)
	}
}

// TestMaxEntries tests the per-category entry cap
func TestMaxEntries(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := New(nil, WithClock(clock.Now), WithMaxEntries(2), WithCategoryMaxEntries(Networks, 3))

	if c.MaxEntries(Ports) != 2 || c.MaxEntries(Networks) != 3 {
		t.Fatalf("Expected caps 2 and 3, got %d and %d", c.MaxEntries(Ports), c.MaxEntries(Networks))
	}

	c.Set(Ports, "a", 1)
	clock.Advance(time.Second)
	c.Set(Ports, "b", 2)
	clock.Advance(time.Second)

	// overwriting an existing key never evicts
	c.Set(Ports, "b", 3)
	if s := c.Stats(); s.Evictions != 0 || s.Entries != 2 {
		t.Fatalf("Expected 2 entries and no evictions, got %+v", s)
	}

	// a new key pushes out the entry closest to expiry
	c.Set(Ports, "c", 4)
	if _, ok := c.Get(Ports, "a"); ok {
		t.Errorf("Expected oldest entry to be evicted")
	}
	for _, k := range []string{"b", "c"} {
		if _, ok := c.Get(Ports, k); !ok {
			t.Errorf("Expected %s to survive", k)
		}
	}
	if s := c.Stats(); s.Evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", s.Evictions)
	}

	// other categories keep their own room
	for _, k := range []string{"x", "y", "z"} {
		c.Set(Networks, k, k)
	}
	if s := c.Stats(); s.Entries != 5 {
		t.Errorf("Expected 5 entries, got %d", s.Entries)
	}
}

// TestMaxEntriesDropsExpiredFirst tests that expired entries make room before live ones
func TestMaxEntriesDropsExpiredFirst(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := New(nil, WithClock(clock.Now), WithCategoryMaxEntries(Appliance, 2))

	c.Set(Appliance, "old", 1)
	clock.Advance(2 * time.Minute)
	c.Set(Appliance, "live", 2)
	c.Set(Appliance, "new", 3)

	if _, ok := c.Get(Appliance, "live"); !ok {
		t.Errorf("Expected live entry to survive")
	}
	if _, ok := c.Get(Appliance, "new"); !ok {
		t.Errorf("Expected new entry to be stored")
	}
	if s := c.Stats(); s.Evictions != 1 || s.Entries != 2 {
		t.Errorf("Expected the expired entry evicted, got %+v", s)
	}
}

// TestDefaultMaxEntries tests the default cap
func TestDefaultMaxEntries(t *testing.T) {
	c, _ := newTestCache(nil)
	if c.MaxEntries(Devices) != DefaultMaxEntries {
		t.Errorf("Expected default cap %d, got %d", DefaultMaxEntries, c.MaxEntries(Devices))
	}
}
