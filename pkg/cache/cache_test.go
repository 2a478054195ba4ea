package cache

import (
	"testing"
	"time"

	"github.com/NERVsystems/velomcp/pkg/geo"
	"github.com/NERVsystems/velomcp/pkg/itinerary"
)

func TestTTLCacheSetAndGet(t *testing.T) {
	c := NewTTLCache[string, string](1*time.Second, 0, 10)
	defer c.Stop()

	c.Set("key", "value")

	if c.Count() != 1 {
		t.Fatalf("expected count 1, got %d", c.Count())
	}

	v, ok := c.Get("key")
	if !ok {
		t.Fatalf("expected to find key")
	}
	if v != "value" {
		t.Errorf("expected value 'value', got %v", v)
	}
}

func TestTTLCacheExpiration(t *testing.T) {
	c := NewTTLCache[string, string](50*time.Millisecond, 10*time.Millisecond, 10)
	defer c.Stop()

	c.Set("temp", "data")
	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("temp"); ok {
		t.Errorf("expected item to expire")
	}
	if c.Count() != 0 {
		t.Errorf("expected cache to be empty after expiration, got %d", c.Count())
	}
}

func TestTTLCacheNoExpiry(t *testing.T) {
	c := NewTTLCache[string, int](0, 10*time.Millisecond, 0)
	defer c.Stop()

	c.Set("forever", 1)
	time.Sleep(30 * time.Millisecond)

	if v, ok := c.Get("forever"); !ok || v != 1 {
		t.Errorf("expected entry without TTL to survive cleanup, got %v %v", v, ok)
	}
}

func TestTTLCacheEviction(t *testing.T) {
	c := NewTTLCache[string, int](1*time.Second, 0, 2)
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // should evict "a"

	if c.Count() != 2 {
		t.Fatalf("expected count 2 after eviction, got %d", c.Count())
	}

	if _, ok := c.Get("a"); ok {
		t.Errorf("expected 'a' to be evicted")
	}

	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Errorf("expected to get 2 for 'b', got %v", v)
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Errorf("expected to get 3 for 'c', got %v", v)
	}
}

func TestTTLCacheEvictionWithoutTTLIsFIFO(t *testing.T) {
	c := NewTTLCache[string, int](0, 0, 2)
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Errorf("expected oldest entry 'a' to be evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Errorf("expected newest entry 'c' to be kept")
	}
}

func TestTTLCacheDeleteAndClear(t *testing.T) {
	c := NewTTLCache[int, string](time.Minute, 0, 0)
	defer c.Stop()

	c.Set(1, "one")
	c.Set(2, "two")
	c.Delete(1)
	if _, ok := c.Get(1); ok {
		t.Errorf("expected key 1 to be deleted")
	}

	c.Clear()
	if c.Count() != 0 {
		t.Errorf("expected empty cache after Clear, got %d", c.Count())
	}

	c.Stop()
	c.Stop()
}

func TestRouteCache(t *testing.T) {
	c := NewRouteCache(2, time.Minute)

	it, err := itinerary.NewBuilder().Identity("safe", 0).Totals(60, 100, 150).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	key := RouteKey{
		Start:       geo.Location{Latitude: 48.85, Longitude: 2.35},
		End:         geo.Location{Latitude: 48.86, Longitude: 2.36},
		Identity:    "custom_safe_abc",
		Alternative: 0,
	}
	c.Add(key, it)

	got, ok := c.Get(key)
	if !ok || got != it {
		t.Fatalf("expected cached itinerary, got %v %v", got, ok)
	}

	other := key
	other.Alternative = 1
	if _, ok := c.Get(other); ok {
		t.Errorf("expected miss for a different alternative")
	}

	other.Alternative = 0
	other.Identity = "custom_safe_def"
	if _, ok := c.Get(other); ok {
		t.Errorf("expected miss for a different profile identity")
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Purge, got %d", c.Len())
	}
}

func TestRouteCacheSizeBound(t *testing.T) {
	c := NewRouteCache(1, time.Minute)
	it, _ := itinerary.NewBuilder().Identity("fast", 0).Build()

	c.Add(RouteKey{Identity: "a"}, it)
	c.Add(RouteKey{Identity: "b"}, it)

	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
	if _, ok := c.Get(RouteKey{Identity: "a"}); ok {
		t.Errorf("expected least recently used entry to be evicted")
	}
}
