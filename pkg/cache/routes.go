package cache

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/NERVsystems/velomcp/pkg/geo"
	"github.com/NERVsystems/velomcp/pkg/itinerary"
	"github.com/NERVsystems/velomcp/pkg/monitoring"
	"github.com/NERVsystems/velomcp/pkg/tracing"
)

// RouteKey identifies one engine answer. Identity is the profile identity
// sent to the engine, so a changed parameter set never hits a stale entry.
type RouteKey struct {
	Start       geo.Location
	End         geo.Location
	Identity    string
	Alternative int
}

func (k RouteKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%d", k.Start, k.End, k.Identity, k.Alternative)
}

// RouteCache is a size-bounded, expiring cache of fetched itineraries.
// Itineraries are immutable, so cached values are shared between callers.
type RouteCache struct {
	lru *expirable.LRU[RouteKey, *itinerary.Itinerary]
}

// NewRouteCache creates a cache holding at most size routes for ttl
func NewRouteCache(size int, ttl time.Duration) *RouteCache {
	return &RouteCache{
		lru: expirable.NewLRU[RouteKey, *itinerary.Itinerary](size, nil, ttl),
	}
}

// Get returns a cached itinerary
func (c *RouteCache) Get(key RouteKey) (*itinerary.Itinerary, bool) {
	it, ok := c.lru.Get(key)
	if ok {
		monitoring.RecordCacheHit(tracing.CacheTypeRoute)
	} else {
		monitoring.RecordCacheMiss(tracing.CacheTypeRoute)
	}
	return it, ok
}

// Add stores an itinerary
func (c *RouteCache) Add(key RouteKey, it *itinerary.Itinerary) {
	c.lru.Add(key, it)
	monitoring.UpdateCacheSize(tracing.CacheTypeRoute, c.lru.Len())
}

// Len returns the number of cached routes
func (c *RouteCache) Len() int {
	return c.lru.Len()
}

// Purge empties the cache
func (c *RouteCache) Purge() {
	c.lru.Purge()
	monitoring.UpdateCacheSize(tracing.CacheTypeRoute, 0)
}
