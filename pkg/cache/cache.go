// Package cache provides the explicit, injectable caches used by the
// planner: a generic TTL cache for profile renders and an expiring LRU for
// fetched routes.
package cache

import (
	"math"
	"sort"
	"sync"
	"time"
)

type item[V any] struct {
	value      V
	expiration int64 // unix nanos, 0 = never
	seq        uint64
}

func (it item[V]) expired(now int64) bool {
	return it.expiration != 0 && now > it.expiration
}

// TTLCache is a thread-safe cache with time-based expiration. A TTL of zero
// or less keeps entries until they are evicted for capacity.
type TTLCache[K comparable, V any] struct {
	items           map[K]item[V]
	mu              sync.RWMutex
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	maxItems        int
	seq             uint64
	stopCleanup     chan struct{}
	cleanupStopped  sync.Once
}

// NewTTLCache creates a cache. maxItems <= 0 means unbounded; a positive
// cleanupInterval starts a background sweep of expired entries until Stop.
func NewTTLCache[K comparable, V any](defaultTTL, cleanupInterval time.Duration, maxItems int) *TTLCache[K, V] {
	c := &TTLCache[K, V]{
		items:           make(map[K]item[V]),
		defaultTTL:      defaultTTL,
		cleanupInterval: cleanupInterval,
		maxItems:        maxItems,
		stopCleanup:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go c.cleanupLoop()
	}

	return c
}

// Set adds an item with the default TTL
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL adds an item with a specific TTL
func (c *TTLCache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	var expiration int64
	if ttl > 0 {
		expiration = time.Now().Add(ttl).UnixNano()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.items[key] = item[V]{value: value, expiration: expiration, seq: c.seq}

	if c.maxItems > 0 && len(c.items) > c.maxItems {
		c.evictOldest()
	}
}

// Get retrieves an unexpired item
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	it, found := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !found {
		return zero, false
	}

	if it.expired(time.Now().UnixNano()) {
		c.mu.Lock()
		if latest, ok := c.items[key]; ok && latest.expired(time.Now().UnixNano()) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}

	return it.value, true
}

// Delete removes an item
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Count returns the number of stored items, expired or not
func (c *TTLCache[K, V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all items
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	c.items = make(map[K]item[V])
	c.mu.Unlock()
}

// evictOldest drops the entries closest to expiry, oldest insert first
// among equals. The lock must be held.
func (c *TTLCache[K, V]) evictOldest() {
	excess := len(c.items) - c.maxItems
	if excess <= 0 {
		return
	}

	type candidate struct {
		key        K
		expiration int64
		seq        uint64
	}

	candidates := make([]candidate, 0, len(c.items))
	for k, v := range c.items {
		exp := v.expiration
		if exp == 0 {
			exp = math.MaxInt64
		}
		candidates = append(candidates, candidate{k, exp, v.seq})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].expiration != candidates[j].expiration {
			return candidates[i].expiration < candidates[j].expiration
		}
		return candidates[i].seq < candidates[j].seq
	})

	for i := 0; i < excess; i++ {
		delete(c.items, candidates[i].key)
	}
}

func (c *TTLCache[K, V]) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *TTLCache[K, V]) deleteExpired() {
	now := time.Now().UnixNano()

	c.mu.Lock()
	for k, v := range c.items {
		if v.expired(now) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
}

// Stop ends the background cleanup. It is safe to call more than once.
func (c *TTLCache[K, V]) Stop() {
	c.cleanupStopped.Do(func() {
		close(c.stopCleanup)
	})
}
