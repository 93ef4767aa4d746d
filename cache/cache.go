// Package cache implements the bounded, typed, time-limited caches used
// across the QA core. Eviction is TTL first, LRU capacity second.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of one cache's counters.
type Stats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Sets      uint64  `json:"sets"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
}

type entry[V any] struct {
	key        string
	value      V
	createdAt  time.Time
	lastAccess time.Time
	accesses   uint64
	expires    time.Time
	element    *list.Element
}

// Cache is a mutex-guarded LRU with per-entry TTL. Access metadata updates
// are atomic with respect to concurrent gets because both happen under the
// same lock.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*entry[V]
	order    *list.List
	now      func() time.Time

	hits, misses, sets, evictions uint64
}

// New creates a cache with the given capacity and default TTL.
func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = 512
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache[V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*entry[V], capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the live value for key, refreshing its recency. Expired
// entries are removed on access and reported as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		if ent.expires.IsZero() || c.now().Before(ent.expires) {
			ent.lastAccess = c.now()
			ent.accesses++
			c.order.MoveToFront(ent.element)
			c.hits++
			return ent.value, true
		}
		c.removeEntry(ent)
	}
	c.misses++
	var zero V
	return zero, false
}

// Set stores value under key. A non-positive ttl uses the cache default.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sets++
	now := c.now()
	if ent, ok := c.items[key]; ok {
		ent.value = value
		ent.expires = c.computeExpiry(now, ttl)
		ent.lastAccess = now
		c.order.MoveToFront(ent.element)
		return
	}
	if len(c.items) >= c.capacity {
		c.evictOldest()
	}
	elem := c.order.PushFront(key)
	c.items[key] = &entry[V]{
		key:        key,
		value:      value,
		createdAt:  now,
		lastAccess: now,
		expires:    c.computeExpiry(now, ttl),
		element:    elem,
	}
}

// Invalidate drops one key. Returns whether it was present.
func (c *Cache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.items[key]
	if ok {
		c.removeEntry(ent)
	}
	return ok
}

// Clear drops everything, keeping the counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*entry[V], c.capacity)
	c.order.Init()
}

// Len reports the current entry count.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats snapshots the counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Sets:      c.sets,
		Evictions: c.evictions,
		HitRate:   rate,
		Size:      len(c.items),
		Capacity:  c.capacity,
	}
}

func (c *Cache[V]) computeExpiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func (c *Cache[V]) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	key := elem.Value.(string)
	if ent, ok := c.items[key]; ok {
		c.removeEntry(ent)
		c.evictions++
	}
}

func (c *Cache[V]) removeEntry(ent *entry[V]) {
	if ent.element != nil {
		c.order.Remove(ent.element)
	}
	delete(c.items, ent.key)
}
