// Package cache provides a process-wide TTL cache with a bounded size and
// least-recently-used eviction.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now     func() time.Time
	onEvict func(key any)
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithEvictHook is called (outside the cache lock) whenever an entry is
// dropped for capacity or expiry.
func WithEvictHook(fn func(key any)) Option {
	return func(o *options) { o.onEvict = fn }
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Cache is safe for concurrent use. A zero ttl disables expiry and a zero
// maxEntries disables the size bound.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	order      *list.List // front = most recently used
	items      map[K]*list.Element
	opts       options
	stats      Stats
}

// New creates a cache.
func New[K comparable, V any](ttl time.Duration, maxEntries int, opts ...Option) *Cache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[K, V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		order:      list.New(),
		items:      make(map[K]*list.Element),
		opts:       o,
	}
}

// Get returns a live entry and marks it recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	var evicted []K

	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		c.mu.Unlock()
		return zero, false
	}
	ent := el.Value.(*entry[K, V])
	if c.expired(ent) {
		c.removeElement(el)
		c.stats.Misses++
		c.stats.Evictions++
		evicted = append(evicted, key)
		c.mu.Unlock()
		c.notify(evicted)
		return zero, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	c.mu.Unlock()
	return ent.value, true
}

// Set stores value under key, refreshing its TTL, and evicts the least
// recently used entries when the cache is over capacity.
func (c *Cache[K, V]) Set(key K, value V) {
	var evicted []K

	c.mu.Lock()
	expiresAt := time.Time{}
	if c.ttl > 0 {
		expiresAt = c.opts.now().Add(c.ttl)
	}
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[K, V])
		ent.value = value
		ent.expiresAt = expiresAt
		c.order.MoveToFront(el)
	} else {
		c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
	}
	for c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		ent := oldest.Value.(*entry[K, V])
		c.removeElement(oldest)
		c.stats.Evictions++
		evicted = append(evicted, ent.key)
	}
	c.mu.Unlock()
	c.notify(evicted)
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Prune drops every expired entry and returns how many were removed.
func (c *Cache[K, V]) Prune() int {
	var evicted []K

	c.mu.Lock()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		ent := el.Value.(*entry[K, V])
		if c.expired(ent) {
			c.removeElement(el)
			c.stats.Evictions++
			evicted = append(evicted, ent.key)
		}
		el = prev
	}
	c.mu.Unlock()
	c.notify(evicted)
	return len(evicted)
}

// Len returns the number of stored entries, including expired ones not yet pruned.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.order.Len()
	return s
}

func (c *Cache[K, V]) expired(ent *entry[K, V]) bool {
	return !ent.expiresAt.IsZero() && !c.opts.now().Before(ent.expiresAt)
}

func (c *Cache[K, V]) removeElement(el *list.Element) {
	ent := el.Value.(*entry[K, V])
	delete(c.items, ent.key)
	c.order.Remove(el)
}

func (c *Cache[K, V]) notify(keys []K) {
	if c.opts.onEvict == nil {
		return
	}
	for _, k := range keys {
		c.opts.onEvict(k)
	}
}
