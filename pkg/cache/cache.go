// Package cache is a small in-process TTL cache with single-flight loads.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Options struct {
	TTL        time.Duration
	MaxEntries int
}

// MetricsHooks are called with the cache name on each lookup outcome.
type MetricsHooks struct {
	OnHit   func(name string)
	OnMiss  func(name string)
	OnStore func(name string)
	OnEvict func(name string)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps string keys to values of type V.
type Cache[V any] struct {
	name    string
	mu      sync.RWMutex
	items   map[string]*entry[V]
	order   []string
	opts    Options
	metrics MetricsHooks
	sf      singleflight.Group
	now     func() time.Time
}

// SnapshotEntry represents a point-in-time cache entry for debugging.
type SnapshotEntry[V any] struct {
	Key       string
	Value     V
	ExpiresAt time.Time
}

func New[V any](name string, opts Options, hooks MetricsHooks) *Cache[V] {
	return &Cache[V]{
		name:    name,
		items:   make(map[string]*entry[V]),
		order:   make([]string, 0, 16),
		opts:    opts,
		metrics: hooks,
		now:     time.Now,
	}
}

// Loader fetches a value on a miss. ok=false means "not found", which is
// not cached.
type Loader[V any] func(ctx context.Context, key string) (V, bool, error)

type loadResult[V any] struct {
	val V
	ok  bool
}

// Get returns the cached value or runs loader, with concurrent misses for the
// same key sharing one loader call.
func (c *Cache[V]) Get(ctx context.Context, key string, loader Loader[V]) (V, bool, error) {
	if v, ok := c.Peek(key); ok {
		c.hook(c.metrics.OnHit)
		return v, true, nil
	}
	c.hook(c.metrics.OnMiss)

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		val, ok, err := loader(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			c.Set(key, val, c.opts.TTL)
		}
		return loadResult[V]{val: val, ok: ok}, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	res := result.(loadResult[V])
	return res.val, res.ok, nil
}

// Set stores val for ttl, or the default TTL when ttl is zero.
func (c *Cache[V]) Set(key string, val V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.opts.TTL
	}
	c.mu.Lock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = &entry[V]{value: val, expiresAt: c.now().Add(ttl)}
	evicted := c.evictIfNeeded()
	c.mu.Unlock()

	c.hook(c.metrics.OnStore)
	for i := 0; i < evicted; i++ {
		c.hook(c.metrics.OnEvict)
	}
}

// Peek returns an unexpired value without loading.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.removeFromOrder(key)
	c.mu.Unlock()
}

// Len counts stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Snapshot returns a copy of current cache entries for debugging/inspection.
func (c *Cache[V]) Snapshot() []SnapshotEntry[V] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SnapshotEntry[V], 0, len(c.items))
	for _, k := range c.order {
		e := c.items[k]
		out = append(out, SnapshotEntry[V]{Key: k, Value: e.value, ExpiresAt: e.expiresAt})
	}
	return out
}

func (c *Cache[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// evictIfNeeded drops the oldest insertions beyond MaxEntries.
func (c *Cache[V]) evictIfNeeded() int {
	if c.opts.MaxEntries <= 0 || len(c.items) <= c.opts.MaxEntries {
		return 0
	}
	excess := len(c.items) - c.opts.MaxEntries
	evicted := 0
	for excess > 0 && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
		excess--
		evicted++
	}
	return evicted
}

func (c *Cache[V]) hook(fn func(string)) {
	if fn != nil {
		fn(c.name)
	}
}
