package host

import (
	"container/list"
	"sync"
)

// DefaultCacheCapacity is the weight budget of the compilation cache.
const DefaultCacheCapacity int64 = 32 << 20

// CacheObserver receives cache events. Implementations must be safe for
// concurrent use and must not call back into the cache.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
	CacheEvicted(weight int64)
	CacheWeight(total int64)
}

type nopCacheObserver struct{}

func (nopCacheObserver) CacheHit()          {}
func (nopCacheObserver) CacheMiss()         {}
func (nopCacheObserver) CacheEvicted(int64) {}
func (nopCacheObserver) CacheWeight(int64)  {}

// Cache is a weighted LRU keyed by string. An entry weighs the length of its
// key plus the value weight given at insert. Inserting evicts least recently
// used entries until the total weight fits the capacity, but never the entry
// just inserted, so a single oversized entry is kept alone.
type Cache[V any] struct {
	observer CacheObserver
	release  func(value any)
	items    map[string]*list.Element
	order    *list.List // front is most recently used
	capacity int64
	weight   int64
	mu       sync.Mutex
}

type cacheEntry[V any] struct {
	value  V
	key    string
	weight int64
}

// CacheOption configures a Cache.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	observer CacheObserver
	release  func(value any)
}

// WithCacheObserver reports hits, misses, evictions and weight to o.
func WithCacheObserver(o CacheObserver) CacheOption {
	return func(c *cacheConfig) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithRelease calls fn with every value the cache drops, whether evicted or
// replaced under its key. fn runs after the cache lock is released.
func WithRelease(fn func(value any)) CacheOption {
	return func(c *cacheConfig) {
		c.release = fn
	}
}

// NewCache creates a cache holding at most capacity weight.
func NewCache[V any](capacity int64, opts ...CacheOption) *Cache[V] {
	cfg := cacheConfig{observer: nopCacheObserver{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache[V]{
		observer: cfg.observer,
		release:  cfg.release,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
	}
}

// Get returns the value stored under key and marks it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.observer.CacheMiss()
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	c.observer.CacheHit()
	return el.Value.(*cacheEntry[V]).value, true
}

// Peek returns the value stored under key without touching recency or stats.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return el.Value.(*cacheEntry[V]).value, true
}

// Insert stores value under key, replacing any previous value, and evicts
// least recently used entries until the cache fits its capacity.
func (c *Cache[V]) Insert(key string, value V, valueWeight int64) {
	dropped := c.insert(key, value, valueWeight)
	if c.release == nil {
		return
	}
	for _, v := range dropped {
		c.release(v)
	}
}

func (c *Cache[V]) insert(key string, value V, valueWeight int64) []V {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dropped []V
	entry := &cacheEntry[V]{key: key, value: value, weight: int64(len(key)) + valueWeight}
	if el, ok := c.items[key]; ok {
		old := el.Value.(*cacheEntry[V])
		c.weight -= old.weight
		dropped = append(dropped, old.value)
		el.Value = entry
		c.order.MoveToFront(el)
	} else {
		c.items[key] = c.order.PushFront(entry)
	}
	c.weight += entry.weight

	for c.weight > c.capacity {
		oldest := c.order.Back()
		if oldest == nil || oldest == c.items[key] {
			break
		}
		evicted := c.order.Remove(oldest).(*cacheEntry[V])
		delete(c.items, evicted.key)
		c.weight -= evicted.weight
		dropped = append(dropped, evicted.value)
		c.observer.CacheEvicted(evicted.weight)
	}
	c.observer.CacheWeight(c.weight)
	return dropped
}

// Len returns the number of entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Weight returns the total weight of all entries.
func (c *Cache[V]) Weight() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

// Capacity returns the weight budget.
func (c *Cache[V]) Capacity() int64 {
	return c.capacity
}
