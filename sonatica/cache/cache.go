// Package cache provides a TTL and capacity bounded result cache.
package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultTTL     = 30 * time.Minute
	DefaultMaxSize = 100
)

// Stats describes the cache configuration and fill level.
type Stats struct {
	TTL     time.Duration
	MaxSize int
	Size    int
}

type entry[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// Cache maps keys to values for at most TTL. When full, the oldest inserted
// entry is evicted first.
type Cache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	order   *list.List
	entries map[string]*list.Element
}

// New creates a cache. Non-positive arguments fall back to the defaults.
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache[V]{
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// WithClock replaces the time source.
func (c *Cache[V]) WithClock(now func() time.Time) *Cache[V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// Get returns the value for key. Expired entries are removed and reported
// as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.expired(e, c.now()) {
		c.remove(el)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key. Replacing a key moves it to the back of the
// eviction order.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	} else if c.order.Len() >= c.maxSize {
		if oldest := c.order.Front(); oldest != nil {
			c.remove(oldest)
		}
	}

	el := c.order.PushBack(&entry[V]{key: key, value: value, storedAt: c.now()})
	c.entries[key] = el
}

// Cleanup evicts every expired entry and returns how many were removed.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if c.expired(el.Value.(*entry[V]), now) {
			c.remove(el)
			removed++
		}
		el = next
	}
	return removed
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{TTL: c.ttl, MaxSize: c.maxSize, Size: c.order.Len()}
}

func (c *Cache[V]) expired(e *entry[V], now time.Time) bool {
	return now.Sub(e.storedAt) > c.ttl
}

func (c *Cache[V]) remove(el *list.Element) {
	e := c.order.Remove(el).(*entry[V])
	delete(c.entries, e.key)
}
