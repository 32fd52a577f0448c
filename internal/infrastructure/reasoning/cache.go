package reasoning

import (
	"container/list"
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
}

// Cache is a TTL cache bounded by size. When full it evicts the entry that
// was inserted first; reads do not refresh an entry's position.
type Cache[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

func NewCache[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Cache[V]{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	entry := el.Value.(*cacheEntry[V])
	if c.expired(entry) {
		c.remove(el)
		return zero, false
	}
	return entry.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
	for c.order.Len() >= c.capacity {
		c.remove(c.order.Front())
	}
	entry := &cacheEntry[V]{key: key, value: value, insertedAt: c.now()}
	c.items[key] = c.order.PushBack(entry)
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if c.expired(el.Value.(*cacheEntry[V])) {
			c.remove(el)
			removed++
		}
		el = next
	}
	return removed
}

func (c *Cache[V]) expired(e *cacheEntry[V]) bool {
	return c.ttl > 0 && c.now().Sub(e.insertedAt) >= c.ttl
}

func (c *Cache[V]) remove(el *list.Element) {
	entry := c.order.Remove(el).(*cacheEntry[V])
	delete(c.items, entry.key)
}
