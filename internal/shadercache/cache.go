package shadercache

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the number of sources a Cache created with a
// non-positive capacity keeps.
const DefaultCapacity = 64

// CompileFunc turns WGSL source into SPIR-V words.
type CompileFunc func(src string) ([]uint32, error)

// Cache is a thread-safe LRU cache of compiled shaders.
//
// Compile holds the lock while compiling, so concurrent requests for the
// same source compile it once.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*node
	order    recency
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// Stats are the counters of a Cache.
type Stats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// New creates a cache holding up to capacity sources.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		entries:  make(map[string]*node),
		capacity: capacity,
	}
}

// Compile returns the words cached for src, compiling and caching them on
// a miss.
func (c *Cache) Compile(src string, compile CompileFunc) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.entries[src]; ok {
		c.order.moveToFront(n)
		c.hits.Add(1)
		return n.words, nil
	}
	c.misses.Add(1)

	words, err := compile(src)
	if err != nil {
		return nil, err
	}
	for c.order.len >= c.capacity {
		oldest := c.order.removeOldest()
		delete(c.entries, oldest.key)
		c.evictions.Add(1)
	}
	n := &node{key: src, words: words}
	c.order.pushFront(n)
	c.entries[src] = n
	return words, nil
}

// Len returns the number of cached sources.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every cached source. The counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*node)
	c.order = recency{}
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Len:       c.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
