package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultMaxEntries bounds the in-process tier.
	DefaultMaxEntries = 128
	// DefaultSweepInterval is how often the background sweep purges
	// expired entries that were never read again.
	DefaultSweepInterval = time.Minute
)

type memoryEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// Memory is the L1 tier: a bounded, TTL-aware in-process cache with
// least-recently-used eviction. All structural changes happen under one
// mutex; there is no I/O inside the critical section.
type Memory[V any] struct {
	mu    sync.Mutex
	max   int
	items map[string]*list.Element
	order *list.List // front = most recently used

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewMemory creates an L1 cache holding at most maxEntries values.
// Non-positive arguments fall back to the defaults. A background sweep
// removes expired entries; reads never return expired data regardless.
func NewMemory[V any](maxEntries int, sweepInterval time.Duration) *Memory[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	c := &Memory[V]{
		max:       maxEntries,
		items:     make(map[string]*list.Element),
		order:     list.New(),
		stopSweep: make(chan struct{}),
	}

	go c.sweep(sweepInterval)

	return c
}

// Get returns the live value for key and marks it recently used.
// Expired entries are purged on the spot and reported as misses.
func (c *Memory[V]) Get(key string) (V, bool) {
	var zero V
	if key == "" {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return zero, false
	}

	ent := el.Value.(*memoryEntry[V])
	if time.Now().After(ent.expiresAt) {
		c.removeLocked(el)
		return zero, false
	}

	c.order.MoveToFront(el)
	return ent.value, true
}

// Set stores value under key for ttl. A non-positive ttl removes the
// key. Inserting into a full cache evicts the least-recently-used
// entry.
func (c *Memory[V]) Set(key string, value V, ttl time.Duration) {
	if key == "" {
		return
	}
	if ttl <= 0 {
		c.Delete(key)
		return
	}

	expiresAt := time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*memoryEntry[V])
		ent.value = value
		ent.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&memoryEntry[V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el

	if c.order.Len() > c.max {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}
}

// Delete removes key if present.
func (c *Memory[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// Len returns the number of entries currently held, including ones that
// have expired but not yet been purged.
func (c *Memory[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close stops the background sweep. Call on shutdown or in tests.
func (c *Memory[V]) Close() {
	c.sweepOnce.Do(func() {
		close(c.stopSweep)
	})
}

func (c *Memory[V]) removeLocked(el *list.Element) {
	ent := el.Value.(*memoryEntry[V])
	delete(c.items, ent.key)
	c.order.Remove(el)
}

func (c *Memory[V]) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for el := c.order.Back(); el != nil; {
				prev := el.Prev()
				if now.After(el.Value.(*memoryEntry[V]).expiresAt) {
					c.removeLocked(el)
				}
				el = prev
			}
			c.mu.Unlock()
		case <-c.stopSweep:
			return
		}
	}
}
