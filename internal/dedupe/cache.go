// ABOUTME: Thread-safe TTL cache of recently persisted message keys.
// ABOUTME: Lets fire-and-forget persistence skip messages the backend already stored.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// sweepInterval is how often expired keys are purged in the background.
const sweepInterval = time.Minute

type entry struct {
	key     string
	expires time.Time
}

// Cache remembers keys for a fixed TTL, bounded by maxSize. When full, the
// least recently marked key is evicted. The zero value is not usable; call New.
type Cache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // *entry, least recently marked at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache and starts its background sweeper. Call Close to stop it.
func New(ttl time.Duration, maxSize int, opts ...Option) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Cache{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.sweepLoop()
	return c
}

// Check reports whether key was marked and has not expired.
func (c *Cache) Check(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(key)
}

// Mark records key, refreshing its expiry if already present.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// CheckAndMark atomically marks key and reports whether it was already live.
// A true result means the caller should skip its work.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLocked(key) {
		return true
	}
	c.markLocked(key)
	return false
}

// Forget removes key, so a failed save can be retried.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Len returns the number of tracked keys, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sweep drops every expired key.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		if ent, _ := e.Value.(*entry); ent != nil && !now.Before(ent.expires) {
			c.order.Remove(e)
			delete(c.items, ent.key)
		}
		e = next
	}
}

// Close stops the background sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}

func (c *Cache) liveLocked(key string) bool {
	e, ok := c.items[key]
	if !ok {
		return false
	}
	ent, _ := e.Value.(*entry)
	return c.now().Before(ent.expires)
}

func (c *Cache) markLocked(key string) {
	expires := c.now().Add(c.ttl)

	if e, ok := c.items[key]; ok {
		ent, _ := e.Value.(*entry)
		ent.expires = expires
		c.order.MoveToBack(e)
		return
	}

	for len(c.items) >= c.maxSize {
		front := c.order.Front()
		if front == nil {
			break
		}
		ent, _ := front.Value.(*entry)
		c.order.Remove(front)
		delete(c.items, ent.key)
	}

	c.items[key] = c.order.PushBack(&entry{key: key, expires: expires})
}

func (c *Cache) removeLocked(key string) {
	if e, ok := c.items[key]; ok {
		c.order.Remove(e)
		delete(c.items, key)
	}
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}
