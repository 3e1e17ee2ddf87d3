// ABOUTME: TTL cache of recently sent message ids.
// ABOUTME: Used to suppress the inbound echo of a locally appended optimistic message.

package dedupe

import (
	"sync"
	"time"
)

// Cache remembers message ids for a bounded time so the live event loop
// can tell its own echoes apart from genuinely new messages. Entries
// expire after the TTL; when the cache is full the oldest entry is
// evicted. Expired entries are pruned opportunistically on Mark, so no
// background goroutine is needed.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	order   []string
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a cache holding at most maxSize ids for ttl each.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Mark records a message id as sent by this session.
func (c *Cache) Mark(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.pruneLocked(now)

	if _, ok := c.seen[id]; ok {
		c.seen[id] = now
		return
	}
	for len(c.seen) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.seen, oldest)
	}
	c.seen[id] = now
	c.order = append(c.order, id)
}

// Seen reports whether the id was marked within the TTL.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.seen[id]
	return ok && c.now().Sub(at) < c.ttl
}

// pruneLocked drops expired entries from the front of the order slice.
// Must be called with mu held.
func (c *Cache) pruneLocked(now time.Time) {
	for len(c.order) > 0 {
		id := c.order[0]
		at, ok := c.seen[id]
		if ok && now.Sub(at) < c.ttl {
			return
		}
		c.order = c.order[1:]
		delete(c.seen, id)
	}
}
