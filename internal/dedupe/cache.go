package dedupe

import (
	"sync"
	"time"
)

type mark struct {
	id string
	at time.Time
}

// Cache remembers recently governed record IDs so redelivered Kafka messages
// are not published twice. Entries expire after ttl; once capacity is
// exceeded the oldest marks are dropped first.
type Cache struct {
	mu       sync.Mutex
	seen     map[string]time.Time
	marks    []mark
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// Option tweaks a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		seen:     make(map[string]time.Time, capacity),
		marks:    make([]mark, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsSeen reports whether id was marked inside the ttl window. It does not mark it.
func (c *Cache) IsSeen(id string) bool {
	if id == "" {
		return false
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.seen[id]
	return ok && now.Sub(at) <= c.ttl
}

// MarkSeen records that id has been fully handled.
func (c *Cache) MarkSeen(id string) {
	if id == "" {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen[id] = now
	c.marks = append(c.marks, mark{id: id, at: now})
	c.evict(now)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) evict(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.marks) > 0 && (len(c.seen) > c.capacity || c.marks[0].at.Before(cutoff)) {
		oldest := c.marks[0]
		c.marks = c.marks[1:]

		// A newer mark for the same id keeps it alive.
		if at, ok := c.seen[oldest.id]; ok && at.Equal(oldest.at) {
			delete(c.seen, oldest.id)
		}
	}
}
