package bus

import (
	"container/list"
	"sync"
	"time"
)

// DedupeCache is a size-bounded, TTL-expiring LRU set used to suppress
// re-processing of inbound messages already seen once (webhook retries,
// double-taps). Keys are caller-composed fingerprints, typically
// "channel|sender|chat|messageId".
type DedupeCache struct {
	ttl     time.Duration
	maxSize int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently seen
}

type dedupeEntry struct {
	key  string
	seen time.Time
}

// NewDedupeCache creates a cache that considers a key duplicate for ttl after
// it was last seen (every sighting restarts the window), and evicts the
// least-recently-seen key once maxSize entries are held.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	return &DedupeCache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// IsDuplicate reports whether key has been seen within ttl, and records it
// (or refreshes its position) either way.
func (c *DedupeCache) IsDuplicate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*dedupeEntry)
		duplicate := now.Sub(entry.seen) < c.ttl
		entry.seen = now
		c.order.MoveToFront(el)
		return duplicate
	}

	el := c.order.PushFront(&dedupeEntry{key: key, seen: now})
	c.entries[key] = el

	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*dedupeEntry).key)
	}

	return false
}
