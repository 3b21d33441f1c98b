// Package cache implements the peer's result cache: a bounded
// fingerprint-to-result LRU with a time-to-live, keyed by a canonical
// hash of (program, function_name, argument list) so structurally equal
// but textually different argument lists still hit, per the design note
// on canonical JSON serialization.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/Snider/Fabric/pkg/value"
)

// Entry is one cached task result.
type Entry struct {
	Result     value.Value
	InsertedAt time.Time
}

type node struct {
	fingerprint string
	entry       Entry
}

// Cache is a bounded LRU keyed by fingerprint, with entries expiring
// after ttl regardless of recency.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	index    map[string]*list.Element
	order    *list.List // front = most recently used

	hits   int64
	misses int64
}

func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		index:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Fingerprint derives the cache key for (program, functionName, args).
func Fingerprint(program, functionName string, args []value.Value) string {
	h := sha256.New()
	h.Write([]byte(program))
	h.Write([]byte{0})
	h.Write([]byte(functionName))
	h.Write([]byte{0})
	h.Write(value.CanonicalList(args))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for fingerprint if present and not
// expired, promoting it to most-recently-used.
func (c *Cache) Get(fingerprint string) (value.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[fingerprint]
	if !ok {
		c.misses++
		return value.Null(), false
	}
	n := elem.Value.(*node)
	if c.ttl > 0 && time.Since(n.entry.InsertedAt) >= c.ttl {
		c.order.Remove(elem)
		delete(c.index, fingerprint)
		c.misses++
		return value.Null(), false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return n.entry.Result, true
}

// Put inserts result under fingerprint, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *Cache) Put(fingerprint string, result value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[fingerprint]; ok {
		elem.Value.(*node).entry = Entry{Result: result, InsertedAt: time.Now()}
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&node{fingerprint: fingerprint, entry: Entry{Result: result, InsertedAt: time.Now()}})
	c.index[fingerprint] = elem

	if c.capacity > 0 && c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.index, oldest.Value.(*node).fingerprint)
		}
	}
}

// Stats returns cumulative hit/miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
