package gateway

import (
	"sync"
	"time"

	"github.com/starford/lifepress/internal/models"
)

// cacheEntry is one cached store response. Exactly one of file and entries is
// set, except for tombstones left by invalidation.
type cacheEntry struct {
	File     *models.StoredFile `json:"file,omitempty"`
	Entries  []models.Entry     `json:"entries,omitempty"`
	StoredAt time.Time          `json:"stored_at"`

	seq  uint64
	tomb bool
}

// cache is the in-process layer. Every response is tagged with the sequence
// number issued when its request started; put refuses to replace an entry
// holding a newer sequence, so a slow response cannot clobber a fresher one.
type cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	seq     uint64
	entries map[string]cacheEntry
}

func newCache(ttl time.Duration) *cache {
	return &cache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

// issue returns the next sequence number.
func (c *cache) issue() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

func (c *cache) fresh(e cacheEntry, now time.Time) bool {
	return now.Sub(e.StoredAt) < c.ttl
}

func (c *cache) get(key string, now time.Time) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.tomb {
		return cacheEntry{}, false
	}
	if !c.fresh(e, now) {
		delete(c.entries, key)
		return cacheEntry{}, false
	}
	return e, true
}

// put stores e under key unless a newer response is already cached.
func (c *cache) put(key string, e cacheEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[key]; ok && cur.seq > e.seq {
		return false
	}
	c.entries[key] = e
	return true
}

// invalidate drops key and fences off responses to requests issued before now.
func (c *cache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.entries[key] = cacheEntry{seq: c.seq, tomb: true}
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if !e.tomb {
			n++
		}
	}
	return n
}
