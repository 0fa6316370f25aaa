package ownership

import (
	"sync"
	"time"
)

type cacheEntry struct {
	owner string
	setAt time.Time
}

// Cache remembers resolved owners per IP so repeated lookups across API
// requests skip the tag scan. Callers that want isolation simply pass a
// fresh cache; nothing in this package holds one globally.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

// NewCache builds a cache whose entries expire after ttl. A zero or
// negative ttl keeps entries forever.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Get returns the cached owner for ip. Expired entries count as misses.
func (c *Cache) Get(ip string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[ip]
	if !ok {
		return "", false
	}
	if c.ttl > 0 && time.Since(entry.setAt) > c.ttl {
		return "", false
	}
	return entry.owner, true
}

// Set stores the owner for ip, stamping it with the current time.
func (c *Cache) Set(ip, owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ip] = cacheEntry{owner: owner, setAt: time.Now()}
}

// Len reports how many entries are stored, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
