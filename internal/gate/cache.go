package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// DefaultCacheEntries bounds the cache when the caller does not.
const DefaultCacheEntries = 1024

// Cache memoizes assessments per (scorer, source) key for the life of
// the process. Entries are immutable once stored. When full, the
// oldest insertion is evicted. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Assessment
	order   []string
	max     int
}

func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &Cache{entries: make(map[string]Assessment), max: maxEntries}
}

// Key derives the stable cache key: scorer identity plus configuration
// fingerprint plus newline-normalized source, hashed. CRLF and CR
// sources key the same as their LF form so resubmissions across
// platforms hit.
func Key(scorerName, fingerprint, source string) string {
	normalized := strings.ReplaceAll(source, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	h := sha256.New()
	h.Write([]byte(scorerName))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) Get(key string) (Assessment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.entries[key]
	return a, ok
}

func (c *Cache) Put(key string, a Assessment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = a
	c.order = append(c.order, key)
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
