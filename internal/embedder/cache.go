package embedder

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// cacheEntry holds one embedding and its last access time.
type cacheEntry struct {
	vector   []float32
	lastUsed time.Time
}

// Cache provides in-memory embedding storage keyed by model and text.
// Entries expire after a TTL, and the least recently used entry is
// evicted when the cache is full.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	maxEntries int
	ttl        time.Duration
	done       chan struct{}
	closeOnce  sync.Once
}

// NewCache creates an embedding cache.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	c := &Cache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		done:       make(chan struct{}),
	}

	// Start cleanup goroutine
	go c.cleanupLoop()

	return c
}

// DefaultCache creates a cache with sensible defaults.
// - 1024 entries
// - 15 minute TTL
func DefaultCache() *Cache {
	return NewCache(1024, 15*time.Minute)
}

// CacheKey derives the cache key for a model and text pair.
func CacheKey(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// Get returns the cached embedding for key, if present and fresh.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.lastUsed) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	entry.lastUsed = time.Now()
	return entry.vector, true
}

// Put stores an embedding under key, evicting the least recently used
// entry when the cache is full.
func (c *Cache) Put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = &cacheEntry{vector: vector, lastUsed: time.Now()}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine. The cache stays usable after Close;
// expired entries are then only dropped on access.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastUsed.Before(oldest) {
			oldestKey = key
			oldest = entry.lastUsed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// cleanupLoop periodically removes expired entries.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.lastUsed) > c.ttl {
			delete(c.entries, key)
		}
	}
}
