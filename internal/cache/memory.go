package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// MemoryCache is a process-local TTL cache. Values are stored JSON-encoded so
// callers never share mutable state with the cache.
type MemoryCache struct {
	data       map[string]*cacheEntry
	defaultTTL time.Duration
	mu         sync.RWMutex
	cleanup    *time.Ticker
	done       chan struct{}
	stopOnce   sync.Once
	now        func() time.Time

	statsMu sync.Mutex
	hits    int64
	misses  int64
}

type cacheEntry struct {
	value      []byte
	expiration time.Time
}

// Stats reports cache effectiveness.
type Stats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewMemoryCache creates a cache whose entries default to ttl and starts the
// expiry sweeper.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	c := &MemoryCache{
		data:       make(map[string]*cacheEntry),
		defaultTTL: ttl,
		cleanup:    time.NewTicker(time.Minute),
		done:       make(chan struct{}),
		now:        time.Now,
	}

	go c.cleanupLoop()

	return c
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiration) {
		c.record(false)
		return false, nil
	}

	if err := json.Unmarshal(entry.value, dest); err != nil {
		return false, err
	}
	c.record(true)
	return true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = &cacheEntry{
		value:      raw,
		expiration: c.now().Add(ttl),
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		delete(c.data, key)
	}
	return nil
}

// DeleteByPrefix removes all entries with keys starting with prefix.
func (c *MemoryCache) DeleteByPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	return nil
}

// Size returns the number of entries, expired ones included until swept.
func (c *MemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.data)
}

func (c *MemoryCache) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		Size:    c.Size(),
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate,
	}
}

// Stop stops the sweeper. It is safe to call more than once.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() {
		c.cleanup.Stop()
		close(c.done)
	})
}

func (c *MemoryCache) record(hit bool) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func (c *MemoryCache) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.data {
		if now.After(entry.expiration) {
			delete(c.data, key)
		}
	}
}
