package tenant

import (
	"context"
	"sync"
	"time"
)

// ExistenceCache memoizes "does this center exist and is it active" flags.
// Shared by all concurrent requests; implementations must be safe for
// concurrent use. A brief race where two requests both miss and both perform
// the authoritative lookup is acceptable: the lookup is idempotent.
type ExistenceCache interface {
	// Get returns the cached flag for the key. The second result reports
	// whether a live (non-expired) entry was found.
	Get(ctx context.Context, key string) (exists bool, ok bool)

	// Set stores the flag with the given TTL.
	Set(ctx context.Context, key string, exists bool, ttl time.Duration)

	// Delete removes the entry. Center lifecycle events call this
	// synchronously so staleness never outlives the triggering operation.
	Delete(ctx context.Context, key string)

	// Close releases any resources held by the cache.
	Close() error
}

type memoryEntry struct {
	exists    bool
	expiresAt time.Time
}

// memoryCache is the default in-process cache implementation.
type memoryCache struct {
	mu     sync.RWMutex
	items  map[string]memoryEntry
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

// NewMemoryCache creates an in-process existence cache with a background
// janitor that evicts expired entries once a minute.
func NewMemoryCache() ExistenceCache {
	c := &memoryCache{
		items: make(map[string]memoryEntry),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go c.janitor()
	return c
}

func (c *memoryCache) Get(_ context.Context, key string) (bool, bool) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return false, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// refreshed the entry in between.
		if cur, ok := c.items[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return false, false
	}
	return entry.exists, true
}

func (c *memoryCache) Set(_ context.Context, key string, exists bool, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryEntry{exists: exists, expiresAt: time.Now().Add(ttl)}
}

func (c *memoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *memoryCache) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *memoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, entry := range c.items {
		if now.After(entry.expiresAt) {
			delete(c.items, key)
		}
	}
}

func (c *memoryCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	<-c.done
	return nil
}

// noopCache never caches. Every existence check hits the catalog; useful in
// tests and for deployments that cannot tolerate any staleness window.
type noopCache struct{}

// NewNoopCache creates a cache that doesn't cache.
func NewNoopCache() ExistenceCache {
	return noopCache{}
}

func (noopCache) Get(context.Context, string) (bool, bool)         { return false, false }
func (noopCache) Set(context.Context, string, bool, time.Duration) {}
func (noopCache) Delete(context.Context, string)                   {}
func (noopCache) Close() error                                     { return nil }
