package resolver

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ourtube/internal/domain/track"
)

// DefaultCacheTTL is used when the configured TTL is not positive.
const DefaultCacheTTL = 10 * time.Minute

type cacheEntry struct {
	track   track.Track
	expires time.Time
}

// Cache memoises successful lookups of another resolver for a TTL.
// Failures are not cached.
type Cache struct {
	next Resolver
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCache wraps next with a TTL cache.
func NewCache(next Resolver, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) Name() string {
	return c.next.Name()
}

func (c *Cache) Supports(locator string) bool {
	return c.next.Supports(locator)
}

// Resolve returns a cached copy when present and fresh, otherwise asks the wrapped resolver.
func (c *Cache) Resolve(ctx context.Context, locator string) (*track.Track, error) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[locator]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		zlog.Debug().Msgf("resolver: cache hit for %s", locator)
		t := entry.track
		return &t, nil
	}

	t, err := c.next.Resolve(ctx, locator)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[locator] = cacheEntry{track: *t, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	out := *t
	return &out, nil
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache) Purge() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
