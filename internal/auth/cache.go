package auth

import (
	"sync"
	"time"

	"geometa.org/internal/obs"
)

const (
	cacheSweepInterval = time.Minute
	cacheEntryMaxAge   = 5 * time.Minute
)

type cacheEntry struct {
	claims   Claims
	cachedAt time.Time
}

// TokenCache is a process-local map from raw token string to verified
// claims, so repeat requests from the same session skip signature
// verification. It is never the sole source of truth: the middleware
// checks the revocation store before consulting it on every request.
//
// A background sweep removes entries older than five minutes regardless
// of token expiry, bounding memory growth from a stream of distinct
// tokens. Construct with NewTokenCache and release with Close.
type TokenCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry

	now  func() time.Time
	stop chan struct{}
	done chan struct{}
}

// NewTokenCache creates the cache and starts its sweep goroutine.
func NewTokenCache() *TokenCache {
	c := &TokenCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.sweepLoop(cacheSweepInterval)
	return c
}

// newTokenCacheForTests skips the sweep goroutine and uses the supplied clock.
func newTokenCacheForTests(now func() time.Time) *TokenCache {
	done := make(chan struct{})
	close(done)
	return &TokenCache{
		entries: make(map[string]cacheEntry),
		now:     now,
		stop:    make(chan struct{}),
		done:    done,
	}
}

// Get returns cached claims for the token. A hit is valid only while
// the token itself is unexpired; stale hits are treated as misses.
func (c *TokenCache) Get(token string) (*Claims, bool) {
	c.mu.RLock()
	entry, ok := c.entries[token]
	c.mu.RUnlock()
	if !ok {
		obs.CountTokenCacheEvent("miss")
		return nil, false
	}
	if entry.claims.ExpiresAt == nil || !c.now().Before(entry.claims.ExpiresAt.Time) {
		obs.CountTokenCacheEvent("miss")
		return nil, false
	}
	obs.CountTokenCacheEvent("hit")
	claims := entry.claims
	return &claims, true
}

// Put stores verified claims with the current timestamp.
func (c *TokenCache) Put(token string, claims Claims) {
	c.mu.Lock()
	c.entries[token] = cacheEntry{claims: claims, cachedAt: c.now()}
	c.mu.Unlock()
}

// Len reports the number of live entries.
func (c *TokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweep goroutine. Idempotent is not required; callers
// invoke it once during shutdown.
func (c *TokenCache) Close() {
	close(c.stop)
	<-c.done
}

func (c *TokenCache) sweepLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *TokenCache) sweep() {
	cutoff := c.now().Add(-cacheEntryMaxAge)
	c.mu.Lock()
	for token, entry := range c.entries {
		if entry.cachedAt.Before(cutoff) {
			delete(c.entries, token)
			obs.CountTokenCacheEvent("evicted")
		}
	}
	c.mu.Unlock()
}
