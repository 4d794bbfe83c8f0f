package rates

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/metrics"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
)

// Cache is an in-memory TTL cache in front of a rate provider.
//
// Reads are lock-free-ish on hit (RLock only). A miss goes through a
// per-key single flight so concurrent requests for the same (from, to,
// date) trigger exactly one provider call. Same-currency lookups
// short-circuit to rate 1 without touching cache or provider.
type Cache struct {
	provider Provider
	ttl      time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	rate      model.ExchangeRate
	expiresAt time.Time
}

// NewCache wraps a provider with a TTL cache.
func NewCache(provider Provider, ttl time.Duration) *Cache {
	return &Cache{
		provider: provider,
		ttl:      ttl,
		entries:  make(map[string]cacheEntry),
	}
}

// GetRate resolves a rate, serving from cache within the TTL.
func (c *Cache) GetRate(ctx context.Context, from, to string, date time.Time) (model.ExchangeRate, error) {
	if from == to {
		return model.ExchangeRate{Rate: decimal.NewFromInt(1), From: from, To: to, Date: date}, nil
	}

	key := cacheKey(from, to, date)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		c.hits.Add(1)
		metrics.RateCacheHits.Inc()
		return entry.rate, nil
	}

	c.misses.Add(1)
	metrics.RateCacheMisses.Inc()

	// Coalesce concurrent misses for the same key into one provider call.
	v, err, _ := c.group.Do(key, func() (any, error) {
		// Another goroutine may have populated the entry while we waited
		// for the flight lock.
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && time.Now().Before(entry.expiresAt) {
			return entry.rate, nil
		}

		rate, err := c.provider.GetRate(ctx, from, to, date)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = cacheEntry{rate: rate, expiresAt: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		return rate, nil
	})
	if err != nil {
		return model.ExchangeRate{}, err
	}
	return v.(model.ExchangeRate), nil
}

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	Hits   int64
	Misses int64
}

// HitRatio returns hits / (hits + misses), or 0 for an untouched cache.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns the current hit/miss counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Purge drops all cached entries. Useful in tests and when rates must be
// refreshed out of band.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
