package rates

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/metrics"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
)

// RedisCache is a read-through rate cache backed by Redis, for deployments
// where multiple engine instances should share one rate cache. Entries
// expire via Redis TTL. Concurrent in-process misses for the same key are
// still coalesced locally before hitting Redis or the provider.
type RedisCache struct {
	provider Provider
	rdb      *redis.Client
	ttl      time.Duration
	group    singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache wraps a provider with a Redis-backed cache.
func NewRedisCache(provider Provider, rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{provider: provider, rdb: rdb, ttl: ttl}
}

func redisKey(key string) string { return "rate:" + key }

// GetRate resolves a rate, serving from Redis within the TTL.
func (c *RedisCache) GetRate(ctx context.Context, from, to string, date time.Time) (model.ExchangeRate, error) {
	if from == to {
		return model.ExchangeRate{Rate: decimal.NewFromInt(1), From: from, To: to, Date: date}, nil
	}

	key := cacheKey(from, to, date)

	data, err := c.rdb.Get(ctx, redisKey(key)).Bytes()
	if err == nil {
		var rate model.ExchangeRate
		if json.Unmarshal(data, &rate) == nil {
			c.hits.Add(1)
			metrics.RateCacheHits.Inc()
			return rate, nil
		}
	}

	c.misses.Add(1)
	metrics.RateCacheMisses.Inc()

	v, err, _ := c.group.Do(key, func() (any, error) {
		rate, err := c.provider.GetRate(ctx, from, to, date)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(rate); err == nil {
			c.rdb.Set(ctx, redisKey(key), data, c.ttl)
		}
		return rate, nil
	})
	if err != nil {
		return model.ExchangeRate{}, err
	}
	return v.(model.ExchangeRate), nil
}

// Stats returns the current hit/miss counters.
func (c *RedisCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
