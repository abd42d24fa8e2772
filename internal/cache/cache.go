// Package cache provides a Redis-backed cache of finished analysis results,
// keyed by company and period. It is optional infrastructure: the engine
// never depends on a cache hit.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"finhealth/internal/router"
)

const keyPrefix = "finhealth:analysis"

// ResultCache caches workflow results in Redis.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a result cache with the given TTL.
func New(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

func cacheKey(company, period string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, company, period)
}

// Get returns the cached result for company+period, if any. A miss is not
// an error.
func (c *ResultCache) Get(ctx context.Context, company, period string) (*router.Result, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(company, period)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var res router.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		// Corrupt entries are treated as misses; the fresh run overwrites.
		log.Warn().Err(err).Str("company", company).Msg("discarding undecodable cache entry")
		return nil, false, nil
	}
	return &res, true, nil
}

// Put stores a finished result under company+period.
func (c *ResultCache) Put(ctx context.Context, company, period string, res *router.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(company, period), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Invalidate drops the cached result for company+period.
func (c *ResultCache) Invalidate(ctx context.Context, company, period string) error {
	if err := c.client.Del(ctx, cacheKey(company, period)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
