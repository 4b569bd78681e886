// Package redis stores the short code to URL cache and the rate limit
// counters in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/ratelimit"
)

const urlKeyPrefix = "url:"

// tombstone marks a deactivated short code. It is never a valid URL.
const tombstone = ""

// fixedWindowScript checks and increments a counter in one step.
//
// KEYS[1]: counter key
// ARGV[1]: limit
// ARGV[2]: window in milliseconds
//
// Returns {allowed, count, ttl in milliseconds}.
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local current = redis.call('GET', key)
if not current then
	redis.call('SET', key, 1, 'PX', window)
	return {1, 1, window}
end

current = tonumber(current)
local ttl = redis.call('PTTL', key)
if ttl < 0 then
	redis.call('PEXPIRE', key, window)
	ttl = window
end

if current < limit then
	current = redis.call('INCR', key)
	return {1, current, ttl}
end

return {0, current, ttl}
`)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

func (c *Cache) Ping(ctx context.Context) error {
	const op = "adapter.cache.redis.Cache.Ping"

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%s: failed to ping redis: %w", op, err)
	}

	return nil
}

func (c *Cache) GetURL(ctx context.Context, shortCode string) (string, error) {
	const op = "adapter.cache.redis.Cache.GetURL"

	url, err := c.client.Get(ctx, urlKeyPrefix+shortCode).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%s: %w", op, entity.ErrCacheMiss)
		}

		return "", fmt.Errorf("%s: failed to get key: %w", op, err)
	}

	if url == tombstone {
		return "", fmt.Errorf("%s: %w", op, entity.ErrCacheMiss)
	}

	return url, nil
}

// PutURL stores the mapping, replacing any previous value or tombstone.
func (c *Cache) PutURL(ctx context.Context, shortCode, originalURL string) error {
	const op = "adapter.cache.redis.Cache.PutURL"

	if err := c.client.Set(ctx, urlKeyPrefix+shortCode, originalURL, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to set key: %w", op, err)
	}

	return nil
}

// FillURL stores the mapping only if the key holds neither a value nor a tombstone.
func (c *Cache) FillURL(ctx context.Context, shortCode, originalURL string) error {
	const op = "adapter.cache.redis.Cache.FillURL"

	if err := c.client.SetNX(ctx, urlKeyPrefix+shortCode, originalURL, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to set key: %w", op, err)
	}

	return nil
}

// EvictURL replaces the mapping with a tombstone that lives as long as a cached value would.
func (c *Cache) EvictURL(ctx context.Context, shortCode string) error {
	const op = "adapter.cache.redis.Cache.EvictURL"

	if err := c.client.Set(ctx, urlKeyPrefix+shortCode, tombstone, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to set tombstone: %w", op, err)
	}

	return nil
}

func (c *Cache) Hit(ctx context.Context, key string, limit int64, window time.Duration) (ratelimit.Window, error) {
	const op = "adapter.cache.redis.Cache.Hit"

	res, err := fixedWindowScript.Run(ctx, c.client, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return ratelimit.Window{}, fmt.Errorf("%s: failed to run script: %w", op, err)
	}

	if len(res) != 3 {
		return ratelimit.Window{}, fmt.Errorf("%s: unexpected script result length %d", op, len(res))
	}

	return ratelimit.Window{
		Allowed: res[0] == 1,
		Count:   res[1],
		ResetIn: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
