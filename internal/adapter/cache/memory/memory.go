// Package memory is an in-process expiring key/value store. It serves as the
// URL cache and the rate limit counter when no Redis server is configured.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/ratelimit"
)

const urlKeyPrefix = "url:"

type item struct {
	value     string
	count     int64
	expiresAt time.Time
}

func (i item) expired(now time.Time) bool {
	return !now.Before(i.expiresAt)
}

type Cache struct {
	mu    sync.Mutex
	items map[string]item
	ttl   time.Duration
	now   func() time.Time
}

func New(ttl time.Duration) *Cache {
	return &Cache{
		items: make(map[string]item),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *Cache) Ping(ctx context.Context) error {
	return ctx.Err()
}

// get returns the live item at key, dropping it if it has expired. c.mu must be held.
func (c *Cache) get(key string, now time.Time) (item, bool) {
	it, ok := c.items[key]
	if !ok {
		return item{}, false
	}
	if it.expired(now) {
		delete(c.items, key)
		return item{}, false
	}
	return it, true
}

func (c *Cache) GetURL(ctx context.Context, shortCode string) (string, error) {
	const op = "adapter.cache.memory.Cache.GetURL"

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.get(urlKeyPrefix+shortCode, c.now())
	if !ok || it.value == "" {
		return "", fmt.Errorf("%s: %w", op, entity.ErrCacheMiss)
	}

	return it.value, nil
}

func (c *Cache) PutURL(ctx context.Context, shortCode, originalURL string) error {
	const op = "adapter.cache.memory.Cache.PutURL"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.items[urlKeyPrefix+shortCode] = item{value: originalURL, expiresAt: now.Add(c.ttl)}

	return nil
}

func (c *Cache) FillURL(ctx context.Context, shortCode, originalURL string) error {
	const op = "adapter.cache.memory.Cache.FillURL"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	key := urlKeyPrefix + shortCode
	if _, ok := c.get(key, now); ok {
		return nil
	}
	c.items[key] = item{value: originalURL, expiresAt: now.Add(c.ttl)}

	return nil
}

func (c *Cache) EvictURL(ctx context.Context, shortCode string) error {
	const op = "adapter.cache.memory.Cache.EvictURL"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[urlKeyPrefix+shortCode] = item{expiresAt: c.now().Add(c.ttl)}

	return nil
}

func (c *Cache) Hit(ctx context.Context, key string, limit int64, window time.Duration) (ratelimit.Window, error) {
	const op = "adapter.cache.memory.Cache.Hit"

	if err := ctx.Err(); err != nil {
		return ratelimit.Window{}, fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	it, ok := c.get(key, now)
	switch {
	case !ok:
		c.items[key] = item{count: 1, expiresAt: now.Add(window)}
		return ratelimit.Window{Allowed: true, Count: 1, ResetIn: window}, nil
	case it.count < limit:
		it.count++
		c.items[key] = it
		return ratelimit.Window{Allowed: true, Count: it.count, ResetIn: it.expiresAt.Sub(now)}, nil
	default:
		return ratelimit.Window{Allowed: false, Count: it.count, ResetIn: it.expiresAt.Sub(now)}, nil
	}
}

// Sweep drops every expired entry.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, it := range c.items {
		if it.expired(now) {
			delete(c.items, key)
		}
	}
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
