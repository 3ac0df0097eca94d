package statements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "statements:version"
	bumpChannel     = "statements.bump"
)

// Cache stores generated reports in Redis under a global version so that a
// single bump invalidates every cached statement.
//
// The version counter in Redis is only ever changed by INCR. Each instance
// also keeps the highest version it has observed, so a reset or evicted
// counter never brings back keys from an older generation.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	seen   atomic.Int64
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Seen reports the highest version this instance has observed.
func (c *Cache) Seen() int64 {
	if c == nil {
		return 0
	}
	return c.seen.Load()
}

// observe raises the local floor to ver and returns the effective version.
func (c *Cache) observe(ver int64) int64 {
	for {
		cur := c.seen.Load()
		if ver <= cur {
			return cur
		}
		if c.seen.CompareAndSwap(cur, ver) {
			return ver
		}
	}
}

// Version returns the current cache generation. A missing counter is
// initialised with SETNX so a concurrent bump is never overwritten.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, max(c.seen.Load(), 1), 0).Err(); err != nil {
			return 0, err
		}
		ver, err = c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, fmt.Errorf("statements: read cache version: %w", err)
	}
	return c.observe(max(ver, 1)), nil
}

// BuildKey suffixes base with the current version.
func (c *Cache) BuildKey(ctx context.Context, base string) (string, error) {
	if !c.enabled() {
		return base, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return base + ":" + strconv.FormatInt(ver, 10), nil
}

// FetchJSON decodes the entry at key into dest, or runs loader and stores its
// result. The bool result reports a cache hit.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) (bool, error) {
	if loader == nil {
		return false, errors.New("statements: cache loader required")
	}
	hit, err := c.load(ctx, key, dest)
	if hit || err != nil {
		return hit, err
	}
	value, err := loader(ctx)
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	if c.enabled() {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return false, err
		}
	}
	return false, json.Unmarshal(raw, dest)
}

func (c *Cache) load(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, json.Unmarshal(payload, dest)
}

// Delete drops a single cached entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// Bump starts a new cache generation and announces it to other instances.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	c.observe(ver)
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows bumps announced by other instances. Announced
// versions only raise the local floor; the shared counter is left alone.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					c.observe(ver)
				}
			}
		}
	}()
	return nil
}
