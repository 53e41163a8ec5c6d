package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cart not in cache")

// Cache keeps short-lived snapshots of cart items in redis. A nil *Cache is
// valid and behaves as an always-missing cache.
type Cache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

func (c *Cache) Get(ctx context.Context, userID string) ([]Item, error) {
	if c == nil {
		return nil, ErrCacheMiss
	}

	data, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshalling cached cart: %w", err)
	}

	return items, nil
}

func (c *Cache) Set(ctx context.Context, userID string, items []Item) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshalling cart for cache: %w", err)
	}

	// Jitter spreads expiry of snapshots written in the same burst.
	ttl := c.baseTTL + time.Duration(rand.Intn(5))*time.Minute

	if err := c.client.Set(ctx, cacheKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	if c == nil {
		return nil
	}

	if err := c.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

func cacheKey(userID string) string {
	return "cart:" + userID
}
