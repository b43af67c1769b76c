package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
)

const (
	defaultCartPrefix = "cart:"
	defaultCartTTL    = 15 * time.Minute
)

// RedisCartCache keeps a JSON copy of each cart keyed by owner. The repository stays the
// source of truth; entries expire after the configured TTL.
type RedisCartCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option customises the cache.
type Option func(*RedisCartCache)

// WithTTL overrides the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *RedisCartCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *RedisCartCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// NewRedisCartCache constructs the cache.
func NewRedisCartCache(client redis.UniversalClient, opts ...Option) (*RedisCartCache, error) {
	if client == nil {
		return nil, errors.New("cart cache: redis client is required")
	}
	c := &RedisCartCache{client: client, prefix: defaultCartPrefix, ttl: defaultCartTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *RedisCartCache) Get(ctx context.Context, owner domain.CartOwner) (domain.Cart, bool, error) {
	raw, err := c.client.Get(ctx, c.key(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, false, nil
	}
	if err != nil {
		return domain.Cart{}, false, fmt.Errorf("cart cache: get: %w", err)
	}
	var cart domain.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		// Corrupt entries are treated as misses and evicted.
		_ = c.client.Del(ctx, c.key(owner)).Err()
		return domain.Cart{}, false, nil
	}
	if cart.Owner != owner {
		return domain.Cart{}, false, nil
	}
	return cart, true, nil
}

func (c *RedisCartCache) Set(ctx context.Context, cart domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("cart cache: marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.key(cart.Owner), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cart cache: set: %w", err)
	}
	return nil
}

func (c *RedisCartCache) Delete(ctx context.Context, owner domain.CartOwner) error {
	if err := c.client.Del(ctx, c.key(owner)).Err(); err != nil {
		return fmt.Errorf("cart cache: delete: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *RedisCartCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCartCache) key(owner domain.CartOwner) string {
	return c.prefix + owner.Key()
}
