package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/passbill/pkg/pricing"
	"github.com/platinummonkey/passbill/pkg/storage"
)

// NewRedisClient creates a redis client from storage configuration and
// verifies the connection
func NewRedisClient(config storage.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisPricingCache is a read-through redis cache in front of a PricingStore.
// Only single-record lookups are cached; lists always hit the store.
type RedisPricingCache struct {
	store  storage.PricingStore
	client *redis.Client
	ttl    time.Duration
	stats  *stats
}

// NewRedisPricingCache wraps store with a redis cache
func NewRedisPricingCache(store storage.PricingStore, client *redis.Client, ttl time.Duration) *RedisPricingCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisPricingCache{
		store:  store,
		client: client,
		ttl:    ttl,
		stats:  &stats{},
	}
}

var _ storage.PricingStore = (*RedisPricingCache)(nil)

func pricingKey(id int64) string {
	return fmt.Sprintf("pricing:%d", id)
}

// GetPricing returns the cached record or loads and caches it. Redis errors
// fall through to the store.
func (c *RedisPricingCache) GetPricing(ctx context.Context, id int64) (*pricing.Record, error) {
	key := pricingKey(id)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var r pricing.Record
		if err := json.Unmarshal(data, &r); err == nil {
			c.stats.recordHit()
			return &r, nil
		}
		// corrupt entry
		c.client.Del(ctx, key)
	}
	c.stats.recordMiss()

	r, err := c.store.GetPricing(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(r); err == nil {
		c.client.Set(ctx, key, data, c.ttl)
	}
	return r, nil
}

func (c *RedisPricingCache) ListPricings(ctx context.Context, orgID int64) ([]*pricing.Record, error) {
	return c.store.ListPricings(ctx, orgID)
}

// PutPricing writes through to the store and invalidates the cached record
func (c *RedisPricingCache) PutPricing(ctx context.Context, record *pricing.Record) error {
	if err := c.store.PutPricing(ctx, record); err != nil {
		return err
	}
	if err := c.client.Del(ctx, pricingKey(record.ID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate pricing %d: %w", record.ID, err)
	}
	return nil
}

// Stats returns cache hit statistics
func (c *RedisPricingCache) Stats() Stats {
	return c.stats.snapshot()
}
