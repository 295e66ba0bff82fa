package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/passbill/pkg/pricing"
	"github.com/platinummonkey/passbill/pkg/storage"
)

// LRUPricingCache is an in-process read-through cache in front of a
// PricingStore with a bounded size and per-entry TTL
type LRUPricingCache struct {
	store storage.PricingStore
	cache *lru.LRU[int64, *pricing.Record]
	stats *stats
}

// NewLRUPricingCache wraps store with an expiring LRU cache
func NewLRUPricingCache(store storage.PricingStore, size int, ttl time.Duration) *LRUPricingCache {
	if size < 10 {
		size = 10
	}
	return &LRUPricingCache{
		store: store,
		cache: lru.NewLRU[int64, *pricing.Record](size, nil, ttl),
		stats: &stats{},
	}
}

var _ storage.PricingStore = (*LRUPricingCache)(nil)

func (c *LRUPricingCache) GetPricing(ctx context.Context, id int64) (*pricing.Record, error) {
	if r, ok := c.cache.Get(id); ok {
		c.stats.recordHit()
		return copyRecord(r), nil
	}
	c.stats.recordMiss()

	r, err := c.store.GetPricing(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, copyRecord(r))
	return r, nil
}

func (c *LRUPricingCache) ListPricings(ctx context.Context, orgID int64) ([]*pricing.Record, error) {
	return c.store.ListPricings(ctx, orgID)
}

func (c *LRUPricingCache) PutPricing(ctx context.Context, record *pricing.Record) error {
	if err := c.store.PutPricing(ctx, record); err != nil {
		return err
	}
	c.cache.Remove(record.ID)
	return nil
}

// Purge drops every cached record
func (c *LRUPricingCache) Purge() {
	c.cache.Purge()
}

// Stats returns cache hit statistics
func (c *LRUPricingCache) Stats() Stats {
	s := c.stats.snapshot()
	s.ItemCount = int64(c.cache.Len())
	return s
}

func copyRecord(r *pricing.Record) *pricing.Record {
	c := *r
	if r.Tiers != nil {
		c.Tiers = append(pricing.TierTable(nil), r.Tiers...)
	}
	return &c
}
