package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/passbill/pkg/cycle"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, 20, cfg.MaxConns)
	assert.Equal(t, 2, cfg.MinConns)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.RedisMaxRetries)
	assert.Equal(t, 10, cfg.RedisPoolSize)
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 1024, cfg.LRUSize)
}

func TestSubscriptionClone(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := &Subscription{
		ID:       3,
		Holder:   "0xholder",
		Cycle:    cycle.Start(1, 2, start, cycle.Monthly),
		Quantity: cycle.NewUnitQuantity(4),
	}

	c := sub.Clone()
	assert.Equal(t, sub, c)

	c.Holder = "0xother"
	c.Cycle = c.Cycle.Cancel()
	assert.Equal(t, "0xholder", sub.Holder)
	assert.False(t, sub.Cycle.IsCancelled)

	var nilSub *Subscription
	assert.Nil(t, nilSub.Clone())
}
