package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/passbill/pkg/billing"
	"github.com/platinummonkey/passbill/pkg/catalog"
	"github.com/platinummonkey/passbill/pkg/config"
	"github.com/platinummonkey/passbill/pkg/discount"
	"github.com/platinummonkey/passbill/pkg/observability"
	"github.com/platinummonkey/passbill/pkg/proration"
	"github.com/platinummonkey/passbill/pkg/storage"
	"github.com/platinummonkey/passbill/pkg/storage/cache"
	"github.com/platinummonkey/passbill/pkg/storage/memory"
	"github.com/platinummonkey/passbill/pkg/storage/sqlstore"
	"github.com/platinummonkey/passbill/pkg/usage"
)

type statsSource interface {
	Stats() cache.Stats
}

// Components are the collaborators shared by the passbill binaries
type Components struct {
	Config    *config.Config
	Store     storage.Store
	Pricings  storage.PricingStore
	Redis     *redis.Client
	Meter     usage.Meter
	Discounts *discount.StaticProvider
	Engine    *proration.Engine
	Registry  *prometheus.Registry
	Metrics   *observability.Metrics

	db     *sql.DB
	caches map[string]statsSource
	logger *observability.Logger
}

// Open connects the configured storage, redis and meter backends. Call
// Close to release them.
func Open(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Components, error) {
	c := &Components{
		Config:    cfg,
		Discounts: discount.NewStaticProvider(),
		Engine:    proration.NewEngine(),
		Registry:  prometheus.NewRegistry(),
		caches:    make(map[string]statsSource),
		logger:    logger,
	}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = observability.NewMetrics(c.Registry)

	if err := c.openStore(ctx); err != nil {
		return nil, err
	}

	if cfg.Storage.RedisURL != "" {
		client, err := cache.NewRedisClient(cfg.Storage)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.Redis = client
	}

	c.Pricings = c.Store
	if cfg.Storage.CacheEnabled {
		if c.Redis != nil {
			redisCache := cache.NewRedisPricingCache(c.Pricings, c.Redis, cfg.Storage.CacheTTL)
			c.caches["redis"] = redisCache
			c.Pricings = redisCache
		}
		lruCache := cache.NewLRUPricingCache(c.Pricings, cfg.Storage.LRUSize, cfg.Storage.CacheTTL)
		c.caches["lru"] = lruCache
		c.Pricings = lruCache
	}

	switch cfg.Meter {
	case config.MeterRedis:
		c.Meter = usage.NewRedisMeter(c.Redis)
	default:
		c.Meter = usage.NewMemoryMeter()
	}

	logger.WithFields(map[string]interface{}{
		"storage": cfg.Storage.Type,
		"meter":   cfg.Meter,
		"caches":  len(c.caches),
	}).Info("Components initialized")
	return c, nil
}

func (c *Components) openStore(ctx context.Context) error {
	if c.Config.Storage.Type == "memory" {
		c.Store = memory.New()
		return nil
	}

	store, err := sqlstore.New(c.Config.Storage)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", c.Config.Storage.Type, err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to migrate %s storage: %w", c.Config.Storage.Type, err)
	}
	c.Store = store
	c.db = store.DB()
	return nil
}

// Quotes returns the quote service over the cached pricing store
func (c *Components) Quotes() *billing.Service {
	return billing.NewService(c.Pricings, c.Meter, c.Discounts, c.Engine, c.Metrics)
}

// Subscriptions returns the subscription orchestrator charging through collector
func (c *Components) Subscriptions(collector billing.Collector) *billing.Subscriptions {
	return billing.NewSubscriptions(billing.SubscriptionsConfig{
		Store:     c.Store,
		Meter:     c.Meter,
		Discounts: c.Discounts,
		Collector: collector,
		Engine:    c.Engine,
		Metrics:   c.Metrics,
		Logger:    c.logger,
	})
}

// LogCollector accepts every charge and logs it. It stands in for a payment
// integration in development and in deployments that settle charges from the
// log stream.
func LogCollector(logger *observability.Logger) billing.Collector {
	return billing.CollectorFunc(func(ctx context.Context, charge billing.Charge) error {
		logger.WithFields(map[string]interface{}{
			"charge_id":       charge.ID.String(),
			"org_id":          charge.OrgID,
			"subscription_id": charge.SubscriptionID,
			"pricing_id":      charge.PricingID,
			"holder":          charge.Holder,
			"token":           charge.Token,
			"amount":          charge.Amount.String(),
			"reason":          string(charge.Reason),
		}).Info("Charge accepted")
		return nil
	})
}

// LoadCatalog applies the configured catalog once. It is a no-op when no
// catalog is configured.
func (c *Components) LoadCatalog(ctx context.Context) error {
	var source catalog.Source
	switch {
	case c.Config.Catalog.Path != "":
		source = catalog.FileSource{Path: c.Config.Catalog.Path}
	case c.Config.Catalog.S3.Bucket != "":
		s3Source, err := catalog.NewS3Source(ctx, c.Config.Catalog.S3)
		if err != nil {
			return err
		}
		source = s3Source
	default:
		c.logger.Warn("No pricing catalog configured")
		return nil
	}

	cat, err := source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog from %s: %w", source, err)
	}
	if err := c.ApplyCatalog(ctx, cat); err != nil {
		return err
	}
	c.logger.WithFields(map[string]interface{}{
		"source":   fmt.Sprint(source),
		"pricings": len(cat.Pricings),
		"coupons":  len(cat.Coupons),
	}).Info("Pricing catalog loaded")
	return nil
}

// ApplyCatalog writes cat through the pricing caches so stale entries are
// dropped
func (c *Components) ApplyCatalog(ctx context.Context, cat *catalog.Catalog) error {
	return catalog.Apply(ctx, cat, c.Pricings, c.Discounts)
}

// WatchCatalog reloads the catalog file on change until ctx is done. It
// returns immediately when watching is disabled.
func (c *Components) WatchCatalog(ctx context.Context, log logrus.FieldLogger) error {
	if !c.Config.Catalog.Watch || c.Config.Catalog.Path == "" {
		return nil
	}
	return catalog.NewWatcher(c.Config.Catalog.Path, c.ApplyCatalog, log).Run(ctx)
}

// PublishStats copies connection pool and cache statistics into the metrics
func (c *Components) PublishStats() {
	if c.db != nil {
		c.Metrics.RecordDBStats(c.db.Stats())
	}
	for name, source := range c.caches {
		stats := source.Stats()
		c.Metrics.RecordCacheStats(name, stats.Hits, stats.Misses)
	}
}

// RunStatsLoop calls PublishStats every interval until ctx is done
func (c *Components) RunStatsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.PublishStats()
		}
	}
}

// Close releases the store and redis connections
func (c *Components) Close() error {
	var errs []error
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
