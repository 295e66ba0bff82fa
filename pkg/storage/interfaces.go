package storage

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/passbill/pkg/cycle"
	"github.com/platinummonkey/passbill/pkg/pricing"
)

var (
	ErrPricingNotFound      = errors.New("pricing not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("subscription already exists")
)

// Subscription is a pass holder's subscription to one pricing of an organization
type Subscription struct {
	ID        int64                   `json:"id"`
	Holder    string                  `json:"holder"`
	Cycle     cycle.SubscriptionCycle `json:"cycle"`
	Quantity  cycle.UnitQuantity      `json:"quantity"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Clone returns a copy that shares nothing with s
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// PricingReader provides read access to pricing records
type PricingReader interface {
	// GetPricing returns the record even when it is no longer active
	GetPricing(ctx context.Context, id int64) (*pricing.Record, error)
	ListPricings(ctx context.Context, orgID int64) ([]*pricing.Record, error)
}

// PricingWriter stores pricing records
type PricingWriter interface {
	PutPricing(ctx context.Context, record *pricing.Record) error
}

// PricingStore provides read and write access to pricing records
type PricingStore interface {
	PricingReader
	PricingWriter
}

// SubscriptionStore persists subscription state
type SubscriptionStore interface {
	// CreateSubscription assigns sub.ID
	CreateSubscription(ctx context.Context, sub *Subscription) error
	GetSubscription(ctx context.Context, orgID, id int64) (*Subscription, error)
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	// ListDueSubscriptions returns subscriptions that are neither paused nor
	// cancelled and whose cycle ended at or before now, oldest first
	ListDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
}

// Tx is the view of storage available inside a unit of work
type Tx interface {
	PricingReader
	SubscriptionStore
}

// UnitOfWork runs fn atomically: every write made through tx is applied
// when fn returns nil and discarded when it returns an error
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store is a complete storage backend
type Store interface {
	PricingStore
	SubscriptionStore
	UnitOfWork
	HealthCheck(ctx context.Context) error
	Close() error
}

// Config for storage backend
type Config struct {
	Type string // "memory", "postgres", "sqlite"

	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs []string
	MaxConns            int
	MinConns            int
	Timeout             time.Duration

	// SQLite config
	SQLitePath string

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Cache config
	CacheEnabled bool
	CacheTTL     time.Duration
	LRUSize      int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		MaxConns:        20,
		MinConns:        2,
		Timeout:         10 * time.Second,
		SQLitePath:      "passbill.db",
		RedisDB:         0,
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
		CacheEnabled:    false,
		CacheTTL:        5 * time.Minute,
		LRUSize:         1024,
	}
}
