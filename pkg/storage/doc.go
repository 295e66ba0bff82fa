// Package storage defines persistence for pricing records and subscriptions.
//
// # Overview
//
// The billing engine never looks anything up itself. The billing service
// resolves pricing ids and subscription state through the interfaces in this
// package and hands the resolved values to the engine.
//
// The interfaces are small and composable:
//
//   - PricingReader: GetPricing, ListPricings
//   - PricingWriter: PutPricing
//   - SubscriptionStore: Create/Get/UpdateSubscription, ListDueSubscriptions
//   - UnitOfWork: WithinTx
//
// GetPricing returns inactive records too. Deactivating a pricing only stops
// new purchases; renewals and cost lookups keep working.
//
// # Units of work
//
// Every state-changing subscription operation computes a charge, collects
// funds and mutates the cycle. These steps run inside WithinTx so that a
// failed collection leaves no trace:
//
//	err := store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
//		sub, err := tx.GetSubscription(ctx, orgID, id)
//		if err != nil {
//			return err
//		}
//		// compute and collect...
//		return tx.UpdateSubscription(ctx, sub)
//	})
//
// # Backends
//
//   - memory: mutex-guarded maps; transactions stage writes on a copy and
//     publish it on success. Used for development and tests.
//   - sqlstore: database/sql backend for PostgreSQL (lib/pq) and SQLite
//     (go-sqlite3) sharing one schema, created by Migrate.
//   - cache: read-through pricing caches (Redis and in-process LRU) that wrap
//     any PricingStore and invalidate on PutPricing.
//
// # Configuration
//
//	cfg := storage.DefaultConfig()
//	cfg.Type = "postgres"
//	cfg.PostgresURL = "postgres://localhost/passbill?sslmode=disable"
//	cfg.CacheEnabled = true
//	cfg.RedisURL = "redis://localhost:6379/0"
//
// # Testing
//
// Use memory.New() for service tests. The sqlstore package is tested with
// go-sqlmock for query shape and an in-memory SQLite database for behaviour.
package storage
