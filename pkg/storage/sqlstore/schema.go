package sqlstore

import (
	"context"
	"fmt"
)

// Amounts and unit quantities are stored as decimal text so that values
// beyond int64 survive on both backends. Instants are unix seconds.
var schema = map[string][]string{
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS pricings (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL DEFAULT 0,
			charge_style TEXT NOT NULL,
			token TEXT NOT NULL,
			flat_price TEXT NOT NULL DEFAULT '0',
			cycle_duration TEXT NOT NULL DEFAULT '',
			tiers TEXT NOT NULL DEFAULT '[]',
			usage_meter_id TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			restricted BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pricings_org ON pricings (org_id)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id BIGSERIAL PRIMARY KEY,
			org_id BIGINT NOT NULL,
			pricing_id BIGINT NOT NULL,
			holder TEXT NOT NULL,
			start_date BIGINT NOT NULL,
			end_date BIGINT NOT NULL,
			remaining_when_paused BIGINT NOT NULL DEFAULT 0,
			is_cancelled BOOLEAN NOT NULL DEFAULT FALSE,
			is_paused BOOLEAN NOT NULL DEFAULT FALSE,
			committed_quantity TEXT NOT NULL DEFAULT '0',
			current_quantity TEXT NOT NULL DEFAULT '0',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_due ON subscriptions (is_paused, is_cancelled, end_date)`,
	},
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS pricings (
			id INTEGER PRIMARY KEY,
			org_id INTEGER NOT NULL,
			product_id INTEGER NOT NULL DEFAULT 0,
			charge_style TEXT NOT NULL,
			token TEXT NOT NULL,
			flat_price TEXT NOT NULL DEFAULT '0',
			cycle_duration TEXT NOT NULL DEFAULT '',
			tiers TEXT NOT NULL DEFAULT '[]',
			usage_meter_id TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT 1,
			restricted BOOLEAN NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pricings_org ON pricings (org_id)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			org_id INTEGER NOT NULL,
			pricing_id INTEGER NOT NULL,
			holder TEXT NOT NULL,
			start_date INTEGER NOT NULL,
			end_date INTEGER NOT NULL,
			remaining_when_paused INTEGER NOT NULL DEFAULT 0,
			is_cancelled BOOLEAN NOT NULL DEFAULT 0,
			is_paused BOOLEAN NOT NULL DEFAULT 0,
			committed_quantity TEXT NOT NULL DEFAULT '0',
			current_quantity TEXT NOT NULL DEFAULT '0',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_due ON subscriptions (is_paused, is_cancelled, end_date)`,
	},
}

// Migrate creates the tables and indexes if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	stmts, ok := schema[s.conn.Driver()]
	if !ok {
		return fmt.Errorf("unsupported driver: %s", s.conn.Driver())
	}

	for _, stmt := range stmts {
		if _, err := s.conn.Primary().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
