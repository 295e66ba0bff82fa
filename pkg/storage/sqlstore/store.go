package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/passbill/pkg/cycle"
	"github.com/platinummonkey/passbill/pkg/pricing"
	"github.com/platinummonkey/passbill/pkg/storage"
)

var tracer = otel.Tracer("passbill/storage/sqlstore")

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store implements storage.Store on database/sql
type Store struct {
	conn *ConnectionManager
	now  func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates a store from configuration, opening connections for the
// configured backend
func New(cfg storage.Config) (*Store, error) {
	connCfg := ConnectionConfig{
		MaxConns:    cfg.MaxConns,
		MinConns:    cfg.MinConns,
		Timeout:     cfg.Timeout,
		MaxLifetime: 1 * time.Hour,
		MaxIdleTime: 10 * time.Minute,
	}

	switch cfg.Type {
	case "postgres":
		connCfg.Driver = DriverPostgres
		connCfg.PrimaryURL = cfg.PostgresURL
		connCfg.ReplicaURLs = cfg.PostgresReplicaURLs
	case "sqlite":
		connCfg.Driver = DriverSQLite
		connCfg.PrimaryURL = sqliteDSN(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported storage type for sqlstore: %s", cfg.Type)
	}

	conn, err := NewConnectionManager(connCfg)
	if err != nil {
		return nil, err
	}
	return NewWithConnection(conn), nil
}

// NewWithConnection creates a store on an existing connection manager
func NewWithConnection(conn *ConnectionManager) *Store {
	return &Store{conn: conn, now: time.Now}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// DB returns the primary handle, for health checks
func (s *Store) DB() *sql.DB {
	return s.conn.Primary()
}

func (s *Store) GetPricing(ctx context.Context, id int64) (*pricing.Record, error) {
	ctx, span := tracer.Start(ctx, "GetPricing", trace.WithAttributes(attribute.Int64("pricing.id", id)))
	defer span.End()

	r, err := getPricing(ctx, s.conn.Replica(), id)
	if err != nil && !errors.Is(err, storage.ErrPricingNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return r, err
}

func (s *Store) ListPricings(ctx context.Context, orgID int64) ([]*pricing.Record, error) {
	ctx, span := tracer.Start(ctx, "ListPricings", trace.WithAttributes(attribute.Int64("org.id", orgID)))
	defer span.End()

	return listPricings(ctx, s.conn.Replica(), orgID)
}

func (s *Store) PutPricing(ctx context.Context, record *pricing.Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	ctx, span := tracer.Start(ctx, "PutPricing", trace.WithAttributes(attribute.Int64("pricing.id", record.ID)))
	defer span.End()

	tiers, err := json.Marshal(record.Tiers)
	if err != nil {
		return fmt.Errorf("failed to marshal tiers: %w", err)
	}
	if record.Tiers == nil {
		tiers = []byte("[]")
	}

	query := `
		INSERT INTO pricings (id, org_id, product_id, charge_style, token, flat_price, cycle_duration, tiers, usage_meter_id, active, restricted, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			org_id = excluded.org_id,
			product_id = excluded.product_id,
			charge_style = excluded.charge_style,
			token = excluded.token,
			flat_price = excluded.flat_price,
			cycle_duration = excluded.cycle_duration,
			tiers = excluded.tiers,
			usage_meter_id = excluded.usage_meter_id,
			active = excluded.active,
			restricted = excluded.restricted,
			updated_at = excluded.updated_at
	`

	_, err = s.conn.Primary().ExecContext(ctx, query,
		record.ID,
		record.OrgID,
		record.ProductID,
		string(record.ChargeStyle),
		record.Token,
		record.FlatPrice.String(),
		string(record.CycleDuration),
		string(tiers),
		record.UsageMeterID,
		record.Active,
		record.Restricted,
		s.now().Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to put pricing: %w", err)
	}
	return nil
}

func (s *Store) CreateSubscription(ctx context.Context, sub *storage.Subscription) error {
	return createSubscription(ctx, s.conn.Primary(), sub, s.now())
}

func (s *Store) GetSubscription(ctx context.Context, orgID, id int64) (*storage.Subscription, error) {
	return getSubscription(ctx, s.conn.Primary(), orgID, id, false)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *storage.Subscription) error {
	return updateSubscription(ctx, s.conn.Primary(), sub, s.now())
}

func (s *Store) ListDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*storage.Subscription, error) {
	ctx, span := tracer.Start(ctx, "ListDueSubscriptions", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	return listDue(ctx, s.conn.Primary(), now, limit)
}

// WithinTx runs fn in a database transaction, committing when it returns nil.
// On postgres, subscriptions read through the transaction are locked until
// it ends; sqlite transactions take the write lock when they begin.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	ctx, span := tracer.Start(ctx, "WithinTx")
	defer span.End()

	sqlTx, err := s.conn.Primary().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &txStore{tx: sqlTx, now: s.now, lockRows: s.conn.Driver() == DriverPostgres}
	if err := fn(ctx, tx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx       *sql.Tx
	now      func() time.Time
	lockRows bool
}

func (t *txStore) GetPricing(ctx context.Context, id int64) (*pricing.Record, error) {
	return getPricing(ctx, t.tx, id)
}

func (t *txStore) ListPricings(ctx context.Context, orgID int64) ([]*pricing.Record, error) {
	return listPricings(ctx, t.tx, orgID)
}

func (t *txStore) CreateSubscription(ctx context.Context, sub *storage.Subscription) error {
	return createSubscription(ctx, t.tx, sub, t.now())
}

func (t *txStore) GetSubscription(ctx context.Context, orgID, id int64) (*storage.Subscription, error) {
	return getSubscription(ctx, t.tx, orgID, id, t.lockRows)
}

func (t *txStore) UpdateSubscription(ctx context.Context, sub *storage.Subscription) error {
	return updateSubscription(ctx, t.tx, sub, t.now())
}

func (t *txStore) ListDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*storage.Subscription, error) {
	return listDue(ctx, t.tx, now, limit)
}

const pricingColumns = `id, org_id, product_id, charge_style, token, flat_price, cycle_duration, tiers, usage_meter_id, active, restricted`

func getPricing(ctx context.Context, q querier, id int64) (*pricing.Record, error) {
	query := `SELECT ` + pricingColumns + ` FROM pricings WHERE id = $1`

	r, err := scanPricing(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", storage.ErrPricingNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get pricing: %w", err)
	}
	return r, nil
}

func listPricings(ctx context.Context, q querier, orgID int64) ([]*pricing.Record, error) {
	query := `SELECT ` + pricingColumns + ` FROM pricings WHERE org_id = $1 ORDER BY id`

	rows, err := q.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricings: %w", err)
	}
	defer rows.Close()

	records := make([]*pricing.Record, 0)
	for rows.Next() {
		r, err := scanPricing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pricing: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pricings: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPricing(row scanner) (*pricing.Record, error) {
	var (
		r        pricing.Record
		style    string
		flat     string
		duration string
		tiers    string
	)

	err := row.Scan(
		&r.ID,
		&r.OrgID,
		&r.ProductID,
		&style,
		&r.Token,
		&flat,
		&duration,
		&tiers,
		&r.UsageMeterID,
		&r.Active,
		&r.Restricted,
	)
	if err != nil {
		return nil, err
	}

	r.ChargeStyle = pricing.ChargeStyle(style)
	r.CycleDuration = cycle.Duration(duration)
	if r.FlatPrice, err = decimal.NewFromString(flat); err != nil {
		return nil, fmt.Errorf("invalid flat price %q: %w", flat, err)
	}
	if err := json.Unmarshal([]byte(tiers), &r.Tiers); err != nil {
		return nil, fmt.Errorf("invalid tiers: %w", err)
	}
	if len(r.Tiers) == 0 {
		r.Tiers = nil
	}
	return &r, nil
}

const subscriptionColumns = `id, org_id, pricing_id, holder, start_date, end_date, remaining_when_paused, is_cancelled, is_paused, committed_quantity, current_quantity, created_at, updated_at`

func createSubscription(ctx context.Context, q querier, sub *storage.Subscription, now time.Time) error {
	if sub == nil {
		return fmt.Errorf("subscription cannot be nil")
	}

	query := `
		INSERT INTO subscriptions (org_id, pricing_id, holder, start_date, end_date, remaining_when_paused, is_cancelled, is_paused, committed_quantity, current_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	c := sub.Cycle
	err := q.QueryRowContext(ctx, query,
		c.OrgID,
		c.PricingID,
		sub.Holder,
		toUnix(c.StartDate),
		toUnix(c.EndDate),
		int64(c.TimeRemainingWhenPaused/time.Second),
		c.IsCancelled,
		c.IsPaused,
		strconv.FormatUint(sub.Quantity.Committed, 10),
		strconv.FormatUint(sub.Quantity.Current, 10),
		now.Unix(),
		now.Unix(),
	).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	sub.CreatedAt = time.Unix(now.Unix(), 0).UTC()
	sub.UpdatedAt = sub.CreatedAt
	return nil
}

func getSubscription(ctx context.Context, q querier, orgID, id int64, forUpdate bool) (*storage.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE org_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	sub, err := scanSubscription(q.QueryRowContext(ctx, query, orgID, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: org %d id %d", storage.ErrSubscriptionNotFound, orgID, id)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func updateSubscription(ctx context.Context, q querier, sub *storage.Subscription, now time.Time) error {
	if sub == nil {
		return fmt.Errorf("subscription cannot be nil")
	}

	query := `
		UPDATE subscriptions SET
			pricing_id = $1,
			holder = $2,
			start_date = $3,
			end_date = $4,
			remaining_when_paused = $5,
			is_cancelled = $6,
			is_paused = $7,
			committed_quantity = $8,
			current_quantity = $9,
			updated_at = $10
		WHERE org_id = $11 AND id = $12
	`

	c := sub.Cycle
	res, err := q.ExecContext(ctx, query,
		c.PricingID,
		sub.Holder,
		toUnix(c.StartDate),
		toUnix(c.EndDate),
		int64(c.TimeRemainingWhenPaused/time.Second),
		c.IsCancelled,
		c.IsPaused,
		strconv.FormatUint(sub.Quantity.Committed, 10),
		strconv.FormatUint(sub.Quantity.Current, 10),
		now.Unix(),
		c.OrgID,
		sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: org %d id %d", storage.ErrSubscriptionNotFound, c.OrgID, sub.ID)
	}

	sub.UpdatedAt = time.Unix(now.Unix(), 0).UTC()
	return nil
}

func listDue(ctx context.Context, q querier, now time.Time, limit int) ([]*storage.Subscription, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE is_paused = $1 AND is_cancelled = $2 AND end_date <= $3
		ORDER BY end_date, id
		LIMIT $4`

	rows, err := q.QueryContext(ctx, query, false, false, now.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]*storage.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}
	return subs, nil
}

func scanSubscription(row scanner) (*storage.Subscription, error) {
	var (
		sub                  storage.Subscription
		start, end           int64
		remaining            int64
		committed, current   string
		createdAt, updatedAt int64
	)

	err := row.Scan(
		&sub.ID,
		&sub.Cycle.OrgID,
		&sub.Cycle.PricingID,
		&sub.Holder,
		&start,
		&end,
		&remaining,
		&sub.Cycle.IsCancelled,
		&sub.Cycle.IsPaused,
		&committed,
		&current,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Cycle.StartDate = fromUnix(start)
	sub.Cycle.EndDate = fromUnix(end)
	sub.Cycle.TimeRemainingWhenPaused = time.Duration(remaining) * time.Second
	if sub.Quantity.Committed, err = strconv.ParseUint(committed, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid committed quantity %q: %w", committed, err)
	}
	if sub.Quantity.Current, err = strconv.ParseUint(current, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid current quantity %q: %w", current, err)
	}
	sub.CreatedAt = fromUnix(createdAt)
	sub.UpdatedAt = fromUnix(updatedAt)
	return &sub, nil
}

// zero instants (paused cycles) are stored as 0
func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
