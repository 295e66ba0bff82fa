package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/passbill/pkg/pricing"
	"github.com/platinummonkey/passbill/pkg/storage"
)

type subKey struct {
	orgID int64
	id    int64
}

type state struct {
	pricings      map[int64]*pricing.Record
	subscriptions map[subKey]*storage.Subscription
	nextSubID     int64
}

func (s *state) clone() *state {
	c := &state{
		pricings:      make(map[int64]*pricing.Record, len(s.pricings)),
		subscriptions: make(map[subKey]*storage.Subscription, len(s.subscriptions)),
		nextSubID:     s.nextSubID,
	}
	for k, v := range s.pricings {
		c.pricings[k] = v
	}
	for k, v := range s.subscriptions {
		c.subscriptions[k] = v
	}
	return c
}

// Store is an in-memory storage.Store. Values are copied on the way in and
// out so callers never share memory with the store.
type Store struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *state
	now   func() time.Time
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		state: &state{
			pricings:      make(map[int64]*pricing.Record),
			subscriptions: make(map[subKey]*storage.Subscription),
		},
		now: time.Now,
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) GetPricing(ctx context.Context, id int64) (*pricing.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPricing(s.state, id)
}

func (s *Store) ListPricings(ctx context.Context, orgID int64) ([]*pricing.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPricings(s.state, orgID), nil
}

func (s *Store) PutPricing(ctx context.Context, record *pricing.Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.pricings[record.ID] = clonePricing(record)
	return nil
}

func (s *Store) CreateSubscription(ctx context.Context, sub *storage.Subscription) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return createSubscription(s.state, sub, s.now())
}

func (s *Store) GetSubscription(ctx context.Context, orgID, id int64) (*storage.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSubscription(s.state, orgID, id)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *storage.Subscription) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateSubscription(s.state, sub, s.now())
}

func (s *Store) ListDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*storage.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDue(s.state, now, limit), nil
}

// WithinTx runs fn against a private copy of the store and publishes the
// copy only if fn succeeds. Transactions and direct writes are serialized,
// so fn must use tx rather than the Store itself.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	staged := s.state.clone()
	s.mu.RUnlock()

	tx := &txView{state: staged, now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = staged
	s.mu.Unlock()
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

// txView operates on a staged state owned by a single transaction
type txView struct {
	state *state
	now   func() time.Time
}

func (t *txView) GetPricing(ctx context.Context, id int64) (*pricing.Record, error) {
	return getPricing(t.state, id)
}

func (t *txView) ListPricings(ctx context.Context, orgID int64) ([]*pricing.Record, error) {
	return listPricings(t.state, orgID), nil
}

func (t *txView) CreateSubscription(ctx context.Context, sub *storage.Subscription) error {
	return createSubscription(t.state, sub, t.now())
}

func (t *txView) GetSubscription(ctx context.Context, orgID, id int64) (*storage.Subscription, error) {
	return getSubscription(t.state, orgID, id)
}

func (t *txView) UpdateSubscription(ctx context.Context, sub *storage.Subscription) error {
	return updateSubscription(t.state, sub, t.now())
}

func (t *txView) ListDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*storage.Subscription, error) {
	return listDue(t.state, now, limit), nil
}

func getPricing(st *state, id int64) (*pricing.Record, error) {
	r, ok := st.pricings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", storage.ErrPricingNotFound, id)
	}
	return clonePricing(r), nil
}

func listPricings(st *state, orgID int64) []*pricing.Record {
	out := make([]*pricing.Record, 0)
	for _, r := range st.pricings {
		if r.OrgID == orgID {
			out = append(out, clonePricing(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func createSubscription(st *state, sub *storage.Subscription, now time.Time) error {
	if sub == nil {
		return fmt.Errorf("subscription cannot be nil")
	}
	st.nextSubID++
	sub.ID = st.nextSubID
	sub.CreatedAt = now
	sub.UpdatedAt = now
	st.subscriptions[subKey{sub.Cycle.OrgID, sub.ID}] = sub.Clone()
	return nil
}

func getSubscription(st *state, orgID, id int64) (*storage.Subscription, error) {
	sub, ok := st.subscriptions[subKey{orgID, id}]
	if !ok {
		return nil, fmt.Errorf("%w: org %d id %d", storage.ErrSubscriptionNotFound, orgID, id)
	}
	return sub.Clone(), nil
}

func updateSubscription(st *state, sub *storage.Subscription, now time.Time) error {
	if sub == nil {
		return fmt.Errorf("subscription cannot be nil")
	}
	key := subKey{sub.Cycle.OrgID, sub.ID}
	if _, ok := st.subscriptions[key]; !ok {
		return fmt.Errorf("%w: org %d id %d", storage.ErrSubscriptionNotFound, sub.Cycle.OrgID, sub.ID)
	}
	sub.UpdatedAt = now
	st.subscriptions[key] = sub.Clone()
	return nil
}

func listDue(st *state, now time.Time, limit int) []*storage.Subscription {
	out := make([]*storage.Subscription, 0)
	for _, sub := range st.subscriptions {
		c := sub.Cycle
		if c.IsPaused || c.IsCancelled || now.Before(c.EndDate) {
			continue
		}
		out = append(out, sub.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cycle.EndDate.Equal(out[j].Cycle.EndDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].Cycle.EndDate.Before(out[j].Cycle.EndDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clonePricing(r *pricing.Record) *pricing.Record {
	c := *r
	if r.Tiers != nil {
		c.Tiers = make(pricing.TierTable, len(r.Tiers))
		copy(c.Tiers, r.Tiers)
	}
	return &c
}
