package proration

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/passbill/pkg/pricing"
)

// Engine computes prorated charges for subscription transitions.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	clock func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source, mainly for tests
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewEngine creates a proration engine using the wall clock by default
func NewEngine(opts ...Option) *Engine {
	e := &Engine{clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's current time truncated to whole seconds
func (e *Engine) Now() time.Time {
	return time.Unix(e.clock().Unix(), 0).UTC()
}

// Change is the result of a plan change
type Change struct {
	NewEndDate time.Time       `json:"new_end_date"`
	Token      string          `json:"token"`
	Amount     decimal.Decimal `json:"amount"`
}

// Charge is a token amount owed
type Charge struct {
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

// Renewal is the full charge for one more cycle of a pricing
type Renewal struct {
	OrgID     int64           `json:"org_id"`
	PricingID int64           `json:"pricing_id"`
	Token     string          `json:"token"`
	Amount    decimal.Decimal `json:"amount"`
}

// RenewalItem pairs a pricing with the quantity or usage reading to renew at
type RenewalItem struct {
	Record   *pricing.Record
	Quantity uint64
}

// ChangeSubscriptionCost prices moving a subscription from oldRec to newRec.
//
// Moving to an equal or shorter cycle is free and keeps the current end date.
// Moving to a longer cycle charges the new plan's price for the part of the
// new cycle that has not elapsed since start, and extends the end date to
// start plus the new cycle length.
func (e *Engine) ChangeSubscriptionCost(oldRec, newRec *pricing.Record, start, end time.Time, newQty uint64) (Change, error) {
	if oldRec == nil || newRec == nil {
		return Change{}, ErrSubscriptionNotFound
	}
	if err := checkPlanFamilies(oldRec.ChargeStyle, newRec.ChargeStyle); err != nil {
		return Change{}, err
	}
	if !end.After(start) {
		return Change{}, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidDateRange, end, start)
	}

	oldDur := oldRec.CycleDuration.Seconds()
	newDur := newRec.CycleDuration.Seconds()

	if newDur <= oldDur {
		return Change{NewEndDate: end, Token: newRec.Token, Amount: decimal.Zero}, nil
	}

	token, full, err := pricing.TotalCost(newRec, newQty)
	if err != nil {
		return Change{}, err
	}

	elapsed := e.Now().Unix() - start.Unix()
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := newDur - elapsed
	if remaining < 0 {
		remaining = 0
	}

	return Change{
		NewEndDate: start.Add(newRec.CycleDuration.Std()),
		Token:      token,
		Amount:     prorate(full, remaining, newDur),
	}, nil
}

// ChangeUnitQuantityCost prices a seat count change on a tiered pricing.
// Only the increase in total cost is charged, prorated over what is left of
// the current cycle. Decreases are never charged nor refunded.
func (e *Engine) ChangeUnitQuantityCost(rec *pricing.Record, start, end time.Time, oldQty, newQty uint64) (Charge, error) {
	if rec == nil {
		return Charge{}, ErrSubscriptionNotFound
	}
	if !rec.ChargeStyle.IsTiered() {
		return Charge{}, fmt.Errorf("%w: quantity changes require a tiered pricing, got %s", pricing.ErrInvalidChargeStyle, rec.ChargeStyle)
	}
	if oldQty == newQty {
		return Charge{}, ErrUnitQuantityIsTheSame
	}
	if !end.After(start) {
		return Charge{}, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidDateRange, end, start)
	}

	now := e.Now()
	if now.Before(start) || !now.Before(end) {
		return Charge{}, ErrSubscriptionWindowInactive
	}

	token, oldCost, err := pricing.TotalCost(rec, oldQty)
	if err != nil {
		return Charge{}, err
	}
	_, newCost, err := pricing.TotalCost(rec, newQty)
	if err != nil {
		return Charge{}, err
	}

	delta := newCost.Sub(oldCost)
	if !delta.IsPositive() {
		return Charge{Token: token, Amount: decimal.Zero}, nil
	}

	remaining := end.Unix() - now.Unix()
	window := end.Unix() - start.Unix()
	return Charge{Token: token, Amount: prorate(delta, remaining, window)}, nil
}

// RenewalCost returns the full, unprorated charge for another cycle
func (e *Engine) RenewalCost(rec *pricing.Record, q uint64) (Renewal, error) {
	if rec == nil {
		return Renewal{}, ErrSubscriptionNotFound
	}
	token, amount, err := pricing.TotalCost(rec, q)
	if err != nil {
		return Renewal{}, err
	}
	return Renewal{OrgID: rec.OrgID, PricingID: rec.ID, Token: token, Amount: amount}, nil
}

// BatchRenewalCost prices a renewal for every item, failing on the first bad one
func (e *Engine) BatchRenewalCost(items []RenewalItem) ([]Renewal, error) {
	if len(items) == 0 {
		return nil, ErrNoProductsProvided
	}

	renewals := make([]Renewal, 0, len(items))
	for i, item := range items {
		r, err := e.RenewalCost(item.Record, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		renewals = append(renewals, r)
	}
	return renewals, nil
}

// InitialPurchaseCost sums the full cost of every line item. All items must
// be priced in the same token.
func (e *Engine) InitialPurchaseCost(recs []*pricing.Record, qtys []uint64) (string, decimal.Decimal, error) {
	token, _, total, err := sumLineItems(recs, qtys)
	return token, total, err
}

func sumLineItems(recs []*pricing.Record, qtys []uint64) (string, []decimal.Decimal, decimal.Decimal, error) {
	if len(recs) == 0 {
		return "", nil, decimal.Zero, ErrNoPricingIDsProvided
	}
	if len(recs) != len(qtys) {
		return "", nil, decimal.Zero, fmt.Errorf("%w: %d pricings, %d quantities", ErrLengthMismatch, len(recs), len(qtys))
	}

	var token string
	costs := make([]decimal.Decimal, 0, len(recs))
	total := decimal.Zero
	for i, rec := range recs {
		t, cost, err := pricing.TotalCost(rec, qtys[i])
		if err != nil {
			return "", nil, decimal.Zero, fmt.Errorf("line item %d: %w", i, err)
		}
		if i == 0 {
			token = t
		} else if t != token {
			return "", nil, decimal.Zero, fmt.Errorf("%w: %s and %s", ErrMixedTokens, token, t)
		}
		costs = append(costs, cost)
		total = total.Add(cost)
	}
	return token, costs, total, nil
}

// checkPlanFamilies allows moves within flat, tiered or usage pricings only
func checkPlanFamilies(from, to pricing.ChargeStyle) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: %s to %s", pricing.ErrInvalidChargeStyle, from, to)
	}
	if from == pricing.ChargeStyleOneTime || to == pricing.ChargeStyleOneTime {
		return fmt.Errorf("%w: one time pricings cannot change plan", pricing.ErrInvalidChargeStyle)
	}
	if from.IsUsage() != to.IsUsage() {
		return ErrUsageBasedChargeStyleInconsistency
	}
	if from.IsTiered() != to.IsTiered() {
		return ErrTieredChargeStyleInconsistency
	}
	return nil
}

// prorate returns amount * part / whole truncated to an integer
func prorate(amount decimal.Decimal, part, whole int64) decimal.Decimal {
	if whole <= 0 || part <= 0 {
		return decimal.Zero
	}
	q, _ := amount.Mul(decimal.NewFromInt(part)).QuoRem(decimal.NewFromInt(whole), 0)
	return q
}
