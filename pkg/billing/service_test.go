package billing

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/passbill/pkg/cycle"
	"github.com/platinummonkey/passbill/pkg/discount"
	"github.com/platinummonkey/passbill/pkg/observability"
	"github.com/platinummonkey/passbill/pkg/pricing"
	"github.com/platinummonkey/passbill/pkg/proration"
	"github.com/platinummonkey/passbill/pkg/storage"
	"github.com/platinummonkey/passbill/pkg/storage/memory"
	"github.com/platinummonkey/passbill/pkg/usage"
)

const org = int64(9)

var origin = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func amt(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func assertAmount(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, amt(want).Equal(got), "want %d, got %s", want, got)
}

// mockMeter is a usage meter with overridable behaviour
type mockMeter struct {
	CurrentUsageFunc  func(ctx context.Context, orgID int64, meterID string) (uint64, error)
	RecordFunc        func(ctx context.Context, orgID int64, meterID string, amount uint64) error
	MarkProcessedFunc func(ctx context.Context, orgID int64, meterID string, amount uint64) error
	RestoreFunc       func(ctx context.Context, orgID int64, meterID string, amount uint64) error
}

func (m *mockMeter) CurrentUsage(ctx context.Context, orgID int64, meterID string) (uint64, error) {
	if m.CurrentUsageFunc != nil {
		return m.CurrentUsageFunc(ctx, orgID, meterID)
	}
	return 0, nil
}

func (m *mockMeter) Record(ctx context.Context, orgID int64, meterID string, amount uint64) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, orgID, meterID, amount)
	}
	return nil
}

func (m *mockMeter) MarkProcessed(ctx context.Context, orgID int64, meterID string, amount uint64) error {
	if m.MarkProcessedFunc != nil {
		return m.MarkProcessedFunc(ctx, orgID, meterID, amount)
	}
	return nil
}

func (m *mockMeter) Restore(ctx context.Context, orgID int64, meterID string, amount uint64) error {
	if m.RestoreFunc != nil {
		return m.RestoreFunc(ctx, orgID, meterID, amount)
	}
	return nil
}

func flatPricing(id, price int64, d cycle.Duration) *pricing.Record {
	return &pricing.Record{
		ID:            id,
		OrgID:         org,
		ChargeStyle:   pricing.ChargeStyleFlatRate,
		Token:         "USDC",
		FlatPrice:     amt(price),
		CycleDuration: d,
		Active:        true,
	}
}

func seatTiers() pricing.TierTable {
	return pricing.TierTable{
		{LowerBound: 0, UpperBound: pricing.Bounded(10), PricePerUnit: amt(5_000000), PriceFlatRate: amt(20_000000)},
		{LowerBound: 11, UpperBound: pricing.Unbounded(), PricePerUnit: amt(5_000000), PriceFlatRate: amt(10_000000)},
	}
}

func seatPricing(id int64) *pricing.Record {
	return &pricing.Record{
		ID:            id,
		OrgID:         org,
		ChargeStyle:   pricing.ChargeStyleTieredGraduated,
		Token:         "USDC",
		CycleDuration: cycle.Monthly,
		Tiers:         seatTiers(),
		Active:        true,
	}
}

func usagePricing(id int64) *pricing.Record {
	return &pricing.Record{
		ID:            id,
		OrgID:         org,
		ChargeStyle:   pricing.ChargeStyleUsageGraduated,
		Token:         "USDC",
		CycleDuration: cycle.Monthly,
		Tiers:         seatTiers(),
		UsageMeterID:  "api-calls",
		Active:        true,
	}
}

func seedStore(t *testing.T, recs ...*pricing.Record) *memory.Store {
	t.Helper()
	store := memory.New()
	for _, rec := range recs {
		require.NoError(t, store.PutPricing(context.Background(), rec))
	}
	return store
}

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func newTestService(t *testing.T, meter *mockMeter, provider discount.Provider, recs ...*pricing.Record) *Service {
	t.Helper()
	engine := proration.NewEngine(proration.WithClock(func() time.Time { return origin }))
	var m usage.Meter
	if meter != nil {
		m = meter
	}
	return NewService(seedStore(t, recs...), m, provider, engine, nil)
}

func TestGetPricingTotalCost(t *testing.T) {
	volume := &pricing.Record{
		ID:            1,
		OrgID:         org,
		ChargeStyle:   pricing.ChargeStyleTieredVolume,
		Token:         "USDC",
		CycleDuration: cycle.Monthly,
		Tiers: pricing.TierTable{
			{LowerBound: 1, UpperBound: pricing.Unbounded(), PricePerUnit: amt(10), PriceFlatRate: amt(20)},
		},
		Active: false,
	}
	svc := newTestService(t, nil, nil, volume)
	ctx := context.Background()

	for q, want := range map[uint64]int64{0: 20, 1: 30, 100: 1020} {
		quote, err := svc.GetPricingTotalCost(ctx, 1, q)
		require.NoError(t, err)
		assert.Equal(t, "USDC", quote.Token)
		assertAmount(t, want, quote.Amount)
	}

	_, err := svc.GetPricingTotalCost(ctx, 404, 1)
	assert.ErrorIs(t, err, storage.ErrPricingNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestGetInitialPurchaseCost(t *testing.T) {
	eur := flatPricing(3, 7, cycle.Monthly)
	eur.Token = "EURC"
	svc := newTestService(t, nil, nil, flatPricing(1, 100, cycle.Monthly), seatPricing(2), eur)
	ctx := context.Background()

	quote, err := svc.GetInitialPurchaseCost(ctx, []int64{1, 2}, []uint64{1, 5})
	require.NoError(t, err)
	assertAmount(t, 100+45_000000, quote.Amount)

	_, err = svc.GetInitialPurchaseCost(ctx, nil, nil)
	assert.ErrorIs(t, err, proration.ErrNoPricingIDsProvided)

	_, err = svc.GetInitialPurchaseCost(ctx, []int64{1, 2}, []uint64{1})
	assert.ErrorIs(t, err, proration.ErrLengthMismatch)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = svc.GetInitialPurchaseCost(ctx, []int64{1, 3}, []uint64{1, 1})
	assert.ErrorIs(t, err, proration.ErrMixedTokens)

	_, err = svc.GetInitialPurchaseCost(ctx, []int64{1, 99}, []uint64{1, 1})
	assert.ErrorIs(t, err, storage.ErrPricingNotFound)
}

func TestGetCheckoutTotalCost(t *testing.T) {
	provider := discount.NewStaticProvider()
	require.NoError(t, provider.Replace(
		[]discount.Coupon{{OrgID: org, Code: "TEN", Discount: proration.PercentOff(amt(10))}},
		[]discount.PassDiscount{{OrgID: org, Holder: "0xvip", Discount: proration.AmountOff(amt(5))}},
	))
	other := flatPricing(5, 1, cycle.Monthly)
	other.OrgID = org + 1

	svc := newTestService(t, nil, provider, flatPricing(1, 100, cycle.Monthly), flatPricing(2, 50, cycle.Weekly), other)
	ctx := context.Background()

	b, err := svc.GetCheckoutTotalCost(ctx, CheckoutRequest{
		OrgID:      org,
		Holder:     "0xvip",
		PricingIDs: []int64{1, 2},
		Quantities: []uint64{1, 1},
		CouponCode: "ten",
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, b.PricingIDs)
	assertAmount(t, 150, b.SubTotalCost)
	assertAmount(t, 15, b.CouponSavings)
	assertAmount(t, 135, b.CouponCost)
	assertAmount(t, 5, b.PermanentSavings)
	assertAmount(t, 130, b.CheckoutTotalCost)

	b, err = svc.GetCheckoutTotalCost(ctx, CheckoutRequest{OrgID: org, Holder: "0xanyone", PricingIDs: []int64{1}, Quantities: []uint64{1}})
	require.NoError(t, err)
	assertAmount(t, 100, b.CheckoutTotalCost)

	_, err = svc.GetCheckoutTotalCost(ctx, CheckoutRequest{OrgID: org, PricingIDs: []int64{1}, Quantities: []uint64{1}, CouponCode: "NOPE"})
	assert.ErrorIs(t, err, discount.ErrCouponNotFound)

	_, err = svc.GetCheckoutTotalCost(ctx, CheckoutRequest{OrgID: org, PricingIDs: []int64{1, 5}, Quantities: []uint64{1, 1}})
	assert.ErrorIs(t, err, ErrOrgMismatch)
}

func TestGetChangeSubscriptionCost(t *testing.T) {
	svc := newTestService(t, nil, nil,
		flatPricing(1, 100_000000, cycle.Weekly),
		flatPricing(2, 150_000000, cycle.Monthly),
		seatPricing(3),
	)
	svc.engine = proration.NewEngine(proration.WithClock(func() time.Time { return origin.Add(84 * time.Hour) }))
	ctx := context.Background()

	change, err := svc.GetChangeSubscriptionCost(ctx, 1, 2, origin, origin.Add(7*24*time.Hour), 1)
	require.NoError(t, err)
	assertAmount(t, 132_500000, change.Amount)
	assert.Equal(t, origin.Add(30*24*time.Hour), change.NewEndDate)

	_, err = svc.GetChangeSubscriptionCost(ctx, 1, 3, origin, origin.Add(7*24*time.Hour), 1)
	assert.ErrorIs(t, err, proration.ErrTieredChargeStyleInconsistency)
	assert.Equal(t, KindChargeStyle, KindOf(err))
}

func TestGetChangeUnitQuantityCost(t *testing.T) {
	svc := newTestService(t, nil, nil, seatPricing(3), flatPricing(1, 5, cycle.Monthly))
	end := origin.Add(30 * 24 * time.Hour)
	svc.engine = proration.NewEngine(proration.WithClock(func() time.Time { return origin.Add(15 * 24 * time.Hour) }))
	ctx := context.Background()

	quote, err := svc.GetChangeUnitQuantityCost(ctx, 3, origin, end, 5, 20)
	require.NoError(t, err)
	assertAmount(t, 42_500000, quote.Amount)

	quote, err = svc.GetChangeUnitQuantityCost(ctx, 3, origin, end, 20, 5)
	require.NoError(t, err)
	assert.True(t, quote.Amount.IsZero())

	_, err = svc.GetChangeUnitQuantityCost(ctx, 1, origin, end, 1, 2)
	assert.ErrorIs(t, err, pricing.ErrInvalidChargeStyle)
}

func TestGetRenewalCostReadsUsage(t *testing.T) {
	meter := &mockMeter{
		CurrentUsageFunc: func(ctx context.Context, orgID int64, meterID string) (uint64, error) {
			assert.Equal(t, org, orgID)
			assert.Equal(t, "api-calls", meterID)
			return 20, nil
		},
	}
	svc := newTestService(t, meter, nil, usagePricing(4), seatPricing(3))
	ctx := context.Background()

	renewal, err := svc.GetRenewalCost(ctx, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, org, renewal.OrgID)
	assertAmount(t, 130_000000, renewal.Amount)

	renewal, err = svc.GetRenewalCost(ctx, 3, 5)
	require.NoError(t, err)
	assertAmount(t, 45_000000, renewal.Amount)

	meter.CurrentUsageFunc = func(ctx context.Context, orgID int64, meterID string) (uint64, error) {
		return 0, errors.New("redis down")
	}
	_, err = svc.GetRenewalCost(ctx, 4, 1)
	assert.ErrorContains(t, err, "redis down")
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestGetBatchRenewalCost(t *testing.T) {
	svc := newTestService(t, &mockMeter{}, nil, flatPricing(1, 100, cycle.Monthly), seatPricing(3))
	ctx := context.Background()

	renewals, err := svc.GetBatchRenewalCost(ctx, []RenewalRequest{{PricingID: 1}, {PricingID: 3, Quantity: 20}})
	require.NoError(t, err)
	require.Len(t, renewals, 2)
	assert.Equal(t, int64(1), renewals[0].PricingID)
	assertAmount(t, 100, renewals[0].Amount)
	assertAmount(t, 130_000000, renewals[1].Amount)

	_, err = svc.GetBatchRenewalCost(ctx, nil)
	assert.ErrorIs(t, err, proration.ErrNoProductsProvided)

	_, err = svc.GetBatchRenewalCost(ctx, []RenewalRequest{{PricingID: 1}, {PricingID: 77}})
	assert.ErrorIs(t, err, proration.ErrSubscriptionNotFound)
	assert.ErrorIs(t, err, storage.ErrPricingNotFound)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindInternal},
		{errors.New("boom"), KindInternal},
		{proration.ErrLengthMismatch, KindValidation},
		{pricing.ErrInvalidTierTable, KindValidation},
		{pricing.ErrInvalidChargeStyle, KindChargeStyle},
		{proration.ErrUsageBasedChargeStyleInconsistency, KindChargeStyle},
		{storage.ErrSubscriptionNotFound, KindNotFound},
		{cycle.ErrRenewalNotDue, KindConflict},
		{ErrPricingInactive, KindConflict},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}

	wrapped := errors.Join(proration.ErrSubscriptionNotFound, storage.ErrPricingNotFound)
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, "not_found", KindNotFound.String())
}
