package proration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/passbill/pkg/cycle"
	"github.com/platinummonkey/passbill/pkg/pricing"
)

func TestDiscountSavings(t *testing.T) {
	tests := []struct {
		name     string
		discount Discount
		cost     int64
		want     int64
	}{
		{"none", Discount{}, 1000, 0},
		{"ten percent", PercentOff(amt(10)), 1000, 100},
		{"percent truncates", PercentOff(amt(10)), 999, 99},
		{"percent above hundred is capped", PercentOff(amt(150)), 1000, 1000},
		{"fixed", AmountOff(amt(250)), 1000, 250},
		{"fixed capped at cost", AmountOff(amt(5000)), 1000, 1000},
		{"zero cost", PercentOff(amt(50)), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.discount.Savings(amt(tt.cost))
			require.NoError(t, err)
			assertAmount(t, tt.want, got)
		})
	}
}

func TestDiscountInvalid(t *testing.T) {
	_, err := PercentOff(amt(-1)).Savings(amt(10))
	assert.ErrorIs(t, err, ErrInvalidDiscount)

	_, err = Discount{Kind: "bogo", Value: amt(1)}.Savings(amt(10))
	assert.ErrorIs(t, err, ErrInvalidDiscount)
}

func TestCheckoutTotalCost(t *testing.T) {
	e := NewEngine()

	breakdown, err := e.CheckoutTotalCost(CheckoutParams{
		Records:    []*pricing.Record{flat(1, 600, cycle.Monthly), flat(2, 400, cycle.Monthly)},
		Quantities: []uint64{1, 1},
		Coupon:     PercentOff(amt(10)),
		Permanent:  AmountOff(amt(100)),
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, breakdown.PricingIDs)
	assert.Equal(t, "USDC", breakdown.Token)
	require.Len(t, breakdown.Costs, 2)
	assertAmount(t, 600, breakdown.Costs[0])
	assertAmount(t, 400, breakdown.Costs[1])
	assertAmount(t, 1000, breakdown.SubTotalCost)
	assertAmount(t, 100, breakdown.CouponSavings)
	assertAmount(t, 900, breakdown.CouponCost)
	assertAmount(t, 100, breakdown.PermanentSavings)
	assertAmount(t, 800, breakdown.PermanentCost)
	assertAmount(t, 800, breakdown.CheckoutTotalCost)
	assert.Equal(t, DiscountPercent, breakdown.CouponDiscount.Kind)
	assert.Equal(t, DiscountFixed, breakdown.PermanentDiscount.Kind)
}

func TestCheckoutPassesAreCappedIndependently(t *testing.T) {
	e := NewEngine()

	breakdown, err := e.CheckoutTotalCost(CheckoutParams{
		Records:    []*pricing.Record{flat(1, 300, cycle.Monthly)},
		Quantities: []uint64{1},
		Coupon:     AmountOff(amt(200)),
		Permanent:  AmountOff(amt(500)),
	})
	require.NoError(t, err)

	assertAmount(t, 200, breakdown.CouponSavings)
	assertAmount(t, 100, breakdown.CouponCost)
	assertAmount(t, 100, breakdown.PermanentSavings)
	assertAmount(t, 0, breakdown.CheckoutTotalCost)
}

func TestCheckoutWithoutDiscounts(t *testing.T) {
	breakdown, err := NewEngine().CheckoutTotalCost(CheckoutParams{
		Records:    []*pricing.Record{seats(pricing.ChargeStyleTieredGraduated)},
		Quantities: []uint64{20},
	})
	require.NoError(t, err)
	assertAmount(t, 130_000000, breakdown.SubTotalCost)
	assertAmount(t, 130_000000, breakdown.CheckoutTotalCost)
	assert.True(t, breakdown.CouponSavings.IsZero())
	assert.True(t, breakdown.PermanentSavings.IsZero())
}

func TestCheckoutErrors(t *testing.T) {
	e := NewEngine()

	_, err := e.CheckoutTotalCost(CheckoutParams{})
	assert.ErrorIs(t, err, ErrNoPricingIDsProvided)

	_, err = e.CheckoutTotalCost(CheckoutParams{
		Records:    []*pricing.Record{flat(1, 1, cycle.Daily)},
		Quantities: []uint64{},
	})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = e.CheckoutTotalCost(CheckoutParams{
		Records:    []*pricing.Record{flat(1, 1, cycle.Daily)},
		Quantities: []uint64{1},
		Permanent:  PercentOff(amt(-5)),
	})
	assert.ErrorIs(t, err, ErrInvalidDiscount)
}
