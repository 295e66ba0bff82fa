package proration

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/passbill/pkg/pricing"
)

// DiscountKind says how a Discount value is interpreted
type DiscountKind string

const (
	DiscountNone    DiscountKind = ""
	DiscountPercent DiscountKind = "percent"
	DiscountFixed   DiscountKind = "fixed"
)

var hundred = decimal.NewFromInt(100)

// Discount is a reduction supplied by a discount provider. The engine only
// applies it; it never decides which discount a buyer is entitled to.
type Discount struct {
	Kind  DiscountKind    `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// PercentOff returns a percentage discount
func PercentOff(p decimal.Decimal) Discount {
	return Discount{Kind: DiscountPercent, Value: p}
}

// AmountOff returns a fixed amount discount in the token's smallest unit
func AmountOff(a decimal.Decimal) Discount {
	return Discount{Kind: DiscountFixed, Value: a}
}

// Validate rejects unknown kinds and negative values
func (d Discount) Validate() error {
	switch d.Kind {
	case DiscountNone, DiscountPercent, DiscountFixed:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDiscount, d.Kind)
	}
	if d.Value.IsNegative() {
		return fmt.Errorf("%w: negative value %s", ErrInvalidDiscount, d.Value)
	}
	return nil
}

// Savings returns how much the discount takes off cost, never more than cost.
// Percentages above 100 are treated as 100.
func (d Discount) Savings(cost decimal.Decimal) (decimal.Decimal, error) {
	if err := d.Validate(); err != nil {
		return decimal.Zero, err
	}

	var savings decimal.Decimal
	switch d.Kind {
	case DiscountPercent:
		pct := decimal.Min(d.Value, hundred)
		savings, _ = cost.Mul(pct).QuoRem(hundred, 0)
	case DiscountFixed:
		savings = d.Value
	default:
		savings = decimal.Zero
	}

	return decimal.Min(savings, cost), nil
}

// CheckoutParams are the line items and discounts of a checkout
type CheckoutParams struct {
	Records    []*pricing.Record
	Quantities []uint64
	Coupon     Discount
	Permanent  Discount
}

// CheckoutBreakdown itemizes a checkout. CouponCost is the subtotal after the
// coupon pass and PermanentCost is the coupon cost after the pass discount.
type CheckoutBreakdown struct {
	PricingIDs        []int64           `json:"pricing_ids"`
	Token             string            `json:"token"`
	Costs             []decimal.Decimal `json:"costs"`
	CouponCost        decimal.Decimal   `json:"coupon_cost"`
	CouponDiscount    Discount          `json:"coupon_discount"`
	CouponSavings     decimal.Decimal   `json:"coupon_savings"`
	PermanentCost     decimal.Decimal   `json:"permanent_cost"`
	PermanentDiscount Discount          `json:"permanent_discount"`
	PermanentSavings  decimal.Decimal   `json:"permanent_savings"`
	SubTotalCost      decimal.Decimal   `json:"sub_total_cost"`
	CheckoutTotalCost decimal.Decimal   `json:"checkout_total_cost"`
}

// CheckoutTotalCost sums the line items, applies the coupon to the subtotal
// and then the permanent pass discount to what the coupon left
func (e *Engine) CheckoutTotalCost(p CheckoutParams) (CheckoutBreakdown, error) {
	token, costs, subtotal, err := sumLineItems(p.Records, p.Quantities)
	if err != nil {
		return CheckoutBreakdown{}, err
	}

	couponSavings, err := p.Coupon.Savings(subtotal)
	if err != nil {
		return CheckoutBreakdown{}, fmt.Errorf("coupon: %w", err)
	}
	couponCost := subtotal.Sub(couponSavings)

	permanentSavings, err := p.Permanent.Savings(couponCost)
	if err != nil {
		return CheckoutBreakdown{}, fmt.Errorf("permanent discount: %w", err)
	}
	permanentCost := couponCost.Sub(permanentSavings)

	ids := make([]int64, len(p.Records))
	for i, rec := range p.Records {
		ids[i] = rec.ID
	}

	return CheckoutBreakdown{
		PricingIDs:        ids,
		Token:             token,
		Costs:             costs,
		CouponCost:        couponCost,
		CouponDiscount:    p.Coupon,
		CouponSavings:     couponSavings,
		PermanentCost:     permanentCost,
		PermanentDiscount: p.Permanent,
		PermanentSavings:  permanentSavings,
		SubTotalCost:      subtotal,
		CheckoutTotalCost: permanentCost,
	}, nil
}
