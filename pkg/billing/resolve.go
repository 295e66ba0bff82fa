package billing

import (
	"context"
	"fmt"

	"github.com/platinummonkey/passbill/pkg/discount"
	"github.com/platinummonkey/passbill/pkg/pricing"
	"github.com/platinummonkey/passbill/pkg/proration"
	"github.com/platinummonkey/passbill/pkg/usage"
)

// readUsage returns the current meter reading of a usage pricing
func readUsage(ctx context.Context, meter usage.Meter, rec *pricing.Record) (uint64, error) {
	if meter == nil {
		return 0, fmt.Errorf("no usage meter configured for pricing %d", rec.ID)
	}
	q, err := meter.CurrentUsage(ctx, rec.OrgID, rec.UsageMeterID)
	if err != nil {
		return 0, fmt.Errorf("failed to read usage for pricing %d: %w", rec.ID, err)
	}
	return q, nil
}

// discountParams resolves the coupon and permanent discount of a holder.
// Without a provider no discount applies.
func discountParams(ctx context.Context, provider discount.Provider, orgID int64, holder, couponCode string) (proration.CheckoutParams, error) {
	var params proration.CheckoutParams
	if provider == nil {
		return params, nil
	}

	coupon, err := provider.Coupon(ctx, orgID, couponCode)
	if err != nil {
		return params, fmt.Errorf("failed to resolve coupon: %w", err)
	}
	permanent, err := provider.PassDiscount(ctx, orgID, holder)
	if err != nil {
		return params, fmt.Errorf("failed to resolve pass discount: %w", err)
	}
	params.Coupon = coupon
	params.Permanent = permanent
	return params, nil
}
