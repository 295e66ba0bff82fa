package proration

import "errors"

var (
	ErrNoPricingIDsProvided               = errors.New("no pricing ids provided")
	ErrNoProductsProvided                 = errors.New("no products provided")
	ErrLengthMismatch                     = errors.New("pricing ids and quantities differ in length")
	ErrInvalidDateRange                   = errors.New("invalid date range")
	ErrSubscriptionWindowInactive         = errors.New("subscription window is not active")
	ErrUnitQuantityIsTheSame              = errors.New("unit quantity is the same")
	ErrMixedTokens                        = errors.New("line items are priced in different tokens")
	ErrInvalidDiscount                    = errors.New("invalid discount")
	ErrUsageBasedChargeStyleInconsistency = errors.New("usage based charge style inconsistency")
	ErrTieredChargeStyleInconsistency     = errors.New("tiered charge style inconsistency")
	ErrSubscriptionNotFound               = errors.New("subscription does not exist")
)
