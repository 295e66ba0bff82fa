package billing

import (
	"errors"

	"github.com/platinummonkey/passbill/pkg/catalog"
	"github.com/platinummonkey/passbill/pkg/cycle"
	"github.com/platinummonkey/passbill/pkg/discount"
	"github.com/platinummonkey/passbill/pkg/pricing"
	"github.com/platinummonkey/passbill/pkg/proration"
	"github.com/platinummonkey/passbill/pkg/storage"
	"github.com/platinummonkey/passbill/pkg/usage"
)

var (
	ErrPricingInactive = errors.New("pricing is not active")
	ErrOrgMismatch     = errors.New("pricing belongs to another organization")
	ErrHolderRequired  = errors.New("holder is required")
	ErrSamePricing     = errors.New("subscription is already on this pricing")
)

// Kind classifies errors for callers that map them to a transport status
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindChargeStyle
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindChargeStyle:
		return "charge_style"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindNotFound, []error{
		storage.ErrPricingNotFound,
		storage.ErrSubscriptionNotFound,
		proration.ErrSubscriptionNotFound,
		discount.ErrCouponNotFound,
	}},
	{KindChargeStyle, []error{
		pricing.ErrInvalidChargeStyle,
		proration.ErrUsageBasedChargeStyleInconsistency,
		proration.ErrTieredChargeStyleInconsistency,
	}},
	{KindConflict, []error{
		cycle.ErrRenewalNotDue,
		cycle.ErrAlreadyPaused,
		cycle.ErrNotPaused,
		cycle.ErrCancelled,
		cycle.ErrPastDue,
		storage.ErrSubscriptionExists,
		usage.ErrInsufficientUsage,
		ErrPricingInactive,
	}},
	{KindValidation, []error{
		proration.ErrNoPricingIDsProvided,
		proration.ErrNoProductsProvided,
		proration.ErrLengthMismatch,
		proration.ErrInvalidDateRange,
		proration.ErrSubscriptionWindowInactive,
		proration.ErrUnitQuantityIsTheSame,
		proration.ErrMixedTokens,
		proration.ErrInvalidDiscount,
		pricing.ErrInvalidTierTable,
		pricing.ErrInvalidRecord,
		cycle.ErrUnknownDuration,
		discount.ErrCouponExpired,
		usage.ErrInvalidMeter,
		catalog.ErrInvalidCatalog,
		ErrOrgMismatch,
		ErrHolderRequired,
		ErrSamePricing,
	}},
}

// KindOf classifies err. Not found wins over the other kinds because a
// missing record usually explains every later failure.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, group := range kinds {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.kind
			}
		}
	}
	return KindInternal
}
