package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/platinummonkey/passbill/pkg/cycle"
	"github.com/platinummonkey/passbill/pkg/proration"
	"github.com/platinummonkey/passbill/pkg/storage"
)

// ChargeReason says which transition produced a charge
type ChargeReason string

const (
	ChargeReasonPurchase       ChargeReason = "purchase"
	ChargeReasonRenewal        ChargeReason = "renewal"
	ChargeReasonPlanChange     ChargeReason = "plan_change"
	ChargeReasonQuantityChange ChargeReason = "quantity_change"
)

// Charge is an amount to collect from a pass holder
type Charge struct {
	ID             uuid.UUID       `json:"id"`
	OrgID          int64           `json:"org_id"`
	SubscriptionID int64           `json:"subscription_id,omitempty"`
	PricingID      int64           `json:"pricing_id"`
	Holder         string          `json:"holder"`
	Token          string          `json:"token"`
	Amount         decimal.Decimal `json:"amount"`
	Reason         ChargeReason    `json:"reason"`
}

// Collector moves funds for a charge. An error aborts the whole operation
// and rolls back the subscription change that produced the charge.
type Collector interface {
	Collect(ctx context.Context, charge Charge) error
}

// CollectorFunc adapts a function to Collector
type CollectorFunc func(ctx context.Context, charge Charge) error

func (f CollectorFunc) Collect(ctx context.Context, charge Charge) error {
	return f(ctx, charge)
}

// Quote is a token amount
type Quote struct {
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

// CheckoutRequest prices a multi item checkout for a pass holder
type CheckoutRequest struct {
	OrgID      int64    `json:"org_id"`
	Holder     string   `json:"holder"`
	PricingIDs []int64  `json:"pricing_ids"`
	Quantities []uint64 `json:"quantities"`
	CouponCode string   `json:"coupon_code,omitempty"`
}

// RenewalRequest asks for the renewal cost of one pricing. Quantity is
// ignored for usage pricings, whose current meter reading is used instead.
type RenewalRequest struct {
	PricingID int64  `json:"pricing_id"`
	Quantity  uint64 `json:"quantity"`
}

// PurchaseRequest opens a subscription to a pricing
type PurchaseRequest struct {
	OrgID      int64  `json:"org_id"`
	PricingID  int64  `json:"pricing_id"`
	Holder     string `json:"holder"`
	Quantity   uint64 `json:"quantity"`
	CouponCode string `json:"coupon_code,omitempty"`
}

// PurchaseResult is the outcome of a purchase. Subscription is nil for one
// time pricings.
type PurchaseResult struct {
	Subscription *SubscriptionView            `json:"subscription,omitempty"`
	Checkout     proration.CheckoutBreakdown `json:"checkout"`
	Charge       *Charge                     `json:"charge,omitempty"`
}

// ChangePlanRequest moves a subscription to another pricing. A nil
// Quantity keeps the current quantity.
type ChangePlanRequest struct {
	OrgID          int64   `json:"org_id"`
	SubscriptionID int64   `json:"subscription_id"`
	PricingID      int64   `json:"pricing_id"`
	Quantity       *uint64 `json:"quantity,omitempty"`
}

// SubscriptionView is a subscription with its status at read time
type SubscriptionView struct {
	*storage.Subscription
	Status cycle.Status `json:"status"`
}

// TransitionResult is the outcome of a charged subscription transition.
// Charge is nil when nothing was owed.
type TransitionResult struct {
	Subscription *SubscriptionView `json:"subscription"`
	Token        string            `json:"token"`
	Amount       decimal.Decimal   `json:"amount"`
	NewEndDate   time.Time         `json:"new_end_date"`
	Charge       *Charge           `json:"charge,omitempty"`
}

func newView(sub *storage.Subscription, now time.Time) *SubscriptionView {
	return &SubscriptionView{Subscription: sub, Status: sub.Cycle.Status(now)}
}
