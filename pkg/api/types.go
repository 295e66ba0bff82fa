package api

import (
	"time"

	"github.com/platinummonkey/passbill/pkg/billing"
	"github.com/platinummonkey/passbill/pkg/pricing"
	"github.com/platinummonkey/passbill/pkg/proration"
)

// InitialPurchaseRequest is the body of POST /v1/quotes/initial-purchase
type InitialPurchaseRequest struct {
	PricingIDs []int64  `json:"pricing_ids"`
	Quantities []uint64 `json:"quantities"`
}

// ChangeSubscriptionRequest is the body of POST /v1/quotes/change-subscription
type ChangeSubscriptionRequest struct {
	OldPricingID int64     `json:"old_pricing_id"`
	NewPricingID int64     `json:"new_pricing_id"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	NewQuantity  uint64    `json:"new_quantity"`
}

// ChangeQuantityQuoteRequest is the body of POST /v1/quotes/change-quantity
type ChangeQuantityQuoteRequest struct {
	PricingID   int64     `json:"pricing_id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	OldQuantity uint64    `json:"old_quantity"`
	NewQuantity uint64    `json:"new_quantity"`
}

// RenewalsRequest is the body of POST /v1/quotes/renewals
type RenewalsRequest struct {
	Items []billing.RenewalRequest `json:"items"`
}

// RenewalsResponse lists renewal quotes in request order
type RenewalsResponse struct {
	Renewals []proration.Renewal `json:"renewals"`
}

// PricingsResponse lists the pricings of an organization
type PricingsResponse struct {
	Pricings []*pricing.Record `json:"pricings"`
}

// PurchaseBody is the body of POST /v1/orgs/{org}/subscriptions
type PurchaseBody struct {
	PricingID  int64  `json:"pricing_id"`
	Holder     string `json:"holder"`
	Quantity   uint64 `json:"quantity"`
	CouponCode string `json:"coupon_code,omitempty"`
}

// ChangePlanBody is the body of POST /v1/orgs/{org}/subscriptions/{id}/change-plan
type ChangePlanBody struct {
	PricingID int64   `json:"pricing_id"`
	Quantity  *uint64 `json:"quantity,omitempty"`
}

// ChangeQuantityBody is the body of POST /v1/orgs/{org}/subscriptions/{id}/change-quantity
type ChangeQuantityBody struct {
	Quantity uint64 `json:"quantity"`
}
