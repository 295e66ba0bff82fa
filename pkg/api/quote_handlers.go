package api

import (
	"net/http"

	"github.com/platinummonkey/passbill/pkg/billing"
	"github.com/platinummonkey/passbill/pkg/contextkeys"
	"github.com/platinummonkey/passbill/pkg/httputil"
)

// getPricing handles GET /v1/pricings/{id}
func (s *Server) getPricing(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	rec, err := s.quotes.GetPricing(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, rec)
}

// listPricings handles GET /v1/orgs/{org}/pricings
func (s *Server) listPricings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org")
	if !ok {
		return
	}

	ctx := contextkeys.WithOrgID(r.Context(), orgID)
	recs, err := s.quotes.ListPricings(ctx, orgID)
	if err != nil {
		writeServiceError(w, r.WithContext(ctx), s.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, PricingsResponse{Pricings: recs})
}

// getPricingCost handles GET /v1/pricings/{id}/cost?quantity=N
func (s *Server) getPricingCost(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	quantity, err := httputil.ParseQueryUint64(r, "quantity", 1)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	quote, err := s.quotes.GetPricingTotalCost(r.Context(), id, quantity)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, quote)
}

// getRenewalCost handles GET /v1/pricings/{id}/renewal-cost?quantity=N
func (s *Server) getRenewalCost(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	quantity, err := httputil.ParseQueryUint64(r, "quantity", 1)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	renewal, err := s.quotes.GetRenewalCost(r.Context(), id, quantity)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, renewal)
}

// quoteInitialPurchase handles POST /v1/quotes/initial-purchase
func (s *Server) quoteInitialPurchase(w http.ResponseWriter, r *http.Request) {
	var req InitialPurchaseRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	quote, err := s.quotes.GetInitialPurchaseCost(r.Context(), req.PricingIDs, req.Quantities)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, quote)
}

// quoteCheckout handles POST /v1/quotes/checkout
func (s *Server) quoteCheckout(w http.ResponseWriter, r *http.Request) {
	var req billing.CheckoutRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := contextkeys.WithOrgID(r.Context(), req.OrgID)
	breakdown, err := s.quotes.GetCheckoutTotalCost(ctx, req)
	if err != nil {
		writeServiceError(w, r.WithContext(ctx), s.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, breakdown)
}

// quoteChangeSubscription handles POST /v1/quotes/change-subscription
func (s *Server) quoteChangeSubscription(w http.ResponseWriter, r *http.Request) {
	var req ChangeSubscriptionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	change, err := s.quotes.GetChangeSubscriptionCost(r.Context(), req.OldPricingID, req.NewPricingID, req.StartDate, req.EndDate, req.NewQuantity)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, change)
}

// quoteChangeQuantity handles POST /v1/quotes/change-quantity
func (s *Server) quoteChangeQuantity(w http.ResponseWriter, r *http.Request) {
	var req ChangeQuantityQuoteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	quote, err := s.quotes.GetChangeUnitQuantityCost(r.Context(), req.PricingID, req.StartDate, req.EndDate, req.OldQuantity, req.NewQuantity)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, quote)
}

// quoteRenewals handles POST /v1/quotes/renewals
func (s *Server) quoteRenewals(w http.ResponseWriter, r *http.Request) {
	var req RenewalsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	renewals, err := s.quotes.GetBatchRenewalCost(r.Context(), req.Items)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, RenewalsResponse{Renewals: renewals})
}
