package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/passbill/pkg/billing"
	"github.com/platinummonkey/passbill/pkg/contextkeys"
	"github.com/platinummonkey/passbill/pkg/httputil"
	"github.com/platinummonkey/passbill/pkg/observability"
)

// SubscriptionHandlers handles subscription HTTP requests
type SubscriptionHandlers struct {
	subscriptions SubscriptionService
	logger        *observability.Logger
}

// NewSubscriptionHandlers creates a new SubscriptionHandlers
func NewSubscriptionHandlers(subscriptions SubscriptionService, logger *observability.Logger) *SubscriptionHandlers {
	return &SubscriptionHandlers{
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers subscription routes
func (h *SubscriptionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org}/subscriptions", h.Purchase).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{org}/subscriptions/{id}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{org}/subscriptions/{id}/renew", h.Renew).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{org}/subscriptions/{id}/pause", h.Pause).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{org}/subscriptions/{id}/unpause", h.Unpause).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{org}/subscriptions/{id}/cancel", h.Cancel).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{org}/subscriptions/{id}/change-plan", h.ChangePlan).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{org}/subscriptions/{id}/change-quantity", h.ChangeQuantity).Methods(http.MethodPost)
}

// orgScope parses the org path parameter and tags the request context with it
func orgScope(w http.ResponseWriter, r *http.Request) (*http.Request, int64, bool) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org")
	if !ok {
		return r, 0, false
	}
	return r.WithContext(contextkeys.WithOrgID(r.Context(), orgID)), orgID, true
}

// subscriptionScope parses the org and subscription path parameters
func subscriptionScope(w http.ResponseWriter, r *http.Request) (*http.Request, int64, int64, bool) {
	r, orgID, ok := orgScope(w, r)
	if !ok {
		return r, 0, 0, false
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return r, 0, 0, false
	}
	return r, orgID, id, true
}

// Purchase handles POST /v1/orgs/{org}/subscriptions
func (h *SubscriptionHandlers) Purchase(w http.ResponseWriter, r *http.Request) {
	r, orgID, ok := orgScope(w, r)
	if !ok {
		return
	}

	var body PurchaseBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	res, err := h.subscriptions.Purchase(r.Context(), billing.PurchaseRequest{
		OrgID:      orgID,
		PricingID:  body.PricingID,
		Holder:     body.Holder,
		Quantity:   body.Quantity,
		CouponCode: body.CouponCode,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteCreated(w, res)
}

// Get handles GET /v1/orgs/{org}/subscriptions/{id}
func (h *SubscriptionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	r, orgID, id, ok := subscriptionScope(w, r)
	if !ok {
		return
	}

	view, err := h.subscriptions.Get(r.Context(), orgID, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, view)
}

// Renew handles POST /v1/orgs/{org}/subscriptions/{id}/renew
func (h *SubscriptionHandlers) Renew(w http.ResponseWriter, r *http.Request) {
	h.charged(w, r, h.subscriptions.Renew)
}

// Pause handles POST /v1/orgs/{org}/subscriptions/{id}/pause
func (h *SubscriptionHandlers) Pause(w http.ResponseWriter, r *http.Request) {
	h.uncharged(w, r, h.subscriptions.Pause)
}

// Unpause handles POST /v1/orgs/{org}/subscriptions/{id}/unpause
func (h *SubscriptionHandlers) Unpause(w http.ResponseWriter, r *http.Request) {
	h.uncharged(w, r, h.subscriptions.Unpause)
}

// Cancel handles POST /v1/orgs/{org}/subscriptions/{id}/cancel
func (h *SubscriptionHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	h.uncharged(w, r, h.subscriptions.Cancel)
}

// ChangePlan handles POST /v1/orgs/{org}/subscriptions/{id}/change-plan
func (h *SubscriptionHandlers) ChangePlan(w http.ResponseWriter, r *http.Request) {
	r, orgID, id, ok := subscriptionScope(w, r)
	if !ok {
		return
	}

	var body ChangePlanBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	res, err := h.subscriptions.ChangePlan(r.Context(), billing.ChangePlanRequest{
		OrgID:          orgID,
		SubscriptionID: id,
		PricingID:      body.PricingID,
		Quantity:       body.Quantity,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, res)
}

// ChangeQuantity handles POST /v1/orgs/{org}/subscriptions/{id}/change-quantity
func (h *SubscriptionHandlers) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	r, orgID, id, ok := subscriptionScope(w, r)
	if !ok {
		return
	}

	var body ChangeQuantityBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	res, err := h.subscriptions.ChangeQuantity(r.Context(), orgID, id, body.Quantity)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, res)
}

func (h *SubscriptionHandlers) charged(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, orgID, id int64) (*billing.TransitionResult, error)) {
	r, orgID, id, ok := subscriptionScope(w, r)
	if !ok {
		return
	}

	res, err := fn(r.Context(), orgID, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, res)
}

func (h *SubscriptionHandlers) uncharged(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, orgID, id int64) (*billing.SubscriptionView, error)) {
	r, orgID, id, ok := subscriptionScope(w, r)
	if !ok {
		return
	}

	view, err := fn(r.Context(), orgID, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	_ = httputil.WriteSuccess(w, view)
}
