package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/passbill/pkg/billing"
	"github.com/platinummonkey/passbill/pkg/observability"
	"github.com/platinummonkey/passbill/pkg/pricing"
	"github.com/platinummonkey/passbill/pkg/proration"
)

// QuoteService answers read-only cost questions. *billing.Service implements it.
type QuoteService interface {
	GetPricing(ctx context.Context, id int64) (*pricing.Record, error)
	ListPricings(ctx context.Context, orgID int64) ([]*pricing.Record, error)
	GetPricingTotalCost(ctx context.Context, id int64, quantity uint64) (billing.Quote, error)
	GetInitialPurchaseCost(ctx context.Context, ids []int64, quantities []uint64) (billing.Quote, error)
	GetCheckoutTotalCost(ctx context.Context, req billing.CheckoutRequest) (proration.CheckoutBreakdown, error)
	GetChangeSubscriptionCost(ctx context.Context, oldID, newID int64, start, end time.Time, newQuantity uint64) (proration.Change, error)
	GetChangeUnitQuantityCost(ctx context.Context, id int64, start, end time.Time, oldQuantity, newQuantity uint64) (billing.Quote, error)
	GetRenewalCost(ctx context.Context, id int64, quantity uint64) (proration.Renewal, error)
	GetBatchRenewalCost(ctx context.Context, reqs []billing.RenewalRequest) ([]proration.Renewal, error)
}

// SubscriptionService applies subscription transitions. *billing.Subscriptions implements it.
type SubscriptionService interface {
	Get(ctx context.Context, orgID, id int64) (*billing.SubscriptionView, error)
	Purchase(ctx context.Context, req billing.PurchaseRequest) (*billing.PurchaseResult, error)
	Renew(ctx context.Context, orgID, id int64) (*billing.TransitionResult, error)
	ChangePlan(ctx context.Context, req billing.ChangePlanRequest) (*billing.TransitionResult, error)
	ChangeQuantity(ctx context.Context, orgID, id int64, quantity uint64) (*billing.TransitionResult, error)
	Pause(ctx context.Context, orgID, id int64) (*billing.SubscriptionView, error)
	Unpause(ctx context.Context, orgID, id int64) (*billing.SubscriptionView, error)
	Cancel(ctx context.Context, orgID, id int64) (*billing.SubscriptionView, error)
}

// Server is the passbill HTTP API
type Server struct {
	router        *mux.Router
	quotes        QuoteService
	subscriptions SubscriptionService
	logger        *observability.Logger
}

// NewServer creates the API server. Subscription routes are only registered
// when subscriptions is non-nil.
func NewServer(quotes QuoteService, subscriptions SubscriptionService, logger *observability.Logger) *Server {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s := &Server{
		router:        mux.NewRouter(),
		quotes:        quotes,
		subscriptions: subscriptions,
		logger:        logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Pricing routes
	v1.HandleFunc("/pricings/{id}", s.getPricing).Methods(http.MethodGet)
	v1.HandleFunc("/pricings/{id}/cost", s.getPricingCost).Methods(http.MethodGet)
	v1.HandleFunc("/pricings/{id}/renewal-cost", s.getRenewalCost).Methods(http.MethodGet)
	v1.HandleFunc("/orgs/{org}/pricings", s.listPricings).Methods(http.MethodGet)

	// Quote routes
	v1.HandleFunc("/quotes/initial-purchase", s.quoteInitialPurchase).Methods(http.MethodPost)
	v1.HandleFunc("/quotes/checkout", s.quoteCheckout).Methods(http.MethodPost)
	v1.HandleFunc("/quotes/change-subscription", s.quoteChangeSubscription).Methods(http.MethodPost)
	v1.HandleFunc("/quotes/change-quantity", s.quoteChangeQuantity).Methods(http.MethodPost)
	v1.HandleFunc("/quotes/renewals", s.quoteRenewals).Methods(http.MethodPost)

	if s.subscriptions != nil {
		NewSubscriptionHandlers(s.subscriptions, s.logger).RegisterRoutes(v1)
	}

	s.router.NotFoundHandler = http.HandlerFunc(notFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
}

// Router exposes the router so callers can add middleware with Use
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RouteTemplate returns the matched route template, such as
// "/v1/pricings/{id}", or "" outside a matched route
func RouteTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tmpl
}
