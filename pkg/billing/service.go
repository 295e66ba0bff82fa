package billing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/passbill/pkg/discount"
	"github.com/platinummonkey/passbill/pkg/observability"
	"github.com/platinummonkey/passbill/pkg/pricing"
	"github.com/platinummonkey/passbill/pkg/proration"
	"github.com/platinummonkey/passbill/pkg/storage"
	"github.com/platinummonkey/passbill/pkg/usage"
)

var tracer = otel.Tracer("passbill/billing")

// maxConcurrentLookups bounds parallel record reads for multi item quotes
const maxConcurrentLookups = 8

// Service answers price quotes. It resolves pricing records, usage readings
// and discounts and hands them to the proration engine; it never mutates
// subscription state.
type Service struct {
	pricings  storage.PricingReader
	meter     usage.Meter
	discounts discount.Provider
	engine    *proration.Engine
	metrics   *observability.Metrics
}

// NewService creates a quote service. metrics may be nil.
func NewService(pricings storage.PricingReader, meter usage.Meter, discounts discount.Provider, engine *proration.Engine, metrics *observability.Metrics) *Service {
	if engine == nil {
		engine = proration.NewEngine()
	}
	return &Service{
		pricings:  pricings,
		meter:     meter,
		discounts: discounts,
		engine:    engine,
		metrics:   metrics,
	}
}

// Engine returns the proration engine used for quotes
func (s *Service) Engine() *proration.Engine {
	return s.engine
}

// GetPricing returns a pricing record, active or not
func (s *Service) GetPricing(ctx context.Context, id int64) (*pricing.Record, error) {
	rec, err := s.pricings.GetPricing(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get pricing %d: %w", id, err)
	}
	return rec, nil
}

// ListPricings returns the pricings of an organization
func (s *Service) ListPricings(ctx context.Context, orgID int64) ([]*pricing.Record, error) {
	recs, err := s.pricings.ListPricings(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricings: %w", err)
	}
	return recs, nil
}

// GetPricingTotalCost prices quantity units of a pricing
func (s *Service) GetPricingTotalCost(ctx context.Context, id int64, quantity uint64) (quote Quote, err error) {
	ctx, span := s.start(ctx, "GetPricingTotalCost", attribute.Int64("pricing.id", id))
	defer func() { s.finish(span, "pricing_total_cost", err) }()

	rec, err := s.GetPricing(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	token, amount, err := pricing.TotalCost(rec, quantity)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Token: token, Amount: amount}, nil
}

// GetInitialPurchaseCost sums the full cost of every line item
func (s *Service) GetInitialPurchaseCost(ctx context.Context, ids []int64, quantities []uint64) (quote Quote, err error) {
	ctx, span := s.start(ctx, "GetInitialPurchaseCost", attribute.Int("items", len(ids)))
	defer func() { s.finish(span, "initial_purchase_cost", err) }()

	if len(ids) == 0 {
		return Quote{}, proration.ErrNoPricingIDsProvided
	}
	if len(ids) != len(quantities) {
		return Quote{}, fmt.Errorf("%w: %d pricings, %d quantities", proration.ErrLengthMismatch, len(ids), len(quantities))
	}

	recs, err := s.resolve(ctx, ids)
	if err != nil {
		return Quote{}, err
	}
	token, amount, err := s.engine.InitialPurchaseCost(recs, quantities)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Token: token, Amount: amount}, nil
}

// GetCheckoutTotalCost prices a checkout with the holder's coupon and
// permanent pass discount applied
func (s *Service) GetCheckoutTotalCost(ctx context.Context, req CheckoutRequest) (breakdown proration.CheckoutBreakdown, err error) {
	ctx, span := s.start(ctx, "GetCheckoutTotalCost",
		attribute.Int64("org.id", req.OrgID),
		attribute.Int("items", len(req.PricingIDs)),
	)
	defer func() { s.finish(span, "checkout_total_cost", err) }()

	if len(req.PricingIDs) == 0 {
		return proration.CheckoutBreakdown{}, proration.ErrNoPricingIDsProvided
	}
	if len(req.PricingIDs) != len(req.Quantities) {
		return proration.CheckoutBreakdown{}, fmt.Errorf("%w: %d pricings, %d quantities", proration.ErrLengthMismatch, len(req.PricingIDs), len(req.Quantities))
	}

	recs, err := s.resolve(ctx, req.PricingIDs)
	if err != nil {
		return proration.CheckoutBreakdown{}, err
	}
	for _, rec := range recs {
		if rec.OrgID != req.OrgID {
			return proration.CheckoutBreakdown{}, fmt.Errorf("%w: pricing %d", ErrOrgMismatch, rec.ID)
		}
	}

	params, err := discountParams(ctx, s.discounts, req.OrgID, req.Holder, req.CouponCode)
	if err != nil {
		return proration.CheckoutBreakdown{}, err
	}
	params.Records = recs
	params.Quantities = req.Quantities

	return s.engine.CheckoutTotalCost(params)
}

// GetChangeSubscriptionCost prices moving a subscription window from one
// pricing to another
func (s *Service) GetChangeSubscriptionCost(ctx context.Context, oldID, newID int64, start, end time.Time, newQuantity uint64) (change proration.Change, err error) {
	ctx, span := s.start(ctx, "GetChangeSubscriptionCost",
		attribute.Int64("pricing.old_id", oldID),
		attribute.Int64("pricing.new_id", newID),
	)
	defer func() { s.finish(span, "change_subscription_cost", err) }()

	recs, err := s.resolve(ctx, []int64{oldID, newID})
	if err != nil {
		return proration.Change{}, err
	}
	return s.engine.ChangeSubscriptionCost(recs[0], recs[1], start, end, newQuantity)
}

// GetChangeUnitQuantityCost prices a seat count change on a tiered pricing
func (s *Service) GetChangeUnitQuantityCost(ctx context.Context, id int64, start, end time.Time, oldQuantity, newQuantity uint64) (quote Quote, err error) {
	ctx, span := s.start(ctx, "GetChangeUnitQuantityCost", attribute.Int64("pricing.id", id))
	defer func() { s.finish(span, "change_unit_quantity_cost", err) }()

	rec, err := s.GetPricing(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	charge, err := s.engine.ChangeUnitQuantityCost(rec, start, end, oldQuantity, newQuantity)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Token: charge.Token, Amount: charge.Amount}, nil
}

// GetRenewalCost prices another cycle of a pricing. Usage pricings are
// priced at the organization's current meter reading.
func (s *Service) GetRenewalCost(ctx context.Context, id int64, quantity uint64) (renewal proration.Renewal, err error) {
	ctx, span := s.start(ctx, "GetRenewalCost", attribute.Int64("pricing.id", id))
	defer func() { s.finish(span, "renewal_cost", err) }()

	rec, err := s.GetPricing(ctx, id)
	if err != nil {
		return proration.Renewal{}, err
	}
	q, err := s.renewalQuantity(ctx, rec, quantity)
	if err != nil {
		return proration.Renewal{}, err
	}
	return s.engine.RenewalCost(rec, q)
}

// GetBatchRenewalCost prices a renewal for every request, failing on the
// first unknown pricing
func (s *Service) GetBatchRenewalCost(ctx context.Context, reqs []RenewalRequest) (renewals []proration.Renewal, err error) {
	ctx, span := s.start(ctx, "GetBatchRenewalCost", attribute.Int("items", len(reqs)))
	defer func() { s.finish(span, "batch_renewal_cost", err) }()

	if len(reqs) == 0 {
		return nil, proration.ErrNoProductsProvided
	}

	ids := make([]int64, len(reqs))
	for i, r := range reqs {
		ids[i] = r.PricingID
	}
	recs, err := s.resolve(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", proration.ErrSubscriptionNotFound, err)
	}

	items := make([]proration.RenewalItem, len(reqs))
	for i, rec := range recs {
		q, err := s.renewalQuantity(ctx, rec, reqs[i].Quantity)
		if err != nil {
			return nil, err
		}
		items[i] = proration.RenewalItem{Record: rec, Quantity: q}
	}
	return s.engine.BatchRenewalCost(items)
}

// resolve reads records concurrently, preserving the order of ids
func (s *Service) resolve(ctx context.Context, ids []int64) ([]*pricing.Record, error) {
	recs := make([]*pricing.Record, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i, id := range ids {
		g.Go(func() error {
			rec, err := s.pricings.GetPricing(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to get pricing %d: %w", id, err)
			}
			recs[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Service) renewalQuantity(ctx context.Context, rec *pricing.Record, quantity uint64) (uint64, error) {
	if !rec.ChargeStyle.IsUsage() {
		return quantity, nil
	}
	return readUsage(ctx, s.meter, rec)
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Billing."+op, trace.WithAttributes(attrs...))
}

func (s *Service) finish(span trace.Span, op string, err error) {
	s.metrics.RecordQuote(op, result(err))
	endSpan(span, err)
}

// result labels an outcome for metrics: ok or the error kind
func result(err error) string {
	if err == nil {
		return "ok"
	}
	return KindOf(err).String()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).String())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
