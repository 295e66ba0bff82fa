package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/passbill/pkg/cycle"
	"github.com/platinummonkey/passbill/pkg/discount"
	"github.com/platinummonkey/passbill/pkg/observability"
	"github.com/platinummonkey/passbill/pkg/pricing"
	"github.com/platinummonkey/passbill/pkg/proration"
	"github.com/platinummonkey/passbill/pkg/storage"
	"github.com/platinummonkey/passbill/pkg/usage"
)

// Subscriptions applies subscription transitions. Each transition computes
// its charge, collects it and persists the new cycle in one unit of work, so
// a failed collection leaves the subscription untouched.
type Subscriptions struct {
	store     storage.Store
	meter     usage.Meter
	discounts discount.Provider
	collector Collector
	engine    *proration.Engine
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// SubscriptionsConfig holds the collaborators of Subscriptions. Meter,
// Discounts, Metrics and Logger are optional.
type SubscriptionsConfig struct {
	Store     storage.Store
	Meter     usage.Meter
	Discounts discount.Provider
	Collector Collector
	Engine    *proration.Engine
	Metrics   *observability.Metrics
	Logger    *observability.Logger
}

// NewSubscriptions creates the subscription orchestrator
func NewSubscriptions(cfg SubscriptionsConfig) *Subscriptions {
	if cfg.Engine == nil {
		cfg.Engine = proration.NewEngine()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Subscriptions{
		store:     cfg.Store,
		meter:     cfg.Meter,
		discounts: cfg.Discounts,
		collector: cfg.Collector,
		engine:    cfg.Engine,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// Get returns a subscription and its current status
func (s *Subscriptions) Get(ctx context.Context, orgID, id int64) (*SubscriptionView, error) {
	sub, err := s.store.GetSubscription(ctx, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %d: %w", id, err)
	}
	return newView(sub, s.engine.Now()), nil
}

// ListDue returns subscriptions whose cycle has ended and that can renew
func (s *Subscriptions) ListDue(ctx context.Context, limit int) ([]*storage.Subscription, error) {
	subs, err := s.store.ListDueSubscriptions(ctx, s.engine.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	return subs, nil
}

// Purchase buys a pricing for a pass holder. Recurring pricings open a
// subscription; one time pricings are only charged. Usage pricings are
// charged for the current meter reading, which is marked processed.
func (s *Subscriptions) Purchase(ctx context.Context, req PurchaseRequest) (res *PurchaseResult, err error) {
	ctx, span := s.start(ctx, "Purchase", req.OrgID, attribute.Int64("pricing.id", req.PricingID))
	defer func() { s.finish(span, "purchase", err) }()

	if req.Holder == "" {
		return nil, ErrHolderRequired
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		rec, err := s.pricingFor(ctx, tx, req.OrgID, req.PricingID)
		if err != nil {
			return err
		}
		if !rec.Active {
			return fmt.Errorf("%w: %d", ErrPricingInactive, rec.ID)
		}

		quantity := req.Quantity
		if rec.ChargeStyle.IsUsage() {
			if quantity, err = readUsage(ctx, s.meter, rec); err != nil {
				return err
			}
		}

		params, err := discountParams(ctx, s.discounts, req.OrgID, req.Holder, req.CouponCode)
		if err != nil {
			return err
		}
		params.Records = []*pricing.Record{rec}
		params.Quantities = []uint64{quantity}

		breakdown, err := s.engine.CheckoutTotalCost(params)
		if err != nil {
			return err
		}
		res = &PurchaseResult{Checkout: breakdown}

		var subID int64
		if rec.ChargeStyle.IsRecurring() {
			now := s.engine.Now()
			sub := &storage.Subscription{
				Holder:   req.Holder,
				Cycle:    cycle.Start(req.OrgID, rec.ID, now, rec.CycleDuration),
				Quantity: cycle.NewUnitQuantity(quantity),
			}
			if err := tx.CreateSubscription(ctx, sub); err != nil {
				return fmt.Errorf("failed to create subscription: %w", err)
			}
			subID = sub.ID
			res.Subscription = newView(sub, now)
		}

		res.Charge, err = s.collectUsage(ctx, rec, quantity, Charge{
			OrgID:          req.OrgID,
			SubscriptionID: subID,
			PricingID:      rec.ID,
			Holder:         req.Holder,
			Token:          breakdown.Token,
			Amount:         breakdown.CheckoutTotalCost,
			Reason:         ChargeReasonPurchase,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Renew charges the next cycle of a due subscription. Usage pricings are
// charged for the current meter reading. The reading is marked processed
// before collection and restored if collection fails.
func (s *Subscriptions) Renew(ctx context.Context, orgID, id int64) (res *TransitionResult, err error) {
	ctx, span := s.start(ctx, "Renew", orgID, attribute.Int64("subscription.id", id))
	defer func() { s.finish(span, "renew", err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		sub, err := s.subscriptionFor(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		rec, err := s.pricingFor(ctx, tx, orgID, sub.Cycle.PricingID)
		if err != nil {
			return err
		}

		now := s.engine.Now()
		next, err := sub.Cycle.Renew(now, rec.CycleDuration)
		if err != nil {
			return err
		}

		quantity := sub.Quantity.Current
		if rec.ChargeStyle.IsUsage() {
			if quantity, err = readUsage(ctx, s.meter, rec); err != nil {
				return err
			}
		}

		renewal, err := s.engine.RenewalCost(rec, quantity)
		if err != nil {
			return err
		}

		sub.Cycle = next
		sub.Quantity = sub.Quantity.Reset()
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}

		res = &TransitionResult{
			Subscription: newView(sub, now),
			Token:        renewal.Token,
			Amount:       renewal.Amount,
			NewEndDate:   next.EndDate,
		}
		res.Charge, err = s.collectUsage(ctx, rec, quantity, Charge{
			OrgID:          orgID,
			SubscriptionID: sub.ID,
			PricingID:      rec.ID,
			Holder:         sub.Holder,
			Token:          renewal.Token,
			Amount:         renewal.Amount,
			Reason:         ChargeReasonRenewal,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ChangePlan moves an active subscription to another pricing of the same
// family. Moving to a longer cycle is charged for the unconsumed part of the
// new cycle and extends the end date. Other moves keep the end date and only
// charge tiered seats above the count already paid for in this cycle.
func (s *Subscriptions) ChangePlan(ctx context.Context, req ChangePlanRequest) (res *TransitionResult, err error) {
	ctx, span := s.start(ctx, "ChangePlan", req.OrgID,
		attribute.Int64("subscription.id", req.SubscriptionID),
		attribute.Int64("pricing.new_id", req.PricingID),
	)
	defer func() { s.finish(span, "change_plan", err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		sub, err := s.subscriptionFor(ctx, tx, req.OrgID, req.SubscriptionID)
		if err != nil {
			return err
		}
		now := s.engine.Now()
		if err := requireActive(sub, now); err != nil {
			return err
		}

		oldRec, err := s.pricingFor(ctx, tx, req.OrgID, sub.Cycle.PricingID)
		if err != nil {
			return err
		}
		newRec, err := s.pricingFor(ctx, tx, req.OrgID, req.PricingID)
		if err != nil {
			return err
		}
		if newRec.ID == oldRec.ID {
			return fmt.Errorf("%w: %d", ErrSamePricing, newRec.ID)
		}
		if !newRec.Active {
			return fmt.Errorf("%w: %d", ErrPricingInactive, newRec.ID)
		}

		quantity := sub.Quantity.Current
		if req.Quantity != nil {
			quantity = *req.Quantity
		}
		if newRec.ChargeStyle.IsUsage() {
			if quantity, err = readUsage(ctx, s.meter, newRec); err != nil {
				return err
			}
		}

		start, end := sub.Cycle.StartDate, sub.Cycle.EndDate
		change, err := s.engine.ChangeSubscriptionCost(oldRec, newRec, start, end, quantity)
		if err != nil {
			return err
		}

		if newRec.ChargeStyle.IsTiered() {
			if newRec.CycleDuration.Seconds() > oldRec.CycleDuration.Seconds() {
				// the whole new cycle was priced at quantity
				sub.Quantity = cycle.NewUnitQuantity(quantity)
			} else {
				if !sub.Quantity.Covered(quantity) {
					extra, err := s.engine.ChangeUnitQuantityCost(newRec, start, end, sub.Quantity.Committed, quantity)
					if err != nil {
						return err
					}
					change.Amount = change.Amount.Add(extra.Amount)
				}
				sub.Quantity = sub.Quantity.Apply(quantity)
			}
		}

		sub.Cycle = sub.Cycle.WithPlanChange(newRec.ID, change.NewEndDate)
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}

		res = &TransitionResult{
			Subscription: newView(sub, now),
			Token:        change.Token,
			Amount:       change.Amount,
			NewEndDate:   change.NewEndDate,
		}
		res.Charge, err = s.collect(ctx, Charge{
			OrgID:          req.OrgID,
			SubscriptionID: sub.ID,
			PricingID:      newRec.ID,
			Holder:         sub.Holder,
			Token:          change.Token,
			Amount:         change.Amount,
			Reason:         ChargeReasonPlanChange,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ChangeQuantity sets the seat count of an active tiered subscription.
// Only quantities above the highest count already paid for in this cycle
// are charged, so returning to a previously paid count is free.
func (s *Subscriptions) ChangeQuantity(ctx context.Context, orgID, id int64, quantity uint64) (res *TransitionResult, err error) {
	ctx, span := s.start(ctx, "ChangeQuantity", orgID,
		attribute.Int64("subscription.id", id),
		attribute.Int64("quantity", int64(quantity)),
	)
	defer func() { s.finish(span, "change_quantity", err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		sub, err := s.subscriptionFor(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		now := s.engine.Now()
		if err := requireActive(sub, now); err != nil {
			return err
		}
		rec, err := s.pricingFor(ctx, tx, orgID, sub.Cycle.PricingID)
		if err != nil {
			return err
		}

		start, end := sub.Cycle.StartDate, sub.Cycle.EndDate
		charge, err := s.engine.ChangeUnitQuantityCost(rec, start, end, sub.Quantity.Current, quantity)
		if err != nil {
			return err
		}
		if sub.Quantity.Covered(quantity) {
			charge.Amount = decimal.Zero
		} else if sub.Quantity.Committed != sub.Quantity.Current {
			charge, err = s.engine.ChangeUnitQuantityCost(rec, start, end, sub.Quantity.Committed, quantity)
			if err != nil {
				return err
			}
		}

		sub.Quantity = sub.Quantity.Apply(quantity)
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}

		res = &TransitionResult{
			Subscription: newView(sub, now),
			Token:        charge.Token,
			Amount:       charge.Amount,
			NewEndDate:   end,
		}
		res.Charge, err = s.collect(ctx, Charge{
			OrgID:          orgID,
			SubscriptionID: sub.ID,
			PricingID:      rec.ID,
			Holder:         sub.Holder,
			Token:          charge.Token,
			Amount:         charge.Amount,
			Reason:         ChargeReasonQuantityChange,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Pause freezes the remaining time of an active subscription
func (s *Subscriptions) Pause(ctx context.Context, orgID, id int64) (*SubscriptionView, error) {
	return s.transition(ctx, "pause", orgID, id, func(c cycle.SubscriptionCycle, now time.Time) (cycle.SubscriptionCycle, error) {
		return c.Pause(now)
	})
}

// Unpause resumes a paused subscription with the time it had left
func (s *Subscriptions) Unpause(ctx context.Context, orgID, id int64) (*SubscriptionView, error) {
	return s.transition(ctx, "unpause", orgID, id, func(c cycle.SubscriptionCycle, now time.Time) (cycle.SubscriptionCycle, error) {
		return c.Unpause(now)
	})
}

// Cancel stops future renewals. The current cycle stays usable until it ends.
func (s *Subscriptions) Cancel(ctx context.Context, orgID, id int64) (*SubscriptionView, error) {
	return s.transition(ctx, "cancel", orgID, id, func(c cycle.SubscriptionCycle, now time.Time) (cycle.SubscriptionCycle, error) {
		return c.Cancel(), nil
	})
}

func (s *Subscriptions) transition(ctx context.Context, name string, orgID, id int64, fn func(cycle.SubscriptionCycle, time.Time) (cycle.SubscriptionCycle, error)) (view *SubscriptionView, err error) {
	ctx, span := s.start(ctx, name, orgID, attribute.Int64("subscription.id", id))
	defer func() { s.finish(span, name, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		sub, err := s.subscriptionFor(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		now := s.engine.Now()
		next, err := fn(sub.Cycle, now)
		if err != nil {
			return err
		}
		sub.Cycle = next
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}
		view = newView(sub, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// requireActive rejects changes to paused, cancelled or lapsed subscriptions
func requireActive(sub *storage.Subscription, now time.Time) error {
	switch sub.Cycle.Status(now) {
	case cycle.StatusPaused:
		return cycle.ErrAlreadyPaused
	case cycle.StatusCancelled:
		return cycle.ErrCancelled
	case cycle.StatusPastDue:
		return cycle.ErrPastDue
	}
	return nil
}

func (s *Subscriptions) subscriptionFor(ctx context.Context, tx storage.Tx, orgID, id int64) (*storage.Subscription, error) {
	sub, err := tx.GetSubscription(ctx, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %d: %w", id, err)
	}
	return sub, nil
}

// pricingFor reads a pricing and hides pricings of other organizations
func (s *Subscriptions) pricingFor(ctx context.Context, tx storage.Tx, orgID, id int64) (*pricing.Record, error) {
	rec, err := tx.GetPricing(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get pricing %d: %w", id, err)
	}
	if rec.OrgID != orgID {
		return nil, fmt.Errorf("%w: pricing %d", storage.ErrPricingNotFound, id)
	}
	return rec, nil
}

// collectUsage collects charge for a usage reading of rec. The reading is
// marked processed first and restored when collection fails. Other charge
// styles are collected as is.
func (s *Subscriptions) collectUsage(ctx context.Context, rec *pricing.Record, quantity uint64, charge Charge) (*Charge, error) {
	if !rec.ChargeStyle.IsUsage() || quantity == 0 {
		return s.collect(ctx, charge)
	}

	if err := s.meter.MarkProcessed(ctx, rec.OrgID, rec.UsageMeterID, quantity); err != nil {
		return nil, fmt.Errorf("failed to mark usage processed: %w", err)
	}

	collected, err := s.collect(ctx, charge)
	if err != nil {
		if rerr := s.meter.Restore(ctx, rec.OrgID, rec.UsageMeterID, quantity); rerr != nil {
			s.logger.WithError(rerr).WithFields(map[string]interface{}{
				"org_id":          charge.OrgID,
				"subscription_id": charge.SubscriptionID,
				"meter_id":        rec.UsageMeterID,
				"amount":          quantity,
			}).Error("Failed to restore usage after failed collection")
		}
		return nil, err
	}
	return collected, nil
}

// collect sends positive charges to the collector. Zero charges are not
// collected and return nil.
func (s *Subscriptions) collect(ctx context.Context, charge Charge) (*Charge, error) {
	if !charge.Amount.IsPositive() {
		return nil, nil
	}
	if s.collector == nil {
		return nil, fmt.Errorf("no collector configured")
	}

	charge.ID = uuid.New()
	if err := s.collector.Collect(ctx, charge); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"charge_id": charge.ID.String(),
			"org_id":    charge.OrgID,
			"reason":    string(charge.Reason),
		}).Warn("Charge collection failed")
		return nil, fmt.Errorf("failed to collect charge: %w", err)
	}

	s.metrics.RecordCharge(string(charge.Reason), charge.Token, charge.Amount.InexactFloat64())
	s.logger.WithFields(map[string]interface{}{
		"charge_id":       charge.ID.String(),
		"org_id":          charge.OrgID,
		"subscription_id": charge.SubscriptionID,
		"token":           charge.Token,
		"amount":          charge.Amount.String(),
		"reason":          string(charge.Reason),
	}).Info("Charge collected")
	return &charge, nil
}

func (s *Subscriptions) start(ctx context.Context, op string, orgID int64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.Int64("org.id", orgID))
	return tracer.Start(ctx, "Subscriptions."+op, trace.WithAttributes(attrs...))
}

func (s *Subscriptions) finish(span trace.Span, op string, err error) {
	s.metrics.RecordTransition(op, result(err))
	endSpan(span, err)
}
