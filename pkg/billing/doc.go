// Package billing connects the pricing and proration engine to storage,
// usage meters, discounts and fund collection.
//
// # Overview
//
// Service answers quotes. It reads pricing records (inactive ones included,
// so existing subscriptions keep renewing after a pricing is retired), reads
// usage meters for usage pricings, resolves coupons and pass discounts, and
// returns what the engine computes. It never changes state.
//
// Subscriptions applies transitions: Purchase, Renew, ChangePlan,
// ChangeQuantity, Pause, Unpause and Cancel. Every transition runs in a
// storage unit of work. The charge is computed, the subscription is written
// and the Collector is asked for the funds; if collection fails the unit of
// work is rolled back and the subscription is left as it was.
//
// # Quantity changes
//
// A subscription remembers the highest seat count paid for in the current
// cycle. Lowering the count is free, and raising it again up to that mark is
// free too. Only seats above the mark are charged, prorated over the rest of
// the cycle. Renewal resets the mark to the current count.
//
// # Usage
//
//	svc := billing.NewService(store, meter, discounts, proration.NewEngine(), metrics)
//	quote, err := svc.GetPricingTotalCost(ctx, pricingID, 25)
//
//	subs := billing.NewSubscriptions(billing.SubscriptionsConfig{
//		Store:     store,
//		Meter:     meter,
//		Discounts: discounts,
//		Collector: escrow,
//	})
//	res, err := subs.Purchase(ctx, billing.PurchaseRequest{
//		OrgID:     orgID,
//		PricingID: pricingID,
//		Holder:    passHolder,
//		Quantity:  5,
//	})
//
// # Errors
//
// KindOf maps any error returned here to a Kind (validation, charge style,
// not found, conflict or internal) for transports to turn into a status.
package billing
