// Package cycle models billing cycles: the supported cycle durations and the
// temporal state of a subscription.
//
// # Durations
//
// Cycle lengths are fixed numbers of seconds, independent of the calendar:
//
//	daily      86400
//	weekly     604800
//	monthly    2592000   (30 days)
//	quarterly  7776000   (90 days)
//	yearly     31536000  (365 days)
//
// # Status
//
// Subscription status is never stored. It is derived from the cycle fields
// at a given instant:
//
//	c := cycle.Start(orgID, pricingID, time.Now(), cycle.Monthly)
//	c.Status(time.Now()) // active
//
// # Transitions
//
// Every transition returns a new SubscriptionCycle and leaves the receiver
// untouched, so callers can compute the next state, collect funds and only
// then persist it.
//
//	paused, err := c.Pause(now)
//	resumed, err := paused.Unpause(later)
//	renewed, err := c.Renew(now, cycle.Monthly)
package cycle
