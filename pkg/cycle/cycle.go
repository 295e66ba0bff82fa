package cycle

import (
	"errors"
	"time"
)

var (
	ErrUnknownDuration = errors.New("unknown cycle duration")
	ErrRenewalNotDue   = errors.New("renewal is not due yet")
	ErrAlreadyPaused   = errors.New("subscription is already paused")
	ErrNotPaused       = errors.New("subscription is not paused")
	ErrCancelled       = errors.New("subscription is cancelled")
	ErrPastDue         = errors.New("subscription is past due")
)

// Status is the lifecycle state of a subscription, derived from its cycle
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusPastDue   Status = "past_due"
	StatusPaused    Status = "paused"
)

// SubscriptionCycle is the temporal state of one subscription.
//
// StartDate is the proration origin. Plan changes extend EndDate but never
// move StartDate; only a renewal or an unpause sets a new origin.
type SubscriptionCycle struct {
	OrgID                   int64         `json:"org_id"`
	PricingID               int64         `json:"pricing_id"`
	StartDate               time.Time     `json:"start_date"`
	EndDate                 time.Time     `json:"end_date"`
	TimeRemainingWhenPaused time.Duration `json:"time_remaining_when_paused"`
	IsCancelled             bool          `json:"is_cancelled"`
	IsPaused                bool          `json:"is_paused"`
}

// Start opens the first cycle of a new subscription
func Start(orgID, pricingID int64, now time.Time, d Duration) SubscriptionCycle {
	now = truncate(now)
	return SubscriptionCycle{
		OrgID:     orgID,
		PricingID: pricingID,
		StartDate: now,
		EndDate:   now.Add(d.Std()),
	}
}

// Status derives the lifecycle state at now.
//
// A paused subscription reports paused even when cancelled. A cancelled
// subscription is never past due since it will not be billed again.
func (c SubscriptionCycle) Status(now time.Time) Status {
	switch {
	case c.IsPaused:
		return StatusPaused
	case c.IsCancelled:
		return StatusCancelled
	case !now.Before(c.EndDate):
		return StatusPastDue
	default:
		return StatusActive
	}
}

// Renew advances the cycle by one period starting at the previous end date
func (c SubscriptionCycle) Renew(now time.Time, d Duration) (SubscriptionCycle, error) {
	if c.IsPaused {
		return c, ErrAlreadyPaused
	}
	if c.IsCancelled {
		return c, ErrCancelled
	}
	if now.Before(c.EndDate) {
		return c, ErrRenewalNotDue
	}

	next := c
	next.StartDate = c.EndDate
	next.EndDate = c.EndDate.Add(d.Std())
	return next, nil
}

// Pause freezes the unconsumed remainder of the cycle
func (c SubscriptionCycle) Pause(now time.Time) (SubscriptionCycle, error) {
	switch c.Status(now) {
	case StatusPaused:
		return c, ErrAlreadyPaused
	case StatusCancelled:
		return c, ErrCancelled
	case StatusPastDue:
		return c, ErrPastDue
	}

	next := c
	next.TimeRemainingWhenPaused = c.EndDate.Sub(truncate(now))
	next.StartDate = time.Time{}
	next.EndDate = time.Time{}
	next.IsPaused = true
	return next, nil
}

// Unpause resumes a paused cycle with the remainder it had when paused
func (c SubscriptionCycle) Unpause(now time.Time) (SubscriptionCycle, error) {
	if !c.IsPaused {
		return c, ErrNotPaused
	}

	now = truncate(now)
	next := c
	next.StartDate = now
	next.EndDate = now.Add(c.TimeRemainingWhenPaused)
	next.TimeRemainingWhenPaused = 0
	next.IsPaused = false
	return next, nil
}

// Cancel flags the subscription as cancelled. Cancelling twice is a no-op.
func (c SubscriptionCycle) Cancel() SubscriptionCycle {
	next := c
	next.IsCancelled = true
	return next
}

// WithPlanChange moves the subscription to another pricing, keeping the origin
func (c SubscriptionCycle) WithPlanChange(pricingID int64, newEnd time.Time) SubscriptionCycle {
	next := c
	next.PricingID = pricingID
	next.EndDate = newEnd
	return next
}

// Remaining returns the unconsumed part of the cycle at now, never negative
func (c SubscriptionCycle) Remaining(now time.Time) time.Duration {
	if c.IsPaused {
		return c.TimeRemainingWhenPaused
	}
	if !now.Before(c.EndDate) {
		return 0
	}
	return c.EndDate.Sub(now)
}

// truncate drops sub-second precision; cycles are tracked in whole seconds
func truncate(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0).UTC()
}
