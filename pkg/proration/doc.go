// Package proration prices subscription transitions.
//
// The engine never looks anything up: callers pass resolved pricing records,
// quantities or usage readings, and the current cycle window. It returns the
// amount to collect and, for plan changes, the new cycle end date. Applying
// the result is the caller's job.
//
// Proration is always measured from the subscription's original start date.
// A plan change that lengthens the cycle charges
//
//	newPrice * (newDuration - elapsed) / newDuration
//
// and moves the end date to start + newDuration. Equal or shorter cycles are
// free. A seat increase charges the cost difference scaled by the unexpired
// fraction of the current window; decreases are free. All divisions truncate
// to whole smallest-unit amounts.
package proration
