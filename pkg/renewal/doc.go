// Package renewal charges and advances subscriptions whose cycle has ended.
//
// A Runner lists due subscriptions through the billing orchestrator and
// renews them concurrently. Each renewal is its own unit of work, so a
// refused collection leaves that subscription due for the next run without
// affecting the others:
//
//	runner := renewal.NewRunner(subs, renewal.Config{Workers: 8}, metrics, log)
//	summary, err := runner.RunOnce(ctx)
//
// cmd/passbill-renewer runs RunOnce on a cron schedule.
package renewal
