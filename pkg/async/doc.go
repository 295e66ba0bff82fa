// Package async runs background work without leaking goroutines or crashing
// the process on a panic.
//
// SafeGo starts a single fire-and-forget task with a timeout. WorkerPool runs
// submitted tasks on a fixed set of goroutines:
//
//	pool := async.NewWorkerPool(ctx, 4, "catalog reload", 30*time.Second, logger)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return source.Refresh(ctx)
//	})
//
// Batch fans a slice out over a pool and reports one error per item. The
// renewal runner uses it to renew due subscriptions concurrently:
//
//	errs := async.Batch(ctx, due, 8, "renewal", 30*time.Second, logger,
//		func(ctx context.Context, sub *storage.Subscription) error {
//			_, err := subs.Renew(ctx, sub.Cycle.OrgID, sub.ID)
//			return err
//		})
package async
