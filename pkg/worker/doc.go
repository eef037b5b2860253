// Package worker provides a generic, bounded worker pool.
//
// The control dispatcher uses it so that socket round-trips never run on the
// presentation loop:
//
//	pool, err := worker.NewPool(2, 16, func(ctx context.Context, req Request) error {
//	    return handle(ctx, req)
//	})
//	_ = pool.Start(ctx)
//	if err := pool.Submit(req); errors.Is(err, worker.ErrQueueFull) {
//	    // caller decides; Submit never blocks
//	}
//	_ = pool.Stop(5 * time.Second)
//
// Stop closes the queue and lets workers finish what was already accepted.
// Cancelling the Start context abandons queued work instead.
package worker
