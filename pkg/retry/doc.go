// Package retry provides exponential backoff retry logic for transient failures.
//
// The console session uses it to re-establish a dropped SSH connection:
//
//	cfg := retry.Reconnect()
//	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
//	    logger.Warn("reconnecting", "attempt", attempt, "delay", delay, "error", err)
//	}
//	err := retry.Do(ctx, cfg, func() error {
//	    if err := dial(); err != nil {
//	        if errors.IsFatal(err) {
//	            return retry.NonRetryable(err)
//	        }
//	        return err
//	    }
//	    return nil
//	})
//
// Errors wrapped with NonRetryable end the loop immediately. Context
// cancellation is honoured between attempts and during backoff sleeps.
package retry
