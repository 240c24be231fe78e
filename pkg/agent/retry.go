package agent

import (
	"context"
	"fmt"
	"time"
)

// ExecuteWithTimeout runs fn under a deadline. The context passed to fn is
// cancelled when the timeout fires; fn is expected to honor it.
func ExecuteWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// ExecuteWithRetry runs fn up to maxRetries+1 times with linear backoff
// (retryDelay * (attempt+1) between attempts). On exhaustion the breaker
// records a failure and the last error is returned.
func (b *Base) ExecuteWithRetry(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	maxRetries := b.defaults.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx); err != nil {
			lastErr = err
			b.logger.Warn("Operation failed",
				"label", label,
				"attempt", attempt+1,
				"max_attempts", maxRetries+1,
				"error", err)
			if attempt < maxRetries {
				delay := b.defaults.RetryDelay * time.Duration(attempt+1)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		}
		b.RecordSuccess()
		return nil
	}

	b.RecordFailure()
	return fmt.Errorf("%s failed after %d attempts: %w", label, maxRetries+1, lastErr)
}
