package pipeline

import (
	"context"
	"fmt"
	"time"
)

// executeWithRetry runs a step up to retryAttempts+1 times with exponential
// backoff (delay × 2^attempt, attempt indices starting at 0). No distinction
// is made between transient and permanent errors here; the last error is
// returned after the budget is exhausted.
func executeWithRetry(ctx context.Context, step Step, pc *Context, policy ErrorHandling) error {
	attempts := policy.RetryAttempts + 1
	delay := policy.RetryDelay()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := delay << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := step.Execute(ctx, pc); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if policy.RetryAttempts > 0 {
		return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
	}
	return lastErr
}
