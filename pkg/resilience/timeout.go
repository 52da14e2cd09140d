package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout bounds fn by a deadline. fn receives a child context that
// expires after timeout; if it has not returned by then, the budget is
// reported as exceeded while fn keeps running in the background until it
// notices the cancellation. A timeout of zero or less means no bound.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	cause := fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, timeout)
	bounded, cancel := context.WithTimeoutCause(ctx, timeout, cause)
	defer cancel()

	// Buffered so a late fn return never blocks the abandoned goroutine.
	done := make(chan error, 1)
	go func() { done <- fn(bounded) }()

	select {
	case err := <-done:
		return err
	case <-bounded.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: cancelled by caller: %w", name, err)
		}
		return context.Cause(bounded)
	}
}
