package coordinator

import (
	"context"
	"time"

	"github.com/BaSui01/flowroute/types"
)

// RetryConfig bounds retries of transient store failures during dispatch.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig returns the dispatch retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
	}
}

// Backoff returns the delay before the given attempt (0-based).
func (r RetryConfig) Backoff(attempt int) time.Duration {
	backoff := r.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * r.Multiplier)
		if backoff >= r.MaxBackoff {
			return r.MaxBackoff
		}
	}
	return backoff
}

// withRetry runs fn, retrying retryable errors with exponential backoff.
// Non-retryable errors and context cancellation return immediately.
func (c *Coordinator) withRetry(ctx context.Context, operation string, fn func() error) error {
	var err error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if c.collector != nil {
				c.collector.RecordRetry(operation)
			}
			select {
			case <-ctx.Done():
				return types.NewError(types.ErrDispatchFailed, "dispatch cancelled during retry").WithCause(ctx.Err())
			case <-time.After(c.retry.Backoff(attempt - 1)):
			}
		}
		err = fn()
		if err == nil || !types.IsRetryable(err) {
			return err
		}
	}
	return err
}
