// Package retry provides the bounded exponential-backoff executor that wraps
// every remote call in sensebridge.
//
// The executor is deliberately ignorant of the operations it wraps: it is the
// sole failure-recovery mechanism in the system, and callers that want a
// different policy (fallbacks, partial results) layer it on top of [Do].
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy holds the retry parameters for one call.
type Policy struct {
	// MaxRetries is the number of retries granted after the first attempt.
	// Zero means the operation runs exactly once.
	MaxRetries int

	// Delay is the wait before the first retry. It doubles on every
	// subsequent retry with no jitter and no upper bound.
	Delay time.Duration

	// OnRetry, when non-nil, is invoked once per retry before the backoff
	// sleep. Used to feed metrics; not part of the functional contract.
	OnRetry func(op string)
}

// Do runs fn until it succeeds or the policy is exhausted. The final error is
// returned unwrapped so callers can match on the underlying failure.
//
// The backoff sleep observes ctx; a context error ends the loop immediately
// and is never retried. At most policy.MaxRetries+1 attempts are issued.
func Do[T any](ctx context.Context, policy Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	delay := policy.Delay
	var zero T

	for remaining := policy.MaxRetries; ; remaining-- {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if remaining <= 0 || ctx.Err() != nil {
			return zero, err
		}

		slog.Warn("retrying after failure",
			"op", op,
			"retries_left", remaining,
			"delay", delay,
			"error", err,
		)
		if policy.OnRetry != nil {
			policy.OnRetry(op)
		}

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
		delay *= 2
	}
}

// sleep blocks for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
