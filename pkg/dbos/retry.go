package dbos

import (
	"context"
	"math/rand"
	"time"
)

// runCommunicatorWithRetry executes fn under the operation's retry policy
// (§4.2 "Communicator"): initial interval, exponential backoff, max
// attempts. retriesAllowed=false runs fn exactly once regardless of
// MaxAttempts. Grounded on the teacher's backoffDelay jitter pattern
// (internal/handlers/retry.go), generalized from a fixed 50ms base to the
// operation's configured IntervalMillis/BackoffFactor.
// Returns the attempt count actually used, so callers can report retry
// metrics without this package needing to know the workflow's symbol name.
func runCommunicatorWithRetry(ctx context.Context, config StepConfig, fn func(ctx context.Context) (string, error)) (string, int, error) {
	maxAttempts := config.MaxAttempts
	if !config.RetriesAllowed || maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, err := fn(ctx)
		if err == nil {
			return output, attempt, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", attempt, ctx.Err()
		case <-time.After(communicatorBackoff(config, attempt)):
		}
	}
	return "", maxAttempts, lastErr
}

// communicatorBackoff computes the delay before the next attempt: an
// exponentially growing base plus up to 25% jitter, mirroring the teacher's
// backoffDelay shape but driven by the operation's own StepConfig instead of
// a single hardcoded base interval.
func communicatorBackoff(config StepConfig, attempt int) time.Duration {
	interval := config.IntervalMillis
	if interval <= 0 {
		interval = 100
	}
	factor := config.BackoffFactor
	if factor <= 0 {
		factor = 2.0
	}
	base := float64(interval)
	for i := 1; i < attempt; i++ {
		base *= factor
	}
	delay := time.Duration(base) * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(delay/4 + 1)))
	return delay + jitter
}
