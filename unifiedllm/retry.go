package unifiedllm

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy configures bounded retry of rate-limited calls with linear
// backoff: the wait after failed attempt n is BaseDelay*n.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // wait after the first rate-limited attempt

	// OnRetry runs after rate-limited attempt n, before sleeping. A non-nil
	// return aborts the retry loop with that error.
	OnRetry func(err error, attempt int, delay time.Duration) error
	// OnExhausted runs once when the last attempt was rate limited.
	OnExhausted func(err error, attempt int) error
	// Sleep waits for d. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns three attempts with 45s linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   45 * time.Second,
	}
}

// Delay returns the wait after failed attempt n (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

type retryPhase int

const (
	phaseAttempting retryPhase = iota
	phaseSucceeded
	phaseExhausted
)

// Retry calls fn until it succeeds, fails with an error that is not rate
// limiting, or the attempt budget is spent.
//
// States: attempting(n) for n in 1..MaxAttempts, succeeded, exhausted.
// Only the exhausted state produces a QuotaExhaustedError; any other error
// leaves from attempting(n) unchanged.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		result  T
		lastErr error
		phase   = phaseAttempting
		attempt = 1
	)
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for {
		switch phase {
		case phaseSucceeded:
			return result, nil

		case phaseExhausted:
			if policy.OnExhausted != nil {
				if err := policy.OnExhausted(lastErr, attempt); err != nil {
					return zero, err
				}
			}
			return zero, &QuotaExhaustedError{
				SDKError: SDKError{
					Message: fmt.Sprintf("rate limited on all %d attempts", attempt),
					Cause:   lastErr,
				},
				Attempts: attempt,
			}

		case phaseAttempting:
			var err error
			result, err = fn(ctx)
			if err == nil {
				phase = phaseSucceeded
				continue
			}
			if !IsRateLimit(err) {
				return zero, err
			}
			lastErr = err
			if attempt >= maxAttempts {
				phase = phaseExhausted
				continue
			}

			delay := policy.Delay(attempt)
			if policy.OnRetry != nil {
				if hookErr := policy.OnRetry(err, attempt, delay); hookErr != nil {
					return zero, hookErr
				}
			}
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return zero, &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: sleepErr}}
			}
			attempt++
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
