package pool

import (
	"context"
	"math/rand"
	"time"
)

// RetryOptions control WithRetry. Attempt counting is 1-based: MaxAttempts of
// 3 means the function runs at most three times.
type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	JitterRatio float64
}

// DefaultRetryOptions mirror the conservative defaults used for page fetches.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		JitterRatio: 0.1,
	}
}

// Backoff returns the delay before the next attempt: base * 2^(attempt-1)
// plus a random jitter up to jitterRatio of that value. attempt <= 0 behaves
// like attempt 1.
func Backoff(attempt int, base time.Duration, jitterRatio float64) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := base * time.Duration(1<<(attempt-1))
	if jitterRatio > 0 {
		delay += time.Duration(rand.Int63n(int64(float64(delay)*jitterRatio) + 1))
	}
	return delay
}

// WithRetry runs fn up to opts.MaxAttempts times, sleeping Backoff(attempt)
// between attempts. The last error is returned when every attempt fails.
// Retrying is opt-in: callers wrap the specific operations they consider
// transient, nothing is retried implicitly.
func WithRetry[T any](ctx context.Context, fn func() (T, error), opts RetryOptions) (T, error) {
	var zero T
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(Backoff(attempt, opts.BaseDelay, opts.JitterRatio)):
		}
	}
	return zero, lastErr
}
