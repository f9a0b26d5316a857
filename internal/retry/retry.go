package retry

import (
	"context"
	"time"

	bridge "github.com/spetersoncode/aguibridge"
)

// Notify is called before sleeping between attempts. attempt is 1-indexed.
type Notify func(attempt int, err error, delay time.Duration)

// effectiveDelay honors the server's Retry-After when it is longer.
func effectiveDelay(configured time.Duration, err error) time.Duration {
	if server := bridge.RetryAfterOf(err); server > configured {
		return server
	}
	return configured
}

// Do calls fn until it succeeds, fails with a non-transient error or runs
// out of attempts. Backoff waits end early when ctx is done.
func Do[T any](ctx context.Context, cfg Config, notify Notify, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := max(cfg.MaxAttempts, 1)
	for attempt := range attempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !Retryable(err) || attempt == attempts-1 {
			break
		}

		delay := effectiveDelay(cfg.Delay(attempt), err)
		if notify != nil {
			notify(attempt+1, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// DoStream is Do for functions that open a stream. Only opening the stream
// is retried, not the chunks that follow.
func DoStream[T any](ctx context.Context, cfg Config, notify Notify, fn func() (<-chan T, error)) (<-chan T, error) {
	return Do(ctx, cfg, notify, fn)
}
