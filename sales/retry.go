package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RetryPolicy bounds storage calls. Attempts counts every call, the first
// included: Attempts=3 means at most three calls.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 100 * time.Millisecond}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// retry runs fn until it succeeds, the budget is spent, or ctx is done.
// The delay before attempt n+1 is n × Backoff. A cancelled context stops
// further attempts but never undoes one that already returned.
func retry[T any](ctx context.Context, p RetryPolicy, op string, obs Observer, log zerolog.Logger, fn func(context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return zero, fmt.Errorf("%s aborted before attempt %d: %w", op, attempt, lastErr)
		}

		v, err := fn(ctx)
		obs.StorageAttempt(op, err)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == p.Attempts {
			break
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Int("max_attempts", p.Attempts).Msg("storage call failed, retrying")

		if p.Backoff > 0 {
			timer := time.NewTimer(time.Duration(attempt) * p.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("%s aborted after %d attempts: %w", op, attempt, lastErr)
			case <-timer.C:
			}
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, p.Attempts, lastErr)
}
