package enrichment

import (
	"context"
	"math/rand"
	"time"

	"github.com/Gobusters/ectologger"
)

// RetryPolicy retries a call with jittered exponential backoff. Provider
// APIs rate limit aggressively; the jitter keeps parallel runs from
// synchronizing their retries.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     15 * time.Second,
	}
}

// Do runs fn until it succeeds, attempts run out, or the context is
// cancelled. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, logger ectologger.Logger, operation string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.InitialDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		jittered := delay/2 + time.Duration(rand.Int63n(int64(delay)))
		logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"operation": operation,
			"attempt":   attempt,
			"backoff":   jittered.String(),
		}).Warn("Provider call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return err
}
