package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff controls exponential retry of transient fetch failures
type Backoff struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff returns three attempts starting at 500ms
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// policy builds the retry schedule: doubling waits capped at MaxInterval,
// MaxAttempts-1 retries, stopped early when ctx is done.
func (b Backoff) policy(ctx context.Context) backoff.BackOffContext {
	attempts := b.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.RandomizationFactor = 0
	exp.Multiplier = 2
	exp.MaxElapsedTime = 0
	if b.InitialInterval > 0 {
		exp.InitialInterval = b.InitialInterval
	}
	if b.MaxInterval > 0 {
		exp.MaxInterval = b.MaxInterval
	}
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// Retry calls fn until it succeeds, returns a non-transient error, the
// attempts are exhausted or ctx is done. When ctx ends the retries, the last
// fetch error is returned rather than the context error.
func (b Backoff) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var last error
	err := backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err

		var transient *TransientFetchError
		if !errors.As(err, &transient) {
			return backoff.Permanent(err)
		}
		return err
	}, b.policy(ctx))

	if err != nil && last != nil && ctx.Err() != nil {
		return last
	}
	return err
}
