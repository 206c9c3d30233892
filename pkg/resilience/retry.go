package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures Retry and RetryWithResult
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter randomizes each delay by up to this fraction
	Jitter float64
	// RetryableErrors reports which errors are worth another attempt; nil
	// retries every error
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns the default retry settings. Nothing is retried
// until the caller sets RetryableErrors.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     DefaultRetryMaxAttempts,
		InitialDelay:    DefaultRetryInitialDelay,
		MaxDelay:        DefaultRetryMaxDelay,
		BackoffFactor:   DefaultRetryBackoffFactor,
		Jitter:          DefaultRetryJitter,
		RetryableErrors: func(error) bool { return false },
	}
}

func (c *RetryConfig) policy(ctx context.Context) backoff.BackOff {
	multiplier := c.BackoffFactor
	if multiplier < 1 {
		multiplier = 1
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.InitialDelay,
		RandomizationFactor: c.Jitter,
		Multiplier:          multiplier,
		MaxInterval:         c.MaxDelay,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// Retry executes fn with exponential backoff
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes fn with exponential backoff and returns its result.
// It stops at the first non-retryable error or after MaxAttempts calls.
func RetryWithResult[T any](ctx context.Context, config *RetryConfig, fn func() (T, error)) (T, error) {
	attempts := 0
	return backoff.RetryWithData(func() (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(err)
		}

		attempts++
		result, err := fn()
		switch {
		case err == nil:
			return result, nil
		case config.RetryableErrors != nil && !config.RetryableErrors(err):
			return zero, backoff.Permanent(err)
		case attempts >= config.MaxAttempts:
			return zero, backoff.Permanent(fmt.Errorf("max retries (%d) exceeded: %w", config.MaxAttempts, err))
		}
		return zero, err
	}, config.policy(ctx))
}
