// Package retry provides a reusable retry mechanism with exponential backoff.
//
// This package offers a generic retry function that can be used across different
// adapters and services to handle transient failures consistently. Remote contract
// calls go through Call, which turns decoded protocol reverts into values instead
// of retrying them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrRetriesExhausted is wrapped into the error returned once every attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Config holds configuration for retry behavior.
type Config struct {
	// MaxRetries is the maximum number of retry attempts (0 means no retries, just the initial attempt).
	MaxRetries int

	// InitialBackoff is the initial backoff duration before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration (caps exponential growth).
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry (default: 2.0).
	BackoffFactor float64

	// Jitter adds randomness to backoff to prevent thundering herd.
	// When true, actual backoff is: backoff + rand(0, backoff)
	Jitter bool

	// AttemptTimeout bounds every single attempt. Zero disables the per-attempt deadline.
	AttemptTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// RPCConfig is the configuration used for node calls: three attempts in total,
// one second initial delay and a two second deadline per attempt.
func RPCConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		AttemptTimeout: 2 * time.Second,
	}
}

// IsRetryableFunc determines if an error should trigger a retry.
type IsRetryableFunc func(error) bool

// OnRetryFunc is called before each retry attempt (optional, for logging/metrics).
// attempt is 1-indexed (first retry is attempt 1).
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Always retries every error.
func Always(error) bool { return true }

// Do executes the given function with retry logic.
// It returns the result of the function or the last error if all retries are exhausted.
//
// The function is called at least once. If it returns an error and isRetryable returns true,
// it will be retried up to cfg.MaxRetries additional times. Each attempt receives a context
// bounded by cfg.AttemptTimeout when set.
//
// Example:
//
//	result, err := retry.Do(ctx, retry.DefaultConfig(), isTransientError, nil, func(ctx context.Context) (int, error) {
//	    return someOperation(ctx)
//	})
func Do[T any](
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	var lastErr error

	// Apply defaults
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 10 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 100 * time.Millisecond
	}
	if isRetryable == nil {
		isRetryable = Always
	}

	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		// Wait before retry (not on first attempt)
		if attempt > 0 {
			actualBackoff := backoff
			if cfg.Jitter {
				// Add jitter: backoff + rand(0, backoff)
				jitter := time.Duration(rand.Int63n(int64(backoff)))
				actualBackoff = backoff + jitter
			}

			if onRetry != nil {
				onRetry(attempt, lastErr, actualBackoff)
			}

			timer := time.NewTimer(actualBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("context cancelled while retrying: %w", ctx.Err())
			case <-timer.C:
			}

			// Calculate next backoff (exponential)
			backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}

		result, err := attemptOnce(ctx, cfg.AttemptTimeout, fn)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w: operation failed after %d retries: %w", ErrRetriesExhausted, cfg.MaxRetries, lastErr)
}

func attemptOnce[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// DoVoid is like Do but for functions that don't return a value.
//
// Example:
//
//	err := retry.DoVoid(ctx, retry.DefaultConfig(), isTransientError, nil, func(ctx context.Context) error {
//	    return someOperation(ctx)
//	})
func DoVoid(
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func(ctx context.Context) error,
) error {
	_, err := Do(ctx, cfg, isRetryable, onRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
