// Package retry wraps fallible calls to rate limited providers with bounded
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
)

// ErrRetriesExhausted is matched by the error returned once every attempt
// was rate limited
var ErrRetriesExhausted = errors.New("retries exhausted")

// RateLimited is implemented by errors signalling a transient rate limit.
// RetryAfter returns the provider's requested wait, or zero when the
// provider gave no hint.
type RateLimited interface {
	error
	RetryAfter() time.Duration
}

// ExhaustedError reports that every attempt was rate limited. It matches
// ErrRetriesExhausted and unwraps to the last underlying failure.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type config struct {
	maxRetries   int
	initialDelay time.Duration
	sleep        Sleeper
	onRetry      func(attempt int, delay time.Duration, err error)
}

// Option configures RetryWithBackoff
type Option func(*config)

// WithMaxRetries sets the number of attempts
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithInitialDelay sets the first backoff delay
func WithInitialDelay(d time.Duration) Option {
	return func(c *config) {
		c.initialDelay = d
	}
}

// WithSleeper replaces the wait between attempts
func WithSleeper(s Sleeper) Option {
	return func(c *config) {
		c.sleep = s
	}
}

// WithOnRetry registers a hook called before each backoff wait
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(c *config) {
		c.onRetry = fn
	}
}

// RetryWithBackoff calls op until it succeeds, it fails with an error that
// is not RateLimited, or maxRetries attempts were rate limited. After each
// rate limited attempt it waits for the provider's retry-after hint when
// present, else for the current backoff delay, and doubles the backoff.
// Non rate limit errors are returned unchanged after a single call.
func RetryWithBackoff[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	cfg := config{
		maxRetries:   DefaultMaxRetries,
		initialDelay: DefaultInitialDelay,
		sleep:        SleepContext,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var zero T
	delay := cfg.initialDelay
	var last error

	for attempt := 1; attempt <= cfg.maxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		var limited RateLimited
		if !errors.As(err, &limited) {
			return zero, err
		}
		last = err

		wait := delay
		if hint := limited.RetryAfter(); hint > 0 {
			wait = hint
		}
		if cfg.onRetry != nil {
			cfg.onRetry(attempt, wait, err)
		}
		if err := cfg.sleep(ctx, wait); err != nil {
			return zero, err
		}
		delay *= 2
	}

	return zero, &ExhaustedError{Attempts: cfg.maxRetries, Last: last}
}
