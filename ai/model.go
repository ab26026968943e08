// Package ai adapts generative model providers to the single text-in,
// text-out port the services depend on.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Model turns a prompt into free-text completion
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

var (
	// ErrMalformedResponse marks model output that does not have the
	// expected shape (no JSON, no citations, empty text)
	ErrMalformedResponse = errors.New("malformed model response")
	ErrEmptyResponse     = fmt.Errorf("%w: empty response", ErrMalformedResponse)
	ErrPromptBlocked     = errors.New("model blocked the prompt")
)

// RateLimitError is returned when the provider rejected the call with a
// rate limit (HTTP 429 / RESOURCE_EXHAUSTED). RetryAfterHint is zero when
// the provider did not say how long to wait.
type RateLimitError struct {
	Provider       string
	RetryAfterHint time.Duration
	Err            error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfterHint > 0 {
		return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Provider, e.RetryAfterHint, e.Err)
	}
	return fmt.Sprintf("%s rate limited: %v", e.Provider, e.Err)
}

// RetryAfter satisfies retry.RateLimited
func (e *RateLimitError) RetryAfter() time.Duration {
	return e.RetryAfterHint
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err carries a provider rate limit
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
