// Package llm isolates text generation behind a single narrow interface.
// Every caller pairs a Generate call with a deterministic fallback, so
// nothing here is allowed to panic or block indefinitely.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited marks transient quota exhaustion. Matched by *RateLimitError.
	ErrRateLimited = errors.New("text generation rate limited")
	// ErrModelUnavailable marks a model that cannot serve requests.
	ErrModelUnavailable = errors.New("text generation model unavailable")
	// ErrMalformedResponse marks generated text that does not parse.
	ErrMalformedResponse = errors.New("malformed generated response")
)

// TextGenerator turns a prompt into text.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to TextGenerator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// RateLimitError is returned when the provider asks the caller to slow down.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Offline is used when no provider is configured. Every call reports the
// model as unavailable so call sites take their fallback path.
type Offline struct{}

func (Offline) Generate(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: no provider configured", ErrModelUnavailable)
}
