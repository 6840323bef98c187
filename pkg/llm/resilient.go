package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/intake-api/pkg/circuitbreaker"
	"github.com/jwalitptl/intake-api/pkg/logger"
	"github.com/jwalitptl/intake-api/pkg/metrics"
)

// RetryConfig bounds the retry loop for rate-limited calls.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
}

// DefaultRetryConfig mirrors the provider's published quota guidance.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 15 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2,
		Jitter:         0.1,
	}
}

type Options struct {
	Retry    RetryConfig
	Fallback TextGenerator
	Limiter  *rate.Limiter
	Breaker  *circuitbreaker.CircuitBreaker
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
}

// Resilient wraps a primary generator with rate limiting, bounded
// exponential retry on rate limits, a circuit breaker, and a single
// fallback-model attempt when the primary model is unavailable.
type Resilient struct {
	primary  TextGenerator
	fallback TextGenerator
	retry    RetryConfig
	limiter  *rate.Limiter
	breaker  *circuitbreaker.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewResilient(primary TextGenerator, opts Options) *Resilient {
	if opts.Retry.Multiplier <= 0 {
		opts.Retry.Multiplier = 2
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Resilient{
		primary:  primary,
		fallback: opts.Fallback,
		retry:    opts.Retry,
		limiter:  opts.Limiter,
		breaker:  opts.Breaker,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

func (r *Resilient) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	text, err := r.attempt(ctx, r.primary, prompt)
	if errors.Is(err, ErrModelUnavailable) && r.fallback != nil {
		r.logger.Warn("primary model unavailable, switching to fallback model", "error", err.Error())
		text, err = r.attempt(ctx, r.fallback, prompt)
	}

	if r.metrics != nil {
		r.metrics.LLMLatency.Observe(time.Since(start).Seconds())
		r.metrics.LLMCalls.WithLabelValues(outcome(err)).Inc()
	}
	return text, err
}

func (r *Resilient) attempt(ctx context.Context, gen TextGenerator, prompt string) (string, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.retry.InitialBackoff
	exp.MaxInterval = r.retry.MaxBackoff
	exp.Multiplier = r.retry.Multiplier
	exp.RandomizationFactor = r.retry.Jitter
	exp.MaxElapsedTime = 0

	hinted := &hintedBackOff{BackOff: exp, ceiling: r.retry.MaxBackoff}
	policy := backoff.WithContext(backoff.WithMaxRetries(hinted, uint64(r.retry.MaxRetries)), ctx)

	op := func() (string, error) {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", backoff.Permanent(err)
			}
		}

		var out string
		call := func() error {
			var err error
			out, err = gen.Generate(ctx, prompt)
			return err
		}
		var err error
		if r.breaker != nil {
			err = r.breaker.Execute(call)
		} else {
			err = call()
		}
		if err == nil {
			return out, nil
		}

		var rl *RateLimitError
		if errors.As(err, &rl) {
			hinted.hint = rl.RetryAfter
			return "", err
		}
		return "", backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		if r.metrics != nil {
			r.metrics.LLMRetries.Inc()
		}
		r.logger.Warn("text generation rate limited, backing off", "wait", wait.String())
	}

	return backoff.RetryNotifyWithData(op, policy, notify)
}

// hintedBackOff stretches the next interval to honor a provider's
// suggested wait, bounded by ceiling.
type hintedBackOff struct {
	backoff.BackOff
	hint    time.Duration
	ceiling time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if h.hint > next {
		next = h.hint
		if h.ceiling > 0 && next > h.ceiling {
			next = h.ceiling
		}
	}
	h.hint = 0
	return next
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrModelUnavailable):
		return "unavailable"
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "circuit_open"
	default:
		return "error"
	}
}
