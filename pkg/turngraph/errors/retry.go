package errors

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig controls how many times an upstream call is attempted and
// how long to wait in between.
type RetryConfig struct {
	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts int

	// InitialBackoff is the wait after the first failure.
	InitialBackoff time.Duration
	// MaxBackoff caps the wait before jitter.
	MaxBackoff time.Duration
	// BackoffFactor multiplies the wait after every failure.
	BackoffFactor float64
	// Jitter spreads each wait by up to ±Jitter of its length (0.0-1.0).
	Jitter float64

	// RetryableFunc replaces IsRetryable when set.
	RetryableFunc func(error) bool
	// OnRetry is called before each wait with the failed attempt number.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetry suits LLM endpoints: three attempts, 0.5s then 1s.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// RetryResult is what WithRetryContext hands back.
type RetryResult[T any] struct {
	Value    T
	Err      error
	Attempts int
	Duration time.Duration
}

// Delay returns the wait after failed attempt n (1-based), jitter
// excluded.
func (c RetryConfig) Delay(n int) time.Duration {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := float64(c.InitialBackoff) * math.Pow(factor, float64(n-1))
	if c.MaxBackoff > 0 && d > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	return time.Duration(d)
}

func (c RetryConfig) retryable(err error) bool {
	if c.RetryableFunc != nil {
		return c.RetryableFunc(err)
	}
	return IsRetryable(err)
}

// WithRetryContext calls fn until it succeeds, fails with a
// non-retryable error, runs out of attempts or ctx ends. Every returned
// error is a *CategorizedError wrapping the last cause.
func WithRetryContext[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) RetryResult[T] {
	start := time.Now()
	attempts := max(cfg.MaxAttempts, 1)

	fail := func(n int, err error, category Category, why string) RetryResult[T] {
		return RetryResult[T]{
			Err:      &CategorizedError{Err: err, Category: category, Retries: n, Context: why},
			Attempts: n,
			Duration: time.Since(start),
		}
	}

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return fail(n-1, err, CategoryPermanent, "context cancelled")
		}

		value, err := fn(ctx)
		if err == nil {
			return RetryResult[T]{Value: value, Attempts: n, Duration: time.Since(start)}
		}
		if !cfg.retryable(err) {
			return fail(n, err, Categorize(err), "")
		}
		if n == attempts {
			return fail(n, err, Categorize(err), "max retries exceeded")
		}

		wait := calculateBackoff(cfg.Delay(n), cfg.Jitter)
		if cfg.OnRetry != nil {
			cfg.OnRetry(n, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fail(n, ctx.Err(), CategoryPermanent, "context cancelled during backoff")
		case <-timer.C:
		}
	}
}

// calculateBackoff spreads base by a random ±jitter fraction.
func calculateBackoff(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	return base + time.Duration(float64(base)*jitter*(2*rand.Float64()-1))
}

// RetryOption adjusts a RetryConfig built by NewRetryConfig.
type RetryOption func(*RetryConfig)

// NewRetryConfig starts from DefaultRetry and applies opts.
//
//	cfg := errors.NewRetryConfig(errors.WithMaxAttempts(5))
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := DefaultRetry
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithMaxAttempts(n int) RetryOption {
	return func(c *RetryConfig) { c.MaxAttempts = n }
}

func WithInitialBackoff(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.InitialBackoff = d }
}

func WithMaxBackoff(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.MaxBackoff = d }
}

func WithBackoffFactor(f float64) RetryOption {
	return func(c *RetryConfig) { c.BackoffFactor = f }
}

func WithJitter(j float64) RetryOption {
	return func(c *RetryConfig) { c.Jitter = j }
}

func WithRetryableFunc(fn func(error) bool) RetryOption {
	return func(c *RetryConfig) { c.RetryableFunc = fn }
}

func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) RetryOption {
	return func(c *RetryConfig) { c.OnRetry = fn }
}
