// Package retry executes fallible operations with exponential backoff, optional
// jitter, cancellation through context, and an optional overall timeout.
package retry

import (
	"time"
)

// Default policy values.
const (
	DefaultMaxRetries        = 3
	DefaultInitialDelay      = 500 * time.Millisecond
	DefaultMaxDelay          = 10 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultUseJitter         = true

	// jitterFraction is the +/- share of the base delay applied as jitter.
	jitterFraction = 0.2
)

// Policy configures retry behavior.
//
// A zero Policy performs one attempt with no delay. Use DefaultPolicy or
// NewPolicy to start from the documented defaults.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the base delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// BackoffMultiplier grows the delay per attempt.
	BackoffMultiplier float64
	// UseJitter perturbs each delay by up to 20% in either direction.
	UseJitter bool
	// OnRetry is called before each backoff sleep with the 1-based number of
	// the attempt that failed.
	OnRetry func(attempt int, err error, delay time.Duration)
	// ShouldRetry classifies errors. Nil means IsRetryable.
	ShouldRetry func(err error) bool
}

// DefaultPolicy returns the default retry policy:
// 4 attempts total (1 initial + 3 retries), 500ms base delay doubling up to 10s, with jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        DefaultMaxRetries,
		InitialDelay:      DefaultInitialDelay,
		MaxDelay:          DefaultMaxDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
		UseJitter:         DefaultUseJitter,
	}
}

// PolicyOption mutates a policy under construction.
type PolicyOption func(*Policy)

// NewPolicy builds a policy from DefaultPolicy and the given options.
func NewPolicy(opts ...PolicyOption) Policy {
	p := DefaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithMaxRetries sets the number of retries. Negative values are treated as zero.
func WithMaxRetries(n int) PolicyOption {
	return func(p *Policy) {
		if n < 0 {
			n = 0
		}
		p.MaxRetries = n
	}
}

// WithInitialDelay sets the base delay.
func WithInitialDelay(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.InitialDelay = d
	}
}

// WithMaxDelay sets the delay cap.
func WithMaxDelay(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.MaxDelay = d
	}
}

// WithBackoffMultiplier sets the growth factor.
func WithBackoffMultiplier(m float64) PolicyOption {
	return func(p *Policy) {
		p.BackoffMultiplier = m
	}
}

// WithJitter enables or disables jitter.
func WithJitter(enabled bool) PolicyOption {
	return func(p *Policy) {
		p.UseJitter = enabled
	}
}

// WithOnRetry sets the per-attempt callback.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) PolicyOption {
	return func(p *Policy) {
		p.OnRetry = fn
	}
}

// WithShouldRetry sets the retryability predicate.
func WithShouldRetry(fn func(err error) bool) PolicyOption {
	return func(p *Policy) {
		p.ShouldRetry = fn
	}
}

// Delay returns the backoff delay for the given zero-based attempt under this policy.
func (p Policy) Delay(attempt int) time.Duration {
	return CalculateBackoffDelay(attempt, p.InitialDelay, p.MaxDelay, p.BackoffMultiplier, p.UseJitter)
}

// DelayBounds returns the smallest and largest delay Delay can produce for
// attempt. Without jitter both equal the nominal delay.
func (p Policy) DelayBounds(attempt int) (low, high time.Duration) {
	base := CalculateBackoffDelay(attempt, p.InitialDelay, p.MaxDelay, p.BackoffMultiplier, false)
	if !p.UseJitter {
		return base, base
	}
	spread := time.Duration(float64(base) * jitterFraction)
	return base - spread, base + spread
}

func (p Policy) retryable(err error) bool {
	if p.ShouldRetry != nil {
		return p.ShouldRetry(err)
	}
	return IsRetryable(err)
}
