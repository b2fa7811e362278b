package signature

import (
	"time"

	"go.uber.org/zap"

	"github.com/mrz1836/veil/pkg/metrics"
	"github.com/mrz1836/veil/pkg/retry"
)

// Option configures signature operations.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	durationDays int
	retry        *retry.Policy
}

func newOptions(opts []Option) options {
	o := options{
		logger:       zap.NewNop(),
		now:          time.Now,
		durationDays: DefaultDurationDays,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. Swallowed cache failures are logged at debug.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records cache hits, signing outcomes and storage failures into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock replaces time.Now for validity checks and new start timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithDurationDays sets the validity of signatures created by LoadOrSign.
// Values below 1 keep DefaultDurationDays.
func WithDurationDays(days int) Option {
	return func(o *options) {
		if days > 0 {
			o.durationDays = days
		}
	}
}

// WithRetry retries transient signing failures under p. Rejections by the
// user are never retried.
func WithRetry(p retry.Policy) Option {
	return func(o *options) {
		o.retry = &p
	}
}
