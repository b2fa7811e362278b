package relayer

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	veilerr "github.com/mrz1836/veil/pkg/errors"
)

// Operation names used as rate limiter keys.
const (
	OpUserDecrypt = "user_decrypt"
	OpEncrypt     = "encrypt"
)

// RateLimiter paces relayer calls with one token bucket per operation.
type RateLimiter struct {
	mu       sync.RWMutex
	buckets  map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
	disabled bool
}

// NewRateLimiter allows perSecond calls per operation with the given burst.
// A perSecond of 0 or less disables pacing.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		buckets:  make(map[string]*rate.Limiter),
		perSec:   rate.Limit(perSecond),
		burst:    burst,
		disabled: perSecond <= 0,
	}
}

// DefaultRateLimiter allows 5 calls per second per operation, burst 10.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(5, 10)
}

// Allow reports whether a call for op may proceed now, consuming a token.
func (r *RateLimiter) Allow(op string) bool {
	if r == nil || r.disabled {
		return true
	}
	return r.bucket(op).Allow()
}

// Wait blocks until a call for op may proceed. It returns the context error
// when ctx ends first, and RATE_LIMITED when the wait could not fit before
// the context deadline.
func (r *RateLimiter) Wait(ctx context.Context, op string) error {
	if r == nil || r.disabled {
		return nil
	}
	if err := r.bucket(op).Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return veilerr.WithCause(veilerr.ErrRateLimited, err)
	}
	return nil
}

func (r *RateLimiter) bucket(op string) *rate.Limiter {
	r.mu.RLock()
	b, ok := r.buckets[op]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.buckets[op]; ok {
		return b
	}
	b = rate.NewLimiter(r.perSec, r.burst)
	r.buckets[op] = b
	return b
}
