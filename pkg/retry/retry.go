package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"sync/atomic"
	"time"

	veilerr "github.com/mrz1836/veil/pkg/errors"
)

// ErrRetryable marks an otherwise unclassified error as transient.
var ErrRetryable = &veilerr.VeilError{
	Code:     "RETRYABLE_ERROR",
	Message:  "retryable error",
	Kind:     veilerr.KindTransient,
	ExitCode: veilerr.ExitGeneral,
}

// Result is the outcome of a retried operation.
type Result[T any] struct {
	// Success is true when an attempt returned without error.
	Success bool
	// Value holds the operation result when Success is true.
	Value T
	// Err holds the terminal error when Success is false.
	Err error
	// Attempts is the number of times the operation was invoked.
	Attempts int
	// TotalTime is the wall-clock time spent, including backoff sleeps.
	TotalTime time.Duration
}

// Unwrap returns the value on success and the terminal error otherwise.
func (r Result[T]) Unwrap() (T, error) {
	if r.Success {
		return r.Value, nil
	}
	var zero T
	return zero, r.Err
}

// CalculateBackoffDelay returns min(initialDelay * multiplier^attempt, maxDelay).
// With jitter the base is perturbed uniformly by up to 20% either way and clamped at zero.
func CalculateBackoffDelay(attempt int, initialDelay, maxDelay time.Duration, multiplier float64, useJitter bool) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	base := 0.0
	if initialDelay > 0 {
		base = float64(initialDelay) * math.Pow(multiplier, float64(attempt))
	}
	if math.IsNaN(base) || base > float64(maxDelay) {
		base = float64(maxDelay)
	}
	if base < 0 {
		base = 0
	}

	if useJitter && base > 0 {
		// Cryptographic randomness is not needed for retry jitter.
		spread := base * jitterFraction
		base += spread * (rand.Float64()*2 - 1) //nolint:gosec // G404: jitter only
		if base < 0 {
			base = 0
		}
	}

	return time.Duration(base)
}

// Sleep pauses for d or until ctx is done, whichever comes first.
// It returns a cancellation error if ctx ends before the delay elapses.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return canceled(ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// policy's retries are exhausted. ctx is the cancellation token for the whole
// sequence, including backoff sleeps.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) Result[T] {
	start := time.Now()
	maxRetries := max(p.MaxRetries, 0)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return failed[T](canceled(err), attempt, start)
		}

		value, err := op(ctx)
		if err == nil {
			return Result[T]{
				Success:   true,
				Value:     value,
				Attempts:  attempt + 1,
				TotalTime: time.Since(start),
			}
		}
		lastErr = err

		// The attempt may have failed because the token fired mid-flight.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return failed[T](canceled(ctxErr), attempt+1, start)
		}

		if attempt == maxRetries || !p.retryable(err) {
			return failed[T](err, attempt+1, start)
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}

		if sleepErr := Sleep(ctx, delay); sleepErr != nil {
			return failed[T](sleepErr, attempt+1, start)
		}
	}

	return failed[T](lastErr, maxRetries+1, start)
}

// Exhausted reports whether r failed because p ran out of retries: every
// allowed attempt ran and the last error was still retryable. Non-retryable
// failures and cancellation are not exhaustion.
func Exhausted[T any](p Policy, r Result[T]) bool {
	if r.Success || p.MaxRetries <= 0 || IsCanceled(r.Err) {
		return false
	}
	return r.Attempts > p.MaxRetries && p.retryable(r.Err)
}

// DoValue is Do returning the raw value, or the operation's terminal error.
func DoValue[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	return Do(ctx, p, op).Unwrap()
}

// DoWithTimeout races Do against an overall deadline. When the deadline fires
// first, in-flight retries are canceled and the result carries ErrTimeout.
// A non-positive timeout disables the deadline.
func DoWithTimeout[T any](ctx context.Context, timeout time.Duration, p Policy, op func(context.Context) (T, error)) Result[T] {
	if timeout <= 0 {
		return Do(ctx, p, op)
	}

	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var attempts atomic.Int64
	counted := func(c context.Context) (T, error) {
		attempts.Add(1)
		return op(c)
	}

	done := make(chan Result[T], 1)
	go func() {
		done <- Do(tctx, p, counted)
	}()

	select {
	case res := <-done:
		return classifyDeadline(ctx, tctx, timeout, res)
	case <-tctx.Done():
		// Prefer a result that landed at the same instant.
		select {
		case res := <-done:
			return classifyDeadline(ctx, tctx, timeout, res)
		default:
		}
		return failed[T](doneError(ctx, timeout), int(attempts.Load()), start)
	}
}

// Wrap returns a function that forwards its argument to op under policy p.
func Wrap[A, T any](p Policy, op func(context.Context, A) (T, error)) func(context.Context, A) (T, error) {
	return func(ctx context.Context, arg A) (T, error) {
		return DoValue(ctx, p, func(c context.Context) (T, error) {
			return op(c, arg)
		})
	}
}

// DoSync retries an operation that does not take a context.
// Cancellation is still observed between attempts and during backoff.
func DoSync[T any](ctx context.Context, p Policy, op func() (T, error)) Result[T] {
	return Do(ctx, p, func(context.Context) (T, error) {
		return op()
	})
}

// DoSyncValue is DoSync returning the raw value or the terminal error.
func DoSyncValue[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	return DoSync(ctx, p, op).Unwrap()
}

// IsRetryable is the default retryability predicate.
// Transient veil errors, deadline expiry, and network timeouts are retried;
// cancellation, user actions, and input errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, veilerr.ErrOperationAborted) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrRetryable) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return veilerr.IsRetryable(err)
}

// WrapRetryable wraps an error to mark it as retryable.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return veilerr.WithCause(ErrRetryable, err)
}

// IsCanceled reports whether err is the cancellation error produced by this package.
func IsCanceled(err error) bool {
	return errors.Is(err, veilerr.ErrOperationAborted)
}

// IsTimeout reports whether err is the overall-timeout error produced by DoWithTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, veilerr.ErrTimeout)
}

func failed[T any](err error, attempts int, start time.Time) Result[T] {
	return Result[T]{
		Err:       err,
		Attempts:  attempts,
		TotalTime: time.Since(start),
	}
}

func canceled(cause error) error {
	return veilerr.WithCause(veilerr.ErrOperationAborted, cause)
}

func timedOut(timeout time.Duration) error {
	return veilerr.WithCause(veilerr.ErrTimeout,
		fmt.Errorf("gave up after %s: %w", timeout, context.DeadlineExceeded))
}

// doneError classifies the end of the timeout context: a canceled parent is a
// cancellation, anything else is a timeout.
func doneError(parent context.Context, timeout time.Duration) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return canceled(parent.Err())
	}
	return timedOut(timeout)
}

func classifyDeadline[T any](parent, tctx context.Context, timeout time.Duration, res Result[T]) Result[T] {
	if res.Success || tctx.Err() == nil {
		return res
	}
	res.Err = doneError(parent, timeout)
	return res
}
