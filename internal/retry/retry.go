// Package retry implements the bounded retry policy wrapped around every
// durable ledger mutation.
//
// Only failures classified as transient (ledger.CodeTransient: busy or
// locked storage, a lost compare-and-swap) are retried. Everything else is
// returned on the first attempt. When attempts run out the caller receives a
// CodeTransient error wrapping ErrExhausted and the last cause, which keeps it
// distinct from validation and not-found failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/roach88/tally/internal/ledger"
)

// Defaults match the contention behavior of the original tooling:
// three attempts, one second apart.
const (
	DefaultMaxAttempts = 3
	DefaultInterval    = time.Second
)

// ErrExhausted is wrapped into the error returned when every attempt failed
// with a transient error.
var ErrExhausted = errors.New("retry attempts exhausted")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy is an explicit bounded-retry policy.
// The zero value is usable and behaves like Default().
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// Backoff computes the wait between attempts.
	Backoff Backoff

	// Retryable classifies errors. Defaults to ledger.IsTransient.
	Retryable func(error) bool

	// Sleep defaults to a timer that honors ctx cancellation.
	// Tests inject a recorder to run without real delays.
	Sleep SleepFunc

	// Logger receives one debug line per retried attempt.
	Logger *slog.Logger
}

// Default returns the default policy: 3 attempts, 1s fixed delay.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     Fixed{Interval: DefaultInterval},
	}
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// op names the operation in logs and errors.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !p.Retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Backoff.Next(attempt)
		p.Logger.Debug("storage busy, retrying",
			"op", op,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		if err := p.Sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: abandoned after %d attempts: %w", op, attempt, errors.Join(err, lastErr))
		}
	}

	return zero, &ledger.Error{
		Code:    ledger.CodeTransient,
		Message: op + ": retries exhausted",
		Details: map[string]string{"attempts": strconv.Itoa(p.MaxAttempts)},
		Err:     fmt.Errorf("%w: %w", ErrExhausted, lastErr),
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = Fixed{Interval: DefaultInterval}
	}
	if p.Retryable == nil {
		p.Retryable = ledger.IsTransient
	}
	if p.Sleep == nil {
		p.Sleep = SleepWithContext
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

// SleepWithContext sleeps for d but returns early with ctx's error if ctx is
// done first. Non-positive durations return immediately.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
