package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the wait before the next attempt.
// attempt is 1 after the first failure, 2 after the second, and so on.
type Backoff interface {
	Next(attempt int) time.Duration
}

// Fixed waits the same interval between every attempt.
type Fixed struct {
	Interval time.Duration
}

// Next implements Backoff.
func (f Fixed) Next(int) time.Duration {
	return max(f.Interval, 0)
}

// Incremental waits Step, 2*Step, 3*Step, ...
type Incremental struct {
	Step time.Duration
}

// Next implements Backoff.
func (i Incremental) Next(attempt int) time.Duration {
	if i.Step <= 0 || attempt < 1 {
		return 0
	}
	if int64(i.Step) > math.MaxInt64/int64(attempt) {
		return time.Duration(math.MaxInt64)
	}
	return i.Step * time.Duration(attempt)
}

const maxShift = 62

// Exponential waits Base * 2^(attempt-1), capped at Max when Max > 0.
// With Jitter set the wait is drawn uniformly from [0, delay).
type Exponential struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

// Next implements Backoff.
func (e Exponential) Next(attempt int) time.Duration {
	if e.Base <= 0 {
		return 0
	}
	shift := min(max(attempt-1, 0), maxShift)
	multiplier := int64(1) << shift

	delay := time.Duration(math.MaxInt64)
	if int64(e.Base) <= math.MaxInt64/multiplier {
		delay = e.Base * time.Duration(multiplier)
	}
	if e.Max > 0 && delay > e.Max {
		delay = e.Max
	}
	if e.Jitter && delay > 0 {
		return time.Duration(rand.Int64N(int64(delay)))
	}
	return delay
}
