package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ledger"
)

// recorder captures requested sleeps instead of waiting.
type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func busy() error {
	return ledger.NewTransient("update balance", errors.New("database is locked"))
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	rec := &recorder{}
	p := Policy{MaxAttempts: 3, Backoff: Fixed{Interval: time.Second}, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	rec := &recorder{}
	p := Policy{MaxAttempts: 3, Backoff: Fixed{Interval: time.Second}, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return busy()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, rec.delays)
}

func TestDo_ExhaustedIsTransient(t *testing.T) {
	rec := &recorder{}
	p := Policy{MaxAttempts: 3, Backoff: Fixed{Interval: time.Second}, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), "credit", func(context.Context) error {
		calls++
		return busy()
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.delays, 2, "no sleep after the final attempt")
	assert.True(t, ledger.IsTransient(err))
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, ledger.CodeTransient, ledger.CodeOf(err))
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	rec := &recorder{}
	p := Policy{MaxAttempts: 5, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), "debit", func(context.Context) error {
		calls++
		return ledger.NewNotFound("Cash")
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Empty(t, rec.delays)
}

func TestDo_IncrementalBackoff(t *testing.T) {
	rec := &recorder{}
	p := Policy{MaxAttempts: 4, Backoff: Incremental{Step: 100 * time.Millisecond}, Sleep: rec.sleep}

	_ = p.Do(context.Background(), "op", func(context.Context) error { return busy() })

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	}, rec.delays)
}

func TestDo_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		MaxAttempts: 3,
		Backoff:     Fixed{Interval: time.Hour},
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return SleepWithContext(ctx, d)
		},
	}

	calls := 0
	err := p.Do(ctx, "op", func(context.Context) error {
		calls++
		return busy()
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, ledger.IsTransient(err), "last cause is kept")
}

func TestDo_ZeroPolicyUsesDefaults(t *testing.T) {
	rec := &recorder{}
	p := Policy{Sleep: rec.sleep}

	calls := 0
	_ = p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return busy()
	})

	assert.Equal(t, DefaultMaxAttempts, calls)
	assert.Equal(t, []time.Duration{DefaultInterval, DefaultInterval}, rec.delays)
}

func TestDoValue_ReturnsValue(t *testing.T) {
	rec := &recorder{}
	p := Policy{MaxAttempts: 2, Sleep: rec.sleep}

	calls := 0
	v, err := DoValue(context.Background(), p, "op", func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, busy()
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSleepWithContext(t *testing.T) {
	assert.NoError(t, SleepWithContext(context.Background(), 0))
	assert.NoError(t, SleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepWithContext(ctx, time.Hour), context.Canceled)
}
