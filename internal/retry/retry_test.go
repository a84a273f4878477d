package retry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopSleep(_ context.Context, _ time.Duration) error { return nil }

func neverRetryable(error) bool { return false }

func TestDecide_WithinBudget(t *testing.T) {
	p := Policy{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
		Multiplier:     2.0,
	}

	d := p.Decide(0)
	require.True(t, d.Retry)
	assert.Equal(t, time.Second, d.Delay)

	d = p.Decide(2)
	require.True(t, d.Retry)
	assert.Equal(t, 4*time.Second, d.Delay)
}

func TestDecide_BudgetSpent(t *testing.T) {
	p := Policy{MaxRetries: 3, InitialBackoff: time.Second, MaxBackoff: time.Minute, Multiplier: 2.0}

	d := p.Decide(3)
	assert.False(t, d.Retry)
	assert.Zero(t, d.Delay)
}

func TestDecide_DelayCapped(t *testing.T) {
	p := Policy{MaxRetries: 20, InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, Multiplier: 2.0}

	d := p.Decide(10)
	require.True(t, d.Retry)
	assert.Equal(t, 5*time.Second, d.Delay)
}

func TestDecide_JitterBounded(t *testing.T) {
	p := Policy{
		MaxRetries:     5,
		InitialBackoff: 10 * time.Second,
		MaxBackoff:     time.Minute,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}

	for range 50 {
		d := p.Decide(0)
		require.True(t, d.Retry)
		assert.GreaterOrEqual(t, d.Delay, 7500*time.Millisecond)
		assert.LessOrEqual(t, d.Delay, 12500*time.Millisecond)
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	c := New(KindChunkUpload, DefaultPolicy(), slog.Default())
	c.SetSleepFunc(noopSleep)

	calls := 0
	err := c.Do(context.Background(), neverRetryable, func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	c := New(KindChunkUpload, Policy{MaxRetries: 5, InitialBackoff: time.Millisecond, MaxBackoff: time.Second, Multiplier: 2.0}, slog.Default())
	c.SetSleepFunc(noopSleep)

	transient := errors.New("connection reset")

	calls := 0
	err := c.Do(context.Background(), func(error) bool { return true }, func(context.Context) error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryablePropagatesUnmodified(t *testing.T) {
	c := New(KindChunkUpload, DefaultPolicy(), slog.Default())
	c.SetSleepFunc(noopSleep)

	terminal := errors.New("bad metadata")

	calls := 0
	err := c.Do(context.Background(), func(error) bool { return false }, func(context.Context) error {
		calls++
		return terminal
	})

	assert.Same(t, terminal, err)
	assert.Equal(t, 1, calls)
}

func TestDo_BudgetExhausted(t *testing.T) {
	c := New(KindTokenRefresh, Policy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Second, Multiplier: 2.0}, slog.Default())
	c.SetSleepFunc(noopSleep)

	transient := errors.New("503")

	calls := 0
	err := c.Do(context.Background(), func(error) bool { return true }, func(context.Context) error {
		calls++
		return transient
	})

	require.Error(t, err)
	assert.True(t, IsExhausted(err))
	assert.ErrorIs(t, err, transient)
	// 1 initial attempt + 3 retries.
	assert.Equal(t, 4, calls)

	var ee *ExhaustedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindTokenRefresh, ee.Kind)
	assert.Equal(t, 4, ee.Attempts)
}

func TestDo_ContextCanceledDuringSleep(t *testing.T) {
	c := New(KindChunkUpload, DefaultPolicy(), slog.Default())

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := c.Do(ctx, func(error) bool { return true }, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestSleep_RespondsToCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
