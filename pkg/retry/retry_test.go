package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterFailures(t *testing.T) {
	cfg := LinearConfig(3, time.Millisecond, 2*time.Millisecond)
	calls := 0

	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastError(t *testing.T) {
	cfg := LinearConfig(3, time.Millisecond, time.Millisecond)
	calls := 0

	err := Do(context.Background(), cfg, func() error {
		calls++
		return errors.New("attempt failed")
	})

	require.Error(t, err)
	assert.Equal(t, "attempt failed", err.Error())
	assert.Equal(t, 3, calls)
}

func TestDo_RetryIfStopsEarly(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := LinearConfig(3, time.Millisecond, time.Millisecond)
	cfg.RetryIf = func(err error) bool { return !errors.Is(err, permanent) }
	calls := 0

	err := Do(context.Background(), cfg, func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryCalled(t *testing.T) {
	cfg := LinearConfig(3, time.Millisecond, time.Millisecond)
	var attempts []uint
	cfg.OnRetry = func(n uint, _ error) { attempts = append(attempts, n) }

	_ = Do(context.Background(), cfg, func() error { return errors.New("x") })

	assert.Equal(t, []uint{0, 1}, attempts)
}

func TestDo_OnRetrySkipsFinalAttempt(t *testing.T) {
	cfg := LinearConfig(1, time.Millisecond, time.Millisecond)
	called := false
	cfg.OnRetry = func(uint, error) { called = true }

	err := Do(context.Background(), cfg, func() error { return errors.New("x") })

	require.Error(t, err)
	assert.False(t, called)
}

func TestDo_OnRetryNotCalledOnSuccess(t *testing.T) {
	cfg := LinearConfig(3, time.Millisecond, time.Millisecond)
	var attempts []uint
	cfg.OnRetry = func(n uint, _ error) { attempts = append(attempts, n) }
	calls := 0

	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []uint{0}, attempts)
}

func TestDoWithResult(t *testing.T) {
	cfg := LinearConfig(2, time.Millisecond, time.Millisecond)
	calls := 0

	got, err := DoWithResult(context.Background(), cfg, func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("first")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestLinearDelay_GrowsWithAttempt(t *testing.T) {
	delay := linearDelay(150*time.Millisecond, 250*time.Millisecond)

	for n := uint(0); n < 3; n++ {
		d := delay(n, nil, nil)
		assert.GreaterOrEqual(t, d, time.Duration(n+1)*150*time.Millisecond)
		assert.LessOrEqual(t, d, time.Duration(n+1)*250*time.Millisecond)
	}
}
