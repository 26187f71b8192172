package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExecutor(policy Policy) *Executor {
	return NewExecutor(policy, nil, WithJitter(func() float64 { return 0 }))
}

func TestBackoffFormula(t *testing.T) {
	p := Policy{MaxRetries: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	tests := []struct {
		attempt int
		jitter  float64
		want    time.Duration
	}{
		{attempt: 1, jitter: 0, want: 100 * time.Millisecond},
		{attempt: 2, jitter: 0, want: 200 * time.Millisecond},
		{attempt: 3, jitter: 0, want: 400 * time.Millisecond},
		{attempt: 1, jitter: 0.5, want: 150 * time.Millisecond},
		{attempt: 2, jitter: 0.99, want: 299 * time.Millisecond},
		// Cap applies after jitter.
		{attempt: 5, jitter: 0.9, want: time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.attempt, tt.jitter),
			"attempt=%d jitter=%v", tt.attempt, tt.jitter)
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	e := testExecutor(Policy{MaxRetries: 3, BaseDelay: time.Millisecond})

	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesRetryableThenSucceeds(t *testing.T) {
	e := testExecutor(Policy{MaxRetries: 3, BaseDelay: time.Millisecond})

	calls := 0
	cleanups := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, func() { cleanups++ })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	// Cleanup runs between attempts, not after the success.
	assert.Equal(t, 2, cleanups)
}

func TestDoExhaustsRetries(t *testing.T) {
	e := testExecutor(Policy{MaxRetries: 3, BaseDelay: time.Millisecond})

	cause := errors.New("connection refused")
	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return cause
	}, nil)

	require.Error(t, err)
	// MaxRetries retries means MaxRetries+1 total attempts.
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindNetwork, Classify(err))
}

func TestDoNonRetryableShortCircuits(t *testing.T) {
	e := testExecutor(Policy{MaxRetries: 3, BaseDelay: time.Millisecond})

	calls := 0
	cleanups := 0
	cause := errors.New("daily quota exceeded")
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return cause
	}, func() { cleanups++ })

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, cleanups)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindQuota, Classify(err))
}

func TestDoRespectsContextCancellation(t *testing.T) {
	e := testExecutor(Policy{MaxRetries: 5, BaseDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- e.Do(ctx, func(context.Context) error {
			calls++
			return errors.New("connection refused")
		}, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not observe cancellation")
	}
}

func TestDoCancellationUsesInjectedClassifier(t *testing.T) {
	custom := func(error) Kind { return KindProtocol }
	e := NewExecutor(
		Policy{MaxRetries: 3, BaseDelay: time.Hour},
		nil,
		WithClassifier(custom),
		WithJitter(func() float64 { return 0 }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Do(ctx, func(context.Context) error {
			return errors.New("first attempt fails")
		}, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		var classified *Error
		require.ErrorAs(t, err, &classified)
		assert.Equal(t, KindProtocol, classified.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not observe cancellation")
	}
}

func TestDoValueReturnsValue(t *testing.T) {
	e := testExecutor(Policy{MaxRetries: 2, BaseDelay: time.Millisecond})

	calls := 0
	v, err := DoValue(context.Background(), e, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("connection reset")
		}
		return "handle", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "handle", v)
	assert.Equal(t, 2, calls)
}

func TestDoBackoffTimingBounds(t *testing.T) {
	// Two failures before success: delays of base*1 and base*2 with zero
	// jitter, so total elapsed is at least 3x base.
	base := 20 * time.Millisecond
	e := testExecutor(Policy{MaxRetries: 3, BaseDelay: base})

	calls := 0
	start := time.Now()
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		if calls <= 2 {
			return errors.New("connection refused")
		}
		return nil
	}, nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 3*base)
	assert.Less(t, elapsed, 20*base)
}
