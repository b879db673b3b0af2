package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridshorts/pipeline/internal/logging"
	"github.com/gridshorts/pipeline/internal/model"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriters(logging.LevelError, io.Discard, io.Discard)
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}

	assert.Equal(t, 500*time.Millisecond, p.Delay(1))
	assert.Equal(t, 1*time.Second, p.Delay(2))
	assert.Equal(t, 2*time.Second, p.Delay(3))
	assert.Equal(t, 8*time.Second, p.Delay(10), "delay is capped")
}

func TestExecutorSucceedsFirstTry(t *testing.T) {
	e := newExecutorWithSleep(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, testLogger(), noSleep)

	out := e.Run(context.Background(), model.StageGenerate, func(ctx context.Context) error {
		return nil
	})

	assert.Equal(t, model.OutcomeSucceeded, out.Status)
	assert.Equal(t, 1, out.Attempts)
}

func TestExecutorRetriesTransient(t *testing.T) {
	e := newExecutorWithSleep(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, testLogger(), noSleep)

	calls := 0
	out := e.Run(context.Background(), model.StageGenerate, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient("test", errors.New("flaky"))
		}
		return nil
	})

	assert.Equal(t, model.OutcomeSucceeded, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, calls)
}

func TestExecutorStopsOnTerminal(t *testing.T) {
	e := newExecutorWithSleep(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, testLogger(), noSleep)

	calls := 0
	out := e.Run(context.Background(), model.StageGenerate, func(ctx context.Context) error {
		calls++
		return Terminal("test", errors.New("bad input"))
	})

	assert.Equal(t, model.OutcomeFailed, out.Status)
	assert.False(t, out.Retryable)
	assert.Equal(t, 1, calls, "terminal errors are not retried")
}

func TestExecutorExhaustsTransient(t *testing.T) {
	e := newExecutorWithSleep(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, testLogger(), noSleep)

	calls := 0
	out := e.Run(context.Background(), model.StageUpload, func(ctx context.Context) error {
		calls++
		return Transient("test", errors.New("still down"))
	})

	assert.Equal(t, model.OutcomeFailed, out.Status)
	assert.True(t, out.Retryable, "exhausted transient failures stay marked retryable")
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, out.Attempts)
}

func TestExecutorRecoversPanic(t *testing.T) {
	e := newExecutorWithSleep(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, testLogger(), noSleep)

	out := e.Run(context.Background(), model.StageRender, func(ctx context.Context) error {
		panic("nil map write")
	})

	assert.Equal(t, model.OutcomeFailed, out.Status)
	assert.False(t, out.Retryable)
	assert.Contains(t, out.Reason, "panic")
}

func TestExecutorCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	e := newExecutorWithSleep(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, testLogger(), sleep)

	out := e.Run(ctx, model.StagePost, func(ctx context.Context) error {
		return Transient("test", errors.New("busy"))
	})

	assert.Equal(t, model.OutcomeFailed, out.Status)
	assert.Contains(t, out.Reason, "canceled while waiting to retry")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindTransient, Classify(Transient("x", errors.New("a"))))
	assert.Equal(t, KindTerminal, Classify(Terminal("x", errors.New("a"))))
	assert.Equal(t, KindAuth, Classify(Auth("x", errors.New("a"))))
	assert.Equal(t, KindFilesystem, Classify(Filesystem("x", errors.New("a"))))

	assert.Equal(t, KindTransient, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindTerminal, Classify(errors.New("mystery")), "unknown errors default to terminal")

	wrapped := fmt.Errorf("outer: %w", Transient("x", errors.New("inner")))
	assert.Equal(t, KindTransient, Classify(wrapped))
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(Transient("x", errors.New("a"))))
	require.False(t, Retryable(Terminal("x", errors.New("a"))))
	require.False(t, Retryable(Auth("x", errors.New("a"))))
	require.False(t, Retryable(Filesystem("x", errors.New("a"))))
}
