package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/gridshorts/pipeline/internal/logging"
	"github.com/gridshorts/pipeline/internal/model"
)

// RetryPolicy bounds the retry loop around one external call: up to
// MaxAttempts tries, sleeping BaseDelay doubled per attempt and capped
// at MaxDelay between them.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns the backoff before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Executor runs stage functions and converts every failure mode into a
// StageOutcome. Nothing escapes this boundary: errors are classified,
// transient ones retried with backoff, and panics recorded as terminal
// failures.
type Executor struct {
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
	log    *logging.Logger
}

// NewExecutor builds an executor with a context-aware sleeper.
func NewExecutor(policy RetryPolicy, log *logging.Logger) *Executor {
	return &Executor{
		policy: policy,
		sleep:  sleepCtx,
		log:    log,
	}
}

// newExecutorWithSleep is used by tests to avoid real waiting.
func newExecutorWithSleep(policy RetryPolicy, log *logging.Logger, sleep func(context.Context, time.Duration) error) *Executor {
	return &Executor{policy: policy, sleep: sleep, log: log}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run invokes fn for the given stage. The returned outcome is succeeded,
// or failed with the classified reason; retryable=true on a failed
// outcome means retries were exhausted rather than short-circuited.
func (e *Executor) Run(ctx context.Context, stage model.Stage, fn func(ctx context.Context) error) model.StageOutcome {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		lastErr = e.invoke(ctx, fn)
		if lastErr == nil {
			return model.StageOutcome{
				Stage:    stage,
				Status:   model.OutcomeSucceeded,
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}

		if !Retryable(lastErr) {
			return model.StageOutcome{
				Stage:     stage,
				Status:    model.OutcomeFailed,
				Reason:    lastErr.Error(),
				Retryable: false,
				Attempts:  attempt,
				Duration:  time.Since(start),
			}
		}

		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := e.policy.Delay(attempt)
		e.log.Warn("stage %s attempt %d/%d failed (%v), retrying in %s",
			stage, attempt, e.policy.MaxAttempts, lastErr, delay)
		if err := e.sleep(ctx, delay); err != nil {
			return model.StageOutcome{
				Stage:     stage,
				Status:    model.OutcomeFailed,
				Reason:    fmt.Sprintf("canceled while waiting to retry: %v", lastErr),
				Retryable: true,
				Attempts:  attempt,
				Duration:  time.Since(start),
			}
		}
	}

	return model.StageOutcome{
		Stage:     stage,
		Status:    model.OutcomeFailed,
		Reason:    lastErr.Error(),
		Retryable: true,
		Attempts:  e.policy.MaxAttempts,
		Duration:  time.Since(start),
	}
}

// invoke shields the executor from panicking collaborators.
func (e *Executor) invoke(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Terminal("stage", fmt.Errorf("panic: %v", r))
		}
	}()
	return fn(ctx)
}
