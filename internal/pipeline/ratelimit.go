package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/gridshorts/pipeline/internal/logging"
)

// Limiter gates calls to a rate-limited external API. Acquire blocks
// until a slot is available in the current window or the context ends.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Clock abstracts time for deterministic limiter tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// WindowLimiter enforces a fixed-window call cap shared by every item in
// the batch. Check-and-increment happens under one mutex, so two callers
// can never both take the last slot of a window.
type WindowLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	clock       Clock
	sleep       func(ctx context.Context, d time.Duration) error
	windowStart time.Time
	count       int
	log         *logging.Logger
}

// NewWindowLimiter builds an in-process limiter allowing limit calls per
// window.
func NewWindowLimiter(limit int, window time.Duration, log *logging.Logger) *WindowLimiter {
	return &WindowLimiter{
		limit:  limit,
		window: window,
		clock:  systemClock{},
		sleep:  sleepCtx,
		log:    log,
	}
}

// newWindowLimiterWithClock is used by tests to drive time manually.
func newWindowLimiterWithClock(limit int, window time.Duration, clock Clock, sleep func(context.Context, time.Duration) error, log *logging.Logger) *WindowLimiter {
	return &WindowLimiter{limit: limit, window: window, clock: clock, sleep: sleep, log: log}
}

// Acquire blocks until a slot is free, then consumes it. Returns the
// context error if the wait is canceled; the slot is not consumed in
// that case.
func (l *WindowLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.clock.Now()
		if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
			l.windowStart = now
			l.count = 0
		}
		if l.count < l.limit {
			l.count++
			l.mu.Unlock()
			return nil
		}
		wait := l.windowStart.Add(l.window).Sub(now)
		l.mu.Unlock()

		l.log.Warn("rate limit reached (%d calls per %s), waiting %s", l.limit, l.window, wait)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
