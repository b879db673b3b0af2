package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to, and optionally on sleep.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestWindowLimiterAllowsBurstWithinWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := newWindowLimiterWithClock(3, time.Minute, clock, noSleep, testLogger())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
}

func TestWindowLimiterBlocksUntilWindowRolls(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	slept := time.Duration(0)
	sleep := func(ctx context.Context, d time.Duration) error {
		slept += d
		clock.advance(d)
		return nil
	}
	l := newWindowLimiterWithClock(2, time.Minute, clock, sleep, testLogger())

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	// Third call must wait out the rest of the window.
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, time.Minute, slept)

	// The new window has one slot consumed; a second is still free.
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, time.Minute, slept, "no extra waiting inside the fresh window")
}

func TestWindowLimiterResetsAfterIdleGap(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := newWindowLimiterWithClock(1, time.Minute, clock, noSleep, testLogger())

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))

	clock.advance(2 * time.Minute)
	require.NoError(t, l.Acquire(ctx), "a stale window is discarded, not waited on")
}

func TestWindowLimiterHonorsCancellation(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	sleep := func(ctx context.Context, d time.Duration) error { return context.Canceled }
	l := newWindowLimiterWithClock(1, time.Minute, clock, sleep, testLogger())

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}

func TestDifficultyCyclerExplicit(t *testing.T) {
	c := NewDifficultyCycler(7, 42)
	for i := 0; i < 12; i++ {
		assert.Equal(t, 7, c.Next())
	}
}

func TestDifficultyCyclerCycles(t *testing.T) {
	c := NewDifficultyCycler(0, 0)
	var got []int
	for i := 0; i < 12; i++ {
		got = append(got, c.Next())
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 1, 2}, got)
}

func TestDifficultyCyclerSeededByProduced(t *testing.T) {
	c := NewDifficultyCycler(0, 3)
	assert.Equal(t, 4, c.Next())
	assert.Equal(t, 5, c.Next())
}
