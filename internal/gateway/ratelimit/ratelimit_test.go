package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	return NewWithClock(clock.Now), clock
}

func TestCheckAndRecord_PerMinute(t *testing.T) {
	l, clock := newTestLimiter()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.CheckAndRecord(1, 3, 0))
		clock.Advance(5 * time.Second)
	}
	require.ErrorIs(t, l.CheckAndRecord(1, 3, 0), ErrRateLimitExceeded)

	// Rejections are not recorded
	require.Equal(t, 3, l.Count(1, time.Minute))

	// Another provider has its own window
	require.NoError(t, l.CheckAndRecord(2, 3, 0))

	// First request leaves the minute window
	clock.Advance(46 * time.Second)
	require.NoError(t, l.CheckAndRecord(1, 3, 0))
}

func TestCheckAndRecord_PerHour(t *testing.T) {
	l, clock := newTestLimiter()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.CheckAndRecord(1, 0, 5))
		clock.Advance(2 * time.Minute)
	}
	require.ErrorIs(t, l.CheckAndRecord(1, 0, 5), ErrRateLimitExceeded)

	clock.Advance(51 * time.Minute)
	require.NoError(t, l.CheckAndRecord(1, 0, 5))
}

func TestCheckAndRecord_Unlimited(t *testing.T) {
	l, _ := newTestLimiter()
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.CheckAndRecord(1, 0, -1))
	}
}

func TestCheckAndRecord_DropsEntriesOlderThanHour(t *testing.T) {
	l, clock := newTestLimiter()

	require.NoError(t, l.CheckAndRecord(1, 0, 0))
	clock.Advance(3601 * time.Second)
	require.NoError(t, l.CheckAndRecord(1, 0, 0))

	val, _ := l.windows.Load(int64(1))
	require.Len(t, val.(*window).requests, 1)
}

func TestCheckAndRecord_HourBoundaryIsInclusive(t *testing.T) {
	l, clock := newTestLimiter()

	require.NoError(t, l.CheckAndRecord(1, 0, 1))
	clock.Advance(time.Hour)
	require.ErrorIs(t, l.CheckAndRecord(1, 0, 1), ErrRateLimitExceeded)

	clock.Advance(time.Nanosecond)
	require.NoError(t, l.CheckAndRecord(1, 0, 1))
}

func TestCheckAndRecord_Concurrent(t *testing.T) {
	l, _ := newTestLimiter()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CheckAndRecord(7, 10, 100) == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(10), admitted.Load())
}

func TestTrim(t *testing.T) {
	l, clock := newTestLimiter()

	require.NoError(t, l.CheckAndRecord(1, 0, 0))
	clock.Advance(30 * time.Minute)
	require.NoError(t, l.CheckAndRecord(2, 0, 0))
	clock.Advance(31 * time.Minute)

	require.Equal(t, 1, l.Trim())
	require.Equal(t, 0, l.Count(1, time.Hour))
	require.Equal(t, 1, l.Count(2, time.Hour))
}
