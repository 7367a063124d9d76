package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimitExceeded is returned when a provider is over its minute or
// hour budget. It is not a provider failure.
var ErrRateLimitExceeded = errors.New("provider rate limit exceeded")

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

type window struct {
	mu       sync.Mutex
	requests []time.Time
	removed  bool // set by Trim once the window left the map
}

// prune drops timestamps before cutoff. A request exactly one window old
// still counts. Requests are appended in order so the list stays sorted.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.requests) && w.requests[i].Before(cutoff) {
		i++
	}
	w.requests = w.requests[i:]
}

// Limiter keeps a sliding one hour window of request timestamps per
// provider. Each provider has its own lock.
type Limiter struct {
	windows sync.Map // int64 -> *window
	now     func() time.Time
}

// New creates a limiter using the wall clock
func New() *Limiter {
	return &Limiter{now: time.Now}
}

// NewWithClock creates a limiter with an injected clock
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{now: now}
}

// lockWindow returns the locked live window for providerID
func (l *Limiter) lockWindow(providerID int64) *window {
	for {
		val, _ := l.windows.LoadOrStore(providerID, &window{})
		w := val.(*window)
		w.mu.Lock()
		if !w.removed {
			return w
		}
		w.mu.Unlock()
	}
}

// CheckAndRecord admits one request for providerID or returns
// ErrRateLimitExceeded without recording it. Limits <= 0 are unlimited.
func (l *Limiter) CheckAndRecord(providerID int64, perMinute, perHour int) error {
	w := l.lockWindow(providerID)
	defer w.mu.Unlock()

	now := l.now()
	w.prune(now.Add(-hourWindow))

	if perMinute > 0 {
		cutoff := now.Add(-minuteWindow)
		recent := 0
		for i := len(w.requests) - 1; i >= 0 && w.requests[i].After(cutoff); i-- {
			recent++
		}
		if recent >= perMinute {
			return ErrRateLimitExceeded
		}
	}

	if perHour > 0 && len(w.requests) >= perHour {
		return ErrRateLimitExceeded
	}

	w.requests = append(w.requests, now)
	return nil
}

// Count returns the number of requests recorded for providerID in the
// trailing window d (at most one hour).
func (l *Limiter) Count(providerID int64, d time.Duration) int {
	val, ok := l.windows.Load(providerID)
	if !ok {
		return 0
	}
	w := val.(*window)

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := l.now().Add(-d)
	n := 0
	for i := len(w.requests) - 1; i >= 0 && w.requests[i].After(cutoff); i-- {
		n++
	}
	return n
}

// Trim prunes every window and forgets providers with no requests in the
// last hour. It returns the number of windows removed.
func (l *Limiter) Trim() int {
	cutoff := l.now().Add(-hourWindow)
	removed := 0
	l.windows.Range(func(key, val any) bool {
		w := val.(*window)
		w.mu.Lock()
		w.prune(cutoff)
		empty := len(w.requests) == 0
		if empty {
			w.removed = true
			l.windows.Delete(key)
			removed++
		}
		w.mu.Unlock()
		return true
	})
	return removed
}
