package httpapi

import (
	"sync"
	"time"
)

// SlidingWindowLimiter admits at most limit operator actions in any window.
// It guards the dump and parameter endpoints, which touch the step loop.
type SlidingWindowLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu       sync.Mutex
	admitted []time.Time
}

// NewSlidingWindowLimiter constructs a limiter. A non-positive window or limit disables it.
func NewSlidingWindowLimiter(window time.Duration, limit int, clock func() time.Time) *SlidingWindowLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &SlidingWindowLimiter{window: window, limit: limit, now: clock}
}

func (l *SlidingWindowLimiter) disabled() bool {
	return l == nil || l.limit <= 0 || l.window <= 0
}

// prune drops admissions that fell out of the window. Callers hold mu.
func (l *SlidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.admitted[:0]
	for _, ts := range l.admitted {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.admitted = kept
}

// Allow records an admission when the window has room.
func (l *SlidingWindowLimiter) Allow() bool {
	if l.disabled() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	if len(l.admitted) >= l.limit {
		return false
	}
	l.admitted = append(l.admitted, now)
	return true
}

// Remaining reports how many admissions the window still has room for. A
// disabled limiter reports -1.
func (l *SlidingWindowLimiter) Remaining() int {
	if l.disabled() {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return l.limit - len(l.admitted)
}
