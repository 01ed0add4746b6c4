package httpapi

import (
	"testing"
	"time"
)

func TestSlidingWindowLimiterAdmitsPerWindow(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewSlidingWindowLimiter(time.Minute, 2, func() time.Time { return now })

	if !limiter.Allow() || !limiter.Allow() {
		t.Fatal("expected the first two dumps to be admitted")
	}
	if limiter.Allow() || limiter.Remaining() != 0 {
		t.Fatal("expected the window to be full")
	}

	now = now.Add(45 * time.Second)
	if limiter.Allow() {
		t.Fatal("expected the window to still be full")
	}

	now = now.Add(16 * time.Second)
	if limiter.Remaining() != 2 || !limiter.Allow() {
		t.Fatal("expected room once the window slid past both admissions")
	}
}

func TestSlidingWindowLimiterDisabled(t *testing.T) {
	limiter := NewSlidingWindowLimiter(0, 0, nil)
	if !limiter.Allow() || limiter.Remaining() != -1 {
		t.Fatal("a zero configuration must admit everything")
	}
}
