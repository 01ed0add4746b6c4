package console

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestGateRejectsNonMonotonicSequence(t *testing.T) {
	gate := NewGate(time.Second, &fakeClock{now: time.Unix(0, 0)})

	//1.- Accept the initial command to seed client state.
	if first := gate.Evaluate("conn-1", 1, false); !first.Accepted {
		t.Fatalf("first command unexpectedly rejected: %+v", first)
	}

	//2.- Replay the previous sequence which should be rejected as out-of-order.
	second := gate.Evaluate("conn-1", 1, false)
	if second.Accepted || second.Reason != DropReasonSequence {
		t.Fatalf("expected sequence drop, got %+v", second)
	}
	if metrics := gate.Metrics(); metrics["conn-1"].Sequence != 1 {
		t.Fatalf("sequence drops = %d, want 1", metrics["conn-1"].Sequence)
	}

	//3.- Unsequenced commands bypass ordering entirely.
	if decision := gate.Evaluate("conn-1", 0, false); !decision.Accepted {
		t.Fatalf("expected unsequenced command to pass, got %+v", decision)
	}
}

func TestGateRateLimitsMutationsOnly(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	gate := NewGate(time.Second, clock)

	if decision := gate.Evaluate("conn", 0, true); !decision.Accepted {
		t.Fatalf("initial set rejected: %+v", decision)
	}
	clock.Advance(100 * time.Millisecond)
	burst := gate.Evaluate("conn", 0, true)
	if burst.Accepted || burst.Reason != DropReasonRateLimited {
		t.Fatalf("expected rate limit drop, got %+v", burst)
	}
	if decision := gate.Evaluate("conn", 0, false); !decision.Accepted {
		t.Fatalf("reads must not be rate limited, got %+v", decision)
	}
	if decision := gate.Evaluate("other", 0, true); !decision.Accepted {
		t.Fatalf("limits are per connection, got %+v", decision)
	}

	clock.Advance(time.Second)
	if decision := gate.Evaluate("conn", 0, true); !decision.Accepted {
		t.Fatalf("expected set after the interval, got %+v", decision)
	}
	if totals := gate.Totals(); totals.RateLimited != 1 || totals.Sequence != 0 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestGateForgetClearsClientState(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	gate := NewGate(time.Second, clock)

	if decision := gate.Evaluate("conn", 1, true); !decision.Accepted {
		t.Fatalf("initial command rejected: %+v", decision)
	}
	gate.Evaluate("conn", 1, false)

	gate.Forget("conn")
	if metrics := gate.Metrics()["conn"]; metrics.Sequence != 0 {
		t.Fatalf("expected metrics reset after forget, got %+v", metrics)
	}
	if decision := gate.Evaluate("conn", 1, true); !decision.Accepted {
		t.Fatalf("expected new session acceptance, got %+v", decision)
	}
}
