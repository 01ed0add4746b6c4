package console

import (
	"sync"
	"time"
)

// Clock exposes the current time for rate limiting decisions.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock for functional adapters.
func (c ClockFunc) Now() time.Time { return c() }

// DropReason enumerates why a command was rejected by the gate.
type DropReason string

const (
	DropReasonNone        DropReason = ""
	DropReasonSequence    DropReason = "sequence"
	DropReasonRateLimited DropReason = "rate_limit"
)

// String returns the textual representation of the drop reason.
func (r DropReason) String() string { return string(r) }

// Decision summarises whether a command passed the gate.
type Decision struct {
	Accepted bool
	Reason   DropReason
}

// DropCounters aggregates per-reason drop counts.
type DropCounters struct {
	Sequence    uint64 `json:"sequence"`
	RateLimited uint64 `json:"rate_limited"`
}

type gateState struct {
	lastSequence uint64
	lastMutation time.Time
}

// Gate orders commands per connection and spaces out parameter changes.
// A zero sequence opts a command out of ordering; a zero MinInterval disables
// the rate limit.
type Gate struct {
	mu          sync.Mutex
	minInterval time.Duration
	clock       Clock
	clients     map[string]*gateState
	drops       map[string]DropCounters
}

// NewGate constructs a gate that admits one mutating command per minInterval
// for each connection.
func NewGate(minInterval time.Duration, clock Clock) *Gate {
	//1.- Normalise negative intervals to disable the check gracefully.
	if minInterval < 0 {
		minInterval = 0
	}
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	return &Gate{
		minInterval: minInterval,
		clock:       clock,
		clients:     make(map[string]*gateState),
		drops:       make(map[string]DropCounters),
	}
}

// Evaluate applies the sequencing and throughput guards to one command.
func (g *Gate) Evaluate(clientID string, sequence uint64, mutating bool) Decision {
	if g == nil || clientID == "" {
		return Decision{Accepted: true}
	}
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	state := g.clients[clientID]
	if state == nil {
		state = &gateState{}
		g.clients[clientID] = state
	}

	//1.- Replayed or reordered commands are refused before anything else.
	if sequence != 0 {
		if sequence <= state.lastSequence {
			return g.dropLocked(clientID, DropReasonSequence)
		}
	}
	//2.- Only mutations are spaced out; reads are always admitted.
	if mutating && g.minInterval > 0 && !state.lastMutation.IsZero() && now.Sub(state.lastMutation) < g.minInterval {
		return g.dropLocked(clientID, DropReasonRateLimited)
	}

	if sequence != 0 {
		state.lastSequence = sequence
	}
	if mutating {
		state.lastMutation = now
	}
	return Decision{Accepted: true}
}

func (g *Gate) dropLocked(clientID string, reason DropReason) Decision {
	current := g.drops[clientID]
	switch reason {
	case DropReasonSequence:
		current.Sequence++
	case DropReasonRateLimited:
		current.RateLimited++
	}
	g.drops[clientID] = current
	return Decision{Accepted: false, Reason: reason}
}

// Forget clears cached state and counters for a disconnected client.
func (g *Gate) Forget(clientID string) {
	if g == nil || clientID == "" {
		return
	}
	g.mu.Lock()
	delete(g.clients, clientID)
	delete(g.drops, clientID)
	g.mu.Unlock()
}

// Metrics returns a copy of the per-client drop counters.
func (g *Gate) Metrics() map[string]DropCounters {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.drops) == 0 {
		return nil
	}
	clone := make(map[string]DropCounters, len(g.drops))
	for clientID, counters := range g.drops {
		clone[clientID] = counters
	}
	return clone
}

// Totals sums the drop counters of every connected client.
func (g *Gate) Totals() DropCounters {
	var total DropCounters
	for _, counters := range g.Metrics() {
		total.Sequence += counters.Sequence
		total.RateLimited += counters.RateLimited
	}
	return total
}
