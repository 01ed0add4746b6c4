package simulation

import (
	"sync"
	"time"
)

// TickMetricsSnapshot summarises observed frame durations and physics rates.
type TickMetricsSnapshot struct {
	Samples     int
	Average     time.Duration
	Max         time.Duration
	Last        time.Duration
	LastRate    float64
	AverageRate float64
	NotReady    int
}

// AverageFPS derives the frames-per-second equivalent of the sampled frame duration.
func (s TickMetricsSnapshot) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// NotReadyRate is the value the scene returns from a frame it could not step.
const NotReadyRate = 5.0

// TickMonitor accumulates timing statistics for the frame loop.
type TickMonitor struct {
	mu        sync.Mutex
	samples   int
	total     time.Duration
	max       time.Duration
	last      time.Duration
	lastRate  float64
	totalRate float64
	notReady  int
}

// NewTickMonitor constructs an empty monitor.
func NewTickMonitor() *TickMonitor {
	return &TickMonitor{}
}

// Observe records the wall-clock cost of a frame and the rate it reported.
func (m *TickMonitor) Observe(duration time.Duration, rate float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	//1.- Frames the scene refused to step count separately and stay out of the averages.
	if rate == NotReadyRate {
		m.notReady++
		return
	}
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	m.lastRate = rate
	m.totalRate += rate
}

// Snapshot returns a copy of the aggregated statistics.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := TickMetricsSnapshot{
		Samples:  m.samples,
		Max:      m.max,
		Last:     m.last,
		LastRate: m.lastRate,
		NotReady: m.notReady,
	}
	if m.samples > 0 {
		snap.Average = m.total / time.Duration(m.samples)
		snap.AverageRate = m.totalRate / float64(m.samples)
	}
	return snap
}

// Reset clears the accumulated statistics.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.samples, m.total, m.max, m.last = 0, 0, 0, 0
	m.lastRate, m.totalRate, m.notReady = 0, 0, 0
	m.mu.Unlock()
}
