// Package simulation drives the physics scene at a fixed external frame rate.
package simulation

import (
	"context"
	"sync"
	"time"
)

// StepFunc advances the scene by one external frame and returns the normalised
// physics rate reported for that frame.
type StepFunc func(dt time.Duration) float64

// Loop calls StepFunc at the configured frame rate, catching up with whole
// frames when the process falls behind.
type Loop struct {
	step     time.Duration
	stepFunc StepFunc
	monitor  *TickMonitor
	maxBurst int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop configures a loop targeting the provided frames per second.
func NewLoop(targetHz float64, step StepFunc, monitor *TickMonitor) *Loop {
	if targetHz <= 0 {
		targetHz = 55
	}
	if step == nil {
		step = func(time.Duration) float64 { return 0 }
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 55
	}
	return &Loop{
		step:     interval,
		stepFunc: step,
		monitor:  monitor,
		maxBurst: 5,
	}
}

// Start begins ticking until the context is cancelled or Stop is invoked.
func (l *Loop) Start(ctx context.Context) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.step)
	defer ticker.Stop()

	last := time.Now()
	accumulator := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			//1.- Accumulate elapsed time and run whole frames while catching up.
			accumulator += now.Sub(last)
			last = now
			frames := 0
			for accumulator >= l.step {
				l.tick()
				accumulator -= l.step
				frames++
				//2.- Drop backlog past the burst limit so a stall does not cascade.
				if frames >= l.maxBurst {
					accumulator = 0
				}
			}
		}
	}
}

func (l *Loop) tick() {
	started := time.Now()
	rate := l.stepFunc(l.step)
	l.monitor.Observe(time.Since(started), rate)
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// StepDuration exposes the configured frame interval.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
