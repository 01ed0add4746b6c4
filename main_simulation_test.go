package main

import (
	"context"
	"testing"
	"time"
)

func TestDaemonLoopStepsDemoPopulation(t *testing.T) {
	cfg := testConfig(t)
	cfg.DemoObjects = 10
	d := mustDaemon(t, cfg)
	defer d.close()

	first, ok := d.scene.Object(demoPrimHandleStart)
	if !ok {
		t.Fatal("expected the first demo prim to be resident")
	}
	startZ := first.Position().Z()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.loop.Start(ctx)
	deadline := time.Now().Add(5 * time.Second)
	for d.monitor.Snapshot().Samples < 20 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	d.loop.Stop()

	ticks := d.monitor.Snapshot()
	if ticks.Samples < 20 {
		t.Fatalf("expected at least 20 frames, got %d", ticks.Samples)
	}
	if ticks.NotReady != 0 {
		t.Fatalf("expected every frame to step, %d were not ready", ticks.NotReady)
	}
	stats := d.scene.StepStats()
	if stats.EngineFailures != 0 {
		t.Fatalf("unexpected engine failures %d", stats.EngineFailures)
	}
	if stats.Objects != 11 {
		t.Fatalf("expected 11 resident objects, got %d", stats.Objects)
	}
	if z := first.Position().Z(); z >= startZ {
		t.Fatalf("expected the demo box to fall from %.3f, still at %.3f", startZ, z)
	}
}
