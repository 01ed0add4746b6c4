package detaillog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/engine"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestDisabledWriterIsNilSafe(t *testing.T) {
	w, err := Open(Config{Enabled: false, Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if w != nil {
		t.Fatal("expected nil writer when disabled")
	}
	w.Logf(1, "ignored %d", 1)
	if err := w.Dump(1, 0, nil); err != nil {
		t.Fatalf("Dump on nil writer: %v", err)
	}
	if w.Enabled() || w.DumpsEnabled() {
		t.Fatal("nil writer must report disabled")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close on nil writer: %v", err)
	}
}

func TestOpenRequiresDirectory(t *testing.T) {
	if _, err := Open(Config{Enabled: true}, nil); err == nil {
		t.Fatal("expected missing directory to fail")
	}
}

func TestSessionNameSubstitutesRegion(t *testing.T) {
	if got := SessionName("phys-%REGIONNAME%-", "Sand Box"); got != "phys-SandBox-" {
		t.Fatalf("unexpected session name %q", got)
	}
	if got := SessionName("", "r1"); got != "r1-" {
		t.Fatalf("unexpected default session name %q", got)
	}
}

func TestEventsRoundTripAcrossRotation(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	w, err := Open(Config{
		Enabled:     true,
		Dir:         t.TempDir(),
		Region:      "alpha",
		FileMinutes: 1,
		DoFlush:     true,
	}, clock.Now)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !strings.Contains(filepath.Base(w.Directory()), "alpha-") {
		t.Fatalf("unexpected session directory %s", w.Directory())
	}

	w.Logf(1, "step %d", 1)
	w.Logf(2, "step %d", 2)
	clock.Advance(2 * time.Minute)
	w.Logf(3, "step %d", 3)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	manifest, err := ReadManifest(w.Directory())
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(manifest.EventSegments) != 2 || manifest.ClosedAt == "" {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
	events, err := ReadEvents(w.Directory())
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Step != uint64(i+1) || ev.Message != "step "+string(rune('1'+i)) {
			t.Fatalf("unexpected event %d: %+v", i, ev)
		}
	}
	if stats := w.Stats(); stats.Lines != 3 || stats.Segments != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestDumpsRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	w, err := Open(Config{Enabled: true, Dir: t.TempDir(), Region: "beta", PhysicalDumps: true}, clock.Now)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	bodies := []engine.EntityProperties{
		{ID: 10, Position: mgl64.Vec3{1, 2, 3}, Rotation: mgl64.QuatIdent(), Velocity: mgl64.Vec3{0, 0, -1}},
		{ID: 11, Position: mgl64.Vec3{-4, 5, 6}, Rotation: mgl64.Quat{W: 0, V: mgl64.Vec3{0, 0, 1}}, AngularVelocity: mgl64.Vec3{0, 0, 2}},
	}
	if err := w.Dump(7, 127, bodies); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if err := w.Dump(8, 145, nil); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dumps, err := ReadDumps(w.Directory())
	if err != nil {
		t.Fatalf("ReadDumps: %v", err)
	}
	if len(dumps) != 2 {
		t.Fatalf("expected 2 dumps, got %d", len(dumps))
	}
	if dumps[0].Step != 7 || dumps[0].SimulatedMs != 127 || !dumps[0].CapturedAt.Equal(clock.now) {
		t.Fatalf("unexpected dump header %+v", dumps[0])
	}
	if len(dumps[0].Bodies) != 2 || dumps[0].Bodies[1] != bodies[1] || dumps[0].Bodies[0] != bodies[0] {
		t.Fatalf("unexpected bodies %+v", dumps[0].Bodies)
	}
	if len(dumps[1].Bodies) != 0 {
		t.Fatalf("expected empty second dump, got %+v", dumps[1].Bodies)
	}
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	w, err := Open(Config{Enabled: true, Dir: t.TempDir(), Region: "gamma"}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	w.Close()
	w.Logf(1, "late")
	if w.Enabled() {
		t.Fatal("closed writer must report disabled")
	}
	if _, err := os.Stat(filepath.Join(w.Directory(), manifestName)); err != nil {
		t.Fatalf("expected manifest to exist: %v", err)
	}
	events, err := ReadEvents(w.Directory())
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}
