package physlog

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/detaillog"
	"regionsim/physics/internal/engine"
)

func writeSession(t *testing.T, root, region string, at time.Time) string {
	t.Helper()
	clock := func() time.Time { return at }
	w, err := detaillog.Open(detaillog.Config{Enabled: true, Dir: root, Region: region, PhysicalDumps: true}, clock)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	w.Logf(3, "stepping %s", region)
	w.Logf(5, "collision 10 with 11")
	for step := uint64(4); step <= 6; step++ {
		bodies := []engine.EntityProperties{
			{ID: 10, Position: mgl64.Vec3{0, 0, 10 - float64(step)}, Rotation: mgl64.QuatIdent(), Velocity: mgl64.Vec3{0, 0, -1}},
			{ID: 11, Position: mgl64.Vec3{1, 0, 0}, Rotation: mgl64.QuatIdent()},
		}
		if err := w.Dump(step, int64(step)*18, bodies); err != nil {
			t.Fatalf("Dump: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return w.Directory()
}

func TestListAndSummarise(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	writeSession(t, root, "harbour", base)
	dir := writeSession(t, root, "alpha", base.Add(time.Hour))

	entries, err := List(root)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Manifest.Region != "alpha" || entries[0].Dir != dir {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if payload, err := MarshalEntries(entries); err != nil || len(payload) == 0 {
		t.Fatalf("MarshalEntries: %v", err)
	}

	session, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	summary := session.Summary()
	if summary.Region != "alpha" || summary.Events != 2 || summary.Dumps != 3 || summary.Bodies != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.FirstStep != 3 || summary.LastStep != 6 {
		t.Fatalf("unexpected step range %d..%d", summary.FirstStep, summary.LastStep)
	}

	track := session.Track(10)
	if len(track) != 3 || track[0].Step != 4 || track[2].Position.Z() != 4 {
		t.Fatalf("unexpected track %+v", track)
	}
}

func TestListRejectsMissingRoot(t *testing.T) {
	if _, err := List(""); err == nil {
		t.Fatal("expected an error for an empty root")
	}
}
