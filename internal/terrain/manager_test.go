package terrain

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/engine"
	"regionsim/physics/internal/engine/basic"
	"regionsim/physics/internal/logging"
	"regionsim/physics/internal/taint"
)

type region struct {
	manager *Manager
	queue   *taint.Queue
	engine  *basic.Engine
}

func newRegion(t *testing.T, size int) region {
	t.Helper()
	eng := basic.New("basic", logging.NewTestLogger())
	if err := eng.Initialize(engine.WorldConfig{}); err != nil {
		t.Fatalf("initialize engine: %v", err)
	}
	queue := taint.New(logging.NewTestLogger())
	manager := New(eng, queue.Enqueue, logging.NewTestLogger(), Config{
		RegionSize:        size,
		InitialHeight:     20,
		GroundPlaneHeight: -500,
	})
	if err := manager.CreateInitialGroundPlaneAndTerrain(); err != nil {
		t.Fatalf("create initial terrain: %v", err)
	}
	return region{manager: manager, queue: queue, engine: eng}
}

func TestInitialTerrainAndGroundPlane(t *testing.T) {
	r := newRegion(t, 8)
	if r.engine.Statistics().Terrains != 2 {
		t.Fatalf("expected ground plane and heightfield, got %d", r.engine.Statistics().Terrains)
	}
	if got := r.manager.HeightAt(3, 3); got != 20 {
		t.Fatalf("expected initial height 20, got %v", got)
	}
	if got := r.manager.HeightAt(100, 100); got != -500 {
		t.Fatalf("expected ground plane outside the region, got %v", got)
	}
	if r.manager.HighestTerrainID() != GroundPlaneID {
		t.Fatalf("unexpected highest id %d", r.manager.HighestTerrainID())
	}
	if !r.manager.IsTerrain(TerrainID) || r.manager.IsTerrain(100) {
		t.Fatal("unexpected terrain classification")
	}
}

func TestSetTerrainIsDeferred(t *testing.T) {
	r := newRegion(t, 4)
	heights := make([]float64, 16)
	for i := range heights {
		heights[i] = float64(i % 4)
	}
	if err := r.manager.SetTerrain(engine.Heightfield{SizeX: 4, SizeY: 4, Heights: heights}); err != nil {
		t.Fatalf("SetTerrain: %v", err)
	}
	if got := r.manager.HeightAt(2, 1); got != 20 {
		t.Fatalf("terrain changed before flush: %v", got)
	}
	r.queue.Flush()
	if got := r.manager.HeightAt(2, 1); math.Abs(got-2) > 1e-9 {
		t.Fatalf("expected new height 2, got %v", got)
	}
}

func TestSetTerrainRejectsBadField(t *testing.T) {
	r := newRegion(t, 4)
	if err := r.manager.SetTerrain(engine.Heightfield{SizeX: 4, SizeY: 4}); err == nil {
		t.Fatal("expected invalid heightfield to fail")
	}
}

func TestCombinedRegionForwardsToRoot(t *testing.T) {
	root := newRegion(t, 4)
	childRegion := newRegion(t, 4)
	if err := childRegion.manager.Combine(root.manager, mgl64.Vec3{4, 0, 0}, mgl64.Vec3{4, 4, 0}); err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if err := childRegion.manager.Combine(childRegion.manager, mgl64.Vec3{}, mgl64.Vec3{}); err == nil {
		t.Fatal("expected self combine to fail")
	}
	field := engine.NewFlatHeightfield(4, 4, 7)
	if err := childRegion.manager.SetTerrain(field); err != nil {
		t.Fatalf("SetTerrain: %v", err)
	}
	if childRegion.queue.Pending() != 0 {
		t.Fatal("child region should not touch its own engine")
	}
	root.queue.Flush()

	if root.manager.Children() != 1 {
		t.Fatalf("expected one child terrain, got %d", root.manager.Children())
	}
	if root.manager.HighestTerrainID() != ChildTerrainID {
		t.Fatalf("expected highest id %d, got %d", ChildTerrainID, root.manager.HighestTerrainID())
	}
	if got := root.manager.HeightAt(5, 1); got != 7 {
		t.Fatalf("expected child height 7 at stitched offset, got %v", got)
	}

	root.manager.UnCombine(childRegion.manager)
	root.queue.Flush()
	if root.manager.Children() != 0 || root.manager.HighestTerrainID() != GroundPlaneID {
		t.Fatal("expected children released on the root")
	}
	childRegion.manager.UnCombine(root.manager)
	if childRegion.manager.Parent() != nil {
		t.Fatal("expected child to forget its parent")
	}
}

func TestWaterLevelAndRelease(t *testing.T) {
	r := newRegion(t, 4)
	r.manager.SetWaterLevel(21.5)
	if r.manager.WaterLevel() != 21.5 {
		t.Fatalf("unexpected water level %v", r.manager.WaterLevel())
	}
	r.manager.SetFriction(0.4)
	if r.manager.Friction() != 0.4 {
		t.Fatalf("unexpected friction %v", r.manager.Friction())
	}
	r.manager.Release()
	if r.engine.Statistics().Terrains != 0 {
		t.Fatalf("expected all terrain destroyed, got %d", r.engine.Statistics().Terrains)
	}
}

func TestChildTerrainsStayInsideReservedRange(t *testing.T) {
	root := newRegion(t, 4)
	slots := int(MaxTerrainID - ChildTerrainID + 1)
	//1.- Fill every reserved child slot, then ask for one more.
	for i := 0; i <= slots; i++ {
		field := engine.NewFlatHeightfield(4, 4, 1)
		field.Offset = mgl64.Vec3{float64(4 * (i + 1)), 0, 0}
		root.manager.AddChildTerrain(field)
	}
	root.queue.Flush()

	if root.manager.Children() != slots {
		t.Fatalf("expected %d child terrains, got %d", slots, root.manager.Children())
	}
	if root.manager.HighestTerrainID() != MaxTerrainID {
		t.Fatalf("expected highest id %d, got %d", MaxTerrainID, root.manager.HighestTerrainID())
	}
	if root.manager.IsTerrain(MaxTerrainID + 1) {
		t.Fatal("handles above the reserved range must never be terrain")
	}
}
