package shapes

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/engine"
	"regionsim/physics/internal/engine/basic"
	"regionsim/physics/internal/logging"
)

func newCache(t *testing.T, mesher Mesher) (*Cache, *basic.Engine) {
	t.Helper()
	eng := basic.New("basic", logging.NewTestLogger())
	if err := eng.Initialize(engine.WorldConfig{}); err != nil {
		t.Fatalf("initialize engine: %v", err)
	}
	return New(eng, mesher, logging.NewTestLogger()), eng
}

func TestStructurallyEqualDescriptionsShareHandle(t *testing.T) {
	cache, eng := newCache(t, nil)
	first, err := cache.GetOrCreate(Box(mgl64.Vec3{1, 2, 3}))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := cache.GetOrCreate(Desc{Kind: KindBox, Size: mgl64.Vec3{1, 2, 3}})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if first != second {
		t.Fatalf("expected shared handle, got %d and %d", first, second)
	}
	if refs := cache.RefCount(Box(mgl64.Vec3{1, 2, 3})); refs != 2 {
		t.Fatalf("expected refcount 2, got %d", refs)
	}
	if eng.Statistics().Shapes != 1 {
		t.Fatalf("expected one engine shape, got %d", eng.Statistics().Shapes)
	}
}

func TestReleaseFreesAtZeroAndReallocates(t *testing.T) {
	cache, eng := newCache(t, nil)
	desc := Box(mgl64.Vec3{1, 1, 1})
	first, _ := cache.GetOrCreate(desc)
	cache.GetOrCreate(desc)

	if !cache.Release(desc) {
		t.Fatal("expected release to succeed")
	}
	if eng.Statistics().Shapes != 1 {
		t.Fatal("shape freed while still referenced")
	}
	cache.Release(desc)
	if eng.Statistics().Shapes != 0 || cache.Len() != 0 {
		t.Fatalf("expected shape freed at zero, engine=%d cache=%d", eng.Statistics().Shapes, cache.Len())
	}
	if cache.Release(desc) {
		t.Fatal("expected releasing a non-resident description to return false")
	}

	fresh, err := cache.GetOrCreate(desc)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if fresh == first {
		t.Fatalf("expected a fresh handle after full release, got %d again", fresh)
	}
}

func TestMeshWithoutMesherFallsBackToBox(t *testing.T) {
	cache, _ := newCache(t, nil)
	desc := Desc{Kind: KindSculpt, Size: mgl64.Vec3{2, 2, 2}, Asset: "sculpt-texture"}
	if _, err := cache.GetOrCreate(desc); err != nil {
		t.Fatalf("expected box fallback, got %v", err)
	}
	if cache.RefCount(desc) != 1 {
		t.Fatal("fallback shape should still be keyed by the original description")
	}
}

func TestMesherReceivesDefaultLOD(t *testing.T) {
	var seen Desc
	mesher := MesherFunc(func(desc Desc) (Mesh, error) {
		seen = desc
		return Mesh{Vertices: []mgl64.Vec3{{-1, -1, -1}, {1, 1, 1}, {1, -1, 0}}, Indices: []int{0, 1, 2}}, nil
	})
	cache, _ := newCache(t, mesher)
	cache.SetMeshLOD(8)
	if _, err := cache.GetOrCreate(Desc{Kind: KindMesh, Size: mgl64.Vec3{2, 2, 2}, Asset: "mesh-a"}); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if seen.LOD != 8 || seen.Asset != "mesh-a" {
		t.Fatalf("unexpected mesher input %+v", seen)
	}
}

func TestForceSimpleSkipsMesher(t *testing.T) {
	called := false
	mesher := MesherFunc(func(Desc) (Mesh, error) {
		called = true
		return Mesh{}, errors.New("unused")
	})
	cache, _ := newCache(t, mesher)
	cache.SetForceSimple(true)
	if _, err := cache.GetOrCreate(Desc{Kind: KindMesh, Size: mgl64.Vec3{1, 1, 1}, Asset: "m"}); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if called {
		t.Fatal("mesher consulted despite forced simple meshing")
	}
}

func TestDegenerateShapeReturnsErrNoShape(t *testing.T) {
	cache, _ := newCache(t, nil)
	if _, err := cache.GetOrCreate(Box(mgl64.Vec3{0, 1, 1})); !errors.Is(err, ErrNoShape) {
		t.Fatalf("expected ErrNoShape, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatal("failed shape must not be cached")
	}
}

func TestDisposeFreesEverything(t *testing.T) {
	cache, eng := newCache(t, nil)
	cache.GetOrCreate(Box(mgl64.Vec3{1, 1, 1}))
	cache.GetOrCreate(Desc{Kind: KindSphere, Size: mgl64.Vec3{1, 1, 1}})
	cache.Dispose()
	if cache.Len() != 0 || eng.Statistics().Shapes != 0 {
		t.Fatalf("expected empty cache after dispose, cache=%d engine=%d", cache.Len(), eng.Statistics().Shapes)
	}
}

func TestResolvedKeySurvivesMeshLODChange(t *testing.T) {
	cache, eng := newCache(t, nil)
	desc := Desc{Kind: KindMesh, Size: mgl64.Vec3{1, 1, 1}, Asset: "mesh-b"}
	//1.- Hold the key resolved at the current LOD, then change the LOD.
	held := cache.Resolve(desc)
	if _, err := cache.GetOrCreate(held); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	cache.SetMeshLOD(64)

	if cache.Resolve(held) != held {
		t.Fatalf("resolving a resolved key must not change it, got %+v", cache.Resolve(held))
	}
	if !cache.Release(held) {
		t.Fatal("expected the held key to be resident")
	}
	if cache.Len() != 0 || eng.Statistics().Shapes != 0 {
		t.Fatalf("expected the shape freed, cache=%d engine=%d", cache.Len(), eng.Statistics().Shapes)
	}
	if cache.Resolve(desc).LOD != 64 || cache.Resolve(Box(mgl64.Vec3{1, 1, 1})).LOD != 0 {
		t.Fatal("unexpected resolved LOD")
	}
}
