package constraints

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/engine"
	"regionsim/physics/internal/engine/basic"
	"regionsim/physics/internal/logging"
)

func newSet(t *testing.T, bodies ...uint32) (*Set, *basic.Engine) {
	t.Helper()
	eng := basic.New("basic", logging.NewTestLogger())
	if err := eng.Initialize(engine.WorldConfig{}); err != nil {
		t.Fatalf("initialize engine: %v", err)
	}
	shape, err := eng.CreateShape(engine.ShapeSpec{Type: engine.ShapeBox, Size: mgl64.Vec3{1, 1, 1}})
	if err != nil {
		t.Fatalf("create shape: %v", err)
	}
	for _, id := range bodies {
		if err := eng.CreateBody(engine.BodySpec{ID: id, Shape: shape, Mass: 1, Dynamic: true}); err != nil {
			t.Fatalf("create body %d: %v", id, err)
		}
	}
	return New(eng, logging.NewTestLogger()), eng
}

func TestAddAndGetInEitherOrder(t *testing.T) {
	set, eng := newSet(t, 10, 11)
	c := &Constraint{Type: engine.ConstraintHinge, BodyA: 10, BodyB: 11, Axis: mgl64.Vec3{0, 0, 1}}
	if err := set.Add(c); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got, ok := set.Get(11, 10); !ok || got != c {
		t.Fatal("expected lookup with swapped bodies to find the constraint")
	}
	if eng.Statistics().Constraints != 1 {
		t.Fatalf("expected engine constraint, got %d", eng.Statistics().Constraints)
	}
}

func TestAddRejectsSelfJoinAndMissingBodies(t *testing.T) {
	set, _ := newSet(t, 10)
	if err := set.Add(&Constraint{BodyA: 10, BodyB: 10}); err == nil {
		t.Fatal("expected self joint to fail")
	}
	if err := set.Add(&Constraint{BodyA: 10, BodyB: 99}); err == nil {
		t.Fatal("expected joint to unknown body to fail")
	}
	if set.Len() != 0 {
		t.Fatalf("failed constraints must not be tracked, got %d", set.Len())
	}
}

func TestRemoveAndDestroyFor(t *testing.T) {
	set, eng := newSet(t, 10, 11, 12)
	for _, pair := range [][2]uint32{{10, 11}, {11, 12}, {10, 12}} {
		if err := set.Add(&Constraint{Type: engine.ConstraintFixed, BodyA: pair[0], BodyB: pair[1]}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if removed := set.RemoveAndDestroyFor(11); removed != 2 {
		t.Fatalf("expected 2 constraints removed, got %d", removed)
	}
	if set.Len() != 1 || eng.Statistics().Constraints != 1 {
		t.Fatalf("unexpected remaining set=%d engine=%d", set.Len(), eng.Statistics().Constraints)
	}
}

func TestRemoveAndDestroyUnknownReturnsFalse(t *testing.T) {
	set, _ := newSet(t, 10, 11)
	c := &Constraint{Type: engine.ConstraintSpring, BodyA: 10, BodyB: 11, Stiffness: 5}
	if set.RemoveAndDestroy(c) {
		t.Fatal("expected untracked constraint removal to fail")
	}
	set.Add(c)
	if !set.RemoveAndDestroy(c) {
		t.Fatal("expected tracked constraint removal to succeed")
	}
	if set.RemoveAndDestroy(c) {
		t.Fatal("expected second removal to fail")
	}
}

func TestDisposeDestroysAll(t *testing.T) {
	set, eng := newSet(t, 10, 11, 12)
	set.Add(&Constraint{BodyA: 10, BodyB: 11})
	set.Add(&Constraint{BodyA: 11, BodyB: 12})
	set.Dispose()
	if set.Len() != 0 || eng.Statistics().Constraints != 0 {
		t.Fatalf("expected nothing left, set=%d engine=%d", set.Len(), eng.Statistics().Constraints)
	}
}
