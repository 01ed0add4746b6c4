package scene

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/engine"
)

// fakeEngine records every call and replays scripted step output.
type fakeEngine struct {
	mu         sync.Mutex
	calls      []string
	steps      int
	subSteps   int
	collisions map[int][]engine.CollisionDesc
	stepErr    error
	stepPanic  bool
	params     map[string]float64
	materials  map[uint32]engine.Material
	nextShape  engine.ShapeID
	nextJoint  engine.ConstraintID
	bodies     map[uint32]engine.BodySpec
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		subSteps:   1,
		collisions: make(map[int][]engine.CollisionDesc),
		params:     make(map[string]float64),
		materials:  make(map[uint32]engine.Material),
		bodies:     make(map[uint32]engine.BodySpec),
	}
}

func (f *fakeEngine) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeEngine) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) count(prefix string) int {
	n := 0
	for _, call := range f.callLog() {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeEngine) material(id uint32) (engine.Material, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.materials[id]
	return m, ok
}

func (f *fakeEngine) param(name string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.params[name]
	return v, ok
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Initialize(world engine.WorldConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Initialize")
	return nil
}

func (f *fakeEngine) Step(timeStep float64, maxSubSteps int, fixedTimeStep float64) (engine.StepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps++
	f.record("Step")
	if f.stepPanic {
		panic("engine exploded")
	}
	if f.stepErr != nil {
		return engine.StepResult{}, f.stepErr
	}
	return engine.StepResult{SubSteps: f.subSteps, Collisions: f.collisions[f.steps]}, nil
}

func (f *fakeEngine) CreateShape(spec engine.ShapeSpec) (engine.ShapeID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextShape++
	f.record("CreateShape %d", f.nextShape)
	return f.nextShape, nil
}

func (f *fakeEngine) DeleteShape(id engine.ShapeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteShape %d", id)
	return nil
}

func (f *fakeEngine) CreateBody(spec engine.BodySpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateBody %d", spec.ID)
	f.bodies[spec.ID] = spec
	f.materials[spec.ID] = engine.Material{Friction: spec.Friction, Restitution: spec.Restitution}
	return nil
}

func (f *fakeEngine) DestroyBody(id uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DestroyBody %d", id)
	delete(f.bodies, id)
	return nil
}

func (f *fakeEngine) SetTransform(id uint32, position mgl64.Vec3, rotation mgl64.Quat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetTransform %d", id)
	return nil
}

func (f *fakeEngine) SetVelocity(id uint32, linear, angular mgl64.Vec3) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetVelocity %d", id)
	return nil
}

func (f *fakeEngine) ApplyForce(id uint32, force mgl64.Vec3) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ApplyForce %d", id)
	return nil
}

func (f *fakeEngine) SetMass(id uint32, mass float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetMass %d", id)
	return nil
}

func (f *fakeEngine) SetMaterial(id uint32, material engine.Material) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetMaterial %d", id)
	f.materials[id] = material
	return nil
}

func (f *fakeEngine) SetDynamic(id uint32, dynamic bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetDynamic %d %t", id, dynamic)
	return nil
}

func (f *fakeEngine) SetShape(id uint32, shape engine.ShapeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetShape %d %d", id, shape)
	return nil
}

func (f *fakeEngine) CreateGroundPlane(id uint32, height float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateGroundPlane %d", id)
	return nil
}

func (f *fakeEngine) CreateHeightfield(id uint32, field engine.Heightfield) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateHeightfield %d", id)
	return nil
}

func (f *fakeEngine) DestroyTerrain(id uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DestroyTerrain %d", id)
	return nil
}

func (f *fakeEngine) SetTerrainFriction(id uint32, friction float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetTerrainFriction %d", id)
	return nil
}

func (f *fakeEngine) CreateConstraint(spec engine.ConstraintSpec) (engine.ConstraintID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextJoint++
	f.record("CreateConstraint %d", f.nextJoint)
	return f.nextJoint, nil
}

func (f *fakeEngine) DestroyConstraint(id engine.ConstraintID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DestroyConstraint %d", id)
	return nil
}

func (f *fakeEngine) UpdateParameter(name string, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateParameter %s", name)
	f.params[name] = value
	return nil
}

func (f *fakeEngine) Snapshot() []engine.EntityProperties {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]engine.EntityProperties, 0, len(f.bodies))
	for id, spec := range f.bodies {
		out = append(out, engine.EntityProperties{ID: id, Position: spec.Position, Rotation: spec.Rotation})
	}
	return out
}

func (f *fakeEngine) Statistics() engine.Statistics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return engine.Statistics{Bodies: len(f.bodies), Steps: uint64(f.steps)}
}

func (f *fakeEngine) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Shutdown")
	return nil
}
