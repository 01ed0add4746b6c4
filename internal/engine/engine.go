// Package engine defines the boundary between the scene driver and a wrapped
// physics engine. The engine is non-reentrant; every method is called from the
// step goroutine only.
package engine

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrUnknownBody is returned when an operation names a body the engine does not hold.
var ErrUnknownBody = errors.New("unknown body")

// ShapeID identifies an engine-level collision shape.
type ShapeID uint32

// ConstraintID identifies an engine-level constraint.
type ConstraintID uint32

// ShapeType enumerates the native primitives understood by the engine.
type ShapeType int

const (
	ShapeBox ShapeType = iota
	ShapeSphere
	ShapeCapsule
	ShapeCylinder
	ShapeMesh
	ShapeHull
)

func (s ShapeType) String() string {
	switch s {
	case ShapeBox:
		return "box"
	case ShapeSphere:
		return "sphere"
	case ShapeCapsule:
		return "capsule"
	case ShapeCylinder:
		return "cylinder"
	case ShapeMesh:
		return "mesh"
	case ShapeHull:
		return "hull"
	default:
		return "unknown"
	}
}

// ShapeSpec describes a shape to build. Size is the full extent of the primitive;
// mesh shapes carry their vertices and triangle indices instead.
type ShapeSpec struct {
	Type     ShapeType
	Size     mgl64.Vec3
	Vertices []mgl64.Vec3
	Indices  []int
}

// BodySpec describes a body to create.
type BodySpec struct {
	ID          uint32
	Shape       ShapeID
	Position    mgl64.Vec3
	Rotation    mgl64.Quat
	Mass        float64
	Dynamic     bool
	Friction    float64
	Restitution float64
}

// Material carries the per-body surface properties.
type Material struct {
	Friction    float64
	Restitution float64
	Density     float64
}

// ConstraintType enumerates the joint kinds the scene can request.
type ConstraintType int

const (
	ConstraintFixed ConstraintType = iota
	ConstraintHinge
	ConstraintSixDof
	ConstraintSpring
)

func (c ConstraintType) String() string {
	switch c {
	case ConstraintFixed:
		return "fixed"
	case ConstraintHinge:
		return "hinge"
	case ConstraintSixDof:
		return "6dof"
	case ConstraintSpring:
		return "spring"
	default:
		return "unknown"
	}
}

// ConstraintSpec joins two bodies at frame offsets expressed in each body's local space.
type ConstraintSpec struct {
	Type      ConstraintType
	BodyA     uint32
	BodyB     uint32
	FrameA    mgl64.Vec3
	FrameB    mgl64.Vec3
	Axis      mgl64.Vec3
	Stiffness float64
	Damping   float64
}

// WorldConfig is the parameter block handed to the engine at initialisation.
type WorldConfig struct {
	Gravity               float64
	LinearDamping         float64
	AngularDamping        float64
	CollisionMargin       float64
	MaxCollisionsPerFrame int
	MaxUpdatesPerFrame    int
}

// CollisionDesc is one contact between two bodies reported by a step. The normal
// points from B towards A.
type CollisionDesc struct {
	AID         uint32
	BID         uint32
	Point       mgl64.Vec3
	Normal      mgl64.Vec3
	Penetration float64
}

// EntityProperties is the kinematic state of one body after a step.
type EntityProperties struct {
	ID              uint32
	Position        mgl64.Vec3
	Rotation        mgl64.Quat
	Velocity        mgl64.Vec3
	Acceleration    mgl64.Vec3
	AngularVelocity mgl64.Vec3
}

// StepResult is the output of one Step call.
type StepResult struct {
	SubSteps   int
	Collisions []CollisionDesc
	Updates    []EntityProperties
}

// Statistics summarises engine-side counters for diagnostics.
type Statistics struct {
	Bodies      int
	Shapes      int
	Constraints int
	Terrains    int
	Steps       uint64
	SubSteps    uint64
	Contacts    uint64
}

// Engine is the opaque physics capability wrapped by the scene.
type Engine interface {
	Name() string
	Initialize(world WorldConfig) error
	Step(timeStep float64, maxSubSteps int, fixedTimeStep float64) (StepResult, error)

	CreateShape(spec ShapeSpec) (ShapeID, error)
	DeleteShape(id ShapeID) error

	CreateBody(spec BodySpec) error
	DestroyBody(id uint32) error
	SetTransform(id uint32, position mgl64.Vec3, rotation mgl64.Quat) error
	SetVelocity(id uint32, linear, angular mgl64.Vec3) error
	ApplyForce(id uint32, force mgl64.Vec3) error
	SetMass(id uint32, mass float64) error
	SetMaterial(id uint32, material Material) error
	SetDynamic(id uint32, dynamic bool) error
	SetShape(id uint32, shape ShapeID) error

	CreateGroundPlane(id uint32, height float64) error
	CreateHeightfield(id uint32, field Heightfield) error
	DestroyTerrain(id uint32) error
	SetTerrainFriction(id uint32, friction float64) error

	CreateConstraint(spec ConstraintSpec) (ConstraintID, error)
	DestroyConstraint(id ConstraintID) error

	UpdateParameter(name string, value float64) error
	Snapshot() []EntityProperties
	Statistics() Statistics
	Shutdown() error
}
