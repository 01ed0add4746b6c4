// Package basic is a small pure-Go reference backend for the engine boundary.
// It integrates gravity and damping with fixed substeps, generates box contacts
// between bodies and against terrain, and separates overlapping dynamic bodies.
// It is not a constraint solver; it exists so the scene runs end to end.
package basic

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/engine"
	"regionsim/physics/internal/logging"
)

// Name is the registry prefix of this backend.
const Name = "basic"

const (
	defaultMaxCollisions = 2048
	defaultMaxUpdates    = 8192
	updateEpsilon        = 1e-6
)

func init() {
	engine.Register(Name, func(name string, logger *logging.Logger) (engine.Engine, error) {
		return New(name, logger), nil
	})
}

type body struct {
	id          uint32
	shape       engine.ShapeID
	half        mgl64.Vec3
	pos         mgl64.Vec3
	rot         mgl64.Quat
	vel         mgl64.Vec3
	angVel      mgl64.Vec3
	accel       mgl64.Vec3
	force       mgl64.Vec3
	mass        float64
	invMass     float64
	dynamic     bool
	friction    float64
	restitution float64
	dirty       bool
}

func (b *body) setMass(mass float64) {
	b.mass = mass
	if !b.dynamic || mass <= 0 {
		b.invMass = 0
		if b.dynamic {
			b.invMass = 1
		}
		return
	}
	b.invMass = 1 / mass
}

// worldHalf returns the half extents of the body's world-aligned bounding box.
func (b *body) worldHalf() mgl64.Vec3 {
	ax := abs3(b.rot.Rotate(mgl64.Vec3{b.half.X(), 0, 0}))
	ay := abs3(b.rot.Rotate(mgl64.Vec3{0, b.half.Y(), 0}))
	az := abs3(b.rot.Rotate(mgl64.Vec3{0, 0, b.half.Z()}))
	return ax.Add(ay).Add(az)
}

type terrain struct {
	id       uint32
	plane    bool
	height   float64
	field    engine.Heightfield
	friction float64
}

func (t *terrain) surface(x, y float64) (float64, bool) {
	if t.plane {
		return t.height, true
	}
	if !t.field.Contains(x, y) {
		return 0, false
	}
	return t.field.HeightAt(x, y), true
}

type joint struct {
	id   engine.ConstraintID
	spec engine.ConstraintSpec
}

type pairKey struct {
	a, b uint32
}

// Engine is the basic backend. It is not safe for concurrent use beyond what
// the engine boundary requires; the mutex only guards diagnostics readers.
type Engine struct {
	mu          sync.Mutex
	name        string
	log         *logging.Logger
	world       engine.WorldConfig
	gravity     mgl64.Vec3
	initialized bool
	accumulator float64

	nextShape      engine.ShapeID
	nextConstraint engine.ConstraintID
	shapes         map[engine.ShapeID]mgl64.Vec3
	bodies         map[uint32]*body
	terrains       map[uint32]*terrain
	joints         map[engine.ConstraintID]*joint
	stats          engine.Statistics
}

// New constructs an uninitialised backend.
func New(name string, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.L()
	}
	return &Engine{
		name:     name,
		log:      logger.With(logging.String("engine", name)),
		shapes:   make(map[engine.ShapeID]mgl64.Vec3),
		bodies:   make(map[uint32]*body),
		terrains: make(map[uint32]*terrain),
		joints:   make(map[engine.ConstraintID]*joint),
	}
}

// Name returns the configured engine name.
func (e *Engine) Name() string { return e.name }

// Initialize stores the world parameter block.
func (e *Engine) Initialize(world engine.WorldConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if world.MaxCollisionsPerFrame <= 0 {
		world.MaxCollisionsPerFrame = defaultMaxCollisions
	}
	if world.MaxUpdatesPerFrame <= 0 {
		world.MaxUpdatesPerFrame = defaultMaxUpdates
	}
	e.world = world
	e.gravity = mgl64.Vec3{0, 0, world.Gravity}
	e.initialized = true
	e.log.Info("basic engine initialised",
		logging.Float64("gravity", world.Gravity),
		logging.Int("max_collisions", world.MaxCollisionsPerFrame),
		logging.Int("max_updates", world.MaxUpdatesPerFrame),
	)
	return nil
}

// Step advances the world by timeStep using whole fixed increments. Time left
// over is carried to the next call; time beyond maxSubSteps increments is dropped.
func (e *Engine) Step(timeStep float64, maxSubSteps int, fixedTimeStep float64) (engine.StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return engine.StepResult{}, errors.New("basic engine not initialised")
	}
	if fixedTimeStep <= 0 {
		return engine.StepResult{}, fmt.Errorf("fixed time step must be positive, got %v", fixedTimeStep)
	}
	if maxSubSteps < 1 {
		maxSubSteps = 1
	}

	//1.- Work out how many fixed increments fit in the accumulated time.
	e.accumulator += math.Max(0, timeStep)
	substeps := int(e.accumulator / fixedTimeStep)
	e.accumulator -= float64(substeps) * fixedTimeStep
	if substeps > maxSubSteps {
		substeps = maxSubSteps
	}

	before := make(map[uint32]mgl64.Vec3, len(e.bodies))
	startPos := make(map[uint32]mgl64.Vec3, len(e.bodies))
	for id, b := range e.bodies {
		before[id] = b.vel
		startPos[id] = b.pos
	}

	//2.- Integrate, correct joints and resolve contacts once per increment.
	contacts := make(map[pairKey]engine.CollisionDesc)
	for i := 0; i < substeps; i++ {
		e.integrate(fixedTimeStep)
		e.solveJoints(fixedTimeStep)
		e.collideBodies(contacts)
		e.collideTerrain(fixedTimeStep, contacts)
	}

	//3.- Gather the reportable output.
	result := engine.StepResult{SubSteps: substeps}
	result.Collisions = e.collectCollisions(contacts)
	result.Updates = e.collectUpdates(substeps, fixedTimeStep, before, startPos)
	for _, b := range e.bodies {
		b.force = mgl64.Vec3{}
	}

	e.stats.Steps++
	e.stats.SubSteps += uint64(substeps)
	e.stats.Contacts += uint64(len(result.Collisions))
	return result, nil
}

func (e *Engine) integrate(h float64) {
	linear := math.Max(0, 1-e.world.LinearDamping*h)
	angular := math.Max(0, 1-e.world.AngularDamping*h)
	for _, b := range e.bodies {
		if !b.dynamic {
			continue
		}
		accel := e.gravity.Add(b.force.Mul(b.invMass))
		b.vel = b.vel.Add(accel.Mul(h)).Mul(linear)
		b.pos = b.pos.Add(b.vel.Mul(h))
		b.angVel = b.angVel.Mul(angular)
		if b.angVel.Len() > 0 {
			spin := mgl64.Quat{W: 0, V: b.angVel}.Mul(b.rot).Scale(0.5 * h)
			b.rot = b.rot.Add(spin).Normalize()
		}
	}
}

func (e *Engine) solveJoints(h float64) {
	for _, j := range e.joints {
		a, okA := e.bodies[j.spec.BodyA]
		b, okB := e.bodies[j.spec.BodyB]
		if !okA || !okB {
			continue
		}
		anchorA := a.pos.Add(a.rot.Rotate(j.spec.FrameA))
		anchorB := b.pos.Add(b.rot.Rotate(j.spec.FrameB))
		delta := anchorB.Sub(anchorA)
		total := a.invMass + b.invMass
		if total == 0 {
			continue
		}
		switch j.spec.Type {
		case engine.ConstraintSpring:
			relVel := b.vel.Sub(a.vel)
			force := delta.Mul(j.spec.Stiffness).Add(relVel.Mul(j.spec.Damping))
			a.vel = a.vel.Add(force.Mul(a.invMass * h))
			b.vel = b.vel.Sub(force.Mul(b.invMass * h))
		default:
			a.pos = a.pos.Add(delta.Mul(a.invMass / total))
			b.pos = b.pos.Sub(delta.Mul(b.invMass / total))
			if j.spec.Type == engine.ConstraintFixed {
				avg := a.angVel.Mul(a.invMass / total).Add(b.angVel.Mul(b.invMass / total))
				a.angVel, b.angVel = avg, avg
			}
		}
	}
}

func (e *Engine) sortedBodies() []*body {
	list := make([]*body, 0, len(e.bodies))
	for _, b := range e.bodies {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}

func (e *Engine) collideBodies(contacts map[pairKey]engine.CollisionDesc) {
	list := e.sortedBodies()
	margin := e.world.CollisionMargin
	for i := 0; i < len(list); i++ {
		a := list[i]
		ha := a.worldHalf()
		for k := i + 1; k < len(list); k++ {
			b := list[k]
			if !a.dynamic && !b.dynamic {
				continue
			}
			hb := b.worldHalf()
			d := a.pos.Sub(b.pos)

			//1.- Separating axis test on the bounding boxes, widened by the margin.
			penetration := math.Inf(1)
			axis := 0
			separated := false
			for n := 0; n < 3; n++ {
				extent := ha[n] + hb[n]
				if math.Abs(d[n]) > extent+margin {
					separated = true
					break
				}
				if overlap := extent - math.Abs(d[n]); overlap < penetration {
					penetration = overlap
					axis = n
				}
			}
			if separated {
				continue
			}

			//2.- Contact normal along the shallowest axis, pointing from B to A.
			var normal mgl64.Vec3
			normal[axis] = 1
			if d[axis] < 0 {
				normal[axis] = -1
			}
			var point mgl64.Vec3
			for n := 0; n < 3; n++ {
				lo := math.Max(a.pos[n]-ha[n], b.pos[n]-hb[n])
				hi := math.Min(a.pos[n]+ha[n], b.pos[n]+hb[n])
				point[n] = (lo + hi) / 2
			}
			contacts[pairKey{a.id, b.id}] = engine.CollisionDesc{
				AID: a.id, BID: b.id, Point: point, Normal: normal, Penetration: penetration,
			}
			if penetration > 0 {
				resolvePair(a, b, normal, penetration)
			}
		}
	}
}

// resolvePair pushes the bodies apart and removes the approaching normal velocity.
func resolvePair(a, b *body, normal mgl64.Vec3, penetration float64) {
	total := a.invMass + b.invMass
	if total == 0 {
		return
	}
	a.pos = a.pos.Add(normal.Mul(penetration * a.invMass / total))
	b.pos = b.pos.Sub(normal.Mul(penetration * b.invMass / total))

	rel := a.vel.Sub(b.vel)
	vn := rel.Dot(normal)
	if vn >= 0 {
		return
	}
	restitution := math.Max(a.restitution, b.restitution)
	j := -(1 + restitution) * vn / total
	a.vel = a.vel.Add(normal.Mul(j * a.invMass))
	b.vel = b.vel.Sub(normal.Mul(j * b.invMass))

	tangent := rel.Sub(normal.Mul(vn))
	if speed := tangent.Len(); speed > 0 {
		friction := math.Sqrt(a.friction * b.friction)
		jt := math.Min(speed/total, friction*j)
		dir := tangent.Mul(1 / speed)
		a.vel = a.vel.Sub(dir.Mul(jt * a.invMass))
		b.vel = b.vel.Add(dir.Mul(jt * b.invMass))
	}
}

func (e *Engine) collideTerrain(h float64, contacts map[pairKey]engine.CollisionDesc) {
	if len(e.terrains) == 0 {
		return
	}
	margin := e.world.CollisionMargin
	for _, b := range e.sortedBodies() {
		if !b.dynamic {
			continue
		}
		half := b.worldHalf()
		bottom := b.pos.Z() - half.Z()
		for _, t := range e.terrains {
			surface, ok := t.surface(b.pos.X(), b.pos.Y())
			if !ok || bottom > surface+margin {
				continue
			}
			penetration := surface - bottom
			contacts[pairKey{b.id, t.id}] = engine.CollisionDesc{
				AID:         b.id,
				BID:         t.id,
				Point:       mgl64.Vec3{b.pos.X(), b.pos.Y(), surface},
				Normal:      mgl64.Vec3{0, 0, 1},
				Penetration: penetration,
			}
			if penetration <= 0 {
				continue
			}
			b.pos[2] += penetration
			bottom = surface
			if b.vel.Z() < 0 {
				b.vel[2] = -b.vel.Z() * b.restitution
			}
			//1.- Coulomb friction decelerates sliding by mu*g.
			tangent := mgl64.Vec3{b.vel.X(), b.vel.Y(), 0}
			if speed := tangent.Len(); speed > 0 {
				mu := math.Sqrt(b.friction * t.friction)
				scale := math.Max(0, 1-mu*math.Abs(e.gravity.Z())*h/speed)
				b.vel[0] *= scale
				b.vel[1] *= scale
			}
		}
	}
}

func (e *Engine) collectCollisions(contacts map[pairKey]engine.CollisionDesc) []engine.CollisionDesc {
	if len(contacts) == 0 {
		return nil
	}
	out := make([]engine.CollisionDesc, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AID != out[j].AID {
			return out[i].AID < out[j].AID
		}
		return out[i].BID < out[j].BID
	})
	if len(out) > e.world.MaxCollisionsPerFrame {
		e.log.Warn("collision output truncated",
			logging.Int("reported", len(out)),
			logging.Int("limit", e.world.MaxCollisionsPerFrame),
		)
		out = out[:e.world.MaxCollisionsPerFrame]
	}
	return out
}

func (e *Engine) collectUpdates(substeps int, fixed float64, before, startPos map[uint32]mgl64.Vec3) []engine.EntityProperties {
	elapsed := float64(substeps) * fixed
	var out []engine.EntityProperties
	for _, b := range e.sortedBodies() {
		moved := b.dynamic && (b.pos.Sub(startPos[b.id]).Len() > updateEpsilon ||
			b.vel.Sub(before[b.id]).Len() > updateEpsilon)
		if !moved && !b.dirty {
			continue
		}
		if elapsed > 0 {
			b.accel = b.vel.Sub(before[b.id]).Mul(1 / elapsed)
		}
		b.dirty = false
		out = append(out, properties(b))
		if len(out) >= e.world.MaxUpdatesPerFrame {
			break
		}
	}
	return out
}

func properties(b *body) engine.EntityProperties {
	return engine.EntityProperties{
		ID:              b.id,
		Position:        b.pos,
		Rotation:        b.rot,
		Velocity:        b.vel,
		Acceleration:    b.accel,
		AngularVelocity: b.angVel,
	}
}

// CreateShape registers a shape and returns its handle.
func (e *Engine) CreateShape(spec engine.ShapeSpec) (engine.ShapeID, error) {
	half := spec.Size.Mul(0.5)
	if len(spec.Vertices) > 0 {
		lo := mgl64.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
		hi := mgl64.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
		for _, v := range spec.Vertices {
			for n := 0; n < 3; n++ {
				lo[n] = math.Min(lo[n], v[n])
				hi[n] = math.Max(hi[n], v[n])
			}
		}
		half = hi.Sub(lo).Mul(0.5)
	}
	if spec.Type == engine.ShapeSphere {
		r := math.Max(half.X(), math.Max(half.Y(), half.Z()))
		half = mgl64.Vec3{r, r, r}
	}
	if half.X() <= 0 || half.Y() <= 0 || half.Z() <= 0 {
		return 0, fmt.Errorf("shape %s has degenerate extents %v", spec.Type, spec.Size)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextShape++
	e.shapes[e.nextShape] = half
	return e.nextShape, nil
}

// DeleteShape frees a shape.
func (e *Engine) DeleteShape(id engine.ShapeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.shapes[id]; !ok {
		return fmt.Errorf("unknown shape %d", id)
	}
	delete(e.shapes, id)
	return nil
}

// CreateBody adds a body using a previously created shape.
func (e *Engine) CreateBody(spec engine.BodySpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	half, ok := e.shapes[spec.Shape]
	if !ok {
		return fmt.Errorf("body %d references unknown shape %d", spec.ID, spec.Shape)
	}
	if _, exists := e.bodies[spec.ID]; exists {
		return fmt.Errorf("body %d already exists", spec.ID)
	}
	rot := spec.Rotation
	if rot.Len() == 0 {
		rot = mgl64.QuatIdent()
	}
	b := &body{
		id:          spec.ID,
		shape:       spec.Shape,
		half:        half,
		pos:         spec.Position,
		rot:         rot.Normalize(),
		dynamic:     spec.Dynamic,
		friction:    spec.Friction,
		restitution: spec.Restitution,
		dirty:       true,
	}
	b.setMass(spec.Mass)
	e.bodies[spec.ID] = b
	return nil
}

func (e *Engine) lookup(id uint32) (*body, error) {
	b, ok := e.bodies[id]
	if !ok {
		return nil, fmt.Errorf("%w %d", engine.ErrUnknownBody, id)
	}
	return b, nil
}

// DestroyBody removes a body and any joints naming it.
func (e *Engine) DestroyBody(id uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.lookup(id); err != nil {
		return err
	}
	delete(e.bodies, id)
	for jid, j := range e.joints {
		if j.spec.BodyA == id || j.spec.BodyB == id {
			delete(e.joints, jid)
		}
	}
	return nil
}

// SetTransform teleports a body.
func (e *Engine) SetTransform(id uint32, position mgl64.Vec3, rotation mgl64.Quat) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.lookup(id)
	if err != nil {
		return err
	}
	b.pos = position
	if rotation.Len() > 0 {
		b.rot = rotation.Normalize()
	}
	b.dirty = true
	return nil
}

// SetVelocity overwrites linear and angular velocity.
func (e *Engine) SetVelocity(id uint32, linear, angular mgl64.Vec3) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.lookup(id)
	if err != nil {
		return err
	}
	b.vel = linear
	b.angVel = angular
	b.dirty = true
	return nil
}

// ApplyForce accumulates a force applied during the next step.
func (e *Engine) ApplyForce(id uint32, force mgl64.Vec3) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.lookup(id)
	if err != nil {
		return err
	}
	b.force = b.force.Add(force)
	return nil
}

// SetMass changes the body mass.
func (e *Engine) SetMass(id uint32, mass float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.lookup(id)
	if err != nil {
		return err
	}
	b.setMass(mass)
	return nil
}

// SetMaterial changes friction and restitution. Density is folded into mass by the caller.
func (e *Engine) SetMaterial(id uint32, material engine.Material) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.lookup(id)
	if err != nil {
		return err
	}
	b.friction = material.Friction
	b.restitution = material.Restitution
	return nil
}

// SetDynamic switches a body between dynamic and static.
func (e *Engine) SetDynamic(id uint32, dynamic bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.lookup(id)
	if err != nil {
		return err
	}
	b.dynamic = dynamic
	if !dynamic {
		b.vel = mgl64.Vec3{}
		b.angVel = mgl64.Vec3{}
	}
	b.setMass(b.mass)
	b.dirty = true
	return nil
}

// SetShape swaps the collision shape of a body.
func (e *Engine) SetShape(id uint32, shape engine.ShapeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.lookup(id)
	if err != nil {
		return err
	}
	half, ok := e.shapes[shape]
	if !ok {
		return fmt.Errorf("unknown shape %d", shape)
	}
	b.shape = shape
	b.half = half
	return nil
}

// CreateGroundPlane adds an infinite horizontal plane.
func (e *Engine) CreateGroundPlane(id uint32, height float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terrains[id] = &terrain{id: id, plane: true, height: height, friction: 1}
	return nil
}

// CreateHeightfield adds or replaces a heightfield terrain.
func (e *Engine) CreateHeightfield(id uint32, field engine.Heightfield) error {
	if err := field.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	friction := 1.0
	if existing, ok := e.terrains[id]; ok {
		friction = existing.friction
	}
	e.terrains[id] = &terrain{id: id, field: field.Clone(), friction: friction}
	return nil
}

// DestroyTerrain removes a ground plane or heightfield.
func (e *Engine) DestroyTerrain(id uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.terrains[id]; !ok {
		return fmt.Errorf("unknown terrain %d", id)
	}
	delete(e.terrains, id)
	return nil
}

// SetTerrainFriction changes the friction of a terrain piece.
func (e *Engine) SetTerrainFriction(id uint32, friction float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.terrains[id]
	if !ok {
		return fmt.Errorf("unknown terrain %d", id)
	}
	t.friction = friction
	return nil
}

// CreateConstraint joins two existing bodies.
func (e *Engine) CreateConstraint(spec engine.ConstraintSpec) (engine.ConstraintID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.lookup(spec.BodyA); err != nil {
		return 0, err
	}
	if _, err := e.lookup(spec.BodyB); err != nil {
		return 0, err
	}
	e.nextConstraint++
	e.joints[e.nextConstraint] = &joint{id: e.nextConstraint, spec: spec}
	return e.nextConstraint, nil
}

// DestroyConstraint removes a joint.
func (e *Engine) DestroyConstraint(id engine.ConstraintID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.joints[id]; !ok {
		return fmt.Errorf("unknown constraint %d", id)
	}
	delete(e.joints, id)
	return nil
}

// UpdateParameter changes a world-level parameter.
func (e *Engine) UpdateParameter(name string, value float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch strings.ToLower(name) {
	case "gravity":
		e.world.Gravity = value
		e.gravity = mgl64.Vec3{0, 0, value}
	case "lineardamping":
		e.world.LinearDamping = value
	case "angulardamping":
		e.world.AngularDamping = value
	case "collisionmargin":
		e.world.CollisionMargin = value
	case "maxcollisionsperframe":
		e.world.MaxCollisionsPerFrame = max(1, int(value))
	case "maxupdatesperframe":
		e.world.MaxUpdatesPerFrame = max(1, int(value))
	default:
		return fmt.Errorf("unknown world parameter %q", name)
	}
	return nil
}

// Snapshot returns the state of every body ordered by ID.
func (e *Engine) Snapshot() []engine.EntityProperties {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.sortedBodies()
	out := make([]engine.EntityProperties, len(list))
	for i, b := range list {
		out[i] = properties(b)
	}
	return out
}

// Statistics reports resource counts and cumulative step counters.
func (e *Engine) Statistics() engine.Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := e.stats
	stats.Bodies = len(e.bodies)
	stats.Shapes = len(e.shapes)
	stats.Constraints = len(e.joints)
	stats.Terrains = len(e.terrains)
	return stats
}

// Shutdown releases everything.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bodies = make(map[uint32]*body)
	e.shapes = make(map[engine.ShapeID]mgl64.Vec3)
	e.terrains = make(map[uint32]*terrain)
	e.joints = make(map[engine.ConstraintID]*joint)
	e.initialized = false
	e.log.Info("basic engine shut down")
	return nil
}

func abs3(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{math.Abs(v.X()), math.Abs(v.Y()), math.Abs(v.Z())}
}
