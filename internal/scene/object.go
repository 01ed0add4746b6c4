package scene

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/engine"
	"regionsim/physics/internal/logging"
	"regionsim/physics/internal/shapes"
)

// Kind tags the variant of an Object.
type Kind int

const (
	KindAvatar Kind = iota
	KindPrim
)

func (k Kind) String() string {
	if k == KindAvatar {
		return "avatar"
	}
	return "prim"
}

// Contact is one collision point as seen from the notified object. The normal
// points towards the notified object.
type Contact struct {
	Point       mgl64.Vec3
	Normal      mgl64.Vec3
	Penetration float64
}

// CollisionEvent is delivered to an object's owner. An empty Contacts map
// signals that the object stopped colliding, or is an avatar heartbeat.
type CollisionEvent struct {
	Handle   uint32
	Step     uint64
	Contacts map[uint32]Contact
}

// Empty reports whether the event carries no contacts.
func (e CollisionEvent) Empty() bool { return len(e.Contacts) == 0 }

// CollisionHandler receives collision notifications on the step goroutine.
type CollisionHandler func(CollisionEvent)

// Kinematics is the engine-reported motion state of an object.
type Kinematics struct {
	Position        mgl64.Vec3
	Rotation        mgl64.Quat
	Velocity        mgl64.Vec3
	Acceleration    mgl64.Vec3
	AngularVelocity mgl64.Vec3
}

// UpdateHandler receives the state applied from an engine update.
type UpdateHandler func(handle uint32, state Kinematics)

// Object is the per-body record shared by avatars and prims.
type Object struct {
	scene  *Scene
	handle uint32
	name   string
	kind   Kind
	log    *logging.Logger

	// Caller-visible state. The kinematic part is refreshed from engine updates.
	stateMu        sync.RWMutex
	state          Kinematics
	size           mgl64.Vec3
	shape          shapes.Desc
	friction       float64
	restitution    float64
	density        float64
	physical       bool
	flying         bool
	targetVelocity mgl64.Vec3
	moveTarget     mgl64.Vec3
	moveTau        float64
	moveActive     bool

	// Velocity last pushed by a movement hook. Never mirrored into state.
	commandedVelocity mgl64.Vec3

	// Engine-side bookkeeping, touched only inside deferred mutations.
	bodyCreated bool
	heldShape   shapes.Desc
	shapeHeld   bool
	hook        HookID
	hasHook     bool

	collisionMu      sync.Mutex
	subscribed       bool
	subscribedMs     int64
	nextCollisionOK  int64
	current          map[uint32]Contact
	lastDelivered    int
	lastTick         map[uint32]Contact
	lastTickStep     uint64
	collidingStep    uint64
	groundStep       uint64
	objectStep       uint64
	accumulated      uint64
	colliderMoving   bool
	collisionHandler CollisionHandler
	updateHandler    UpdateHandler
}

func newObject(s *Scene, kind Kind, handle uint32, name string, position, size mgl64.Vec3, rotation mgl64.Quat) *Object {
	if rotation.Len() == 0 {
		rotation = mgl64.QuatIdent()
	}
	return &Object{
		scene:  s,
		handle: handle,
		name:   name,
		kind:   kind,
		log: s.log.With(
			logging.Uint32("object", handle),
			logging.String("kind", kind.String()),
		),
		state:    Kinematics{Position: position, Rotation: rotation.Normalize()},
		size:     size,
		current:  make(map[uint32]Contact),
		lastTick: make(map[uint32]Contact),
	}
}

// Handle is the scene-local body identifier.
func (o *Object) Handle() uint32 { return o.handle }

// Name is the caller-supplied label.
func (o *Object) Name() string { return o.name }

// Kind reports whether the object is an avatar or a prim.
func (o *Object) Kind() Kind { return o.kind }

// IsAvatar reports whether the object is an avatar.
func (o *Object) IsAvatar() bool { return o.kind == KindAvatar }

// Kinematics returns a snapshot of the motion state.
func (o *Object) Kinematics() Kinematics {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

// Position returns the last known position.
func (o *Object) Position() mgl64.Vec3 { return o.Kinematics().Position }

// Rotation returns the last known orientation.
func (o *Object) Rotation() mgl64.Quat { return o.Kinematics().Rotation }

// Velocity returns the last known linear velocity.
func (o *Object) Velocity() mgl64.Vec3 { return o.Kinematics().Velocity }

// AngularVelocity returns the last known angular velocity.
func (o *Object) AngularVelocity() mgl64.Vec3 { return o.Kinematics().AngularVelocity }

// Size returns the requested extents.
func (o *Object) Size() mgl64.Vec3 {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.size
}

// Shape returns the shape description the object requests from the cache.
func (o *Object) Shape() shapes.Desc {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.shape
}

// Friction returns the object's friction.
func (o *Object) Friction() float64 {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.friction
}

// Restitution returns the object's restitution.
func (o *Object) Restitution() float64 {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.restitution
}

// Density returns the object's density.
func (o *Object) Density() float64 {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.density
}

// Mass derives the mass from density and the shape volume.
func (o *Object) Mass() float64 {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.massLocked()
}

func (o *Object) massLocked() float64 {
	return o.density * volume(o.shape.Kind, o.size)
}

func volume(kind shapes.Kind, size mgl64.Vec3) float64 {
	switch kind {
	case shapes.KindSphere:
		return math.Pi / 6 * size.X() * size.Y() * size.Z()
	case shapes.KindCylinder, shapes.KindCapsule:
		return math.Pi / 4 * size.X() * size.Y() * size.Z()
	default:
		return size.X() * size.Y() * size.Z()
	}
}

// IsPhysical reports whether the body is dynamic.
func (o *Object) IsPhysical() bool {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.physical
}

// OnCollision installs the owner's collision handler.
func (o *Object) OnCollision(handler CollisionHandler) {
	o.collisionMu.Lock()
	o.collisionHandler = handler
	o.collisionMu.Unlock()
}

// OnUpdate installs the owner's property update handler.
func (o *Object) OnUpdate(handler UpdateHandler) {
	o.collisionMu.Lock()
	o.updateHandler = handler
	o.collisionMu.Unlock()
}

// SubscribeEvents asks for collision notifications at most every intervalMs
// milliseconds. Zero delivers every step.
func (o *Object) SubscribeEvents(intervalMs int) {
	if intervalMs < 0 {
		intervalMs = 0
	}
	o.collisionMu.Lock()
	o.subscribed = true
	o.subscribedMs = int64(intervalMs)
	o.nextCollisionOK = 0
	o.collisionMu.Unlock()
}

// UnSubscribeEvents stops collision notifications. Avatars stay subscribed.
func (o *Object) UnSubscribeEvents() {
	if o.IsAvatar() {
		return
	}
	o.collisionMu.Lock()
	o.subscribed = false
	o.subscribedMs = 0
	o.collisionMu.Unlock()
}

// SubscribedEvents reports whether collisions are reported to the owner.
func (o *Object) SubscribedEvents() bool {
	o.collisionMu.Lock()
	defer o.collisionMu.Unlock()
	return o.subscribed
}

// IsColliding reports whether the object collided during the current step.
func (o *Object) IsColliding() bool {
	o.collisionMu.Lock()
	defer o.collisionMu.Unlock()
	return o.collidingStep != 0 && o.collidingStep == o.scene.SimulationStep()
}

// CollidingGround reports whether the object touched terrain during the current step.
func (o *Object) CollidingGround() bool {
	o.collisionMu.Lock()
	defer o.collisionMu.Unlock()
	return o.groundStep != 0 && o.groundStep == o.scene.SimulationStep()
}

// CollidingObject reports whether the object touched another body during the current step.
func (o *Object) CollidingObject() bool {
	o.collisionMu.Lock()
	defer o.collisionMu.Unlock()
	return o.objectStep != 0 && o.objectStep == o.scene.SimulationStep()
}

// CollisionsLastTick returns every contact recorded in the most recent colliding
// step, whether or not the object is subscribed.
func (o *Object) CollisionsLastTick() map[uint32]Contact {
	o.collisionMu.Lock()
	defer o.collisionMu.Unlock()
	out := make(map[uint32]Contact, len(o.lastTick))
	for id, c := range o.lastTick {
		out[id] = c
	}
	return out
}

// Collide records one contact with another handle. collidee is nil for
// terrain and for bodies the scene does not know. It returns true when the
// contact will be reported to the owner.
func (o *Object) Collide(with uint32, collidee *Object, point, normal mgl64.Vec3, penetration float64) bool {
	step := o.scene.SimulationStep()
	isGround := o.scene.isTerrain(with)
	moving := collidee != nil && collidee.Velocity().Len() > 0

	o.collisionMu.Lock()
	defer o.collisionMu.Unlock()
	o.collidingStep = step
	if isGround {
		o.groundStep = step
	} else {
		o.objectStep = step
	}
	o.accumulated++
	o.colliderMoving = moving

	contact := Contact{Point: point, Normal: normal, Penetration: penetration}
	if o.lastTickStep != step {
		o.lastTick = make(map[uint32]Contact)
		o.lastTickStep = step
	}
	o.lastTick[with] = contact

	if !o.subscribed {
		return false
	}
	o.current[with] = contact
	return true
}

// SendCollisions hands the contacts gathered this step to the owner, subject to
// the subscription interval. An empty set right after a non-empty delivery is
// always sent. It returns false once the delivered set was empty.
func (o *Object) SendCollisions() bool {
	now := o.scene.SimulationNow()
	step := o.scene.SimulationStep()

	o.collisionMu.Lock()
	ret := true
	force := len(o.current) == 0 && o.lastDelivered != 0
	if !force && now < o.nextCollisionOK {
		o.collisionMu.Unlock()
		return ret
	}
	o.nextCollisionOK = now + o.subscribedMs
	if len(o.current) == 0 {
		ret = false
	}
	event := CollisionEvent{Handle: o.handle, Step: step, Contacts: o.current}
	o.lastDelivered = len(o.current)
	o.current = make(map[uint32]Contact)
	handler := o.collisionHandler
	o.collisionMu.Unlock()

	if handler != nil {
		o.scene.guard("collision handler", o.handle, func() { handler(event) })
	}
	return ret
}

// UpdateProperties applies an engine-reported state.
func (o *Object) UpdateProperties(props engine.EntityProperties) {
	state := Kinematics{
		Position:        props.Position,
		Rotation:        props.Rotation,
		Velocity:        props.Velocity,
		Acceleration:    props.Acceleration,
		AngularVelocity: props.AngularVelocity,
	}
	o.stateMu.Lock()
	o.state = state
	o.stateMu.Unlock()

	o.collisionMu.Lock()
	handler := o.updateHandler
	o.collisionMu.Unlock()
	if handler != nil {
		o.scene.guard("update handler", o.handle, func() { handler(o.handle, state) })
	}
}

// SetPosition teleports the object.
func (o *Object) SetPosition(position mgl64.Vec3) {
	o.stateMu.Lock()
	o.state.Position = position
	o.stateMu.Unlock()
	o.scene.queue.EnqueueConditional(o.scene.queue.InWindow(), "object.SetPosition", o.pushTransform)
}

// SetRotation changes the object's orientation.
func (o *Object) SetRotation(rotation mgl64.Quat) {
	if rotation.Len() == 0 {
		return
	}
	o.stateMu.Lock()
	o.state.Rotation = rotation.Normalize()
	o.stateMu.Unlock()
	o.scene.queue.EnqueueConditional(o.scene.queue.InWindow(), "object.SetRotation", o.pushTransform)
}

func (o *Object) pushTransform() {
	if !o.bodyCreated || !o.scene.queue.AssertInWindow("object.pushTransform") {
		return
	}
	state := o.Kinematics()
	if err := o.scene.eng.SetTransform(o.handle, state.Position, state.Rotation); err != nil {
		o.log.Warn("set transform failed", logging.Error(err))
	}
}

// SetVelocity overwrites the linear velocity.
func (o *Object) SetVelocity(velocity mgl64.Vec3) {
	o.stateMu.Lock()
	o.state.Velocity = velocity
	o.stateMu.Unlock()
	o.scene.queue.EnqueueConditional(o.scene.queue.InWindow(), "object.SetVelocity", o.pushVelocity)
}

// SetAngularVelocity overwrites the angular velocity.
func (o *Object) SetAngularVelocity(velocity mgl64.Vec3) {
	o.stateMu.Lock()
	o.state.AngularVelocity = velocity
	o.stateMu.Unlock()
	o.scene.queue.EnqueueConditional(o.scene.queue.InWindow(), "object.SetAngularVelocity", o.pushVelocity)
}

func (o *Object) pushVelocity() {
	if !o.bodyCreated || !o.scene.queue.AssertInWindow("object.pushVelocity") {
		return
	}
	state := o.Kinematics()
	if err := o.scene.eng.SetVelocity(o.handle, state.Velocity, state.AngularVelocity); err != nil {
		o.log.Warn("set velocity failed", logging.Error(err))
	}
}

// AddForce pushes the body during the next step.
func (o *Object) AddForce(force mgl64.Vec3) {
	o.scene.queue.EnqueueConditional(o.scene.queue.InWindow(), "object.AddForce", func() {
		if !o.bodyCreated || !o.scene.queue.AssertInWindow("object.AddForce") {
			return
		}
		if err := o.scene.eng.ApplyForce(o.handle, force); err != nil {
			o.log.Warn("apply force failed", logging.Error(err))
		}
	})
}

// SetFriction changes the surface friction.
func (o *Object) SetFriction(friction float64) {
	o.stateMu.Lock()
	o.friction = friction
	o.stateMu.Unlock()
	o.scheduleMaterial()
}

// SetRestitution changes the bounciness.
func (o *Object) SetRestitution(restitution float64) {
	o.stateMu.Lock()
	o.restitution = restitution
	o.stateMu.Unlock()
	o.scheduleMaterial()
}

// SetDensity changes the density and therefore the mass.
func (o *Object) SetDensity(density float64) {
	o.stateMu.Lock()
	o.density = density
	o.stateMu.Unlock()
	o.scheduleMaterial()
}

// scheduleMaterial coalesces material pushes to one engine write per object per flush.
func (o *Object) scheduleMaterial() {
	o.scene.queue.EnqueuePost("object.material", o.handle, o.pushMaterial)
}

func (o *Object) pushMaterial() {
	if !o.bodyCreated || !o.scene.queue.AssertInWindow("object.pushMaterial") {
		return
	}
	o.stateMu.RLock()
	material := engine.Material{Friction: o.friction, Restitution: o.restitution, Density: o.density}
	mass := o.massLocked()
	o.stateMu.RUnlock()
	if err := o.scene.eng.SetMaterial(o.handle, material); err != nil {
		o.log.Warn("set material failed", logging.Error(err))
		return
	}
	if err := o.scene.eng.SetMass(o.handle, mass); err != nil {
		o.log.Warn("set mass failed", logging.Error(err))
	}
}

// SetSize changes the extents and rebuilds the collision shape.
func (o *Object) SetSize(size mgl64.Vec3) {
	o.stateMu.Lock()
	o.size = size
	o.shape.Size = size
	o.stateMu.Unlock()
	o.scene.queue.EnqueueConditional(o.scene.queue.InWindow(), "object.SetSize", o.rebuildShape)
}

// SetShape replaces the shape description and rebuilds the collision shape.
func (o *Object) SetShape(desc shapes.Desc) {
	o.stateMu.Lock()
	o.shape = desc
	o.size = desc.Size
	o.stateMu.Unlock()
	o.scene.queue.EnqueueConditional(o.scene.queue.InWindow(), "object.SetShape", o.rebuildShape)
}

func (o *Object) rebuildShape() {
	if !o.bodyCreated || !o.scene.queue.AssertInWindow("object.rebuildShape") {
		return
	}
	desc := o.scene.shapes.Resolve(o.Shape())
	if o.shapeHeld && desc == o.heldShape {
		return
	}
	shapeID, err := o.scene.shapes.GetOrCreate(desc)
	if err != nil {
		o.log.Error("rebuild shape failed", logging.Error(err))
		return
	}
	if err := o.scene.eng.SetShape(o.handle, shapeID); err != nil {
		o.log.Error("swap shape failed", logging.Error(err))
		o.scene.shapes.Release(desc)
		return
	}
	if o.shapeHeld {
		o.scene.shapes.Release(o.heldShape)
	}
	o.heldShape = desc
	o.shapeHeld = true
	o.pushMaterial()
}

// createBody builds the engine body. Runs inside a deferred mutation.
func (o *Object) createBody() {
	if !o.scene.queue.AssertInWindow("object.createBody") {
		return
	}
	//1.- Hold the resolved key so a later LOD change cannot orphan the shape.
	desc := o.scene.shapes.Resolve(o.Shape())
	shapeID, err := o.scene.shapes.GetOrCreate(desc)
	if err != nil {
		o.log.Error("create shape failed", logging.Error(err))
		return
	}
	o.stateMu.RLock()
	spec := engine.BodySpec{
		ID:          o.handle,
		Shape:       shapeID,
		Position:    o.state.Position,
		Rotation:    o.state.Rotation,
		Mass:        o.massLocked(),
		Dynamic:     o.physical,
		Friction:    o.friction,
		Restitution: o.restitution,
	}
	o.stateMu.RUnlock()
	if err := o.scene.eng.CreateBody(spec); err != nil {
		o.log.Error("create body failed", logging.Error(err))
		o.scene.shapes.Release(desc)
		return
	}
	o.heldShape = desc
	o.shapeHeld = true
	o.bodyCreated = true

	switch o.kind {
	case KindAvatar:
		o.setHook(o.scene.AddPreStepHook("avatar.move", o.avatarMove))
	case KindPrim:
		if o.moveTargetActive() {
			o.setHook(o.scene.AddPreStepHook("prim.moveToTarget", o.primMoveToTarget))
		}
	}
}

func (o *Object) setHook(id HookID) {
	o.hook = id
	o.hasHook = true
}

func (o *Object) clearHook() {
	if o.hasHook {
		o.scene.RemovePreStepHook(o.hook)
		o.hasHook = false
	}
}

// destroy frees the engine side of the object. Runs inside a deferred mutation.
func (o *Object) destroy() {
	o.scene.queue.AssertInWindow("object.destroy")
	o.clearHook()
	o.scene.constraints.RemoveAndDestroyFor(o.handle)
	if o.bodyCreated {
		if err := o.scene.eng.DestroyBody(o.handle); err != nil {
			o.log.Warn("destroy body failed", logging.Error(err))
		}
		o.bodyCreated = false
	}
	if o.shapeHeld {
		o.scene.shapes.Release(o.heldShape)
		o.shapeHeld = false
	}
}

// Destroy schedules the removal of the engine body. Scene.RemoveAvatar and
// Scene.RemovePrim call it after dropping the object from the scene.
func (o *Object) Destroy() {
	o.scene.queue.Enqueue("object.Destroy", o.destroy)
}
