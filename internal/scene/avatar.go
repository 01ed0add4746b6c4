package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/logging"
	"regionsim/physics/internal/shapes"
)

// avatarStopSpeed is the horizontal speed under which an idle avatar is left to the engine.
const avatarStopSpeed = 0.01

// avatarShape builds the avatar collision description. A zero size falls back
// to the configured capsule dimensions.
func avatarShape(size mgl64.Vec3, v Values) (mgl64.Vec3, shapes.Desc) {
	if size.X() <= 0 || size.Y() <= 0 || size.Z() <= 0 {
		size = mgl64.Vec3{v.AvatarCapsuleWidth, v.AvatarCapsuleDepth, v.AvatarCapsuleHeight}
	}
	return size, shapes.Desc{Kind: shapes.KindCapsule, Size: size}
}

// IsFlying reports whether the avatar ignores gravity.
func (o *Object) IsFlying() bool {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.flying
}

// SetFlying toggles flight. Flying avatars move in all three axes.
func (o *Object) SetFlying(flying bool) {
	o.stateMu.Lock()
	o.flying = flying
	o.stateMu.Unlock()
}

// TargetVelocity returns the velocity the movement hook steers towards.
func (o *Object) TargetVelocity() mgl64.Vec3 {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.targetVelocity
}

// SetTargetVelocity sets the walking or flying velocity requested by the controller.
func (o *Object) SetTargetVelocity(velocity mgl64.Vec3) {
	o.stateMu.Lock()
	o.targetVelocity = velocity
	o.stateMu.Unlock()
}

// CommandedVelocity returns the velocity the movement hooks last pushed to the
// engine. Velocity keeps reporting what the engine measured.
func (o *Object) CommandedVelocity() mgl64.Vec3 {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.commandedVelocity
}

// avatarMove is the avatar pre-step hook. It runs inside the mutation window.
func (o *Object) avatarMove(dt float64) {
	if !o.bodyCreated || !o.scene.queue.AssertInWindow("avatar.move") {
		return
	}
	o.stateMu.RLock()
	target := o.targetVelocity
	flying := o.flying
	current := o.state.Velocity
	angular := o.state.AngularVelocity
	mass := o.massLocked()
	o.stateMu.RUnlock()

	//1.- Flying avatars cancel gravity so they hover when idle.
	if flying {
		gravity := o.scene.settings().Gravity
		if err := o.scene.eng.ApplyForce(o.handle, mgl64.Vec3{0, 0, -gravity * mass}); err != nil {
			o.log.Warn("avatar hover force failed", logging.Error(err))
		}
	}

	//2.- An idle, already still avatar is left alone so resting contacts settle.
	horizontal := math.Hypot(current.X(), current.Y())
	if target.Len() == 0 && horizontal < avatarStopSpeed && !flying {
		return
	}

	//3.- Walking keeps the engine's vertical velocity so gravity and jumps survive.
	desired := target
	if !flying {
		desired[2] = current.Z()
	}
	if desired.ApproxEqual(current) {
		return
	}
	if err := o.scene.eng.SetVelocity(o.handle, desired, angular); err != nil {
		o.log.Warn("avatar velocity failed", logging.Error(err))
		return
	}
	o.stateMu.Lock()
	o.commandedVelocity = desired
	o.stateMu.Unlock()
}
