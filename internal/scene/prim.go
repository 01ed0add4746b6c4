package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/logging"
)

// moveTargetTolerance is the distance at which move-to-target stops steering.
const moveTargetTolerance = 0.01

// SetPhysical switches the prim between dynamic and static.
func (o *Object) SetPhysical(physical bool) {
	o.stateMu.Lock()
	o.physical = physical
	o.stateMu.Unlock()
	o.scene.queue.EnqueueConditional(o.scene.queue.InWindow(), "prim.SetPhysical", func() {
		if !o.bodyCreated {
			return
		}
		if err := o.scene.eng.SetDynamic(o.handle, o.IsPhysical()); err != nil {
			o.log.Warn("set dynamic failed", logging.Error(err))
			return
		}
		o.pushMaterial()
	})
}

// SetMass adjusts the density so the prim weighs mass kilograms.
func (o *Object) SetMass(mass float64) {
	o.stateMu.Lock()
	if vol := volume(o.shape.Kind, o.size); vol > 0 && mass > 0 {
		o.density = mass / vol
	}
	o.stateMu.Unlock()
	o.scheduleMaterial()
}

// MoveToTarget steers the prim towards target, arriving in roughly tau seconds.
func (o *Object) MoveToTarget(target mgl64.Vec3, tau float64) {
	o.stateMu.Lock()
	o.moveTarget = target
	o.moveTau = tau
	o.moveActive = true
	o.stateMu.Unlock()
	o.scene.queue.Enqueue("prim.MoveToTarget", func() {
		if o.bodyCreated && !o.hasHook {
			o.setHook(o.scene.AddPreStepHook("prim.moveToTarget", o.primMoveToTarget))
		}
	})
}

// StopMoveToTarget cancels a pending MoveToTarget.
func (o *Object) StopMoveToTarget() {
	o.stateMu.Lock()
	o.moveActive = false
	o.stateMu.Unlock()
	o.scene.queue.Enqueue("prim.StopMoveToTarget", o.clearHook)
}

func (o *Object) moveTargetActive() bool {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.moveActive
}

// primMoveToTarget is the prim pre-step hook. It runs inside the mutation window.
func (o *Object) primMoveToTarget(dt float64) {
	if !o.bodyCreated || !o.scene.queue.AssertInWindow("prim.moveToTarget") {
		return
	}
	o.stateMu.RLock()
	active := o.moveActive
	target := o.moveTarget
	tau := o.moveTau
	state := o.state
	o.stateMu.RUnlock()
	if !active {
		o.clearHook()
		return
	}

	//1.- Close enough: stop and release the hook.
	offset := target.Sub(state.Position)
	if offset.Len() < moveTargetTolerance {
		o.stateMu.Lock()
		o.moveActive = false
		o.commandedVelocity = mgl64.Vec3{}
		o.stateMu.Unlock()
		if err := o.scene.eng.SetVelocity(o.handle, mgl64.Vec3{}, state.AngularVelocity); err != nil {
			o.log.Warn("move to target stop failed", logging.Error(err))
		}
		o.clearHook()
		return
	}

	//2.- Proportional velocity so the remaining offset closes over tau.
	velocity := offset.Mul(1 / math.Max(tau, math.Max(dt, 1e-3)))
	if err := o.scene.eng.SetVelocity(o.handle, velocity, state.AngularVelocity); err != nil {
		o.log.Warn("move to target failed", logging.Error(err))
		return
	}
	o.stateMu.Lock()
	o.commandedVelocity = velocity
	o.stateMu.Unlock()
}
