package scene

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/engine"
	"regionsim/physics/internal/logging"
)

// StepStats summarises the most recent Simulate call.
type StepStats struct {
	Step                  uint64        `json:"step"`
	TaintsFlushed         int           `json:"taints_flushed"`
	SubSteps              int           `json:"sub_steps"`
	Collisions            int           `json:"collisions"`
	Updates               int           `json:"updates"`
	ObjectsWithCollisions int           `json:"objects_with_collisions"`
	Objects               int           `json:"objects"`
	EngineTime            time.Duration `json:"engine_time_ns"`
	EngineFailures        uint64        `json:"engine_failures"`
	Rate                  float64       `json:"rate"`
}

// StepStats returns the counters of the most recent step.
func (s *Scene) StepStats() StepStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// Simulate advances the scene by dt seconds. It flushes deferred mutations,
// runs the pre-step hooks, steps the engine, distributes collisions and
// property updates, and runs the post-step hooks. It returns substeps taken
// times the fixed increment scaled to a nominal frame rate, or NotReadyRate
// when the scene cannot step. Engine failures cost the frame, never the caller.
func (s *Scene) Simulate(dt float64) float64 {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	if !s.ready.Load() || s.disposed.Load() {
		return NotReadyRate
	}
	s.lastTimeStep.Store(math.Float64bits(dt))
	values := s.settings()

	//1.- Replay deferred mutations, let hooks adjust bodies, replay what the hooks queued.
	s.queue.EnterWindow()
	flushed := s.queue.Flush()
	s.pre.run(dt, s.hookPanicked("pre-step"))
	flushed += s.queue.Flush()
	s.queue.LeaveWindow()

	s.physicalDump(values, false)

	//2.- Step the engine. A failure zeroes this frame's output.
	step := s.step.Add(1)
	started := time.Now()
	s.queue.EnterWindow()
	result, err := s.stepEngine(dt, values)
	s.queue.LeaveWindow()
	engineTime := time.Since(started)
	failed := err != nil
	if failed {
		s.log.Warn("physics engine step failed", logging.Int64("step", int64(step)), logging.Error(err))
		s.detail.Logf(step, "engine step failed: %v", err)
		result = engine.StepResult{}
	}
	if frames := int(values.PhysicsMetricDumpFrames); frames > 0 && step%uint64(frames) == 0 {
		s.dumpStatistics(step)
	}
	s.now.Store(s.clock().UnixMilli())

	//3.- Each contact notifies both bodies, the second with the normal flipped.
	for _, c := range result.Collisions {
		s.sendCollision(c.AID, c.BID, c.Point, c.Normal, c.Penetration)
		s.sendCollision(c.BID, c.AID, c.Point, c.Normal.Mul(-1), c.Penetration)
	}

	//4.- Deliver gathered contacts; objects with nothing left drop out of the set.
	var finished []uint32
	for _, handle := range s.collidingHandles() {
		o := s.withCollisions[handle]
		if current, resident := s.lookup(handle); !resident || current != o {
			finished = append(finished, handle)
			continue
		}
		if !o.SendCollisions() {
			finished = append(finished, handle)
		}
	}

	//5.- Avatars get a notification every step, contacts or not.
	for _, avatar := range s.avatars() {
		if _, notified := s.withCollisions[avatar.handle]; !notified {
			avatar.SendCollisions()
		}
	}
	for _, handle := range finished {
		delete(s.withCollisions, handle)
	}

	//6.- Mirror engine state into the resident objects.
	for _, update := range result.Updates {
		if o, ok := s.lookup(update.ID); ok {
			o.UpdateProperties(update)
		}
	}

	//7.- Post-step hooks may touch the engine directly, so they run inside the window.
	s.queue.EnterWindow()
	s.post.run(dt, s.hookPanicked("post-step"))
	s.queue.LeaveWindow()
	s.physicalDump(values, true)

	rate := float64(result.SubSteps) * values.FixedTimeStep * 1000 * values.NominalFrameRate
	s.recordStats(StepStats{
		Step:                  step,
		TaintsFlushed:         flushed,
		SubSteps:              result.SubSteps,
		Collisions:            len(result.Collisions),
		Updates:               len(result.Updates),
		ObjectsWithCollisions: len(s.withCollisions),
		Objects:               s.ObjectCount(),
		EngineTime:            engineTime,
		Rate:                  rate,
	}, failed)
	return rate
}

// stepEngine calls the backend and turns a panic into an error.
func (s *Scene) stepEngine(dt float64, values Values) (result engine.StepResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("engine panic: %v", recovered)
		}
	}()
	return s.eng.Step(dt, int(values.MaxSubSteps), values.FixedTimeStep)
}

// sendCollision records one directed contact. Terrain is never notified and
// contacts naming unknown bodies are dropped.
func (s *Scene) sendCollision(localID, collidingWith uint32, point, normal mgl64.Vec3, penetration float64) {
	if s.isTerrain(localID) {
		return
	}
	collider, ok := s.lookup(localID)
	if !ok {
		return
	}
	collidee, _ := s.lookup(collidingWith)
	if collider.Collide(collidingWith, collidee, point, normal, penetration) {
		s.withCollisions[localID] = collider
	}
}

func (s *Scene) collidingHandles() []uint32 {
	handles := make([]uint32, 0, len(s.withCollisions))
	for handle := range s.withCollisions {
		handles = append(handles, handle)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

func (s *Scene) hookPanicked(phase string) func(name string, err error) {
	return func(name string, err error) {
		s.log.Error("step hook failed",
			logging.String("phase", phase),
			logging.String("hook", name),
			logging.Error(err),
		)
	}
}

// physicalDump writes every body's state when dumps are configured, or once
// after the step when an operator asked for one.
func (s *Scene) physicalDump(values Values, afterStep bool) {
	requested := afterStep && s.dumpRequested.Swap(false)
	if !s.physicalDumps && !requested {
		return
	}
	bodies := s.eng.Snapshot()
	step := s.step.Load()
	simulatedMs := int64(float64(step) * values.FixedTimeStep * 1000)
	if s.detail.DumpsEnabled() {
		if err := s.detail.Dump(step, simulatedMs, bodies); err != nil {
			s.log.Warn("physical dump failed", logging.Error(err))
		}
		return
	}
	if requested {
		s.log.Info("physical dump",
			logging.Int64("step", int64(step)),
			logging.Int("bodies", len(bodies)),
			logging.Any("state", bodies),
		)
	}
}

func (s *Scene) dumpStatistics(step uint64) {
	stats := s.eng.Statistics()
	s.log.Info("engine statistics",
		logging.Int64("step", int64(step)),
		logging.Int("bodies", stats.Bodies),
		logging.Int("shapes", stats.Shapes),
		logging.Int("constraints", stats.Constraints),
		logging.Int("terrains", stats.Terrains),
		logging.Int64("substeps", int64(stats.SubSteps)),
		logging.Int64("contacts", int64(stats.Contacts)),
	)
	s.detail.Logf(step, "statistics bodies=%d shapes=%d constraints=%d terrains=%d substeps=%d contacts=%d",
		stats.Bodies, stats.Shapes, stats.Constraints, stats.Terrains, stats.SubSteps, stats.Contacts)
}

func (s *Scene) recordStats(stats StepStats, failed bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	stats.EngineFailures = s.stats.EngineFailures
	if failed {
		stats.EngineFailures++
	}
	s.stats = stats
}
