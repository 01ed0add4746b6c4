// Package scene drives the physics engine for one region. Callers on any
// goroutine add and remove bodies, change parameters and request mutations;
// the scene applies every engine write at safe points inside Simulate.
package scene

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/config"
	"regionsim/physics/internal/constraints"
	"regionsim/physics/internal/detaillog"
	"regionsim/physics/internal/engine"
	_ "regionsim/physics/internal/engine/basic"
	"regionsim/physics/internal/logging"
	"regionsim/physics/internal/params"
	"regionsim/physics/internal/shapes"
	"regionsim/physics/internal/taint"
	"regionsim/physics/internal/terrain"
)

// DefaultEngine is selected when the configuration names none.
const DefaultEngine = "basic"

// NotReadyRate is returned by Simulate before initialisation and after disposal.
const NotReadyRate = 5.0

var (
	// ErrNotReady is returned by operations that need an initialised scene.
	ErrNotReady = errors.New("physics scene is not ready")
	// ErrNotResident is returned when a handle names no live object.
	ErrNotResident = errors.New("object is not resident in the scene")
)

// Option customises a Scene.
type Option func(*Scene)

// WithLogger routes scene logs to logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scene) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithEngine bypasses name based backend selection.
func WithEngine(eng engine.Engine) Option {
	return func(s *Scene) {
		s.engineOverride = eng
	}
}

// WithClock replaces the wall clock used for collision throttling and the detail log.
func WithClock(clock func() time.Time) Option {
	return func(s *Scene) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Scene is the per-region physics driver.
type Scene struct {
	regionName string
	log        *logging.Logger
	clock      func() time.Time

	queue  *taint.Queue
	params *params.Table

	paramMu sync.RWMutex
	values  Values

	engineOverride engine.Engine
	eng            engine.Engine
	shapes         *shapes.Cache
	constraints    *constraints.Set
	terrain        *terrain.Manager
	detail         *detaillog.Writer
	retention      *detaillog.Cleaner
	physicalDumps  bool

	objMu   sync.RWMutex
	objects map[uint32]*Object

	// Touched only by the stepping goroutine.
	withCollisions map[uint32]*Object

	pre  hookList
	post hookList

	stepMu        sync.Mutex
	ready         atomic.Bool
	disposed      atomic.Bool
	step          atomic.Uint64
	lastTimeStep  atomic.Uint64
	now           atomic.Int64
	dumpRequested atomic.Bool

	statsMu sync.Mutex
	stats   StepStats
}

// New builds an uninitialised scene. Parameters are registered with their
// defaults immediately so they can be read and tuned before Initialize.
func New(regionName string, opts ...Option) *Scene {
	s := &Scene{
		regionName:     regionName,
		log:            logging.L(),
		clock:          time.Now,
		params:         params.NewTable(),
		objects:        make(map[uint32]*Object),
		withCollisions: make(map[uint32]*Object),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.log = s.log.With(logging.String("component", "scene"), logging.String("region", regionName))
	s.queue = taint.New(s.log)
	s.registerParameters()
	return s
}

// RegionName returns the region the scene simulates.
func (s *Scene) RegionName() string { return s.regionName }

// Initialize selects the engine backend, applies configuration overrides and
// builds the ground. Failing to obtain an engine is fatal: the scene stays not
// ready for good.
func (s *Scene) Initialize(mesher shapes.Mesher, source config.Source) error {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	if s.ready.Load() {
		return errors.New("physics scene already initialised")
	}
	if s.disposed.Load() {
		return ErrNotReady
	}
	if source == nil {
		source = config.NewMapSource(nil)
	}

	//1.- Configuration file overrides on top of the registered defaults.
	if applied := s.params.ApplyConfiguration(source); len(applied) > 0 {
		s.log.Info("parameters overridden from configuration", logging.Strings("parameters", applied))
	}
	values := s.settings()

	//2.- Pick the backend by name and bring its world up.
	eng := s.engineOverride
	if eng == nil {
		name := source.GetString("PhysicsEngine", DefaultEngine)
		selected, err := engine.Select(name, s.log)
		if err != nil {
			s.log.Error("no usable physics engine, physics disabled for region", logging.String("engine", name), logging.Error(err))
			return fmt.Errorf("select physics engine: %w", err)
		}
		eng = selected
	}
	if err := eng.Initialize(values.worldConfig()); err != nil {
		s.log.Error("physics engine failed to initialise", logging.String("engine", eng.Name()), logging.Error(err))
		return fmt.Errorf("initialise physics engine %s: %w", eng.Name(), err)
	}
	s.eng = eng

	//3.- Optional detail log; failure only loses diagnostics.
	s.physicalDumps = source.GetBool("PhysicsPhysicalDumpEnabled", false)
	detailDir := source.GetString("PhysicsLoggingDir", ".")
	detail, err := detaillog.Open(detaillog.Config{
		Enabled:       source.GetBool("PhysicsLoggingEnabled", false),
		Dir:           detailDir,
		Prefix:        source.GetString("PhysicsLoggingPrefix", detaillog.RegionToken+"-"),
		Region:        s.regionName,
		FileMinutes:   source.GetInt("PhysicsLoggingFileMinutes", 5),
		DoFlush:       source.GetBool("PhysicsLoggingDoFlush", false),
		PhysicalDumps: s.physicalDumps,
	}, s.clock)
	if err != nil {
		s.log.Warn("detail log unavailable", logging.Error(err))
		detail = nil
	}
	s.detail = detail
	policy := detaillog.RetentionPolicy{
		MaxSessions: source.GetInt("PhysicsLoggingMaxSessions", 0),
		MaxAge:      time.Duration(source.GetFloat("PhysicsLoggingMaxAgeHours", 0) * float64(time.Hour)),
	}
	if detail.Enabled() && policy.Active() {
		s.retention = detaillog.NewCleaner(detailDir, policy, s.log).Keep(detail.Directory()).WithClock(s.clock)
		s.retention.RunOnce()
	}

	//4.- Subcomponents over the engine.
	s.shapes = shapes.New(eng, mesher, s.log)
	s.shapes.SetForceSimple(params.ParamBool(values.ForceSimplePrimMeshing))
	s.shapes.SetMeshLOD(int(values.MeshLOD))
	s.constraints = constraints.New(eng, s.log)
	s.terrain = terrain.New(eng, s.queue.Enqueue, s.log, terrain.Config{
		InitialHeight:     source.GetFloat("TerrainInitialHeight", terrain.DefaultInitialHeight),
		GroundPlaneHeight: terrain.DefaultGroundPlaneHeight,
	})
	if err := s.terrain.CreateInitialGroundPlaneAndTerrain(); err != nil {
		s.log.Error("terrain creation failed", logging.Error(err))
		s.detail.Close()
		_ = eng.Shutdown()
		return fmt.Errorf("create terrain: %w", err)
	}
	s.terrain.SetFriction(values.TerrainFriction)

	s.now.Store(s.clock().UnixMilli())
	s.ready.Store(true)
	s.log.Info("physics scene initialised",
		logging.String("engine", eng.Name()),
		logging.Bool("detail_log", s.detail.Enabled()),
		logging.String("detail_dir", s.detail.Directory()),
	)
	s.detail.Logf(0, "initialised region %s with engine %s", s.regionName, eng.Name())
	return nil
}

// Ready reports whether Simulate will step the engine.
func (s *Scene) Ready() bool { return s.ready.Load() && !s.disposed.Load() }

// IsThreaded reports whether the scene steps on its own goroutine. It never
// does; the caller's loop owns stepping.
func (s *Scene) IsThreaded() bool { return false }

// EngineName returns the name of the active backend.
func (s *Scene) EngineName() string {
	if !s.Ready() {
		return ""
	}
	return s.eng.Name()
}

// SimulationStep is the number of completed engine steps.
func (s *Scene) SimulationStep() uint64 { return s.step.Load() }

// LastTimeStep is the dt passed to the most recent Simulate call.
func (s *Scene) LastTimeStep() float64 { return math.Float64frombits(s.lastTimeStep.Load()) }

// SimulationNow is the wall clock in milliseconds sampled after the last engine step.
func (s *Scene) SimulationNow() int64 { return s.now.Load() }

// TopColliders is kept for callers that display heavy colliders. No scoring is
// done, so the map is always empty.
func (s *Scene) TopColliders() map[uint32]float64 { return map[uint32]float64{} }

// RequestPhysicalDump asks for one dump of every body at the end of the next step.
func (s *Scene) RequestPhysicalDump() { s.dumpRequested.Store(true) }

// DetailStats reports the detail log counters; zero when the log is disabled.
func (s *Scene) DetailStats() detaillog.Stats {
	stats := s.detail.Stats()
	storage := s.retention.Stats()
	stats.Sessions = storage.Sessions
	stats.StoredBytes = storage.Bytes
	return stats
}

// DetailRetention returns the session cleaner, or nil when no retention
// policy is configured.
func (s *Scene) DetailRetention() *detaillog.Cleaner { return s.retention }

// Queue exposes the deferred mutation queue for collaborators that mutate
// engine state of their own.
func (s *Scene) Queue() *taint.Queue { return s.queue }

func (s *Scene) lookup(handle uint32) (*Object, bool) {
	s.objMu.RLock()
	defer s.objMu.RUnlock()
	o, ok := s.objects[handle]
	return o, ok
}

// Object returns the live object with the handle.
func (s *Scene) Object(handle uint32) (*Object, bool) { return s.lookup(handle) }

// ObjectCount is the number of resident objects.
func (s *Scene) ObjectCount() int {
	s.objMu.RLock()
	defer s.objMu.RUnlock()
	return len(s.objects)
}

func (s *Scene) objectHandles() []uint32 {
	s.objMu.RLock()
	handles := make([]uint32, 0, len(s.objects))
	for handle := range s.objects {
		handles = append(handles, handle)
	}
	s.objMu.RUnlock()
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

// avatars lists live avatars in handle order.
func (s *Scene) avatars() []*Object {
	s.objMu.RLock()
	list := make([]*Object, 0)
	for _, o := range s.objects {
		if o.kind == KindAvatar {
			list = append(list, o)
		}
	}
	s.objMu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].handle < list[j].handle })
	return list
}

func (s *Scene) isTerrain(handle uint32) bool {
	if s.terrain == nil {
		return handle <= terrain.GroundPlaneID
	}
	return handle <= s.terrain.HighestTerrainID()
}

// HighestTerrainID is the largest handle reserved for terrain.
func (s *Scene) HighestTerrainID() uint32 {
	if !s.Ready() {
		return terrain.GroundPlaneID
	}
	return s.terrain.HighestTerrainID()
}

func (s *Scene) insert(o *Object) error {
	if !s.Ready() {
		return ErrNotReady
	}
	if o.handle <= terrain.MaxTerrainID {
		return fmt.Errorf("handle %d is reserved for terrain", o.handle)
	}
	s.objMu.Lock()
	defer s.objMu.Unlock()
	if _, exists := s.objects[o.handle]; exists {
		return fmt.Errorf("handle %d is already in use", o.handle)
	}
	s.objects[o.handle] = o
	return nil
}

// AddAvatar creates an avatar body. The engine body is built on the next step.
func (s *Scene) AddAvatar(handle uint32, name string, position, size mgl64.Vec3, flying bool) (*Object, error) {
	values := s.settings()
	size, desc := avatarShape(size, values)
	o := newObject(s, KindAvatar, handle, name, position, size, mgl64.QuatIdent())
	o.shape = desc
	o.friction = values.AvatarFriction
	o.restitution = values.AvatarRestitution
	o.density = values.AvatarDensity
	o.physical = true
	o.flying = flying
	o.subscribed = true
	if err := s.insert(o); err != nil {
		return nil, err
	}
	s.queue.Enqueue("scene.AddAvatar", o.createBody)
	return o, nil
}

// AddPrim creates a prim body. A zero shape description becomes a box of the given size.
func (s *Scene) AddPrim(handle uint32, name string, position, size mgl64.Vec3, rotation mgl64.Quat, shape shapes.Desc, isPhysical bool) (*Object, error) {
	values := s.settings()
	if shape == (shapes.Desc{}) {
		shape = shapes.Box(size)
	}
	if shape.Size == (mgl64.Vec3{}) {
		shape.Size = size
	}
	o := newObject(s, KindPrim, handle, name, position, size, rotation)
	o.shape = shape
	o.friction = values.DefaultFriction
	o.restitution = values.DefaultRestitution
	o.density = values.DefaultDensity
	o.physical = isPhysical
	if err := s.insert(o); err != nil {
		return nil, err
	}
	s.queue.Enqueue("scene.AddPrim", o.createBody)
	return o, nil
}

// RemoveAvatar drops an avatar. It reports false when the object is not a resident avatar.
func (s *Scene) RemoveAvatar(o *Object) bool {
	if o == nil || o.kind != KindAvatar {
		return false
	}
	return s.remove(o)
}

// RemovePrim drops a prim. It reports false when the object is not a resident prim.
func (s *Scene) RemovePrim(o *Object) bool {
	if o == nil || o.kind != KindPrim {
		return false
	}
	return s.remove(o)
}

func (s *Scene) remove(o *Object) bool {
	s.objMu.Lock()
	current, ok := s.objects[o.handle]
	if !ok || current != o {
		s.objMu.Unlock()
		s.log.Debug("remove of non-resident object", logging.Uint32("object", o.handle))
		return false
	}
	delete(s.objects, o.handle)
	s.objMu.Unlock()
	o.Destroy()
	return true
}

// SetTerrain replaces the region heightfield on the next step.
func (s *Scene) SetTerrain(field engine.Heightfield) error {
	if !s.Ready() {
		return ErrNotReady
	}
	return s.terrain.SetTerrain(field)
}

// SetWaterLevel records the water height.
func (s *Scene) SetWaterLevel(height float64) error {
	if !s.Ready() {
		return ErrNotReady
	}
	s.terrain.SetWaterLevel(height)
	return nil
}

// WaterLevel returns the recorded water height.
func (s *Scene) WaterLevel() float64 {
	if !s.Ready() {
		return 0
	}
	return s.terrain.WaterLevel()
}

// TerrainHeightAt samples the ground under a position.
func (s *Scene) TerrainHeightAt(x, y float64) float64 {
	if !s.Ready() {
		return terrain.DefaultGroundPlaneHeight
	}
	return s.terrain.HeightAt(x, y)
}

// SupportsCombining reports whether regions can be stitched into a mega-region.
func (s *Scene) SupportsCombining() bool { return true }

// Combine makes this region a child of root at offset.
func (s *Scene) Combine(root *Scene, offset, extents mgl64.Vec3) error {
	if !s.Ready() || root == nil || !root.Ready() {
		return ErrNotReady
	}
	return s.terrain.Combine(root.terrain, offset, extents)
}

// UnCombine undoes Combine. On the root region it drops every stitched child terrain.
func (s *Scene) UnCombine(other *Scene) error {
	if !s.Ready() {
		return ErrNotReady
	}
	var peer *terrain.Manager
	if other != nil && other.Ready() {
		peer = other.terrain
	}
	s.terrain.UnCombine(peer)
	return nil
}

// AddConstraint joins two resident bodies on the next step.
func (s *Scene) AddConstraint(c *constraints.Constraint) error {
	if !s.Ready() {
		return ErrNotReady
	}
	if c == nil {
		return errors.New("constraint is nil")
	}
	for _, handle := range []uint32{c.BodyA, c.BodyB} {
		if _, ok := s.lookup(handle); !ok {
			return fmt.Errorf("%w: %d", ErrNotResident, handle)
		}
	}
	s.queue.Enqueue("scene.AddConstraint", func() {
		if err := s.constraints.Add(c); err != nil {
			s.log.Warn("add constraint failed", logging.Error(err))
		}
	})
	return nil
}

// RemoveConstraint destroys a constraint on the next step.
func (s *Scene) RemoveConstraint(c *constraints.Constraint) error {
	if !s.Ready() {
		return ErrNotReady
	}
	s.queue.Enqueue("scene.RemoveConstraint", func() {
		s.constraints.RemoveAndDestroy(c)
	})
	return nil
}

// AddPreStepHook registers fn to run before every engine step.
func (s *Scene) AddPreStepHook(name string, fn HookFunc) HookID { return s.pre.add(name, fn) }

// RemovePreStepHook unregisters a pre-step hook.
func (s *Scene) RemovePreStepHook(id HookID) bool { return s.pre.remove(id) }

// AddPostStepHook registers fn to run after every engine step.
func (s *Scene) AddPostStepHook(name string, fn HookFunc) HookID { return s.post.add(name, fn) }

// RemovePostStepHook unregisters a post-step hook.
func (s *Scene) RemovePostStepHook(id HookID) bool { return s.post.remove(id) }

// guard runs a caller-supplied handler and keeps its panics out of the step.
func (s *Scene) guard(what string, handle uint32, fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.log.Error(what+" panicked",
				logging.Uint32("object", handle),
				logging.Any("panic", recovered),
			)
		}
	}()
	fn()
}

// Dispose stops stepping and releases engine resources in dependency order:
// bodies, constraints, shapes, terrain, then the engine itself.
func (s *Scene) Dispose() {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	if s.disposed.Swap(true) {
		return
	}
	if !s.ready.Load() {
		return
	}

	s.objMu.Lock()
	objects := make([]*Object, 0, len(s.objects))
	for _, o := range s.objects {
		objects = append(objects, o)
	}
	s.objects = make(map[uint32]*Object)
	s.objMu.Unlock()
	sort.Slice(objects, func(i, j int) bool { return objects[i].handle < objects[j].handle })

	//1.- Replay pending mutations first so removals queued before Dispose still free their bodies.
	s.queue.EnterWindow()
	s.queue.Flush()
	for _, o := range objects {
		o.destroy()
	}
	s.withCollisions = make(map[uint32]*Object)
	s.constraints.Dispose()
	s.shapes.Dispose()
	s.terrain.Dispose()
	s.queue.LeaveWindow()

	if err := s.eng.Shutdown(); err != nil {
		s.log.Warn("engine shutdown failed", logging.Error(err))
	}
	s.detail.Logf(s.step.Load(), "disposed region %s", s.regionName)
	if err := s.detail.Close(); err != nil {
		s.log.Warn("detail log close failed", logging.Error(err))
	}
	s.log.Info("physics scene disposed", logging.Int64("steps", int64(s.step.Load())))
}
