package scene

import (
	"fmt"
	"sort"

	"regionsim/physics/internal/engine"
	"regionsim/physics/internal/logging"
	"regionsim/physics/internal/params"
	"regionsim/physics/internal/terrain"
)

// Values is the live parameter block. Integer and boolean tunables are stored
// as floats, the same encoding the parameter surface uses.
type Values struct {
	MaxSubSteps             float64
	FixedTimeStep           float64
	NominalFrameRate        float64
	Gravity                 float64
	LinearDamping           float64
	AngularDamping          float64
	CollisionMargin         float64
	MaxCollisionsPerFrame   float64
	MaxUpdatesPerFrame      float64
	DefaultFriction         float64
	DefaultDensity          float64
	DefaultRestitution      float64
	TerrainFriction         float64
	AvatarFriction          float64
	AvatarDensity           float64
	AvatarRestitution       float64
	AvatarCapsuleWidth      float64
	AvatarCapsuleDepth      float64
	AvatarCapsuleHeight     float64
	ForceSimplePrimMeshing  float64
	MeshLOD                 float64
	PhysicsMetricDumpFrames float64
}

func (v Values) worldConfig() engine.WorldConfig {
	return engine.WorldConfig{
		Gravity:               v.Gravity,
		LinearDamping:         v.LinearDamping,
		AngularDamping:        v.AngularDamping,
		CollisionMargin:       v.CollisionMargin,
		MaxCollisionsPerFrame: int(v.MaxCollisionsPerFrame),
		MaxUpdatesPerFrame:    int(v.MaxUpdatesPerFrame),
	}
}

// ParameterEntry is one row of ParameterList.
type ParameterEntry struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
	Default     float64 `json:"default"`
}

// settings returns a copy of the parameter block.
func (s *Scene) settings() Values {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.values
}

// field builds the getter and setter pair for one Values field.
func (s *Scene) field(name, description string, def float64, ptr func(*Values) *float64, onObject params.ObjectSetter) params.Definition {
	return params.Definition{
		Name:        name,
		Description: description,
		Default:     def,
		Getter: func() float64 {
			s.paramMu.RLock()
			defer s.paramMu.RUnlock()
			return *ptr(&s.values)
		},
		Setter: func(value float64) {
			s.paramMu.Lock()
			*ptr(&s.values) = value
			s.paramMu.Unlock()
		},
		OnObject: onObject,
	}
}

// worldSetter forwards a world parameter to the engine once per change.
func (s *Scene) worldSetter(name string) params.ObjectSetter {
	return func(handle uint32, value float64) {
		if handle != terrain.TerrainID {
			return
		}
		if err := s.eng.UpdateParameter(name, value); err != nil {
			s.log.Warn("engine rejected parameter", logging.String("parameter", name), logging.Error(err))
		}
	}
}

// objectSetter applies a value to resident objects of one kind.
func (s *Scene) objectSetter(kind Kind, apply func(o *Object, value float64)) params.ObjectSetter {
	return func(handle uint32, value float64) {
		o, ok := s.lookup(handle)
		if !ok || o.kind != kind {
			return
		}
		apply(o, value)
	}
}

func applyFriction(o *Object, value float64) {
	o.stateMu.Lock()
	o.friction = value
	o.stateMu.Unlock()
	o.pushMaterial()
}

func applyDensity(o *Object, value float64) {
	o.stateMu.Lock()
	o.density = value
	o.stateMu.Unlock()
	o.pushMaterial()
}

func applyRestitution(o *Object, value float64) {
	o.stateMu.Lock()
	o.restitution = value
	o.stateMu.Unlock()
	o.pushMaterial()
}

func (s *Scene) definitions() []params.Definition {
	return []params.Definition{
		s.field("MaxSubSteps", "Maximum number of fixed increments per step", 10,
			func(v *Values) *float64 { return &v.MaxSubSteps }, nil),
		s.field("FixedTimeStep", "Length of one engine increment in seconds", 1.0/60.0,
			func(v *Values) *float64 { return &v.FixedTimeStep }, nil),
		s.field("NominalFrameRate", "Scale applied to the rate Simulate reports", 55,
			func(v *Values) *float64 { return &v.NominalFrameRate }, nil),
		s.field("Gravity", "Vertical acceleration in m/s^2", -9.80665,
			func(v *Values) *float64 { return &v.Gravity }, s.worldSetter("gravity")),
		s.field("LinearDamping", "Fraction of linear velocity lost per second", 0,
			func(v *Values) *float64 { return &v.LinearDamping }, s.worldSetter("lineardamping")),
		s.field("AngularDamping", "Fraction of angular velocity lost per second", 0,
			func(v *Values) *float64 { return &v.AngularDamping }, s.worldSetter("angulardamping")),
		s.field("CollisionMargin", "Distance at which bodies start reporting contacts", 0.04,
			func(v *Values) *float64 { return &v.CollisionMargin }, s.worldSetter("collisionmargin")),
		s.field("MaxCollisionsPerFrame", "Collision records returned per step", 2048,
			func(v *Values) *float64 { return &v.MaxCollisionsPerFrame }, s.worldSetter("maxcollisionsperframe")),
		s.field("MaxUpdatesPerFrame", "Property updates returned per step", 8192,
			func(v *Values) *float64 { return &v.MaxUpdatesPerFrame }, s.worldSetter("maxupdatesperframe")),
		s.field("DefaultFriction", "Friction of new prims", 0.2,
			func(v *Values) *float64 { return &v.DefaultFriction }, s.objectSetter(KindPrim, applyFriction)),
		s.field("DefaultDensity", "Density of new prims in kg/m^3", 1000,
			func(v *Values) *float64 { return &v.DefaultDensity }, s.objectSetter(KindPrim, applyDensity)),
		s.field("DefaultRestitution", "Bounciness of new prims", 0,
			func(v *Values) *float64 { return &v.DefaultRestitution }, s.objectSetter(KindPrim, applyRestitution)),
		s.field("TerrainFriction", "Friction of every terrain piece", 0.3,
			func(v *Values) *float64 { return &v.TerrainFriction }, func(handle uint32, value float64) {
				if handle == terrain.TerrainID && s.terrain != nil {
					s.terrain.SetFriction(value)
				}
			}),
		s.field("AvatarFriction", "Friction of avatars", 0.2,
			func(v *Values) *float64 { return &v.AvatarFriction }, s.objectSetter(KindAvatar, applyFriction)),
		s.field("AvatarDensity", "Density of avatars", 3.5,
			func(v *Values) *float64 { return &v.AvatarDensity }, s.objectSetter(KindAvatar, applyDensity)),
		s.field("AvatarRestitution", "Bounciness of avatars", 0,
			func(v *Values) *float64 { return &v.AvatarRestitution }, s.objectSetter(KindAvatar, applyRestitution)),
		s.field("AvatarCapsuleWidth", "Default avatar width", 0.6,
			func(v *Values) *float64 { return &v.AvatarCapsuleWidth }, nil),
		s.field("AvatarCapsuleDepth", "Default avatar depth", 0.45,
			func(v *Values) *float64 { return &v.AvatarCapsuleDepth }, nil),
		s.field("AvatarCapsuleHeight", "Default avatar height", 1.5,
			func(v *Values) *float64 { return &v.AvatarCapsuleHeight }, nil),
		s.field("ForceSimplePrimMeshing", "Build every mesh and sculpt as a box", params.NumericFalse,
			func(v *Values) *float64 { return &v.ForceSimplePrimMeshing }, func(handle uint32, value float64) {
				if handle == terrain.TerrainID && s.shapes != nil {
					s.shapes.SetForceSimple(params.ParamBool(value))
				}
			}),
		s.field("MeshLOD", "Level of detail requested from the mesher", 32,
			func(v *Values) *float64 { return &v.MeshLOD }, func(handle uint32, value float64) {
				if handle == terrain.TerrainID && s.shapes != nil {
					s.shapes.SetMeshLOD(int(value))
				}
			}),
		s.field("PhysicsMetricDumpFrames", "Steps between engine statistics dumps, 0 disables", 0,
			func(v *Values) *float64 { return &v.PhysicsMetricDumpFrames }, nil),
	}
}

// registerParameters fills the table and applies every default.
func (s *Scene) registerParameters() {
	for _, def := range s.definitions() {
		if err := s.params.Register(def); err != nil {
			s.log.Error("register parameter failed", logging.String("parameter", def.Name), logging.Error(err))
		}
	}
	s.params.SetDefaults()
}

// GetParameter returns the current value of a named parameter.
func (s *Scene) GetParameter(name string) (float64, error) {
	value, ok := s.params.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", params.ErrNotFound, name)
	}
	return value, nil
}

// SetParameter changes a parameter. ApplyToNone and ApplyToAll update the
// default; ApplyToAll and an object target also push the value to live objects
// through a deferred mutation.
func (s *Scene) SetParameter(name string, value float64, target params.Target) error {
	def, ok := s.params.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", params.ErrNotFound, name)
	}

	var handles []uint32
	switch {
	case target.IsNone():
		def.Setter(value)
		handles = []uint32{terrain.TerrainID}
	case target.IsAll():
		def.Setter(value)
		handles = append([]uint32{terrain.TerrainID}, s.objectHandles()...)
	default:
		handle, _ := target.Handle()
		handles = []uint32{handle}
	}

	s.log.Debug("parameter set",
		logging.String("parameter", def.Name),
		logging.Float64("value", value),
		logging.String("target", target.String()),
	)
	if def.OnObject == nil {
		return nil
	}
	s.queue.Enqueue("scene.SetParameter."+def.Name, func() {
		for _, handle := range handles {
			def.OnObject(handle, value)
		}
	})
	return nil
}

// ParameterList returns every parameter sorted by name.
func (s *Scene) ParameterList() []ParameterEntry {
	defs := s.params.List()
	out := make([]ParameterEntry, 0, len(defs))
	for _, def := range defs {
		out = append(out, ParameterEntry{
			Name:        def.Name,
			Description: def.Description,
			Value:       def.Getter(),
			Default:     def.Default,
		})
	}
	return out
}

// ParameterNames lists parameter names in sorted order.
func (s *Scene) ParameterNames() []string {
	names := s.params.Names()
	sort.Strings(names)
	return names
}

// ParameterName returns the registered spelling of a parameter name.
func (s *Scene) ParameterName(name string) (string, bool) {
	def, ok := s.params.Lookup(name)
	if !ok {
		return "", false
	}
	return def.Name, true
}
