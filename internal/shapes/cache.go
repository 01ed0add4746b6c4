// Package shapes deduplicates engine collision shapes by structural description.
package shapes

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/engine"
	"regionsim/physics/internal/logging"
)

// ErrNoShape is returned when neither the requested geometry nor its fallback could be built.
var ErrNoShape = errors.New("unable to build collision shape")

// Kind enumerates the logical geometry types callers describe.
type Kind int

const (
	KindBox Kind = iota
	KindSphere
	KindCylinder
	KindCapsule
	KindMesh
	KindSculpt
)

func (k Kind) String() string {
	switch k {
	case KindBox:
		return "box"
	case KindSphere:
		return "sphere"
	case KindCylinder:
		return "cylinder"
	case KindCapsule:
		return "capsule"
	case KindMesh:
		return "mesh"
	case KindSculpt:
		return "sculpt"
	default:
		return "unknown"
	}
}

// Desc is a structural shape description. Two equal values always share one engine shape.
type Desc struct {
	Kind  Kind
	Size  mgl64.Vec3
	Asset string
	LOD   int
}

// Box describes a box of the given full size.
func Box(size mgl64.Vec3) Desc {
	return Desc{Kind: KindBox, Size: size}
}

func (d Desc) needsMesher() bool {
	return d.Kind == KindMesh || d.Kind == KindSculpt
}

// Mesh is triangle geometry produced by a Mesher.
type Mesh struct {
	Vertices []mgl64.Vec3
	Indices  []int
}

// Mesher turns mesh and sculpt descriptions into geometry.
type Mesher interface {
	Mesh(desc Desc) (Mesh, error)
}

// MesherFunc adapts a function to the Mesher interface.
type MesherFunc func(desc Desc) (Mesh, error)

// Mesh calls f(desc).
func (f MesherFunc) Mesh(desc Desc) (Mesh, error) { return f(desc) }

type entry struct {
	handle engine.ShapeID
	refs   int
}

// Cache maps descriptions to reference-counted engine shapes. Shape creation and
// deletion call into the engine, so GetOrCreate, Release and Dispose run inside
// deferred mutations only.
type Cache struct {
	mu      sync.Mutex
	eng     engine.Engine
	mesher  Mesher
	log     *logging.Logger
	entries map[Desc]*entry

	forceSimple bool
	meshLOD     int
}

// New constructs a cache over the engine. The mesher may be nil.
func New(eng engine.Engine, mesher Mesher, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.L()
	}
	return &Cache{
		eng:     eng,
		mesher:  mesher,
		log:     logger.With(logging.String("component", "shapes")),
		entries: make(map[Desc]*entry),
		meshLOD: 32,
	}
}

// SetForceSimple makes every mesh and sculpt description fall back to a box.
func (c *Cache) SetForceSimple(force bool) {
	c.mu.Lock()
	c.forceSimple = force
	c.mu.Unlock()
}

// SetMeshLOD sets the level of detail used for descriptions that leave LOD at zero.
func (c *Cache) SetMeshLOD(lod int) {
	if lod <= 0 {
		return
	}
	c.mu.Lock()
	c.meshLOD = lod
	c.mu.Unlock()
}

func (c *Cache) normalize(desc Desc) Desc {
	if desc.needsMesher() && desc.LOD <= 0 {
		desc.LOD = c.meshLOD
	}
	if !desc.needsMesher() {
		desc.Asset = ""
		desc.LOD = 0
	}
	return desc
}

// Resolve returns the key the cache stores desc under at the current settings.
// Callers that hold a reference keep the resolved key and release exactly that.
func (c *Cache) Resolve(desc Desc) Desc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.normalize(desc)
}

// GetOrCreate returns the shared engine shape for desc, building it on first use.
func (c *Cache) GetOrCreate(desc Desc) (engine.ShapeID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	desc = c.normalize(desc)
	if existing, ok := c.entries[desc]; ok {
		existing.refs++
		return existing.handle, nil
	}
	handle, err := c.build(desc)
	if err != nil {
		return 0, err
	}
	c.entries[desc] = &entry{handle: handle, refs: 1}
	return handle, nil
}

func (c *Cache) build(desc Desc) (engine.ShapeID, error) {
	spec, err := c.spec(desc)
	if err != nil {
		c.log.Warn("mesh unavailable, using box",
			logging.String("kind", desc.Kind.String()),
			logging.String("asset", desc.Asset),
			logging.Error(err),
		)
		spec = engine.ShapeSpec{Type: engine.ShapeBox, Size: desc.Size}
	}
	handle, err := c.eng.CreateShape(spec)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %v: %v", ErrNoShape, desc.Kind, desc.Size, err)
	}
	return handle, nil
}

func (c *Cache) spec(desc Desc) (engine.ShapeSpec, error) {
	switch desc.Kind {
	case KindBox:
		return engine.ShapeSpec{Type: engine.ShapeBox, Size: desc.Size}, nil
	case KindSphere:
		return engine.ShapeSpec{Type: engine.ShapeSphere, Size: desc.Size}, nil
	case KindCylinder:
		return engine.ShapeSpec{Type: engine.ShapeCylinder, Size: desc.Size}, nil
	case KindCapsule:
		return engine.ShapeSpec{Type: engine.ShapeCapsule, Size: desc.Size}, nil
	}
	if c.forceSimple {
		return engine.ShapeSpec{}, errors.New("simple prim meshing forced")
	}
	if c.mesher == nil {
		return engine.ShapeSpec{}, errors.New("no mesher configured")
	}
	mesh, err := c.mesher.Mesh(desc)
	if err != nil {
		return engine.ShapeSpec{}, err
	}
	if len(mesh.Vertices) == 0 {
		return engine.ShapeSpec{}, errors.New("mesher returned no vertices")
	}
	return engine.ShapeSpec{Type: engine.ShapeMesh, Size: desc.Size, Vertices: mesh.Vertices, Indices: mesh.Indices}, nil
}

// Release drops one reference and frees the engine shape when none remain.
// Releasing a description that is not resident returns false.
func (c *Cache) Release(desc Desc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	desc = c.normalize(desc)
	existing, ok := c.entries[desc]
	if !ok {
		return false
	}
	existing.refs--
	if existing.refs > 0 {
		return true
	}
	delete(c.entries, desc)
	if err := c.eng.DeleteShape(existing.handle); err != nil {
		c.log.Error("delete shape failed", logging.Int64("shape", int64(existing.handle)), logging.Error(err))
	}
	return true
}

// Handle returns the engine shape for desc without taking a reference.
func (c *Cache) Handle(desc Desc) (engine.ShapeID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.entries[c.normalize(desc)]
	if !ok {
		return 0, false
	}
	return existing.handle, true
}

// RefCount reports the references held on desc.
func (c *Cache) RefCount(desc Desc) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[c.normalize(desc)]; ok {
		return existing.refs
	}
	return 0
}

// Len reports how many distinct shapes are resident.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Dispose frees every shape regardless of outstanding references.
func (c *Cache) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for desc, existing := range c.entries {
		if err := c.eng.DeleteShape(existing.handle); err != nil {
			c.log.Warn("delete shape during dispose failed", logging.String("kind", desc.Kind.String()), logging.Error(err))
		}
	}
	c.entries = make(map[Desc]*entry)
}
