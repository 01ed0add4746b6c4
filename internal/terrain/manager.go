// Package terrain owns the ground representation of a region: a far ground plane,
// the region heightfield and child heightfields stitched in from combined regions.
package terrain

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/engine"
	"regionsim/physics/internal/logging"
)

// Reserved terrain handles. Every handle up to HighestTerrainID is terrain,
// and child terrains are only ever allocated up to MaxTerrainID, so object
// handles above MaxTerrainID can never be claimed by terrain later.
const (
	TerrainID      uint32 = 0
	GroundPlaneID  uint32 = 1
	ChildTerrainID uint32 = 2
	MaxTerrainID   uint32 = 99
)

const (
	// DefaultRegionSize is the edge length of a region in metres.
	DefaultRegionSize = 256
	// DefaultInitialHeight is the height of the flat terrain created before any heightmap arrives.
	DefaultInitialHeight = 24.987
	// DefaultGroundPlaneHeight places the catch-all plane far below the region.
	DefaultGroundPlaneHeight = -500.0
)

// Enqueuer defers a terrain mutation to the owning scene's next safe point.
type Enqueuer func(ident string, fn func())

// Config shapes a Manager.
type Config struct {
	RegionSize        int
	InitialHeight     float64
	GroundPlaneHeight float64
}

func (c Config) withDefaults() Config {
	if c.RegionSize < 2 {
		c.RegionSize = DefaultRegionSize
	}
	return c
}

type child struct {
	id    uint32
	field engine.Heightfield
}

// Manager is the terrain of one region. Public mutators are safe from any
// goroutine; they defer engine work through the Enqueuer.
type Manager struct {
	mu      sync.RWMutex
	eng     engine.Engine
	enqueue Enqueuer
	log     *logging.Logger
	cfg     Config

	field     engine.Heightfield
	hasField  bool
	children  map[mgl64.Vec3]*child
	nextChild uint32
	highest   uint32

	parent  *Manager
	offset  mgl64.Vec3
	extents mgl64.Vec3

	waterLevel float64
	friction   float64
}

// New constructs a manager. Nothing touches the engine until
// CreateInitialGroundPlaneAndTerrain runs.
func New(eng engine.Engine, enqueue Enqueuer, logger *logging.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = logging.L()
	}
	return &Manager{
		eng:       eng,
		enqueue:   enqueue,
		log:       logger.With(logging.String("component", "terrain")),
		cfg:       cfg.withDefaults(),
		children:  make(map[mgl64.Vec3]*child),
		nextChild: ChildTerrainID,
		highest:   GroundPlaneID,
		friction:  1,
	}
}

// HighestTerrainID is the largest handle currently used by terrain.
func (m *Manager) HighestTerrainID() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.highest
}

// IsTerrain reports whether a handle names a terrain piece.
func (m *Manager) IsTerrain(handle uint32) bool {
	return handle <= m.HighestTerrainID()
}

// SupportsCombining reports that regions may be stitched into a mega-region.
func (m *Manager) SupportsCombining() bool { return true }

// CreateInitialGroundPlaneAndTerrain builds the ground plane and a flat region
// heightfield. It calls the engine directly and runs inside the initialisation window.
func (m *Manager) CreateInitialGroundPlaneAndTerrain() error {
	if err := m.eng.CreateGroundPlane(GroundPlaneID, m.cfg.GroundPlaneHeight); err != nil {
		return fmt.Errorf("create ground plane: %w", err)
	}
	flat := engine.NewFlatHeightfield(m.cfg.RegionSize, m.cfg.RegionSize, m.cfg.InitialHeight)
	if err := m.eng.CreateHeightfield(TerrainID, flat); err != nil {
		return fmt.Errorf("create initial terrain: %w", err)
	}
	m.mu.Lock()
	m.field = flat
	m.hasField = true
	m.mu.Unlock()
	return nil
}

// SetTerrain replaces the region heightfield. A region combined into a
// mega-region forwards its heights to the root as a child terrain.
func (m *Manager) SetTerrain(field engine.Heightfield) error {
	if err := field.Validate(); err != nil {
		return err
	}
	field = field.Clone()

	m.mu.RLock()
	parent, offset := m.parent, m.offset
	m.mu.RUnlock()
	if parent != nil {
		field.Offset = offset
		parent.AddChildTerrain(field)
		return nil
	}

	m.enqueue("terrain.SetTerrain", func() {
		if err := m.eng.CreateHeightfield(TerrainID, field); err != nil {
			m.log.Error("replace terrain failed", logging.Error(err))
			return
		}
		m.mu.Lock()
		m.field = field
		m.hasField = true
		m.mu.Unlock()
	})
	return nil
}

// AddChildTerrain installs or replaces the heightfield stitched in at field.Offset.
func (m *Manager) AddChildTerrain(field engine.Heightfield) {
	m.enqueue("terrain.AddChildTerrain", func() {
		m.mu.Lock()
		existing, ok := m.children[field.Offset]
		if !ok {
			if m.nextChild > MaxTerrainID {
				m.mu.Unlock()
				m.log.Error("no terrain handle left for child terrain",
					logging.Any("offset", field.Offset),
					logging.Uint32("max_terrain_id", MaxTerrainID),
				)
				return
			}
			existing = &child{id: m.nextChild}
			m.nextChild++
			if existing.id > m.highest {
				m.highest = existing.id
			}
			m.children[field.Offset] = existing
		}
		existing.field = field
		id := existing.id
		m.mu.Unlock()

		if err := m.eng.CreateHeightfield(id, field); err != nil {
			m.log.Error("create child terrain failed",
				logging.Uint32("terrain", id),
				logging.Any("offset", field.Offset),
				logging.Error(err),
			)
		}
	})
}

// Combine makes this region a child of root at the given offset.
func (m *Manager) Combine(root *Manager, offset, extents mgl64.Vec3) error {
	if root == nil || root == m {
		return errors.New("a region cannot be combined with itself")
	}
	m.mu.Lock()
	m.parent = root
	m.offset = offset
	m.extents = extents
	m.mu.Unlock()
	m.log.Info("region combined", logging.Any("offset", offset), logging.Any("extents", extents))
	return nil
}

// UnCombine undoes combination. On the root it releases every child terrain;
// on a child it forgets the parent.
func (m *Manager) UnCombine(other *Manager) {
	m.mu.Lock()
	if m.parent != nil && (other == nil || m.parent == other) {
		m.parent = nil
		m.offset = mgl64.Vec3{}
		m.extents = mgl64.Vec3{}
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.enqueue("terrain.UnCombine", func() {
		m.releaseChildren()
	})
}

func (m *Manager) releaseChildren() {
	m.mu.Lock()
	children := m.children
	m.children = make(map[mgl64.Vec3]*child)
	m.highest = GroundPlaneID
	m.nextChild = ChildTerrainID
	m.mu.Unlock()

	for _, c := range sortedChildren(children) {
		if err := m.eng.DestroyTerrain(c.id); err != nil {
			m.log.Warn("destroy child terrain failed", logging.Uint32("terrain", c.id), logging.Error(err))
		}
	}
}

func sortedChildren(children map[mgl64.Vec3]*child) []*child {
	list := make([]*child, 0, len(children))
	for _, c := range children {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}

// Children reports how many child terrains are installed.
func (m *Manager) Children() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.children)
}

// Parent returns the root region this region is combined into, if any.
func (m *Manager) Parent() *Manager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parent
}

// HeightAt samples the terrain under a world position. Positions outside every
// heightfield report the ground plane height.
func (m *Manager) HeightAt(x, y float64) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.children {
		if c.field.Contains(x, y) {
			return c.field.HeightAt(x, y)
		}
	}
	if m.hasField && m.field.Contains(x, y) {
		return m.field.HeightAt(x, y)
	}
	return m.cfg.GroundPlaneHeight
}

// SetWaterLevel records the region water height.
func (m *Manager) SetWaterLevel(height float64) {
	m.mu.Lock()
	m.waterLevel = height
	m.mu.Unlock()
}

// WaterLevel returns the region water height.
func (m *Manager) WaterLevel() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.waterLevel
}

// SetFriction pushes a friction value to every terrain piece. Runs inside a deferred mutation.
func (m *Manager) SetFriction(friction float64) {
	m.mu.Lock()
	m.friction = friction
	ids := []uint32{TerrainID, GroundPlaneID}
	for _, c := range sortedChildren(m.children) {
		ids = append(ids, c.id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		if err := m.eng.SetTerrainFriction(id, friction); err != nil {
			m.log.Debug("set terrain friction", logging.Uint32("terrain", id), logging.Error(err))
		}
	}
}

// Friction returns the last friction pushed to the terrain.
func (m *Manager) Friction() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.friction
}

// Release destroys the ground plane, the region heightfield and every child terrain.
func (m *Manager) Release() {
	m.releaseChildren()
	m.mu.Lock()
	hadField := m.hasField
	m.hasField = false
	m.mu.Unlock()
	if hadField {
		if err := m.eng.DestroyTerrain(TerrainID); err != nil {
			m.log.Warn("destroy terrain failed", logging.Error(err))
		}
		if err := m.eng.DestroyTerrain(GroundPlaneID); err != nil {
			m.log.Warn("destroy ground plane failed", logging.Error(err))
		}
	}
}

// Dispose is Release under the name the scene uses for its ordered teardown.
func (m *Manager) Dispose() { m.Release() }
