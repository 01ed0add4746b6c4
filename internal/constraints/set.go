// Package constraints tracks joints between bodies and owns their engine lifecycle.
package constraints

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/engine"
	"regionsim/physics/internal/logging"
)

// Constraint is one joint between two bodies.
type Constraint struct {
	Type      engine.ConstraintType
	BodyA     uint32
	BodyB     uint32
	FrameA    mgl64.Vec3
	FrameB    mgl64.Vec3
	Axis      mgl64.Vec3
	Stiffness float64
	Damping   float64

	id      engine.ConstraintID
	created bool
}

// ID returns the engine handle once the constraint has been added.
func (c *Constraint) ID() engine.ConstraintID { return c.id }

// Names reports whether the constraint involves the body.
func (c *Constraint) Names(body uint32) bool {
	return c.BodyA == body || c.BodyB == body
}

func (c *Constraint) spec() engine.ConstraintSpec {
	return engine.ConstraintSpec{
		Type:      c.Type,
		BodyA:     c.BodyA,
		BodyB:     c.BodyB,
		FrameA:    c.FrameA,
		FrameB:    c.FrameB,
		Axis:      c.Axis,
		Stiffness: c.Stiffness,
		Damping:   c.Damping,
	}
}

// Set is the collection of live constraints. Its methods call into the engine
// and therefore run inside deferred mutations.
type Set struct {
	mu   sync.Mutex
	eng  engine.Engine
	log  *logging.Logger
	list []*Constraint
}

// New constructs an empty set.
func New(eng engine.Engine, logger *logging.Logger) *Set {
	if logger == nil {
		logger = logging.L()
	}
	return &Set{eng: eng, log: logger.With(logging.String("component", "constraints"))}
}

// Add creates the engine constraint and tracks it.
func (s *Set) Add(c *Constraint) error {
	if c == nil {
		return errors.New("constraint is nil")
	}
	if c.BodyA == c.BodyB {
		return fmt.Errorf("constraint joins body %d to itself", c.BodyA)
	}
	id, err := s.eng.CreateConstraint(c.spec())
	if err != nil {
		return fmt.Errorf("create %s constraint %d-%d: %w", c.Type, c.BodyA, c.BodyB, err)
	}
	c.id = id
	c.created = true
	s.mu.Lock()
	s.list = append(s.list, c)
	s.mu.Unlock()
	return nil
}

// Get finds the constraint joining the two bodies in either order.
func (s *Set) Get(bodyA, bodyB uint32) (*Constraint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.list {
		if (c.BodyA == bodyA && c.BodyB == bodyB) || (c.BodyA == bodyB && c.BodyB == bodyA) {
			return c, true
		}
	}
	return nil, false
}

// RemoveAndDestroy forgets the constraint and destroys its engine side. It
// returns false when the constraint was not tracked.
func (s *Set) RemoveAndDestroy(c *Constraint) bool {
	s.mu.Lock()
	found := false
	for i, existing := range s.list {
		if existing == c {
			s.list = append(s.list[:i], s.list[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return false
	}
	s.destroy(c)
	return true
}

// RemoveAndDestroyFor removes every constraint naming the body and returns how many went.
func (s *Set) RemoveAndDestroyFor(body uint32) int {
	s.mu.Lock()
	var doomed []*Constraint
	kept := s.list[:0]
	for _, c := range s.list {
		if c.Names(body) {
			doomed = append(doomed, c)
			continue
		}
		kept = append(kept, c)
	}
	s.list = kept
	s.mu.Unlock()

	for _, c := range doomed {
		s.destroy(c)
	}
	return len(doomed)
}

func (s *Set) destroy(c *Constraint) {
	if !c.created {
		return
	}
	c.created = false
	if err := s.eng.DestroyConstraint(c.id); err != nil {
		// The engine drops joints with their bodies, so a miss here is expected after body removal.
		s.log.Debug("destroy constraint",
			logging.Int64("constraint", int64(c.id)),
			logging.Uint32("body_a", c.BodyA),
			logging.Uint32("body_b", c.BodyB),
			logging.Error(err),
		)
	}
}

// Len reports the number of tracked constraints.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

// Dispose destroys every tracked constraint.
func (s *Set) Dispose() {
	s.mu.Lock()
	list := s.list
	s.list = nil
	s.mu.Unlock()
	for _, c := range list {
		s.destroy(c)
	}
}
