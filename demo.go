package main

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"regionsim/physics/internal/logging"
	"regionsim/physics/internal/scene"
	"regionsim/physics/internal/shapes"
)

const (
	demoAvatarHandle    = 1000
	demoPrimHandleStart = 2000
	demoCollisionMs     = 500
)

// populateDemo drops count physical boxes above the region centre and adds one
// walking avatar so a fresh daemon exercises the whole step pipeline.
func populateDemo(sc *scene.Scene, count int, logger *logging.Logger) error {
	if count <= 0 {
		return nil
	}
	if logger == nil {
		logger = logging.L()
	}
	const centre = 128.0

	//1.- Boxes in rows of five, staggered in height so they land on each other.
	for i := 0; i < count; i++ {
		x := centre + 2*float64(i%5)
		y := centre + 2*float64(i/5)
		z := sc.TerrainHeightAt(x, y) + 4 + float64(i%3)
		size := mgl64.Vec3{0.5, 0.5, 0.5}
		prim, err := sc.AddPrim(uint32(demoPrimHandleStart+i), fmt.Sprintf("demo-box-%d", i),
			mgl64.Vec3{x, y, z}, size, mgl64.QuatIdent(), shapes.Box(size), true)
		if err != nil {
			return fmt.Errorf("add demo prim %d: %w", i, err)
		}
		prim.SubscribeEvents(demoCollisionMs)
		prim.OnCollision(func(event scene.CollisionEvent) {
			logger.Debug("demo prim collision",
				logging.Uint32("handle", event.Handle),
				logging.Int("contacts", len(event.Contacts)),
			)
		})
	}

	//2.- One avatar walking east across the pile.
	start := mgl64.Vec3{centre - 6, centre, sc.TerrainHeightAt(centre-6, centre) + 1}
	avatar, err := sc.AddAvatar(demoAvatarHandle, "demo-avatar", start, mgl64.Vec3{}, false)
	if err != nil {
		return fmt.Errorf("add demo avatar: %w", err)
	}
	avatar.SetTargetVelocity(mgl64.Vec3{1, 0, 0})
	logger.Info("demo population added", logging.Int("prims", count), logging.Uint32("avatar", demoAvatarHandle))
	return nil
}
