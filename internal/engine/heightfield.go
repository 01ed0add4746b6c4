package engine

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Heightfield is a regular grid of heights with one-metre spacing. Heights are
// stored row-major with X varying fastest. Offset is the world position of the
// (0,0) sample.
type Heightfield struct {
	SizeX   int
	SizeY   int
	Heights []float64
	Offset  mgl64.Vec3
}

// NewFlatHeightfield builds a grid of identical heights.
func NewFlatHeightfield(sizeX, sizeY int, height float64) Heightfield {
	heights := make([]float64, sizeX*sizeY)
	for i := range heights {
		heights[i] = height
	}
	return Heightfield{SizeX: sizeX, SizeY: sizeY, Heights: heights}
}

// Validate checks the grid dimensions against the sample count.
func (h Heightfield) Validate() error {
	if h.SizeX < 2 || h.SizeY < 2 {
		return fmt.Errorf("heightfield must be at least 2x2, got %dx%d", h.SizeX, h.SizeY)
	}
	if len(h.Heights) != h.SizeX*h.SizeY {
		return fmt.Errorf("heightfield has %d samples, expected %d", len(h.Heights), h.SizeX*h.SizeY)
	}
	return nil
}

// Contains reports whether the world XY position falls within the grid.
func (h Heightfield) Contains(x, y float64) bool {
	lx := x - h.Offset.X()
	ly := y - h.Offset.Y()
	return lx >= 0 && ly >= 0 && lx <= float64(h.SizeX-1) && ly <= float64(h.SizeY-1)
}

// HeightAt bilinearly samples the grid at a world XY position, clamping to the edges.
func (h Heightfield) HeightAt(x, y float64) float64 {
	if len(h.Heights) == 0 || h.SizeX == 0 || h.SizeY == 0 {
		return h.Offset.Z()
	}
	lx := clamp(x-h.Offset.X(), 0, float64(h.SizeX-1))
	ly := clamp(y-h.Offset.Y(), 0, float64(h.SizeY-1))

	x0 := int(math.Floor(lx))
	y0 := int(math.Floor(ly))
	x1 := min(x0+1, h.SizeX-1)
	y1 := min(y0+1, h.SizeY-1)
	fx := lx - float64(x0)
	fy := ly - float64(y0)

	h00 := h.Heights[y0*h.SizeX+x0]
	h10 := h.Heights[y0*h.SizeX+x1]
	h01 := h.Heights[y1*h.SizeX+x0]
	h11 := h.Heights[y1*h.SizeX+x1]

	bottom := h00 + (h10-h00)*fx
	top := h01 + (h11-h01)*fx
	return h.Offset.Z() + bottom + (top-bottom)*fy
}

// Bounds returns the lowest and highest stored height, offset applied.
func (h Heightfield) Bounds() (float64, float64) {
	if len(h.Heights) == 0 {
		return h.Offset.Z(), h.Offset.Z()
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range h.Heights {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo + h.Offset.Z(), hi + h.Offset.Z()
}

// Clone returns a deep copy so callers can keep mutating their own slice.
func (h Heightfield) Clone() Heightfield {
	clone := h
	clone.Heights = append([]float64(nil), h.Heights...)
	return clone
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
