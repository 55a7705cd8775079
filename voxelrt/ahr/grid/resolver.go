// Package grid derives the per-frame voxel grid from the scene bounds.
package grid

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	DefaultMinVoxelSize = 0.01
	DefaultMaxCells     = 256 * 256 * 256
)

// Resolver turns scene bounds and a target voxel size into GridSettings,
// remembering the previous slice size so callers know when to reallocate.
type Resolver struct {
	MinVoxelSize float32
	MaxCells     int

	prev    [3]int
	hasPrev bool
}

func NewResolver(minVoxelSize float32, maxCells int) *Resolver {
	return &Resolver{MinVoxelSize: minVoxelSize, MaxCells: maxCells}
}

// Resolve never fails: degenerate input yields a coarse but valid grid.
func (r *Resolver) Resolve(bounds core.SceneBounds, voxelSize float32) (core.GridSettings, bool) {
	g := Compute(bounds, voxelSize, r.minVoxelSize(), r.maxCells())
	needsRealloc := !r.hasPrev || r.prev != g.SliceSize
	r.prev = g.SliceSize
	r.hasPrev = true
	return g, needsRealloc
}

// Reset forgets the previous slice size, so the next Resolve reports a reallocation.
func (r *Resolver) Reset() {
	r.hasPrev = false
}

func (r *Resolver) minVoxelSize() float32 {
	if r.MinVoxelSize > 0 {
		return r.MinVoxelSize
	}
	return DefaultMinVoxelSize
}

func (r *Resolver) maxCells() int {
	if r.MaxCells > 0 {
		return r.MaxCells
	}
	return DefaultMaxCells
}

// Compute is the stateless part of Resolve.
func Compute(bounds core.SceneBounds, voxelSize, minVoxelSize float32, maxCells int) core.GridSettings {
	if !finite(voxelSize) || voxelSize < minVoxelSize {
		voxelSize = minVoxelSize
	}
	ext := sanitize(bounds.Extent, voxelSize)

	// Counts stay in float64 until they fit the budget; huge extents would
	// overflow int otherwise.
	counts := sliceCounts(ext, voxelSize)
	budget := float64(max(1, maxCells))
	if product(counts) > budget {
		volume := float64(ext.X()) * float64(ext.Y()) * float64(ext.Z())
		if grown := math.Cbrt(volume / budget); grown > float64(voxelSize) {
			voxelSize = float32(grown)
		}
		counts = sliceCounts(ext, voxelSize)
		// ceil can overshoot the budget by a row per axis.
		for product(counts) > budget {
			voxelSize *= float32(max(1.001, math.Cbrt(product(counts)/budget)))
			counts = sliceCounts(ext, voxelSize)
		}
	}
	slice := [3]int{int(counts[0]), int(counts[1]), int(counts[2])}

	center := bounds.Center
	if !finite(center.X()) || !finite(center.Y()) || !finite(center.Z()) {
		center = mgl32.Vec3{}
	}
	return core.GridSettings{
		Bounds:    ext,
		Center:    center,
		VoxelSize: voxelSize,
		SliceSize: slice,
	}
}

// sanitize replaces non-positive or non-finite axes with a single voxel.
func sanitize(ext mgl32.Vec3, voxelSize float32) mgl32.Vec3 {
	for i := 0; i < 3; i++ {
		if !finite(ext[i]) || ext[i] <= 0 {
			ext[i] = voxelSize
		}
	}
	return ext
}

// sliceCounts is ceil(ext/voxelSize) per axis, at least 1. The quotient is
// taken in float32 like the rest of the grid math and only widened when it
// overflows.
func sliceCounts(ext mgl32.Vec3, voxelSize float32) [3]float64 {
	var s [3]float64
	for i := 0; i < 3; i++ {
		q := float64(math32.Ceil(ext[i] / voxelSize))
		if math.IsInf(q, 0) {
			q = math.Ceil(float64(ext[i]) / float64(voxelSize))
		}
		s[i] = max(1, q)
	}
	return s
}

func product(s [3]float64) float64 {
	return s[0] * s[1] * s[2]
}

func finite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}
