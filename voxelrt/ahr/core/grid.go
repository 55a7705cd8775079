package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// GridSettings describes the voxel grid for one frame.
// SliceSize[i] == ceil(Bounds[i] / VoxelSize), each >= 1.
type GridSettings struct {
	Bounds    mgl32.Vec3
	Center    mgl32.Vec3
	VoxelSize float32
	SliceSize [3]int
}

func (g GridSettings) CellCount() int {
	return g.SliceSize[0] * g.SliceSize[1] * g.SliceSize[2]
}

// Extent is the world size actually covered by the grid, which is at least Bounds.
func (g GridSettings) Extent() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(g.SliceSize[0]) * g.VoxelSize,
		float32(g.SliceSize[1]) * g.VoxelSize,
		float32(g.SliceSize[2]) * g.VoxelSize,
	}
}

// Origin is the world position of the min corner of cell (0,0,0).
func (g GridSettings) Origin() mgl32.Vec3 {
	return g.Center.Sub(g.Extent().Mul(0.5))
}

// WorldToVoxel maps a world position into continuous voxel coordinates.
func (g GridSettings) WorldToVoxel(p mgl32.Vec3) mgl32.Vec3 {
	if g.VoxelSize <= 0 {
		return mgl32.Vec3{}
	}
	return p.Sub(g.Origin()).Mul(1.0 / g.VoxelSize)
}

// VoxelToWorld returns the world position of the center of a cell.
func (g GridSettings) VoxelToWorld(x, y, z int) mgl32.Vec3 {
	o := g.Origin()
	return mgl32.Vec3{
		o.X() + (float32(x)+0.5)*g.VoxelSize,
		o.Y() + (float32(y)+0.5)*g.VoxelSize,
		o.Z() + (float32(z)+0.5)*g.VoxelSize,
	}
}

func (g GridSettings) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 &&
		x < g.SliceSize[0] && y < g.SliceSize[1] && z < g.SliceSize[2]
}

func (g GridSettings) Equal(o GridSettings) bool {
	return g.SliceSize == o.SliceSize && g.VoxelSize == o.VoxelSize &&
		g.Center == o.Center && g.Bounds == o.Bounds
}

// SceneBounds is the bounding volume of the active view's scene.
type SceneBounds struct {
	Center mgl32.Vec3
	Extent mgl32.Vec3 // full size, not half size
}

// BoundsOf returns the bounds enclosing every primitive, padded by pad on each side.
// Nil entries are skipped.
func BoundsOf(prims []*Primitive, pad float32) SceneBounds {
	inf := float32(1e30)
	minB := mgl32.Vec3{inf, inf, inf}
	maxB := mgl32.Vec3{-inf, -inf, -inf}
	found := false
	for _, p := range prims {
		if p == nil || len(p.Triangles) == 0 {
			continue
		}
		pMin, pMax := p.Bounds()
		minB = minVec(minB, pMin)
		maxB = maxVec(maxB, pMax)
		found = true
	}
	if !found {
		return SceneBounds{Extent: mgl32.Vec3{2 * pad, 2 * pad, 2 * pad}}
	}
	minB = minB.Sub(mgl32.Vec3{pad, pad, pad})
	maxB = maxB.Add(mgl32.Vec3{pad, pad, pad})
	return SceneBounds{
		Center: minB.Add(maxB).Mul(0.5),
		Extent: maxB.Sub(minB),
	}
}

func minVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])}
}

func maxVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])}
}
