package volume

import (
	"math"
	"sync/atomic"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Rasterize conservatively voxelizes tris into the packed occupancy and emissive
// words. Where triangles overlap in a cell, the first emissive triangle in tris
// keeps the cell.
func Rasterize(grid core.GridSettings, tris []core.VoxelTriangle, occ, emi []uint32) {
	for i := range tris {
		RasterizeTriangle(grid, &tris[i], occ, emi)
	}
}

// Emission is an emissive byte waiting to be stored in a cell.
type Emission struct {
	Cell  int
	Value uint8
}

// RasterizeOccupancy marks the cells tris touch and returns their emissive
// writes in triangle order instead of storing them. Occupancy writes are
// atomic, so disjoint triangle ranges may share occ across goroutines; applying
// the returned writes range by range with ApplyEmissions gives the same volume
// as a single Rasterize call.
func RasterizeOccupancy(grid core.GridSettings, tris []core.VoxelTriangle, occ []uint32) []Emission {
	var out []Emission
	for i := range tris {
		tri := &tris[i]
		rasterizeTriangle(grid, tri, occ, func(cell int) {
			if tri.Emissive != 0 {
				out = append(out, Emission{Cell: cell, Value: tri.Emissive})
			}
		})
	}
	return out
}

// ApplyEmissions stores each write whose cell is still empty.
func ApplyEmissions(emi []uint32, es []Emission) {
	for _, e := range es {
		storeByteIfZero(emi, e.Cell, e.Value)
	}
}

// RasterizeTriangle marks every cell the triangle touches. It returns the number of cells written.
func RasterizeTriangle(grid core.GridSettings, tri *core.VoxelTriangle, occ, emi []uint32) int {
	return rasterizeTriangle(grid, tri, occ, func(cell int) {
		if tri.Emissive != 0 {
			storeByteIfZero(emi, cell, tri.Emissive)
		}
	})
}

func rasterizeTriangle(grid core.GridSettings, tri *core.VoxelTriangle, occ []uint32, hit func(cell int)) int {
	var v [3]mgl32.Vec3
	for i := range v {
		v[i] = grid.WorldToVoxel(tri.V[i])
	}

	lo := [3]int{}
	hi := [3]int{}
	for a := 0; a < 3; a++ {
		mn := min(v[0][a], v[1][a], v[2][a])
		mx := max(v[0][a], v[1][a], v[2][a])
		lo[a] = max(0, int(math.Floor(float64(mn))))
		hi[a] = min(grid.SliceSize[a]-1, int(math.Floor(float64(mx))))
		if lo[a] > hi[a] {
			return 0
		}
	}

	written := 0
	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				center := mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, float32(z) + 0.5}
				if !TriangleBoxOverlap(center, 0.5, v) {
					continue
				}
				cell := CellIndex(x, y, z, grid.SliceSize)
				atomic.OrUint32(&occ[cell>>5], 1<<(uint(cell)&31))
				hit(cell)
				written++
			}
		}
	}
	return written
}

func storeByteIfZero(words []uint32, cell int, v uint8) {
	shift := (uint(cell) & 3) * 8
	addr := &words[cell>>2]
	for {
		old := atomic.LoadUint32(addr)
		if (old>>shift)&0xFF != 0 {
			return
		}
		if atomic.CompareAndSwapUint32(addr, old, old|uint32(v)<<shift) {
			return
		}
	}
}

// TriangleBoxOverlap is the separating axis test between a triangle and a cube
// with the given center and half size.
func TriangleBoxOverlap(center mgl32.Vec3, half float32, tri [3]mgl32.Vec3) bool {
	// slight inflation keeps shared edges from falling between cells
	h := half * 1.0001
	v0 := tri[0].Sub(center)
	v1 := tri[1].Sub(center)
	v2 := tri[2].Sub(center)

	for a := 0; a < 3; a++ {
		if min(v0[a], v1[a], v2[a]) > h || max(v0[a], v1[a], v2[a]) < -h {
			return false
		}
	}

	edges := [3]mgl32.Vec3{v1.Sub(v0), v2.Sub(v1), v0.Sub(v2)}
	unit := [3]mgl32.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for _, e := range edges {
		for _, u := range unit {
			axis := u.Cross(e)
			if separated(axis, h, v0, v1, v2) {
				return false
			}
		}
	}

	n := edges[0].Cross(edges[1])
	return planeBoxOverlap(n, -n.Dot(v0), h)
}

func separated(axis mgl32.Vec3, h float32, v0, v1, v2 mgl32.Vec3) bool {
	p0, p1, p2 := axis.Dot(v0), axis.Dot(v1), axis.Dot(v2)
	r := h * (abs32(axis[0]) + abs32(axis[1]) + abs32(axis[2]))
	return min(p0, p1, p2) > r || max(p0, p1, p2) < -r
}

func planeBoxOverlap(n mgl32.Vec3, d, h float32) bool {
	var vmin, vmax mgl32.Vec3
	for q := 0; q < 3; q++ {
		if n[q] > 0 {
			vmin[q], vmax[q] = -h, h
		} else {
			vmin[q], vmax[q] = h, -h
		}
	}
	if n.Dot(vmin)+d > 0 {
		return false
	}
	return n.Dot(vmax)+d >= 0
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

// Combine merges a static pair into a dynamic pair in place.
func Combine(staticOcc, staticEmi, dynOcc, dynEmi []uint32) {
	for i := range dynOcc {
		if i < len(staticOcc) {
			dynOcc[i] |= staticOcc[i]
		}
	}
	for i := range dynEmi {
		if i >= len(staticEmi) {
			break
		}
		dynEmi[i] = CombineEmissiveWord(staticEmi[i], dynEmi[i])
	}
}

// CombineEmissiveWord merges 4 packed bytes: a non-zero dynamic byte wins, otherwise static.
func CombineEmissiveWord(static, dynamic uint32) uint32 {
	var out uint32
	for b := uint(0); b < 32; b += 8 {
		d := (dynamic >> b) & 0xFF
		if d == 0 {
			d = (static >> b) & 0xFF
		}
		out |= d << b
	}
	return out
}
