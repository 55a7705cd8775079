package volume

import (
	"testing"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestWordCounts(t *testing.T) {
	tests := []struct {
		slice    [3]int
		occWords int
		emiWords int
	}{
		{[3]int{64, 64, 64}, 8192, 65536},
		{[3]int{128, 128, 128}, 65536, 524288},
		{[3]int{1, 1, 1}, 1, 1},
		{[3]int{3, 3, 3}, 1, 7},
		{[3]int{33, 1, 1}, 2, 9},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.occWords, OccupancyWords(tt.slice), "occupancy %v", tt.slice)
		assert.Equal(t, tt.emiWords, EmissiveWords(tt.slice), "emissive %v", tt.slice)
	}
	assert.Equal(t, uint64(32768), OccupancyBytes([3]int{64, 64, 64}))
	assert.Equal(t, uint64(262144), EmissiveBytes([3]int{64, 64, 64}))
}

func TestBitAndByteAccess(t *testing.T) {
	words := make([]uint32, 4)
	SetBit(words, 0)
	SetBit(words, 37)
	assert.True(t, Bit(words, 0))
	assert.True(t, Bit(words, 37))
	assert.False(t, Bit(words, 36))
	assert.Equal(t, uint32(1<<5), words[1])

	bytes := make([]uint32, 2)
	SetByte(bytes, 5, 0xAB)
	assert.Equal(t, uint8(0xAB), Byte(bytes, 5))
	assert.Equal(t, uint32(0xAB00), bytes[1])

	assert.False(t, SetByteIfZero(bytes, 5, 3))
	assert.True(t, SetByteIfZero(bytes, 6, 3))
	assert.Equal(t, uint8(0xAB), Byte(bytes, 5))
	assert.Equal(t, uint8(3), Byte(bytes, 6))

	SetByte(bytes, 5, 0)
	assert.Equal(t, uint8(0), Byte(bytes, 5))
	assert.Equal(t, uint8(3), Byte(bytes, 6))
}

func TestCellIndexXFastest(t *testing.T) {
	s := [3]int{4, 3, 2}
	assert.Equal(t, 0, CellIndex(0, 0, 0, s))
	assert.Equal(t, 1, CellIndex(1, 0, 0, s))
	assert.Equal(t, 4, CellIndex(0, 1, 0, s))
	assert.Equal(t, 12, CellIndex(0, 0, 1, s))
	assert.Equal(t, Cells(s)-1, CellIndex(3, 2, 1, s))
}

func unitGrid(n int) core.GridSettings {
	f := float32(n)
	return core.GridSettings{
		Bounds:    mgl32.Vec3{f, f, f},
		Center:    mgl32.Vec3{f / 2, f / 2, f / 2},
		VoxelSize: 1,
		SliceSize: [3]int{n, n, n},
	}
}

func TestRasterizeFloorQuad(t *testing.T) {
	g := unitGrid(8)
	quad := core.QuadTriangles(
		mgl32.Vec3{0, 0, 2.5}, mgl32.Vec3{8, 0, 2.5}, mgl32.Vec3{8, 8, 2.5}, mgl32.Vec3{0, 8, 2.5}, 0)
	tris := []core.VoxelTriangle{{V: quad[0].V, Emissive: 7}, {V: quad[1].V, Emissive: 9}}

	occ := make([]uint32, OccupancyWords(g.SliceSize))
	emi := make([]uint32, EmissiveWords(g.SliceSize))
	Rasterize(g, tris, occ, emi)

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			assert.True(t, Bit(occ, CellIndex(x, y, 2, g.SliceSize)), "cell %d,%d,2", x, y)
			assert.False(t, Bit(occ, CellIndex(x, y, 3, g.SliceSize)), "cell %d,%d,3", x, y)
			assert.NotZero(t, Byte(emi, CellIndex(x, y, 2, g.SliceSize)))
		}
	}
	// first writer wins on the shared diagonal
	assert.Equal(t, uint8(7), Byte(emi, CellIndex(0, 0, 2, g.SliceSize)))
}

func TestDeferredEmissionsMatchRasterize(t *testing.T) {
	g := unitGrid(8)
	quad := core.QuadTriangles(
		mgl32.Vec3{0, 0, 2.5}, mgl32.Vec3{8, 0, 2.5}, mgl32.Vec3{8, 8, 2.5}, mgl32.Vec3{0, 8, 2.5}, 0)
	tris := []core.VoxelTriangle{
		{V: quad[0].V, Emissive: 7}, {V: quad[1].V, Emissive: 9},
		{V: quad[0].V, Emissive: 3}, {V: quad[1].V},
	}

	occ := make([]uint32, OccupancyWords(g.SliceSize))
	emi := make([]uint32, EmissiveWords(g.SliceSize))
	Rasterize(g, tris, occ, emi)

	split := make([]uint32, OccupancyWords(g.SliceSize))
	first := RasterizeOccupancy(g, tris[:2], split)
	second := RasterizeOccupancy(g, tris[2:], split)
	deferred := make([]uint32, EmissiveWords(g.SliceSize))
	ApplyEmissions(deferred, first)
	ApplyEmissions(deferred, second)

	assert.Equal(t, occ, split)
	assert.Equal(t, emi, deferred)
	for _, e := range second {
		assert.Equal(t, uint8(3), e.Value)
	}
}

func TestRasterizeOutsideGridIsIgnored(t *testing.T) {
	g := unitGrid(4)
	tri := core.VoxelTriangle{V: [3]mgl32.Vec3{{10, 10, 10}, {11, 10, 10}, {10, 11, 10}}}
	occ := make([]uint32, OccupancyWords(g.SliceSize))
	emi := make([]uint32, EmissiveWords(g.SliceSize))
	assert.Zero(t, RasterizeTriangle(g, &tri, occ, emi))
	for _, w := range occ {
		assert.Zero(t, w)
	}
}

func TestRasterizeNonEmissiveLeavesEmissiveEmpty(t *testing.T) {
	g := unitGrid(4)
	tri := core.VoxelTriangle{V: [3]mgl32.Vec3{{0.5, 0.5, 0.5}, {3.5, 0.5, 0.5}, {0.5, 3.5, 0.5}}}
	occ := make([]uint32, OccupancyWords(g.SliceSize))
	emi := make([]uint32, EmissiveWords(g.SliceSize))
	assert.Positive(t, RasterizeTriangle(g, &tri, occ, emi))
	for _, w := range emi {
		assert.Zero(t, w)
	}
}

func TestTriangleBoxOverlap(t *testing.T) {
	tri := [3]mgl32.Vec3{{-1, -1, 0}, {1, -1, 0}, {0, 1, 0}}
	assert.True(t, TriangleBoxOverlap(mgl32.Vec3{0, 0, 0}, 0.5, tri))
	assert.False(t, TriangleBoxOverlap(mgl32.Vec3{0, 0, 2}, 0.5, tri))
	// box beside the slanted edge, inside the triangle's AABB
	assert.False(t, TriangleBoxOverlap(mgl32.Vec3{0.9, 0.9, 0}, 0.2, tri))
}

func TestCombine(t *testing.T) {
	sOcc := []uint32{0b1010}
	dOcc := []uint32{0b0101}
	sEmi := []uint32{0x00_03_00_02}
	dEmi := []uint32{0x05_00_00_04}

	Combine(sOcc, sEmi, dOcc, dEmi)
	assert.Equal(t, uint32(0b1111), dOcc[0])
	assert.Equal(t, uint32(0x05_03_00_04), dEmi[0])
	assert.Equal(t, uint32(0b1010), sOcc[0], "static must not change")
}
