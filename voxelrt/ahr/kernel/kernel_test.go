package kernel

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestDirectionsInUpperHemisphere(t *testing.T) {
	for s := 0; s < Sets; s++ {
		for i := 0; i < DirectionsPer; i++ {
			d := Default.Direction(s, i)
			if d.Z() <= 0 {
				t.Errorf("set %d dir %d below horizon: %v", s, i, d)
			}
			assert.InDelta(t, 1, d.Len(), 1e-5)
		}
	}
}

func TestSetForPixelCoversTile(t *testing.T) {
	seen := map[int]bool{}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			seen[SetForPixel(x, y)] = true
		}
	}
	assert.Len(t, seen, Sets)
	assert.Equal(t, SetForPixel(1, 2), SetForPixel(5, 6))
}

func TestTexelsLayout(t *testing.T) {
	texels := Default.Texels()
	assert.Len(t, texels, Sets*DirectionsPer*4)

	// Row 2 (direction 2), column 5 (set 5).
	off := (2*Sets + 5) * 4
	want := Default.Direction(5, 2)
	assert.Equal(t, want.X(), texels[off])
	assert.Equal(t, want.Y(), texels[off+1])
	assert.Equal(t, want.Z(), texels[off+2])

	b := Default.Bytes()
	assert.Len(t, b, len(texels)*4)
	assert.Equal(t, texels[off], math.Float32frombits(binary.LittleEndian.Uint32(b[off*4:])))
}

func TestToWorldKeepsNormalAxis(t *testing.T) {
	normals := []mgl32.Vec3{{0, 0, 1}, {0, 0, -1}, {1, 0, 0}, mgl32.Vec3{1, 1, 1}.Normalize()}
	for _, n := range normals {
		w := ToWorld(mgl32.Vec3{0, 0, 1}, n)
		assert.InDelta(t, 1, w.Dot(n), 1e-5, "normal %v", n)

		for i := 0; i < DirectionsPer; i++ {
			d := ToWorld(Default.Direction(3, i), n)
			assert.Greater(t, d.Dot(n), float32(0))
			assert.InDelta(t, 1, d.Len(), 1e-4)
		}
	}
}
