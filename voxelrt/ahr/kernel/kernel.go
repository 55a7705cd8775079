// Package kernel holds the fixed hemisphere sampling directions used by the tracer.
package kernel

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	Sets          = 16
	DirectionsPer = 6
)

// Kernel is 16 sets of 6 tangent space directions (Z is the surface normal).
// Neighbouring pixels in a 4x4 tile use different sets.
type Kernel [Sets][DirectionsPer]mgl32.Vec3

var Default = Kernel{
	{{0, 0, 1}, {-0.310, 0.826, 0.470}, {-0.882, -0.394, 0.470}, {0.761, -0.313, 0.568}, {-0.030, -0.742, 0.670}, {0.476, 0.760, 0.443}},
	{{0.335, -0.194, 0.922}, {-0.587, 0.349, 0.731}, {-0.005, 0.401, 0.916}, {-0.556, -0.480, 0.671}, {0.315, -0.859, 0.405}, {0.855, 0.331, 0.399}},
	{{-0.149, -0.036, 0.988}, {0.472, -0.632, 0.614}, {-0.821, 0.435, 0.370}, {0.129, 0.893, 0.431}, {0.904, -0.195, 0.381}, {-0.297, -0.913, 0.280}},
	{{-0.203, -0.148, 0.968}, {0.240, 0.321, 0.916}, {-0.948, 0.162, 0.276}, {-0.094, 0.936, 0.340}, {0.890, 0.153, 0.431}, {0.023, -0.920, 0.390}},
	{{0.166, 0.120, 0.979}, {0.309, 0.762, 0.569}, {0.840, -0.117, 0.531}, {-0.186, -0.706, 0.683}, {-0.886, -0.234, 0.399}, {-0.575, 0.687, 0.443}},
	{{0.048, -0.352, 0.935}, {0.460, 0.334, 0.823}, {-0.018, -0.942, 0.334}, {-0.813, -0.295, 0.502}, {-0.362, 0.734, 0.575}, {0.942, -0.214, 0.260}},
	{{0.335, -0.194, 0.922}, {-0.586, 0.349, 0.731}, {-0.005, 0.401, 0.916}, {0.315, -0.859, 0.405}, {-0.556, -0.480, 0.678}, {0.855, 0.331, 0.399}},
	{{0.166, 0.120, 0.979}, {0.310, 0.762, 0.570}, {-0.186, -0.706, 0.683}, {0.839, -0.117, 0.531}, {-0.575, 0.687, 0.443}, {-0.886, -0.234, 0.399}},
	{{0.017, 0.055, 0.998}, {0.160, -0.915, 0.370}, {-0.251, 0.903, 0.347}, {0.782, 0.518, 0.347}, {0.882, -0.262, 0.391}, {-0.880, -0.344, 0.326}},
	{{0.142, -0.059, 0.988}, {-0.189, 0.214, 0.958}, {0.061, -0.894, 0.443}, {0.155, 0.955, 0.251}, {-0.876, 0.118, 0.467}, {0.957, 0.148, 0.251}},
	{{0.251, 0.000, 0.968}, {-0.263, 0.038, 0.963}, {0.088, -0.962, 0.259}, {-0.447, 0.850, 0.276}, {0.914, 0.034, 0.405}, {-0.824, -0.507, 0.253}},
	{{0.048, -0.352, 0.935}, {0.460, 0.334, 0.823}, {-0.362, 0.734, 0.575}, {-0.813, -0.295, 0.502}, {-0.018, -0.942, 0.334}, {0.942, -0.214, 0.259}},
	{{-0.149, -0.108, 0.983}, {0.550, -0.400, 0.433}, {-0.387, -0.679, 0.624}, {0.951, -0.036, 0.308}, {-0.737, 0.627, 0.253}, {0.410, 0.891, 0.194}},
	{{0.037, -0.113, 0.993}, {-0.810, -0.118, 0.575}, {0.712, 0.321, 0.624}, {-0.138, 0.951, 0.276}, {0.568, -0.752, 0.334}, {-0.615, -0.763, 0.198}},
	{{-0.030, -0.920, 0.995}, {0.706, 0.126, 0.696}, {0.671, -0.688, 0.276}, {-0.447, -0.851, 0.276}, {-0.829, 0.468, 0.306}, {0.536, 0.820, 0.198}},
	{{-0.097, 0.000, 0.995}, {-0.272, 0.442, 0.854}, {-0.625, 0.041, 0.780}, {0.650, -0.128, 0.749}, {0.417, 0.681, 0.602}, {-0.701, 0.510, 0.498}},
}

// SetForPixel picks the kernel set for a pixel from its position in a 4x4 tile.
func SetForPixel(x, y int) int {
	return (x & 3) + (y&3)*4
}

// Direction returns a normalized direction. A few table entries are slightly off unit length.
func (k *Kernel) Direction(set, i int) mgl32.Vec3 {
	d := k[set%Sets][i%DirectionsPer]
	if l := d.Len(); l > 0 {
		return d.Mul(1 / l)
	}
	return mgl32.Vec3{0, 0, 1}
}

// Texels returns the kernel as a 6x16 RGBA32F texture: row = direction, column = set.
func (k *Kernel) Texels() []float32 {
	out := make([]float32, 0, Sets*DirectionsPer*4)
	for i := 0; i < DirectionsPer; i++ {
		for s := 0; s < Sets; s++ {
			d := k.Direction(s, i)
			out = append(out, d.X(), d.Y(), d.Z(), 0)
		}
	}
	return out
}

// Bytes is Texels packed little endian, ready for a texture upload.
func (k *Kernel) Bytes() []byte {
	texels := k.Texels()
	buf := make([]byte, len(texels)*4)
	for i, f := range texels {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// TangentFrame builds an orthonormal basis around n.
func TangentFrame(n mgl32.Vec3) (t, b mgl32.Vec3) {
	up := mgl32.Vec3{0, 0, 1}
	if math.Abs(float64(n.Z())) > 0.999 {
		up = mgl32.Vec3{1, 0, 0}
	}
	t = up.Cross(n).Normalize()
	b = n.Cross(t)
	return t, b
}

// ToWorld rotates a tangent space direction into the frame of normal n.
func ToWorld(d, n mgl32.Vec3) mgl32.Vec3 {
	t, b := TangentFrame(n)
	return t.Mul(d.X()).Add(b.Mul(d.Y())).Add(n.Mul(d.Z()))
}
