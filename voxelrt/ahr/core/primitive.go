package core

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Triangle is a world space triangle. Material indexes Primitive.Materials.
type Triangle struct {
	V        [3]mgl32.Vec3
	Material int
}

// VoxelTriangle is the device-facing form of a triangle: geometry plus the
// palette index it writes into the emissive volume (0 = none).
type VoxelTriangle struct {
	V        [3]mgl32.Vec3
	Emissive uint8
}

type Primitive struct {
	ID        uuid.UUID
	Owner     string
	Triangles []Triangle
	Materials []*Material

	// NeedsEveryFrameVoxelization puts the primitive in the dynamic set.
	NeedsEveryFrameVoxelization bool
}

func NewPrimitive(owner string, tris []Triangle, materials ...*Material) *Primitive {
	return &Primitive{
		ID:        uuid.New(),
		Owner:     owner,
		Triangles: tris,
		Materials: materials,
	}
}

// Identity is the key used to diff the static object set between frames.
func (p *Primitive) Identity() string {
	if p.Owner != "" {
		return p.Owner
	}
	return p.ID.String()
}

// MaterialOf returns the material for a triangle, or nil when the index is out of range.
func (p *Primitive) MaterialOf(t Triangle) *Material {
	if t.Material < 0 || t.Material >= len(p.Materials) {
		return nil
	}
	return p.Materials[t.Material]
}

func (p *Primitive) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	inf := float32(1e30)
	minB := mgl32.Vec3{inf, inf, inf}
	maxB := mgl32.Vec3{-inf, -inf, -inf}
	for _, t := range p.Triangles {
		for _, v := range t.V {
			minB = minVec(minB, v)
			maxB = maxVec(maxB, v)
		}
	}
	return minB, maxB
}

// Translate moves every triangle of the primitive by d.
func (p *Primitive) Translate(d mgl32.Vec3) {
	for i := range p.Triangles {
		for j := range p.Triangles[i].V {
			p.Triangles[i].V[j] = p.Triangles[i].V[j].Add(d)
		}
	}
}

// BoxTriangles returns the 12 outward facing triangles of an axis aligned box.
func BoxTriangles(minB, maxB mgl32.Vec3, material int) []Triangle {
	c := [8]mgl32.Vec3{
		{minB.X(), minB.Y(), minB.Z()},
		{maxB.X(), minB.Y(), minB.Z()},
		{maxB.X(), maxB.Y(), minB.Z()},
		{minB.X(), maxB.Y(), minB.Z()},
		{minB.X(), minB.Y(), maxB.Z()},
		{maxB.X(), minB.Y(), maxB.Z()},
		{maxB.X(), maxB.Y(), maxB.Z()},
		{minB.X(), maxB.Y(), maxB.Z()},
	}
	faces := [6][4]int{
		{0, 3, 2, 1}, // -Z
		{4, 5, 6, 7}, // +Z
		{0, 1, 5, 4}, // -Y
		{3, 7, 6, 2}, // +Y
		{0, 4, 7, 3}, // -X
		{1, 2, 6, 5}, // +X
	}
	tris := make([]Triangle, 0, 12)
	for _, f := range faces {
		tris = append(tris, QuadTriangles(c[f[0]], c[f[1]], c[f[2]], c[f[3]], material)...)
	}
	return tris
}

// QuadTriangles splits a counter-clockwise quad a,b,c,d into two triangles.
func QuadTriangles(a, b, c, d mgl32.Vec3, material int) []Triangle {
	return []Triangle{
		{V: [3]mgl32.Vec3{a, b, c}, Material: material},
		{V: [3]mgl32.Vec3{a, c, d}, Material: material},
	}
}

// Normal returns the unit geometric normal (b-a)x(c-a).
func (t Triangle) Normal() mgl32.Vec3 {
	n := t.V[1].Sub(t.V[0]).Cross(t.V[2].Sub(t.V[0]))
	if n.Len() == 0 {
		return mgl32.Vec3{0, 0, 1}
	}
	return n.Normalize()
}
