package app

import (
	"math"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Scene is the demo room: a closed box with colored side walls, an emissive
// panel under the ceiling and one block that moves every frame.
type Scene struct {
	Static []*core.Primitive
	Mover  *core.Primitive
	Lamp   *core.Primitive

	Camera     *core.Camera
	LightCam   *core.Camera
	LightColor mgl32.Vec3
	Ambient    mgl32.Vec3

	Bounds core.SceneBounds

	moverOffset mgl32.Vec3
}

const (
	roomHalf   = 2
	roomHeight = 4
	wallThick  = 0.1
	moverSize  = 0.6
	moverOrbit = 1.1
)

func NewCornellScene() *Scene {
	white := core.NewMaterial("white", [4]uint8{200, 200, 200, 255})
	red := core.NewMaterial("red", [4]uint8{200, 40, 40, 255})
	green := core.NewMaterial("green", [4]uint8{40, 200, 40, 255})
	lamp := core.NewEmissiveMaterial("lamp", [4]uint8{255, 230, 200, 255})
	glow := core.NewEmissiveMaterial("glow", [4]uint8{255, 140, 40, 255})

	box := func(owner string, lo, hi mgl32.Vec3, m *core.Material) *core.Primitive {
		return core.NewPrimitive(owner, core.BoxTriangles(lo, hi, 0), m)
	}
	const h, t = roomHalf, wallThick
	s := &Scene{
		Static: []*core.Primitive{
			box("floor", mgl32.Vec3{-h, -h, -t}, mgl32.Vec3{h, h, 0}, white),
			box("ceiling", mgl32.Vec3{-h, -h, roomHeight}, mgl32.Vec3{h, h, roomHeight + t}, white),
			box("back", mgl32.Vec3{-h, h, 0}, mgl32.Vec3{h, h + t, roomHeight}, white),
			box("left", mgl32.Vec3{-h - t, -h, 0}, mgl32.Vec3{-h, h, roomHeight}, red),
			box("right", mgl32.Vec3{h, -h, 0}, mgl32.Vec3{h + t, h, roomHeight}, green),
			box("pillar", mgl32.Vec3{0.9, 1.2, 0}, mgl32.Vec3{1.6, 1.9, 2.2}, white),
		},
		LightColor: mgl32.Vec3{1, 0.95, 0.9},
		Ambient:    mgl32.Vec3{0.03, 0.03, 0.03},
		Bounds: core.SceneBounds{
			Center: mgl32.Vec3{0, 0, roomHeight / 2},
			Extent: mgl32.Vec3{2*h + 4*t, 2*h + 4*t, roomHeight + 4*t},
		},
	}
	s.Lamp = box("lamp", mgl32.Vec3{-0.75, -0.75, roomHeight - 0.05}, mgl32.Vec3{0.75, 0.75, roomHeight}, lamp)
	s.Static = append(s.Static, s.Lamp)

	s.Mover = box("mover", mgl32.Vec3{-moverSize / 2, -moverSize / 2, 0}, mgl32.Vec3{moverSize / 2, moverSize / 2, moverSize}, glow)
	s.Mover.NeedsEveryFrameVoxelization = true

	s.Camera = core.NewCamera()
	s.Camera.Position = mgl32.Vec3{0, -7.5, 2}
	s.Camera.FovY = 50
	s.Camera.LookAt(mgl32.Vec3{0, 0, 1.8})

	s.LightCam = core.NewCamera()
	s.LightCam.Position = mgl32.Vec3{0, -0.5, roomHeight - 0.1}
	s.LightCam.FovY = 120
	s.LightCam.Near = 0.05
	s.LightCam.Far = 20
	s.LightCam.LookAt(mgl32.Vec3{0, 0, 0})

	s.Step(0)
	return s
}

// Primitives returns every object of the scene, dynamic ones last.
func (s *Scene) Primitives() []*core.Primitive {
	out := make([]*core.Primitive, 0, len(s.Static)+1)
	out = append(out, s.Static...)
	return append(out, s.Mover)
}

// Step moves the dynamic block to its position at time t (seconds). It orbits
// the room center close to the floor.
func (s *Scene) Step(t float64) {
	offset := mgl32.Vec3{
		float32(math.Cos(t)) * moverOrbit,
		float32(math.Sin(t)) * moverOrbit * -1,
		0,
	}
	s.Mover.Translate(offset.Sub(s.moverOffset))
	s.moverOffset = offset
}

// MoverCenter is the current center of the dynamic block's footprint.
func (s *Scene) MoverCenter() mgl32.Vec3 {
	lo, hi := s.Mover.Bounds()
	return lo.Add(hi).Mul(0.5)
}
