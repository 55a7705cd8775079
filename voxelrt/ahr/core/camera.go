package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type Camera struct {
	Position mgl32.Vec3
	Yaw      float32
	Pitch    float32
	FovY     float32 // degrees
	Near     float32
	Far      float32
}

func NewCamera() *Camera {
	return &Camera{
		Position: mgl32.Vec3{0, 2, 20},
		FovY:     60,
		Near:     0.1,
		Far:      1000,
	}
}

func (c *Camera) Forward() mgl32.Vec3 {
	// Z-up: Forward in XY plane, Z for pitch
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Pitch)) * math.Sin(float64(c.Yaw))),
		float32(-math.Cos(float64(c.Pitch)) * math.Cos(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
	}
}

// Right is forward x up, matching the basis LookAtV builds.
func (c *Camera) Right() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(-math.Cos(float64(c.Yaw))),
		float32(-math.Sin(float64(c.Yaw))),
		0,
	}
}

func (c *Camera) Up() mgl32.Vec3 {
	return c.Right().Cross(c.Forward()).Normalize()
}

func (c *Camera) ViewMatrix() mgl32.Mat4 {
	eye := c.Position
	return mgl32.LookAtV(eye, eye.Add(c.Forward()), mgl32.Vec3{0, 0, 1})
}

func (c *Camera) ProjMatrix(aspect float32) mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.FovY), aspect, c.Near, c.Far)
}

// LookAt points the camera at target.
func (c *Camera) LookAt(target mgl32.Vec3) {
	d := target.Sub(c.Position)
	if d.Len() == 0 {
		return
	}
	d = d.Normalize()
	c.Pitch = float32(math.Asin(float64(d.Z())))
	c.Yaw = float32(math.Atan2(float64(d.X()), float64(-d.Y())))
}

// Ray returns the world space ray through the center of pixel (px, py).
func (c *Camera) Ray(px, py, w, h int) (origin, dir mgl32.Vec3) {
	aspect := float32(w) / float32(h)
	tanHalf := float32(math.Tan(float64(mgl32.DegToRad(c.FovY)) / 2))
	sx := ((float32(px)+0.5)/float32(w)*2 - 1) * tanHalf * aspect
	sy := (1 - (float32(py)+0.5)/float32(h)*2) * tanHalf
	dir = c.Forward().Add(c.Right().Mul(sx)).Add(c.Up().Mul(sy)).Normalize()
	return c.Position, dir
}
