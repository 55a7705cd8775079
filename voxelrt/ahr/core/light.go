package core

import "github.com/go-gl/mathgl/mgl32"

// MaxLights is the number of lights the tracer reads per frame.
const MaxLights = 5

// ShadowMap is a reflective shadow map rendered from a light: depth plus the
// albedo and normal of the first surface the light sees per texel.
type ShadowMap struct {
	Width  int
	Height int
	Depth  []float32 // [0,1], 1 = nothing hit
	Albedo []mgl32.Vec3
	Normal []mgl32.Vec3
}

func (s *ShadowMap) Valid() bool {
	n := s.Width * s.Height
	return n > 0 && len(s.Depth) >= n && len(s.Albedo) >= n && len(s.Normal) >= n
}

type Light struct {
	ViewProj       mgl32.Mat4
	ViewportScale  mgl32.Vec2
	ViewportOffset mgl32.Vec2
	Color          mgl32.Vec3
	Shadow         ShadowMap
}

// ShadowUV projects a world position into the light's shadow map and also
// returns its NDC position. ok is false outside the light's frustum.
func (l *Light) ShadowUV(p mgl32.Vec3) (uv mgl32.Vec2, ndc mgl32.Vec3, ok bool) {
	clip := l.ViewProj.Mul4x1(p.Vec4(1))
	if clip.W() <= 0 {
		return mgl32.Vec2{}, mgl32.Vec3{}, false
	}
	ndc = clip.Vec3().Mul(1 / clip.W())
	if ndc.X() < -1 || ndc.X() > 1 || ndc.Y() < -1 || ndc.Y() > 1 || ndc.Z() < -1 || ndc.Z() > 1 {
		return mgl32.Vec2{}, mgl32.Vec3{}, false
	}
	scale := l.ViewportScale
	if scale == (mgl32.Vec2{}) {
		scale = mgl32.Vec2{1, 1}
	}
	uv = mgl32.Vec2{ndc.X()*0.5 + 0.5, 0.5 - ndc.Y()*0.5}
	uv = mgl32.Vec2{uv.X()*scale.X() + l.ViewportOffset.X(), uv.Y()*scale.Y() + l.ViewportOffset.Y()}
	return uv, ndc, true
}

// LightList is cleared and refilled every frame by the light gathering pass.
type LightList struct {
	lights []Light
}

func (l *LightList) Reset() {
	l.lights = l.lights[:0]
}

// Append adds a light. It returns false and drops the light once MaxLights is reached.
func (l *LightList) Append(light Light) bool {
	if len(l.lights) >= MaxLights {
		return false
	}
	l.lights = append(l.lights, light)
	return true
}

func (l *LightList) Lights() []Light {
	return l.lights
}

func (l *LightList) Len() int {
	return len(l.lights)
}
