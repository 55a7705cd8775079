package core

import "github.com/go-gl/mathgl/mgl32"

// View is the G-buffer of the active view.
type View struct {
	Width  int
	Height int

	Depth  []float32 // NDC depth remapped to [0,1], 1 = background
	Normal []mgl32.Vec3
	Albedo []mgl32.Vec3

	ViewProj    mgl32.Mat4
	InvViewProj mgl32.Mat4
	CameraPos   mgl32.Vec3
}

// NewView allocates an empty (all background) G-buffer.
func NewView(width, height int) *View {
	n := width * height
	v := &View{
		Width:       width,
		Height:      height,
		Depth:       make([]float32, n),
		Normal:      make([]mgl32.Vec3, n),
		Albedo:      make([]mgl32.Vec3, n),
		ViewProj:    mgl32.Ident4(),
		InvViewProj: mgl32.Ident4(),
	}
	for i := range v.Depth {
		v.Depth[i] = 1
	}
	return v
}

func (v *View) SetCamera(cam *Camera) {
	aspect := float32(1)
	if v.Height > 0 {
		aspect = float32(v.Width) / float32(v.Height)
	}
	v.ViewProj = cam.ProjMatrix(aspect).Mul4(cam.ViewMatrix())
	v.InvViewProj = v.ViewProj.Inv()
	v.CameraPos = cam.Position
}

func (v *View) Index(x, y int) int {
	return y*v.Width + x
}

func (v *View) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < v.Width && y < v.Height
}

func (v *View) IsBackground(x, y int) bool {
	return v.Depth[v.Index(x, y)] >= 1
}

// WorldPosition reconstructs the world position of pixel (x, y) from its depth.
func (v *View) WorldPosition(x, y int) mgl32.Vec3 {
	ndc := mgl32.Vec4{
		(float32(x)+0.5)/float32(v.Width)*2 - 1,
		1 - (float32(y)+0.5)/float32(v.Height)*2,
		v.Depth[v.Index(x, y)]*2 - 1,
		1,
	}
	w := v.InvViewProj.Mul4x1(ndc)
	if w.W() == 0 {
		return w.Vec3()
	}
	return w.Vec3().Mul(1 / w.W())
}

// DepthOf projects p with viewProj and returns its depth in [0,1].
func DepthOf(viewProj mgl32.Mat4, p mgl32.Vec3) float32 {
	clip := viewProj.Mul4x1(p.Vec4(1))
	if clip.W() == 0 {
		return 1
	}
	return clip.Z()/clip.W()*0.5 + 0.5
}
