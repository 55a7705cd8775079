package app

import (
	"fmt"

	"github.com/gekko3d/ahr"
	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/gekko3d/ahr/voxelrt/ahr/soft"
	"github.com/go-gl/mathgl/mgl32"
)

// TargetIO moves texels between the host and a device image. Both the
// software and the wgpu device implement it.
type TargetIO interface {
	ReadImage(device.Image) ([]mgl32.Vec4, error)
	WriteImage(device.Image, []mgl32.Vec4) error
}

// Renderer draws the demo scene with a simple direct lighting pass and hands
// the result to the GI pipeline, which adds indirect light on top.
type Renderer struct {
	Scene *Scene
	Pipe  *ahr.Pipeline

	// Raster renders the G-buffer and the light's shadow map on the CPU.
	Raster     *soft.Device
	ShadowSize int
	ShadowBias float32

	dev    device.Device
	io     TargetIO
	target device.Image
	view   *core.View
	color  []mgl32.Vec4
}

func NewRenderer(scene *Scene, pipe *ahr.Pipeline, dev device.Device, io TargetIO) *Renderer {
	return &Renderer{
		Scene:      scene,
		Pipe:       pipe,
		Raster:     soft.New(),
		ShadowSize: 256,
		ShadowBias: 0.002,
		dev:        dev,
		io:         io,
	}
}

// Frame advances the scene to time t and renders a width x height frame.
func (r *Renderer) Frame(t float64, width, height int) (ahr.Report, error) {
	r.Scene.Step(t)
	prims := r.Scene.Primitives()

	r.view = r.Raster.RenderGBuffer(r.Scene.Camera, prims, width, height)
	light := r.Raster.RenderShadowMap(r.Scene.LightCam, r.Scene.LightColor, prims, r.ShadowSize)

	if err := r.ensureTarget(width, height); err != nil {
		return ahr.Report{}, err
	}
	r.color = r.shadeDirect(r.view, &light, r.color)
	if err := r.io.WriteImage(r.target, r.color); err != nil {
		return ahr.Report{}, fmt.Errorf("upload scene color: %w", err)
	}

	rep := r.Pipe.RenderFrame(&ahr.Frame{
		Primitives: prims,
		View:       r.view,
		Bounds:     r.Scene.Bounds,
		Lights:     []core.Light{light},
		Target:     r.target,
	})
	return rep, nil
}

// Pixels reads back the lit frame.
func (r *Renderer) Pixels() ([]mgl32.Vec4, error) {
	if r.target == nil {
		return nil, fmt.Errorf("no frame rendered")
	}
	return r.io.ReadImage(r.target)
}

// Target is the image the last frame was composited into.
func (r *Renderer) Target() device.Image { return r.target }

func (r *Renderer) ensureTarget(w, h int) error {
	if r.target != nil && r.target.Width() == w && r.target.Height() == h {
		return nil
	}
	if r.target != nil {
		r.target.Release()
		r.target = nil
	}
	img, err := r.dev.CreateImage("scene color", w, h)
	if err != nil {
		return fmt.Errorf("create scene color: %w", err)
	}
	r.target = img
	return nil
}

// shadeDirect computes albedo * (ambient + light * n.l * visibility) for every
// covered pixel. Background pixels stay black.
func (r *Renderer) shadeDirect(v *core.View, light *core.Light, out []mgl32.Vec4) []mgl32.Vec4 {
	n := v.Width * v.Height
	if cap(out) < n {
		out = make([]mgl32.Vec4, n)
	}
	out = out[:n]
	lightPos := r.Scene.LightCam.Position
	_ = r.Raster.Rows(v.Height, func(y int) {
		for x := 0; x < v.Width; x++ {
			i := v.Index(x, y)
			if v.IsBackground(x, y) {
				out[i] = mgl32.Vec4{0, 0, 0, 1}
				continue
			}
			p := v.WorldPosition(x, y)
			c := r.Scene.Ambient
			toLight := lightPos.Sub(p)
			if toLight.Len() > 0 {
				ndl := v.Normal[i].Dot(toLight.Normalize())
				if ndl > 0 && visible(light, p, r.ShadowBias) {
					c = c.Add(light.Color.Mul(ndl))
				}
			}
			a := v.Albedo[i]
			out[i] = mgl32.Vec4{a.X() * c.X(), a.Y() * c.Y(), a.Z() * c.Z(), 1}
		}
	})
	return out
}

func visible(l *core.Light, p mgl32.Vec3, bias float32) bool {
	uv, _, ok := l.ShadowUV(p)
	if !ok || !l.Shadow.Valid() {
		return false
	}
	sx := min(int(uv.X()*float32(l.Shadow.Width)), l.Shadow.Width-1)
	sy := min(int(uv.Y()*float32(l.Shadow.Height)), l.Shadow.Height-1)
	if sx < 0 || sy < 0 {
		return false
	}
	return core.DepthOf(l.ViewProj, p) <= l.Shadow.Depth[sy*l.Shadow.Width+sx]+bias
}

func (r *Renderer) Release() {
	if r.target != nil {
		r.target.Release()
		r.target = nil
	}
}
