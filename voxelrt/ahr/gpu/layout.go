package gpu

import (
	"encoding/binary"
	"math"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/go-gl/mathgl/mgl32"
)

// Byte layouts shared with the WGSL in package shaders. Every struct is made
// of 16 byte rows so uniform and storage alignment rules agree.
const (
	WorkgroupSize = 64

	GridUniformSize      = 32
	TraceUniformSize     = 192
	UpsampleUniformSize  = 112
	CompositeUniformSize = 32

	TriangleStride = 48
	LightStride    = 176
	GBufferStride  = 32 // normal.xyz + depth, albedo.rgb + pad
	TexelStride    = 16 // one vec4<f32>

	// MaxTaps bounds the one-sided blur kernel held in the upsample uniform.
	MaxTaps = 16
	// maxGroupsX is the per-dimension workgroup limit; larger 1D dispatches fold into y.
	maxGroupsX = 65535
)

type packer struct {
	buf []byte
}

func newPacker(size int) *packer {
	return &packer{buf: make([]byte, 0, size)}
}

func (p *packer) u32(vs ...uint32) {
	for _, v := range vs {
		p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
	}
}

func (p *packer) i32(vs ...int32) {
	for _, v := range vs {
		p.u32(uint32(v))
	}
}

func (p *packer) f32(vs ...float32) {
	for _, v := range vs {
		p.u32(math.Float32bits(v))
	}
}

func (p *packer) vec4(v mgl32.Vec4) { p.f32(v[:]...) }

// mat4 writes column major, which is what both mgl32 and WGSL use.
func (p *packer) mat4(m mgl32.Mat4) { p.f32(m[:]...) }

func (p *packer) bytes() []byte { return p.buf }

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Dispatch1D folds n invocations into a 2D workgroup grid.
// Shaders rebuild the index as gid.x + gid.y * num_workgroups.x * WorkgroupSize.
func Dispatch1D(n int) (x, y uint32) {
	groups := (n + WorkgroupSize - 1) / WorkgroupSize
	if groups <= maxGroupsX {
		return uint32(max(1, groups)), 1
	}
	return maxGroupsX, uint32((groups + maxGroupsX - 1) / maxGroupsX)
}

// Dispatch2D covers a width x height image with 8x8 workgroups.
func Dispatch2D(width, height int) (x, y uint32) {
	return uint32((width + 7) / 8), uint32((height + 7) / 8)
}

// PackGrid is struct Grid { origin_voxel: vec4<f32>, slice_count: vec4<u32> }.
func PackGrid(g core.GridSettings, count int) []byte {
	p := newPacker(GridUniformSize)
	p.vec4(g.Origin().Vec4(g.VoxelSize))
	p.u32(uint32(g.SliceSize[0]), uint32(g.SliceSize[1]), uint32(g.SliceSize[2]), uint32(count))
	return p.bytes()
}

// PackTriangles writes three vec4 per triangle; the emissive palette index
// rides in the w of the first vertex as raw bits.
func PackTriangles(tris []core.VoxelTriangle) []byte {
	p := newPacker(len(tris) * TriangleStride)
	for i := range tris {
		t := &tris[i]
		p.f32(t.V[0].X(), t.V[0].Y(), t.V[0].Z())
		p.u32(uint32(t.Emissive))
		p.vec4(t.V[1].Vec4(0))
		p.vec4(t.V[2].Vec4(0))
	}
	return p.bytes()
}

// PackTrace is the trace pass uniform:
//
//	origin_voxel  vec4<f32>   grid origin, voxel size
//	slice_lights  vec4<u32>   slice size, light count
//	sizes         vec4<u32>   view w/h, target w/h
//	inv_view_proj mat4x4<f32>
//	camera_pos    vec4<f32>
//	lost          vec4<f32>
//	rays          vec4<u32>   diffuse rays, glossy rays, diffuse samples, glossy samples
//	weights       vec4<f32>   initial disp, sample disp, diffuse weight, glossy weight
//	misc          vec4<f32>   glossy spread, reflections, 0, 0
func PackTrace(p device.TraceParams) []byte {
	g := p.Grid
	v := p.View
	s := p.Settings
	step := s.SampleDisp
	if step <= 0 {
		step = 1
	}
	w := newPacker(TraceUniformSize)
	w.vec4(g.Origin().Vec4(g.VoxelSize))
	w.u32(uint32(g.SliceSize[0]), uint32(g.SliceSize[1]), uint32(g.SliceSize[2]), uint32(len(p.Lights)))
	w.u32(uint32(v.Width), uint32(v.Height), uint32(p.Target.Width()), uint32(p.Target.Height()))
	w.mat4(v.InvViewProj)
	w.vec4(v.CameraPos.Vec4(0))
	w.vec4(s.LostRayColor)
	w.u32(uint32(max(0, s.DiffuseRays)), uint32(max(0, s.GlossyRays)),
		uint32(max(0, s.DiffuseSamples)), uint32(max(0, s.GlossySamples)))
	w.f32(s.InitialDisp, step, s.DiffuseWeight, s.GlossyWeight)
	w.f32(s.GlossySpread, float32(boolU32(s.TraceReflections)), 0, 0)
	return w.bytes()
}

// PackGBuffer flattens the view into two vec4 per pixel.
func PackGBuffer(v *core.View) []byte {
	p := newPacker(v.Width * v.Height * GBufferStride)
	for i := range v.Depth {
		p.vec4(v.Normal[i].Vec4(v.Depth[i]))
		p.vec4(v.Albedo[i].Vec4(0))
	}
	return p.bytes()
}

// PackLights returns the light records and the concatenated shadow texels
// (albedo.rgb, depth). Both always hold at least one element since empty
// storage bindings are invalid.
//
//	view_proj     mat4x4<f32>
//	inv_view_proj mat4x4<f32>
//	viewport      vec4<f32>   scale.xy, offset.xy
//	color         vec4<f32>
//	shadow        vec4<u32>   width, height, first texel, valid
func PackLights(lights []core.Light) (records, texels []byte) {
	rp := newPacker(max(1, len(lights)) * LightStride)
	n := 0
	for i := range lights {
		n += len(lights[i].Shadow.Depth)
	}
	tp := newPacker(max(1, n) * TexelStride)
	first := 0
	for i := range lights {
		l := &lights[i]
		scale := l.ViewportScale
		if scale == (mgl32.Vec2{}) {
			scale = mgl32.Vec2{1, 1}
		}
		rp.mat4(l.ViewProj)
		rp.mat4(l.ViewProj.Inv())
		rp.f32(scale.X(), scale.Y(), l.ViewportOffset.X(), l.ViewportOffset.Y())
		rp.vec4(l.Color.Vec4(0))
		sm := &l.Shadow
		rp.u32(uint32(sm.Width), uint32(sm.Height), uint32(first), boolU32(sm.Valid()))
		for j := range sm.Depth {
			var a mgl32.Vec3
			if j < len(sm.Albedo) {
				a = sm.Albedo[j]
			}
			tp.vec4(a.Vec4(sm.Depth[j]))
		}
		first += len(sm.Depth)
	}
	if len(lights) == 0 {
		rp.buf = append(rp.buf, make([]byte, LightStride)...)
	}
	if n == 0 {
		tp.buf = append(tp.buf, make([]byte, TexelStride)...)
	}
	return rp.bytes(), tp.bytes()
}

// PackPalette packs each entry as r | g<<8 | b<<16 | a<<24.
func PackPalette(table *[256][4]uint8) []byte {
	p := newPacker(256 * 4)
	for _, c := range table {
		p.u32(uint32(c[0]) | uint32(c[1])<<8 | uint32(c[2])<<16 | uint32(c[3])<<24)
	}
	return p.bytes()
}

// GaussianTaps mirrors the software blur: sigma = KernelSize, radius ceil(2 sigma),
// clamped to MaxTaps one-sided taps.
func GaussianTaps(sigma float32) []float32 {
	if sigma <= 0 {
		return []float32{1}
	}
	radius := min(MaxTaps-1, int(math.Ceil(float64(2*sigma))))
	taps := make([]float32, radius+1)
	for k := range taps {
		taps[k] = float32(math.Exp(-float64(k*k) / float64(2*sigma*sigma)))
	}
	return taps
}

// PackUpsample is shared by the upsample and blur passes:
//
//	sizes vec4<u32>   view w/h, source w/h
//	blur  vec4<f32>   z max, normal power, 0, 0
//	dir   vec4<i32>   dx, dy, tap count, 0
//	taps  array<vec4<f32>, 4>
func PackUpsample(viewW, viewH, srcW, srcH int, b device.BlurSettings, dx, dy int, taps []float32) []byte {
	p := newPacker(UpsampleUniformSize)
	p.u32(uint32(viewW), uint32(viewH), uint32(srcW), uint32(srcH))
	p.f32(b.ZMax, b.NormalPower, 0, 0)
	p.i32(int32(dx), int32(dy), int32(len(taps)), 0)
	var padded [MaxTaps]float32
	copy(padded[:], taps)
	p.f32(padded[:]...)
	return p.bytes()
}

// PackComposite is { sizes: vec4<u32>, intensity: vec4<f32> }.
func PackComposite(width, height int, intensity float32) []byte {
	p := newPacker(CompositeUniformSize)
	p.u32(uint32(width), uint32(height), 0, 0)
	p.f32(intensity, 0, 0, 0)
	return p.bytes()
}

// UnpackTexels decodes an image buffer read back from the GPU.
func UnpackTexels(data []byte, n int) []mgl32.Vec4 {
	out := make([]mgl32.Vec4, n)
	for i := range out {
		o := i * TexelStride
		if o+TexelStride > len(data) {
			break
		}
		for c := 0; c < 4; c++ {
			out[i][c] = math.Float32frombits(binary.LittleEndian.Uint32(data[o+c*4:]))
		}
	}
	return out
}

// PackTexels is the inverse of UnpackTexels.
func PackTexels(pix []mgl32.Vec4) []byte {
	p := newPacker(len(pix) * TexelStride)
	for _, c := range pix {
		p.vec4(c)
	}
	return p.bytes()
}
