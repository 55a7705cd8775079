package soft

import (
	"fmt"
	"math"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/gekko3d/ahr/voxelrt/ahr/kernel"
	"github.com/gekko3d/ahr/voxelrt/ahr/volume"
	"github.com/go-gl/mathgl/mgl32"
)

type marcher struct {
	grid    core.GridSettings
	occ     []uint32
	emi     []uint32
	palette *[256][4]uint8
	lights  []core.Light
	invVP   []mgl32.Mat4
	lost    mgl32.Vec3
	initial float32
	step    float32
}

// march walks from p (world space) along dir in voxel units. It returns the
// radiance carried back and whether an occupied cell was hit.
func (m *marcher) march(p, dir mgl32.Vec3, samples int) (mgl32.Vec3, bool) {
	origin := m.grid.WorldToVoxel(p)
	t := m.initial
	for s := 0; s < samples; s++ {
		q := origin.Add(dir.Mul(t))
		x := int(math.Floor(float64(q.X())))
		y := int(math.Floor(float64(q.Y())))
		z := int(math.Floor(float64(q.Z())))
		if !m.grid.Contains(x, y, z) {
			return m.lost, false
		}
		cell := volume.CellIndex(x, y, z, m.grid.SliceSize)
		if volume.Bit(m.occ, cell) {
			return m.shade(x, y, z, cell), true
		}
		t += m.step
	}
	// Running out of samples counts as a lost ray.
	return m.lost, false
}

func (m *marcher) shade(x, y, z, cell int) mgl32.Vec3 {
	var c mgl32.Vec3
	if idx := volume.Byte(m.emi, cell); idx != 0 {
		e := m.palette[idx]
		c = mgl32.Vec3{float32(e[0]) / 255, float32(e[1]) / 255, float32(e[2]) / 255}
	}
	if len(m.lights) == 0 {
		return c
	}
	hp := m.grid.VoxelToWorld(x, y, z)
	// a cell center sits up to half a diagonal away from the surface it holds
	tol := m.grid.VoxelSize * 1.5
	for i := range m.lights {
		c = c.Add(bounce(&m.lights[i], m.invVP[i], hp, tol))
	}
	return c
}

// bounce is the light reflected at hp when the light's shadow map sees a
// surface within tol of it.
func bounce(l *core.Light, inv mgl32.Mat4, hp mgl32.Vec3, tol float32) mgl32.Vec3 {
	if !l.Shadow.Valid() {
		return mgl32.Vec3{}
	}
	uv, ndc, ok := l.ShadowUV(hp)
	if !ok {
		return mgl32.Vec3{}
	}
	sm := &l.Shadow
	tx := min(sm.Width-1, max(0, int(uv.X()*float32(sm.Width))))
	ty := min(sm.Height-1, max(0, int(uv.Y()*float32(sm.Height))))
	i := ty*sm.Width + tx
	if sm.Depth[i] >= 1 {
		return mgl32.Vec3{}
	}
	seen := inv.Mul4x1(mgl32.Vec4{ndc.X(), ndc.Y(), sm.Depth[i]*2 - 1, 1})
	if seen.W() == 0 || seen.Vec3().Mul(1/seen.W()).Sub(hp).Len() > tol {
		return mgl32.Vec3{}
	}
	a := sm.Albedo[i]
	return mgl32.Vec3{a.X() * l.Color.X(), a.Y() * l.Color.Y(), a.Z() * l.Color.Z()}
}

func (d *Device) Trace(p device.TraceParams) error {
	target, err := asImage(p.Target)
	if err != nil {
		return fmt.Errorf("failed to trace: %w", err)
	}
	occ, emi, err := pairWords(p.Grid, p.Volumes)
	if err != nil {
		return fmt.Errorf("failed to trace: %w", err)
	}
	if p.View == nil {
		return fmt.Errorf("failed to trace: no view")
	}
	if !d.hasKern {
		return fmt.Errorf("failed to trace: kernel not uploaded")
	}
	d.stats.Traces++

	s := p.Settings
	m := &marcher{
		grid:    p.Grid,
		occ:     occ,
		emi:     emi,
		palette: &d.palette,
		lights:  p.Lights,
		lost:    s.LostRayColor.Vec3(),
		initial: s.InitialDisp,
		step:    s.SampleDisp,
	}
	m.invVP = make([]mgl32.Mat4, len(p.Lights))
	for i := range p.Lights {
		m.invVP[i] = p.Lights[i].ViewProj.Inv()
	}
	if m.step <= 0 {
		m.step = 1
	}
	view := p.View
	k := &d.kernel

	return d.Rows(target.Height(), func(y int) {
		for x := 0; x < target.Width(); x++ {
			fx := min(view.Width-1, 2*x)
			fy := min(view.Height-1, 2*y)
			target.Set(x, y, tracePixel(m, k, view, s, x, y, fx, fy))
		}
	})
}

func tracePixel(m *marcher, k *kernel.Kernel, view *core.View, s device.TraceSettings, x, y, fx, fy int) mgl32.Vec4 {
	if view.IsBackground(fx, fy) {
		return mgl32.Vec4{}
	}
	idx := view.Index(fx, fy)
	p := view.WorldPosition(fx, fy)
	n := view.Normal[idx]
	if n.Len() == 0 {
		n = view.CameraPos.Sub(p)
	}
	n = n.Normalize()
	set := kernel.SetForPixel(x, y)

	var diffuse mgl32.Vec3
	hits, rays := 0, 0
	nd := min(s.DiffuseRays, kernel.DirectionsPer)
	for i := 0; i < nd; i++ {
		c, hit := m.march(p, kernel.ToWorld(k.Direction(set, i), n), s.DiffuseSamples)
		diffuse = diffuse.Add(c)
		rays++
		if hit {
			hits++
		}
	}
	if nd > 0 {
		diffuse = diffuse.Mul(1 / float32(nd))
	}

	var glossy mgl32.Vec3
	ng := 0
	if s.TraceReflections {
		ng = min(s.GlossyRays, kernel.DirectionsPer)
		v := p.Sub(view.CameraPos).Normalize()
		r := v.Sub(n.Mul(2 * v.Dot(n))).Normalize()
		for i := 0; i < ng; i++ {
			dir := r.Add(kernel.ToWorld(k.Direction(set, i), r).Mul(s.GlossySpread)).Normalize()
			c, hit := m.march(p, dir, s.GlossySamples)
			glossy = glossy.Add(c)
			rays++
			if hit {
				hits++
			}
		}
		if ng > 0 {
			glossy = glossy.Mul(1 / float32(ng))
		}
	}

	wd := max(0, s.DiffuseWeight)
	wg := float32(0)
	if ng > 0 {
		wg = max(0, s.GlossyWeight)
	}
	if nd == 0 {
		wd = 0
	}
	var rgb mgl32.Vec3
	switch {
	case wd+wg > 0:
		rgb = diffuse.Mul(wd).Add(glossy.Mul(wg)).Mul(1 / (wd + wg))
	case nd > 0:
		rgb = diffuse
	default:
		rgb = glossy
	}
	alpha := float32(0)
	if rays > 0 {
		alpha = float32(hits) / float32(rays)
	}
	return rgb.Vec4(alpha)
}
