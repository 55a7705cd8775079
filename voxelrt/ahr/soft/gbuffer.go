package soft

import (
	"github.com/gekko3d/ahr/voxelrt/ahr/bvh"
	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/go-gl/mathgl/mgl32"
)

type hit struct {
	t      float32
	normal mgl32.Vec3
	albedo mgl32.Vec3
}

type sceneBVH struct {
	prims []*core.Primitive
	tree  *bvh.Tree
}

func buildScene(prims []*core.Primitive) *sceneBVH {
	boxes := make([][2]mgl32.Vec3, 0, len(prims))
	kept := make([]*core.Primitive, 0, len(prims))
	for _, p := range prims {
		if len(p.Triangles) == 0 {
			continue
		}
		lo, hi := p.Bounds()
		boxes = append(boxes, [2]mgl32.Vec3{lo, hi})
		kept = append(kept, p)
	}
	return &sceneBVH{prims: kept, tree: (&bvh.Builder{}).Build(boxes)}
}

func (s *sceneBVH) intersect(origin, dir mgl32.Vec3, tMax float32) (hit, bool) {
	var best hit
	found := false
	s.tree.Traverse(origin, dir, tMax, func(i int, limit float32) float32 {
		p := s.prims[i]
		for _, tri := range p.Triangles {
			t, ok := intersectTriangle(origin, dir, &tri)
			if !ok || t >= limit {
				continue
			}
			limit = t
			found = true
			best.t = t
			best.normal = tri.Normal()
			if best.normal.Dot(dir) > 0 {
				best.normal = best.normal.Mul(-1)
			}
			best.albedo = albedoOf(p.MaterialOf(tri))
		}
		return limit
	})
	return best, found
}

func albedoOf(m *core.Material) mgl32.Vec3 {
	if m == nil {
		return mgl32.Vec3{1, 1, 1}
	}
	return mgl32.Vec3{float32(m.BaseColor[0]) / 255, float32(m.BaseColor[1]) / 255, float32(m.BaseColor[2]) / 255}
}

// intersectTriangle is Moller-Trumbore, two sided.
func intersectTriangle(origin, dir mgl32.Vec3, tri *core.Triangle) (float32, bool) {
	const eps = 1e-7
	e1 := tri.V[1].Sub(tri.V[0])
	e2 := tri.V[2].Sub(tri.V[0])
	pv := dir.Cross(e2)
	det := e1.Dot(pv)
	if det > -eps && det < eps {
		return 0, false
	}
	inv := 1 / det
	tv := origin.Sub(tri.V[0])
	u := tv.Dot(pv) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	qv := tv.Cross(e1)
	v := dir.Dot(qv) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(qv) * inv
	if t <= eps {
		return 0, false
	}
	return t, true
}

// RenderGBuffer ray casts prims from cam into a width x height G-buffer.
func (d *Device) RenderGBuffer(cam *core.Camera, prims []*core.Primitive, width, height int) *core.View {
	view := core.NewView(width, height)
	view.SetCamera(cam)
	scene := buildScene(prims)

	_ = d.Rows(height, func(y int) {
		for x := 0; x < width; x++ {
			o, dir := cam.Ray(x, y, width, height)
			h, ok := scene.intersect(o, dir, cam.Far)
			if !ok {
				continue
			}
			i := view.Index(x, y)
			view.Depth[i] = min(core.DepthOf(view.ViewProj, o.Add(dir.Mul(h.t))), 1-1e-7)
			view.Normal[i] = h.normal
			view.Albedo[i] = h.albedo
		}
	})
	return view
}

// RenderShadowMap renders a reflective shadow map for a light placed at cam.
func (d *Device) RenderShadowMap(cam *core.Camera, color mgl32.Vec3, prims []*core.Primitive, size int) core.Light {
	v := d.RenderGBuffer(cam, prims, size, size)
	return core.Light{
		ViewProj:      v.ViewProj,
		ViewportScale: mgl32.Vec2{1, 1},
		Color:         color,
		Shadow: core.ShadowMap{
			Width:  size,
			Height: size,
			Depth:  v.Depth,
			Albedo: v.Albedo,
			Normal: v.Normal,
		},
	}
}
