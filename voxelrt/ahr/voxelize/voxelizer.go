// Package voxelize fills the occupancy and emissive volumes each frame and
// decides when the cached static volumes must be rebuilt.
package voxelize

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/gekko3d/ahr/voxelrt/ahr/palette"
	"github.com/gekko3d/ahr/voxelrt/ahr/volume"
)

type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type Result struct {
	RebuildTriggered bool
	StaticVoxelized  bool
	StaticCleared    bool
	PaletteChanged   bool
	PaletteEntries   int
	PaletteDropped   int

	StaticObjects    int
	StaticTriangles  int
	DynamicObjects   int
	DynamicTriangles int
}

// Voxelizer owns the static object baseline and the emissive palette. mu guards
// every field below it; volume contents belong to the render thread.
type Voxelizer struct {
	dev   device.Device
	store *volume.Store
	log   Logger

	mu               sync.Mutex
	frame            uint64
	palette          *palette.Palette
	staticSet        []string
	staticSlots      []slot
	baseline         core.GridSettings
	hasBaseline      bool
	rebuildRequested bool
}

// slot is the palette index a static material was voxelized with. 0 means the
// material was dropped when the static volumes were written.
type slot struct {
	m   *core.Material
	idx uint8
}

func New(dev device.Device, store *volume.Store, log Logger) *Voxelizer {
	return &Voxelizer{
		dev:     dev,
		store:   store,
		log:     log,
		palette: palette.New(),
	}
}

// RequestStaticRebuild forces the next frame to re-voxelize the static set.
func (v *Voxelizer) RequestStaticRebuild() {
	v.mu.Lock()
	v.rebuildRequested = true
	v.mu.Unlock()
}

// StaticObjects returns the identities voxelized into the static volumes on the last rebuild.
func (v *Voxelizer) StaticObjects() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.staticSet)
}

// PaletteIndex is m's emissive index in the current frame, 0 if it has none.
func (v *Voxelizer) PaletteIndex(m *core.Material) uint8 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.palette.Index(m)
}

func (v *Voxelizer) Frame() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frame
}

// Reset drops the static baseline and the uploaded palette, for use after the
// device resources were released.
func (v *Voxelizer) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.staticSet = nil
	v.staticSlots = nil
	v.hasBaseline = false
	v.palette.Invalidate()
}

// Voxelize runs one frame. volumesReset must be true when the store recreated
// its buffers this frame, since that wipes the cached static data.
func (v *Voxelizer) Voxelize(grid core.GridSettings, volumesReset bool, prims []*core.Primitive) (Result, error) {
	var res Result

	var static, dynamic []*core.Primitive
	for _, p := range prims {
		if p == nil {
			continue
		}
		if p.NeedsEveryFrameVoxelization {
			dynamic = append(dynamic, p)
		} else {
			static = append(static, p)
		}
	}
	res.StaticObjects = len(static)
	res.DynamicObjects = len(dynamic)

	if err := v.voxelizeStatic(grid, volumesReset, static, dynamic, &res); err != nil {
		return res, err
	}

	dynPair := v.store.Pair(volume.Dynamic)
	if err := v.clearPair(dynPair); err != nil {
		return res, err
	}
	v.mu.Lock()
	tris := triangles(dynamic, v.palette)
	v.mu.Unlock()
	res.DynamicTriangles = len(tris)
	if len(tris) > 0 {
		if err := v.dev.Voxelize(grid, tris, dynPair); err != nil {
			return res, fmt.Errorf("failed to voxelize dynamic set: %w", err)
		}
	}

	if err := v.dev.Combine(grid, v.store.Pair(volume.Static), dynPair); err != nil {
		return res, fmt.Errorf("failed to combine volumes: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.palette.Changed() {
		if err := v.dev.UploadPalette((*[256][4]uint8)(v.palette.Table())); err != nil {
			return res, fmt.Errorf("failed to upload palette: %w", err)
		}
		v.palette.Commit()
		res.PaletteChanged = true
	}
	return res, nil
}

// voxelizeStatic covers partitioned bookkeeping, palette assignment and the
// conditional static rebuild, all under mu.
func (v *Voxelizer) voxelizeStatic(grid core.GridSettings, volumesReset bool, static, dynamic []*core.Primitive, res *Result) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	ids := identities(static)
	mats := emissiveMaterials(static)
	rebuild := volumesReset ||
		!v.hasBaseline || !v.baseline.Equal(grid) ||
		!slices.Equal(ids, v.staticSet) ||
		!sameMaterials(mats, v.staticSlots) ||
		v.rebuildRequested
	res.RebuildTriggered = rebuild

	v.frame++
	v.palette.Begin(v.frame)
	if rebuild {
		for _, m := range mats {
			v.palette.Assign(m)
		}
	} else {
		// The cached static voxels hold the indices handed out at the last
		// rebuild; those slots stay with their materials.
		for _, s := range v.staticSlots {
			v.palette.Reserve(s.m, s.idx)
		}
	}
	assignPalette(v.palette, dynamic)
	res.PaletteEntries = v.palette.Len()
	res.PaletteDropped = v.palette.Dropped()
	if res.PaletteDropped > 0 && v.log != nil {
		v.log.Warnf("emissive palette full: %d materials dropped from GI this frame", res.PaletteDropped)
	}

	if !rebuild {
		return nil
	}

	pair := v.store.Pair(volume.Static)
	switch {
	case len(static) > 0:
		if err := v.clearPair(pair); err != nil {
			return err
		}
		tris := triangles(static, v.palette)
		res.StaticTriangles = len(tris)
		if len(tris) > 0 {
			if err := v.dev.Voxelize(grid, tris, pair); err != nil {
				return fmt.Errorf("failed to voxelize static set: %w", err)
			}
		}
		res.StaticVoxelized = true
		if v.log != nil {
			v.log.Debugf("static volumes rebuilt: %d objects, %d triangles", len(static), len(tris))
		}
	case len(v.staticSet) > 0:
		// the last static objects went away; their voxels must not survive
		if err := v.clearPair(pair); err != nil {
			return err
		}
		res.StaticCleared = true
	}

	v.staticSet = ids
	v.staticSlots = v.staticSlots[:0]
	for _, m := range mats {
		v.staticSlots = append(v.staticSlots, slot{m: m, idx: v.palette.Index(m)})
	}
	v.baseline = grid
	v.hasBaseline = true
	v.rebuildRequested = false
	return nil
}

func (v *Voxelizer) clearPair(p device.VolumePair) error {
	if err := v.dev.ClearBuffer(p.Occupancy); err != nil {
		return fmt.Errorf("failed to clear %s: %w", p.Occupancy.Label(), err)
	}
	if err := v.dev.ClearBuffer(p.Emissive); err != nil {
		return fmt.Errorf("failed to clear %s: %w", p.Emissive.Label(), err)
	}
	return nil
}

// identities is the sorted, de-duplicated identity set of prims.
func identities(prims []*core.Primitive) []string {
	ids := make([]string, 0, len(prims))
	for _, p := range prims {
		ids = append(ids, p.Identity())
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func assignPalette(pal *palette.Palette, prims []*core.Primitive) {
	for _, p := range prims {
		for _, m := range p.Materials {
			if m.ShouldInjectEmissiveIntoDynamicGI() {
				pal.Assign(m)
			}
		}
	}
}

// emissiveMaterials lists the distinct emissive materials of prims in first-seen order.
func emissiveMaterials(prims []*core.Primitive) []*core.Material {
	var out []*core.Material
	seen := make(map[*core.Material]bool)
	for _, p := range prims {
		for _, m := range p.Materials {
			if m.ShouldInjectEmissiveIntoDynamicGI() && !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

// sameMaterials reports whether mats is the material set of slots, in any order.
func sameMaterials(mats []*core.Material, slots []slot) bool {
	if len(mats) != len(slots) {
		return false
	}
	in := make(map[*core.Material]bool, len(slots))
	for _, s := range slots {
		in[s.m] = true
	}
	for _, m := range mats {
		if !in[m] {
			return false
		}
	}
	return true
}

func triangles(prims []*core.Primitive, pal *palette.Palette) []core.VoxelTriangle {
	n := 0
	for _, p := range prims {
		n += len(p.Triangles)
	}
	out := make([]core.VoxelTriangle, 0, n)
	for _, p := range prims {
		for _, t := range p.Triangles {
			var idx uint8
			if m := p.MaterialOf(t); m.ShouldInjectEmissiveIntoDynamicGI() {
				idx = pal.Index(m)
			}
			out = append(out, core.VoxelTriangle{V: t.V, Emissive: idx})
		}
	}
	return out
}
