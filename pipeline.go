package ahr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/gekko3d/ahr/voxelrt/ahr/grid"
	"github.com/gekko3d/ahr/voxelrt/ahr/kernel"
	"github.com/gekko3d/ahr/voxelrt/ahr/volume"
	"github.com/gekko3d/ahr/voxelrt/ahr/voxelize"
)

type Option func(*Pipeline)

func WithLogger(l Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

func WithProfiler(prof *Profiler) Option {
	return func(p *Pipeline) {
		if prof != nil {
			p.prof = prof
		}
	}
}

// Pipeline renders approximate hybrid raytraced GI for one view per call.
// RenderFrame must be called from a single render thread; configuration
// updates and the query methods may come from anywhere.
type Pipeline struct {
	cfgMu sync.RWMutex
	cfg   Config

	dev  device.Device
	log  Logger
	prof *Profiler

	resolver *grid.Resolver
	store    *volume.Store
	vox      *voxelize.Voxelizer
	lights   core.LightList

	kernelUploaded bool
	traceTarget    device.Image
	upsampled      device.Image
	viewW, viewH   int

	frame uint64
}

func NewPipeline(cfg Config, dev device.Device, opts ...Option) (*Pipeline, error) {
	if dev == nil {
		return nil, errors.New("ahr: nil device")
	}
	cfg.Normalize()
	p := &Pipeline{
		cfg:  cfg,
		dev:  dev,
		log:  NewNopLogger(),
		prof: NewProfiler(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.resolver = grid.NewResolver(cfg.MinVoxelSize, cfg.MaxCells())
	p.store = volume.NewStore(dev)
	p.vox = voxelize.New(dev, p.store, p.log)
	p.log.Infof("AHR pipeline on %s device (%s)", dev.Name(), dev.FeatureLevel())
	return p, nil
}

func (p *Pipeline) Config() Config {
	p.cfgMu.RLock()
	defer p.cfgMu.RUnlock()
	return p.cfg
}

// SetConfig takes effect on the next frame.
func (p *Pipeline) SetConfig(cfg Config) {
	cfg.Normalize()
	p.cfgMu.Lock()
	p.cfg = cfg
	p.cfgMu.Unlock()
}

func (p *Pipeline) Profiler() *Profiler { return p.prof }
func (p *Pipeline) Logger() Logger      { return p.log }

func (p *Pipeline) RequestStaticRebuild() {
	p.vox.RequestStaticRebuild()
}

func (p *Pipeline) StaticObjects() []string {
	return p.vox.StaticObjects()
}

func (p *Pipeline) PaletteIndex(m *core.Material) uint8 {
	return p.vox.PaletteIndex(m)
}

// TraceTarget is the half resolution trace output of the last frame.
func (p *Pipeline) TraceTarget() device.Image { return p.traceTarget }

// UpsampleTarget is the full resolution denoised output of the last frame.
func (p *Pipeline) UpsampleTarget() device.Image { return p.upsampled }

// Reallocations counts volume store reallocations since creation.
func (p *Pipeline) Reallocations() int { return p.store.Reallocations() }

// RenderFrame runs the whole pipeline or skips it before touching any state.
func (p *Pipeline) RenderFrame(f *Frame) (rep Report) {
	cfg := p.Config()
	rep.States = []State{StateIdle}

	if reason, err := p.check(cfg, f); reason != NotSkipped {
		rep.Skipped = reason
		rep.Err = err
		p.log.Debugf("AHR frame skipped: %s", reason)
		return rep
	}

	p.frame++
	rep.Frame = p.frame
	p.prof.Reset()
	p.prof.BeginScope("Frame")
	defer func() {
		p.prof.EndScope("Frame")
		rep.Timings = p.prof.Timings()
	}()

	p.gatherLights(f.Lights, &rep)

	// Grid + volumes
	p.prof.BeginScope("Grid")
	p.resolver.MinVoxelSize = cfg.MinVoxelSize
	p.resolver.MaxCells = cfg.MaxCells()
	bounds := f.Bounds
	if bounds == (core.SceneBounds{}) {
		bounds = core.BoundsOf(f.Primitives, cfg.VoxelSize)
	}
	g, needsRealloc := p.resolver.Resolve(bounds, cfg.VoxelSize)
	rep.Grid = g
	reallocated, err := p.store.EnsureCapacity(g)
	if err != nil {
		// make the next frame try again even if the grid stays the same
		p.resolver.Reset()
		p.prof.EndScope("Grid")
		return p.fail(&rep, SkipAllocation, err)
	}
	if needsRealloc && reallocated {
		p.log.Debugf("AHR volumes reallocated for grid %v (voxel %.3f)", g.SliceSize, g.VoxelSize)
	}
	rep.Reallocated = reallocated
	if err := p.ensureViewTargets(f.View.Width, f.View.Height); err != nil {
		p.prof.EndScope("Grid")
		return p.fail(&rep, SkipAllocation, err)
	}
	p.prof.EndScope("Grid")
	rep.enter(StateGridResolved)

	if !p.kernelUploaded {
		if err := p.dev.UploadKernel(&kernel.Default); err != nil {
			return p.fail(&rep, SkipDeviceError, fmt.Errorf("failed to upload kernel: %w", err))
		}
		p.kernelUploaded = true
	}

	// Voxelize
	p.prof.BeginScope("Voxelize")
	res, err := p.vox.Voxelize(g, reallocated, f.Primitives)
	p.prof.EndScope("Voxelize")
	rep.StaticRebuildTriggered = res.RebuildTriggered
	rep.StaticVoxelized = res.StaticVoxelized
	rep.StaticCleared = res.StaticCleared
	rep.PaletteChanged = res.PaletteChanged
	rep.PaletteEntries = res.PaletteEntries
	rep.PaletteDropped = res.PaletteDropped
	p.prof.SetCount("Static Objects", res.StaticObjects)
	p.prof.SetCount("Dynamic Objects", res.DynamicObjects)
	p.prof.SetCount("Dynamic Tris", res.DynamicTriangles)
	p.prof.SetCount("Palette", res.PaletteEntries)
	if err != nil {
		return p.fail(&rep, SkipDeviceError, err)
	}
	if res.StaticVoxelized || res.StaticCleared {
		rep.enter(StateStaticVoxelized)
	} else {
		rep.enter(StateStaticSkipped)
	}
	rep.enter(StateDynamicVoxelized)
	rep.enter(StateCombined)

	// Trace
	settings := cfg.Trace
	if f.Trace != nil {
		settings = *f.Trace
		settings.TraceReflections = cfg.Trace.TraceReflections
	}
	p.prof.BeginScope("Trace")
	err = p.dev.Trace(device.TraceParams{
		Grid:     g,
		Volumes:  p.store.Pair(volume.Dynamic),
		View:     f.View,
		Lights:   p.lights.Lights(),
		Settings: settings,
		Target:   p.traceTarget,
	})
	p.prof.EndScope("Trace")
	if err != nil {
		return p.fail(&rep, SkipDeviceError, err)
	}
	rep.enter(StateTraced)

	// Upsample + denoise
	p.prof.BeginScope("Upsample")
	err = p.dev.Upsample(device.UpsampleParams{
		Source: p.traceTarget,
		Target: p.upsampled,
		View:   f.View,
		Blur:   cfg.Blur,
	})
	p.prof.EndScope("Upsample")
	if err != nil {
		return p.fail(&rep, SkipDeviceError, err)
	}
	rep.enter(StateUpsampled)

	// Composite
	p.prof.BeginScope("Composite")
	err = p.dev.Composite(device.CompositeParams{
		Source:    p.upsampled,
		Target:    f.Target,
		Intensity: cfg.Intensity,
	})
	p.prof.EndScope("Composite")
	if err != nil {
		return p.fail(&rep, SkipDeviceError, err)
	}
	rep.enter(StateComposited)
	rep.enter(StateIdle)
	return rep
}

// check is the entry condition. Nothing is touched when it fails.
func (p *Pipeline) check(cfg Config, f *Frame) (SkipReason, error) {
	if !cfg.Enabled {
		return SkipDisabled, nil
	}
	if p.dev.FeatureLevel() < device.FeatureLevelSM5 {
		return SkipUnsupported, fmt.Errorf("%w: %s device at %s", ErrUnsupported, p.dev.Name(), p.dev.FeatureLevel())
	}
	if f == nil || f.View == nil || f.Target == nil {
		return SkipNoView, nil
	}
	if f.View.Width < cfg.MinViewDimension || f.View.Height < cfg.MinViewDimension {
		return SkipViewTooSmall, fmt.Errorf("%w: %dx%d < %d", ErrViewTooSmall, f.View.Width, f.View.Height, cfg.MinViewDimension)
	}
	return NotSkipped, nil
}

func (p *Pipeline) fail(rep *Report, reason SkipReason, err error) Report {
	rep.Skipped = reason
	rep.Err = err
	p.log.Errorf("AHR frame %d aborted: %v", rep.Frame, err)
	return *rep
}

func (p *Pipeline) gatherLights(lights []core.Light, rep *Report) {
	p.lights.Reset()
	for _, l := range lights {
		if !p.lights.Append(l) {
			rep.LightsDropped++
		}
	}
	if rep.LightsDropped > 0 {
		p.log.Warnf("AHR supports %d lights, %d dropped this frame", core.MaxLights, rep.LightsDropped)
	}
	p.prof.SetCount("Lights", p.lights.Len())
}

// ensureViewTargets recreates the half resolution trace target and the full
// resolution upsample target when the view size changes.
func (p *Pipeline) ensureViewTargets(w, h int) error {
	if p.traceTarget != nil && p.upsampled != nil && p.viewW == w && p.viewH == h {
		return nil
	}
	p.releaseViewTargets()

	trace, err := p.dev.CreateImage("AHR trace", (w+1)/2, (h+1)/2)
	if err != nil {
		return fmt.Errorf("failed to create trace target: %w", err)
	}
	up, err := p.dev.CreateImage("AHR upsampled", w, h)
	if err != nil {
		trace.Release()
		return fmt.Errorf("failed to create upsample target: %w", err)
	}
	p.traceTarget, p.upsampled = trace, up
	p.viewW, p.viewH = w, h
	return nil
}

func (p *Pipeline) releaseViewTargets() {
	if p.traceTarget != nil {
		p.traceTarget.Release()
		p.traceTarget = nil
	}
	if p.upsampled != nil {
		p.upsampled.Release()
		p.upsampled = nil
	}
	p.viewW, p.viewH = 0, 0
}

// Release frees every device resource the pipeline created. The pipeline can
// keep rendering afterwards; resources are recreated on the next frame.
func (p *Pipeline) Release() {
	p.releaseViewTargets()
	p.store.Release()
	p.vox.Reset()
	p.resolver.Reset()
	p.kernelUploaded = false
}
