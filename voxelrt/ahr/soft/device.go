// Package soft is a CPU implementation of device.Device. It is the reference
// for every dispatch and backs the tests and the headless renderer.
package soft

import (
	"fmt"
	"runtime"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/gekko3d/ahr/voxelrt/ahr/kernel"
	"github.com/gekko3d/ahr/voxelrt/ahr/volume"
	"golang.org/x/sync/errgroup"
)

// Allocation records one CreateBuffer or CreateImage call.
type Allocation struct {
	Label string
	Size  uint64
}

type Stats struct {
	BuffersCreated  int
	BuffersReleased int
	ImagesCreated   int
	ImagesReleased  int
	LiveBytes       uint64
	Allocations     []Allocation

	Clears         int
	Voxelizes      int
	Combines       int
	Traces         int
	Upsamples      int
	Composites     int
	PaletteUploads int
	KernelUploads  int

	TrianglesRasterized int
}

type Buffer struct {
	label    string
	words    []uint32
	dev      *Device
	released bool
}

func (b *Buffer) Label() string   { return b.label }
func (b *Buffer) Size() uint64    { return uint64(len(b.words)) * 4 }
func (b *Buffer) Words() []uint32 { return b.words }

func (b *Buffer) Release() {
	if b.released {
		return
	}
	b.released = true
	if b.dev != nil {
		b.dev.stats.BuffersReleased++
		b.dev.stats.LiveBytes -= b.Size()
	}
	b.words = nil
}

// Device is driven from a single render thread, like a GPU queue.
// Work inside one dispatch is spread over worker goroutines.
type Device struct {
	workers    int
	level      device.FeatureLevel
	allocLimit uint64

	palette [256][4]uint8
	kernel  kernel.Kernel
	hasKern bool

	stats Stats
}

type Option func(*Device)

// minChunk is the fewest triangles handed to one rasterization worker.
const minChunk = 64

// WithWorkers sets how many goroutines rasterize triangles. The result does not
// depend on n: overlapping emissive triangles resolve to the earliest one.
func WithWorkers(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithFeatureLevel makes the device report a different feature level.
func WithFeatureLevel(l device.FeatureLevel) Option {
	return func(d *Device) { d.level = l }
}

// WithAllocLimit fails allocations once live bytes would exceed limit.
func WithAllocLimit(limit uint64) Option {
	return func(d *Device) { d.allocLimit = limit }
}

func New(opts ...Option) *Device {
	d := &Device{
		workers: runtime.GOMAXPROCS(0),
		level:   device.FeatureLevelSM5,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Name() string                      { return "software" }
func (d *Device) FeatureLevel() device.FeatureLevel { return d.level }

// Stats returns a copy of the counters.
func (d *Device) Stats() Stats {
	s := d.stats
	s.Allocations = append([]Allocation(nil), d.stats.Allocations...)
	return s
}

func (d *Device) ResetStats() {
	live := d.stats.LiveBytes
	d.stats = Stats{LiveBytes: live}
}

func (d *Device) reserve(label string, size uint64) error {
	if d.allocLimit > 0 && d.stats.LiveBytes+size > d.allocLimit {
		return fmt.Errorf("%w: %s needs %d bytes, %d of %d in use",
			device.ErrAllocation, label, size, d.stats.LiveBytes, d.allocLimit)
	}
	d.stats.LiveBytes += size
	d.stats.Allocations = append(d.stats.Allocations, Allocation{Label: label, Size: size})
	return nil
}

func (d *Device) CreateBuffer(label string, size uint64) (device.Buffer, error) {
	words := (size + 3) / 4
	if err := d.reserve(label, words*4); err != nil {
		return nil, err
	}
	d.stats.BuffersCreated++
	return &Buffer{label: label, words: make([]uint32, words), dev: d}, nil
}

func (d *Device) CreateImage(label string, width, height int) (device.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d for %s", width, height, label)
	}
	if err := d.reserve(label, uint64(width*height*16)); err != nil {
		return nil, err
	}
	d.stats.ImagesCreated++
	img := NewImage(label, width, height)
	img.dev = d
	return img, nil
}

func (d *Device) ClearBuffer(b device.Buffer) error {
	buf, err := asBuffer(b)
	if err != nil {
		return err
	}
	clear(buf.words)
	d.stats.Clears++
	return nil
}

func asBuffer(b device.Buffer) (*Buffer, error) {
	buf, ok := b.(*Buffer)
	if !ok || buf == nil {
		return nil, fmt.Errorf("%w: buffer %T does not belong to the software device", device.ErrUnsupported, b)
	}
	if buf.released {
		return nil, fmt.Errorf("buffer %q used after release", buf.label)
	}
	return buf, nil
}

func asImage(i device.Image) (*Image, error) {
	img, ok := i.(*Image)
	if !ok || img == nil {
		return nil, fmt.Errorf("%w: image %T does not belong to the software device", device.ErrUnsupported, i)
	}
	if img.released {
		return nil, fmt.Errorf("image %q used after release", img.label)
	}
	return img, nil
}

func pairWords(grid core.GridSettings, p device.VolumePair) ([]uint32, []uint32, error) {
	occ, err := asBuffer(p.Occupancy)
	if err != nil {
		return nil, nil, err
	}
	emi, err := asBuffer(p.Emissive)
	if err != nil {
		return nil, nil, err
	}
	if len(occ.words) < volume.OccupancyWords(grid.SliceSize) || len(emi.words) < volume.EmissiveWords(grid.SliceSize) {
		return nil, nil, fmt.Errorf("volume pair %q/%q too small for grid %v", occ.label, emi.label, grid.SliceSize)
	}
	return occ.words, emi.words, nil
}

func (d *Device) Voxelize(grid core.GridSettings, tris []core.VoxelTriangle, dst device.VolumePair) error {
	occ, emi, err := pairWords(grid, dst)
	if err != nil {
		return fmt.Errorf("failed to voxelize: %w", err)
	}
	d.stats.Voxelizes++
	d.stats.TrianglesRasterized += len(tris)
	if len(tris) == 0 {
		return nil
	}

	if d.workers == 1 || len(tris) <= minChunk {
		volume.Rasterize(grid, tris, occ, emi)
		return nil
	}

	// Occupancy is filled concurrently. Emissive writes are applied afterwards
	// in chunk order, so the earliest triangle keeps an overlapped cell however
	// the chunks were scheduled.
	chunk := max(minChunk, (len(tris)+d.workers-1)/d.workers)
	parts := make([][]volume.Emission, (len(tris)+chunk-1)/chunk)
	g := new(errgroup.Group)
	g.SetLimit(d.workers)
	for i := range parts {
		part := tris[i*chunk : min((i+1)*chunk, len(tris))]
		g.Go(func() error {
			parts[i] = volume.RasterizeOccupancy(grid, part, occ)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, es := range parts {
		volume.ApplyEmissions(emi, es)
	}
	return nil
}

func (d *Device) Combine(grid core.GridSettings, static, dynamic device.VolumePair) error {
	sOcc, sEmi, err := pairWords(grid, static)
	if err != nil {
		return fmt.Errorf("failed to combine: %w", err)
	}
	dOcc, dEmi, err := pairWords(grid, dynamic)
	if err != nil {
		return fmt.Errorf("failed to combine: %w", err)
	}
	volume.Combine(sOcc, sEmi, dOcc, dEmi)
	d.stats.Combines++
	return nil
}

func (d *Device) UploadPalette(table *[256][4]uint8) error {
	d.palette = *table
	d.stats.PaletteUploads++
	return nil
}

func (d *Device) UploadKernel(k *kernel.Kernel) error {
	d.kernel = *k
	d.hasKern = true
	d.stats.KernelUploads++
	return nil
}

// PaletteTable is the last uploaded palette.
func (d *Device) PaletteTable() [256][4]uint8 {
	return d.palette
}

// Words exposes a buffer's contents for inspection.
func (d *Device) Words(b device.Buffer) []uint32 {
	buf, err := asBuffer(b)
	if err != nil {
		return nil
	}
	return buf.words
}

func (d *Device) Release() {
	d.hasKern = false
}

// Rows runs fn for every row in [0, height) on the worker pool.
func (d *Device) Rows(height int, fn func(y int)) error {
	g := new(errgroup.Group)
	g.SetLimit(d.workers)
	for y := 0; y < height; y++ {
		g.Go(func() error {
			fn(y)
			return nil
		})
	}
	return g.Wait()
}
