// Package gpu runs the AHR passes as WebGPU compute dispatches.
package gpu

import (
	"errors"
	"fmt"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/gekko3d/ahr/voxelrt/ahr/kernel"
	"github.com/gekko3d/ahr/voxelrt/ahr/shaders"

	"github.com/cogentcore/webgpu/wgpu"
)

const (
	passVoxelize  = "voxelize"
	passCombine   = "combine"
	passTrace     = "trace"
	passUpsample  = "upsample"
	passBlur      = "blur"
	passComposite = "composite"
)

var passSources = map[string]string{
	passVoxelize:  shaders.VoxelizeWGSL,
	passCombine:   shaders.CombineWGSL,
	passTrace:     shaders.TraceWGSL,
	passUpsample:  shaders.UpsampleWGSL,
	passBlur:      shaders.BlurWGSL,
	passComposite: shaders.CompositeWGSL,
}

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc

type Buffer struct {
	label string
	size  uint64
	buf   *wgpu.Buffer
}

func (b *Buffer) Label() string     { return b.label }
func (b *Buffer) Size() uint64      { return b.size }
func (b *Buffer) Raw() *wgpu.Buffer { return b.buf }
func (b *Buffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

// Image is a width x height array of vec4<f32> in a storage buffer.
type Image struct {
	Buffer
	width, height int
}

func (i *Image) Width() int  { return i.width }
func (i *Image) Height() int { return i.height }

// Device implements device.Device on a wgpu device. Like the queue it wraps,
// it is driven from a single render thread.
type Device struct {
	Device *wgpu.Device
	Queue  *wgpu.Queue

	pipelines map[string]*wgpu.ComputePipeline

	paletteBuf *wgpu.Buffer
	kernelBuf  *wgpu.Buffer
	hasPalette bool
	hasKernel  bool

	// per dispatch inputs, grown on demand and reused across frames
	gridBuf      *wgpu.Buffer
	trisBuf      *wgpu.Buffer
	traceBuf     *wgpu.Buffer
	gbufferBuf   *wgpu.Buffer
	lightsBuf    *wgpu.Buffer
	shadowBuf    *wgpu.Buffer
	upsampleBufs [3]*wgpu.Buffer
	compBuf      *wgpu.Buffer
	scratch      *Image

	lastView *core.View
}

// New compiles every pass on dev.
func New(dev *wgpu.Device) (*Device, error) {
	if dev == nil {
		return nil, errors.New("gpu: nil wgpu device")
	}
	d := &Device{
		Device:    dev,
		Queue:     dev.GetQueue(),
		pipelines: make(map[string]*wgpu.ComputePipeline, len(passSources)),
	}
	for name, src := range passSources {
		module, err := dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:          "AHR " + name + " CS",
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src},
		})
		if err != nil {
			d.Release()
			return nil, fmt.Errorf("failed to compile %s shader: %w", name, err)
		}
		pipeline, err := dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label: "AHR " + name + " Pipeline",
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: "main",
			},
		})
		module.Release()
		if err != nil {
			d.Release()
			return nil, fmt.Errorf("failed to create %s pipeline: %w", name, err)
		}
		d.pipelines[name] = pipeline
	}
	return d, nil
}

// NewHeadless opens the default adapter without a surface.
func NewHeadless() (*Device, error) {
	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	return New(dev)
}

func (d *Device) Name() string { return "wgpu" }

// FeatureLevel is SM5: compute, storage buffers and atomics are core WebGPU.
func (d *Device) FeatureLevel() device.FeatureLevel { return device.FeatureLevelSM5 }

func (d *Device) createBuffer(label string, size uint64) (*wgpu.Buffer, error) {
	size = (max(size, 4) + 3) &^ 3
	buf, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: storageUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%d bytes): %v", device.ErrAllocation, label, size, err)
	}
	return buf, nil
}

func (d *Device) CreateBuffer(label string, size uint64) (device.Buffer, error) {
	buf, err := d.createBuffer(label, size)
	if err != nil {
		return nil, err
	}
	return &Buffer{label: label, size: size, buf: buf}, nil
}

func (d *Device) CreateImage(label string, width, height int) (device.Image, error) {
	return d.newImage(label, width, height)
}

func (d *Device) newImage(label string, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d for %s", width, height, label)
	}
	size := uint64(width*height) * TexelStride
	buf, err := d.createBuffer(label, size)
	if err != nil {
		return nil, err
	}
	return &Image{Buffer: Buffer{label: label, size: size, buf: buf}, width: width, height: height}, nil
}

func (d *Device) ClearBuffer(b device.Buffer) error {
	buf, err := asBuffer(b)
	if err != nil {
		return err
	}
	return d.submit("AHR clear "+buf.label, func(enc *wgpu.CommandEncoder) error {
		enc.ClearBuffer(buf.buf, 0, buf.buf.GetSize())
		return nil
	})
}

// ensureBuffer uploads data into *buf, recreating it when it is too small.
func (d *Device) ensureBuffer(label string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage) error {
	needed := (uint64(max(len(data), 4)) + 3) &^ 3
	if *buf == nil || (*buf).GetSize() < needed {
		if *buf != nil {
			(*buf).Release()
		}
		b, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label,
			Size:  needed,
			Usage: usage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			*buf = nil
			return fmt.Errorf("%w: %s: %v", device.ErrAllocation, label, err)
		}
		*buf = b
	}
	if len(data) == 0 {
		return nil
	}
	if err := d.Queue.WriteBuffer(*buf, 0, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", label, err)
	}
	return nil
}

func asBuffer(b device.Buffer) (*Buffer, error) {
	switch v := b.(type) {
	case *Buffer:
		if v.buf == nil {
			return nil, fmt.Errorf("buffer %s used after release", v.label)
		}
		return v, nil
	case *Image:
		if v.buf == nil {
			return nil, fmt.Errorf("image %s used after release", v.label)
		}
		return &v.Buffer, nil
	case nil:
		return nil, errors.New("nil buffer")
	default:
		return nil, fmt.Errorf("buffer %s does not belong to the wgpu device", b.Label())
	}
}

func asImage(i device.Image) (*Image, error) {
	img, ok := i.(*Image)
	if !ok || img == nil {
		return nil, fmt.Errorf("image does not belong to the wgpu device")
	}
	if img.buf == nil {
		return nil, fmt.Errorf("image %s used after release", img.label)
	}
	return img, nil
}

func pairBuffers(p device.VolumePair) (occ, emi *Buffer, err error) {
	if !p.Valid() {
		return nil, nil, errors.New("volume pair not allocated")
	}
	if occ, err = asBuffer(p.Occupancy); err != nil {
		return nil, nil, err
	}
	if emi, err = asBuffer(p.Emissive); err != nil {
		return nil, nil, err
	}
	return occ, emi, nil
}

func (d *Device) UploadPalette(table *[256][4]uint8) error {
	if err := d.ensureBuffer("AHR palette", &d.paletteBuf, PackPalette(table), wgpu.BufferUsageStorage); err != nil {
		return err
	}
	d.hasPalette = true
	return nil
}

func (d *Device) UploadKernel(k *kernel.Kernel) error {
	if err := d.ensureBuffer("AHR kernel", &d.kernelBuf, k.Bytes(), wgpu.BufferUsageStorage); err != nil {
		return err
	}
	d.hasKernel = true
	return nil
}

// uploadView packs the G-buffer. Trace always uploads; later passes of the
// same frame reuse it when they see the same view.
func (d *Device) uploadView(v *core.View, force bool) error {
	if !force && v == d.lastView && d.gbufferBuf != nil {
		return nil
	}
	if err := d.ensureBuffer("AHR gbuffer", &d.gbufferBuf, PackGBuffer(v), wgpu.BufferUsageStorage); err != nil {
		return err
	}
	d.lastView = v
	return nil
}

func (d *Device) Release() {
	for _, p := range d.pipelines {
		p.Release()
	}
	d.pipelines = nil
	bufs := []**wgpu.Buffer{
		&d.paletteBuf, &d.kernelBuf, &d.gridBuf, &d.trisBuf, &d.traceBuf,
		&d.gbufferBuf, &d.lightsBuf, &d.shadowBuf, &d.compBuf,
		&d.upsampleBufs[0], &d.upsampleBufs[1], &d.upsampleBufs[2],
	}
	for _, b := range bufs {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
	if d.scratch != nil {
		d.scratch.Release()
		d.scratch = nil
	}
	d.hasPalette, d.hasKernel = false, false
	d.lastView = nil
}
