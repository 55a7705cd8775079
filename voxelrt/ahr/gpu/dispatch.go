package gpu

import (
	"errors"
	"fmt"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/gekko3d/ahr/voxelrt/ahr/volume"

	"github.com/cogentcore/webgpu/wgpu"
)

// submit records one command buffer and hands it to the queue.
func (d *Device) submit(label string, record func(enc *wgpu.CommandEncoder) error) error {
	enc, err := d.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("failed to create encoder for %s: %w", label, err)
	}
	defer enc.Release()
	if err := record(enc); err != nil {
		return err
	}
	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("failed to finish %s: %w", label, err)
	}
	defer cmd.Release()
	d.Queue.Submit(cmd)
	return nil
}

// dispatch binds entries to group 0 of the named pass and runs it.
func (d *Device) dispatch(name string, entries []wgpu.BindGroupEntry, x, y uint32) error {
	pipeline := d.pipelines[name]
	if pipeline == nil {
		return fmt.Errorf("%s pipeline not available", name)
	}
	bgl := pipeline.GetBindGroupLayout(0)
	if bgl == nil {
		return fmt.Errorf("failed to get %s bind group layout", name)
	}
	defer bgl.Release()
	bg, err := d.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "AHR " + name,
		Layout:  bgl,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", name, err)
	}
	defer bg.Release()

	return d.submit("AHR "+name, func(enc *wgpu.CommandEncoder) error {
		pass := enc.BeginComputePass(nil)
		pass.SetPipeline(pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.DispatchWorkgroups(x, y, 1)
		if err := pass.End(); err != nil {
			return fmt.Errorf("%s pass: %w", name, err)
		}
		return nil
	})
}

func entry(binding uint32, buf *wgpu.Buffer) wgpu.BindGroupEntry {
	return wgpu.BindGroupEntry{Binding: binding, Buffer: buf, Size: wgpu.WholeSize}
}

func checkVolumes(grid core.GridSettings, occ, emi *Buffer) error {
	if occ.size < volume.OccupancyBytes(grid.SliceSize) || emi.size < volume.EmissiveBytes(grid.SliceSize) {
		return fmt.Errorf("volumes too small for grid %v", grid.SliceSize)
	}
	return nil
}

func (d *Device) Voxelize(grid core.GridSettings, tris []core.VoxelTriangle, dst device.VolumePair) error {
	occ, emi, err := pairBuffers(dst)
	if err != nil {
		return fmt.Errorf("failed to voxelize: %w", err)
	}
	if err := checkVolumes(grid, occ, emi); err != nil {
		return fmt.Errorf("failed to voxelize: %w", err)
	}
	if len(tris) == 0 {
		return nil
	}
	if err := d.ensureBuffer("AHR voxelize grid", &d.gridBuf, PackGrid(grid, len(tris)), wgpu.BufferUsageUniform); err != nil {
		return err
	}
	if err := d.ensureBuffer("AHR triangles", &d.trisBuf, PackTriangles(tris), wgpu.BufferUsageStorage); err != nil {
		return err
	}
	x, y := Dispatch1D(len(tris))
	return d.dispatch(passVoxelize, []wgpu.BindGroupEntry{
		entry(0, d.gridBuf),
		entry(1, d.trisBuf),
		entry(2, occ.buf),
		entry(3, emi.buf),
	}, x, y)
}

func (d *Device) Combine(grid core.GridSettings, static, dynamic device.VolumePair) error {
	sOcc, sEmi, err := pairBuffers(static)
	if err != nil {
		return fmt.Errorf("failed to combine: %w", err)
	}
	dOcc, dEmi, err := pairBuffers(dynamic)
	if err != nil {
		return fmt.Errorf("failed to combine: %w", err)
	}
	if err := errors.Join(checkVolumes(grid, sOcc, sEmi), checkVolumes(grid, dOcc, dEmi)); err != nil {
		return fmt.Errorf("failed to combine: %w", err)
	}
	words := volume.EmissiveWords(grid.SliceSize)
	if err := d.ensureBuffer("AHR combine grid", &d.gridBuf, PackGrid(grid, words), wgpu.BufferUsageUniform); err != nil {
		return err
	}
	x, y := Dispatch1D(words)
	return d.dispatch(passCombine, []wgpu.BindGroupEntry{
		entry(0, d.gridBuf),
		entry(1, sOcc.buf),
		entry(2, sEmi.buf),
		entry(3, dOcc.buf),
		entry(4, dEmi.buf),
	}, x, y)
}

func (d *Device) Trace(p device.TraceParams) error {
	target, err := asImage(p.Target)
	if err != nil {
		return fmt.Errorf("failed to trace: %w", err)
	}
	occ, emi, err := pairBuffers(p.Volumes)
	if err != nil {
		return fmt.Errorf("failed to trace: %w", err)
	}
	if p.View == nil {
		return errors.New("failed to trace: no view")
	}
	if !d.hasKernel {
		return errors.New("failed to trace: kernel not uploaded")
	}
	if !d.hasPalette {
		// nothing emissive has been seen yet; an all black palette is correct
		if err := d.UploadPalette(&[256][4]uint8{}); err != nil {
			return err
		}
	}
	if err := d.uploadView(p.View, true); err != nil {
		return err
	}
	records, texels := PackLights(p.Lights)
	if err := d.ensureBuffer("AHR lights", &d.lightsBuf, records, wgpu.BufferUsageStorage); err != nil {
		return err
	}
	if err := d.ensureBuffer("AHR shadow texels", &d.shadowBuf, texels, wgpu.BufferUsageStorage); err != nil {
		return err
	}
	if err := d.ensureBuffer("AHR trace params", &d.traceBuf, PackTrace(p), wgpu.BufferUsageUniform); err != nil {
		return err
	}
	x, y := Dispatch2D(target.width, target.height)
	return d.dispatch(passTrace, []wgpu.BindGroupEntry{
		entry(0, d.traceBuf),
		entry(1, occ.buf),
		entry(2, emi.buf),
		entry(3, d.paletteBuf),
		entry(4, d.kernelBuf),
		entry(5, d.gbufferBuf),
		entry(6, d.lightsBuf),
		entry(7, d.shadowBuf),
		entry(8, target.buf),
	}, x, y)
}

// Upsample runs the upsample pass and then Cycles rounds of horizontal and
// vertical blur, ping-ponging through a scratch image.
func (d *Device) Upsample(p device.UpsampleParams) error {
	src, err := asImage(p.Source)
	if err != nil {
		return fmt.Errorf("failed to upsample: %w", err)
	}
	dst, err := asImage(p.Target)
	if err != nil {
		return fmt.Errorf("failed to upsample: %w", err)
	}
	view := p.View
	if view == nil || dst.width != view.Width || dst.height != view.Height {
		return fmt.Errorf("failed to upsample: target %dx%d does not match view", dst.width, dst.height)
	}
	if err := d.uploadView(view, false); err != nil {
		return err
	}

	x, y := Dispatch2D(dst.width, dst.height)
	params := PackUpsample(view.Width, view.Height, src.width, src.height, p.Blur, 0, 0, nil)
	if err := d.ensureBuffer("AHR upsample params", &d.upsampleBufs[0], params, wgpu.BufferUsageUniform); err != nil {
		return err
	}
	if err := d.dispatch(passUpsample, []wgpu.BindGroupEntry{
		entry(0, d.upsampleBufs[0]),
		entry(1, d.gbufferBuf),
		entry(2, src.buf),
		entry(3, dst.buf),
	}, x, y); err != nil {
		return err
	}

	if p.Blur.KernelSize <= 0 || p.Blur.Cycles <= 0 {
		return nil
	}
	if d.scratch == nil || d.scratch.width != dst.width || d.scratch.height != dst.height {
		if d.scratch != nil {
			d.scratch.Release()
		}
		if d.scratch, err = d.newImage("AHR blur scratch", dst.width, dst.height); err != nil {
			return fmt.Errorf("failed to upsample: %w", err)
		}
	}
	taps := GaussianTaps(p.Blur.KernelSize)
	hParams := PackUpsample(view.Width, view.Height, dst.width, dst.height, p.Blur, 1, 0, taps)
	vParams := PackUpsample(view.Width, view.Height, dst.width, dst.height, p.Blur, 0, 1, taps)
	if err := d.ensureBuffer("AHR blur h params", &d.upsampleBufs[1], hParams, wgpu.BufferUsageUniform); err != nil {
		return err
	}
	if err := d.ensureBuffer("AHR blur v params", &d.upsampleBufs[2], vParams, wgpu.BufferUsageUniform); err != nil {
		return err
	}
	for c := 0; c < p.Blur.Cycles; c++ {
		if err := d.dispatch(passBlur, []wgpu.BindGroupEntry{
			entry(0, d.upsampleBufs[1]),
			entry(1, d.gbufferBuf),
			entry(2, dst.buf),
			entry(3, d.scratch.buf),
		}, x, y); err != nil {
			return err
		}
		if err := d.dispatch(passBlur, []wgpu.BindGroupEntry{
			entry(0, d.upsampleBufs[2]),
			entry(1, d.gbufferBuf),
			entry(2, d.scratch.buf),
			entry(3, dst.buf),
		}, x, y); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) Composite(p device.CompositeParams) error {
	src, err := asImage(p.Source)
	if err != nil {
		return fmt.Errorf("failed to composite: %w", err)
	}
	dst, err := asImage(p.Target)
	if err != nil {
		return fmt.Errorf("failed to composite: %w", err)
	}
	if src.width != dst.width || src.height != dst.height {
		return fmt.Errorf("failed to composite: source %dx%d, target %dx%d",
			src.width, src.height, dst.width, dst.height)
	}
	params := PackComposite(dst.width, dst.height, p.Intensity)
	if err := d.ensureBuffer("AHR composite params", &d.compBuf, params, wgpu.BufferUsageUniform); err != nil {
		return err
	}
	x, y := Dispatch2D(dst.width, dst.height)
	return d.dispatch(passComposite, []wgpu.BindGroupEntry{
		entry(0, d.compBuf),
		entry(1, src.buf),
		entry(2, dst.buf),
	}, x, y)
}
