package gpu

import (
	"errors"
	"fmt"

	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/cogentcore/webgpu/wgpu"
)

// ReadImage copies an image back to the CPU, blocking until the GPU is done.
func (d *Device) ReadImage(i device.Image) ([]mgl32.Vec4, error) {
	img, err := asImage(i)
	if err != nil {
		return nil, err
	}
	size := img.buf.GetSize()
	staging, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "AHR readback",
		Size:  size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readback buffer: %w", err)
	}
	defer staging.Release()

	if err := d.submit("AHR readback", func(enc *wgpu.CommandEncoder) error {
		enc.CopyBufferToBuffer(img.buf, 0, staging, 0, size)
		return nil
	}); err != nil {
		return nil, err
	}

	var status wgpu.BufferMapAsyncStatus
	if err := staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	}); err != nil {
		return nil, fmt.Errorf("failed to map readback buffer: %w", err)
	}
	d.Device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, errors.New("readback map was not successful")
	}
	data := staging.GetMappedRange(0, uint(size))
	out := UnpackTexels(data, img.width*img.height)
	staging.Unmap()
	return out, nil
}

// WriteImage uploads CPU pixels, e.g. a scene color buffer, into an image.
func (d *Device) WriteImage(i device.Image, pix []mgl32.Vec4) error {
	img, err := asImage(i)
	if err != nil {
		return err
	}
	if len(pix) != img.width*img.height {
		return fmt.Errorf("write %s: %d pixels for a %dx%d image", img.label, len(pix), img.width, img.height)
	}
	if err := d.Queue.WriteBuffer(img.buf, 0, PackTexels(pix)); err != nil {
		return fmt.Errorf("failed to write %s: %w", img.label, err)
	}
	return nil
}
