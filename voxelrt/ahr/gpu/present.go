package gpu

import (
	"fmt"

	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/gekko3d/ahr/voxelrt/ahr/shaders"

	"github.com/cogentcore/webgpu/wgpu"
)

// Presenter tonemaps an Image onto a surface texture with a fullscreen triangle.
type Presenter struct {
	dev      *Device
	pipeline *wgpu.RenderPipeline
	params   *wgpu.Buffer
}

func NewPresenter(d *Device, format wgpu.TextureFormat) (*Presenter, error) {
	module, err := d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "AHR present VS/FS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.PresentWGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile present shader: %w", err)
	}
	defer module.Release()

	pipeline, err := d.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "AHR present Pipeline",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create present pipeline: %w", err)
	}
	return &Presenter{dev: d, pipeline: pipeline}, nil
}

// Draw renders img into view, scaling colors by exposure before tonemapping.
func (p *Presenter) Draw(view *wgpu.TextureView, img device.Image, exposure float32) error {
	src, err := asImage(img)
	if err != nil {
		return err
	}
	params := newPacker(32)
	params.u32(uint32(src.width), uint32(src.height), 0, 0)
	params.f32(exposure, 0, 0, 0)
	if err := p.dev.ensureBuffer("AHR present params", &p.params, params.bytes(), wgpu.BufferUsageUniform); err != nil {
		return err
	}
	bgl := p.pipeline.GetBindGroupLayout(0)
	defer bgl.Release()
	bg, err := p.dev.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "AHR present",
		Layout: bgl,
		Entries: []wgpu.BindGroupEntry{
			entry(0, p.params),
			entry(1, src.buf),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to bind present: %w", err)
	}
	defer bg.Release()

	return p.dev.submit("AHR present", func(enc *wgpu.CommandEncoder) error {
		pass := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
			ColorAttachments: []wgpu.RenderPassColorAttachment{{
				View:       view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
			}},
		})
		pass.SetPipeline(p.pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Draw(3, 1, 0, 0)
		return pass.End()
	})
}

func (p *Presenter) Release() {
	if p.params != nil {
		p.params.Release()
		p.params = nil
	}
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
}
