package app

import (
	"fmt"

	"github.com/gekko3d/ahr"
	"github.com/gekko3d/ahr/voxelrt/ahr/gpu"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// Window renders the demo scene on the GPU and presents it to a glfw window.
type Window struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	Device    *gpu.Device
	Presenter *gpu.Presenter
	Renderer  *Renderer
	Exposure  float32

	cfg ahr.Config
	log ahr.Logger

	LastRenderTime float64
	FrameCount     int
	FPS            float64
	FPSTime        float64
}

func NewWindow(window *glfw.Window, cfg ahr.Config, log ahr.Logger) *Window {
	return &Window{
		Window:   window,
		Exposure: 1,
		cfg:      cfg,
		log:      log,
	}
}

func (w *Window) Init() error {
	w.Instance = wgpu.CreateInstance(nil)
	w.Surface = w.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(w.Window))

	adapter, err := w.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: w.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	w.Adapter = adapter

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		return err
	}
	w.Device, err = gpu.New(dev)
	if err != nil {
		return err
	}

	width, height := w.Window.GetFramebufferSize()
	caps := w.Surface.GetCapabilities(adapter)
	w.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	w.Surface.Configure(adapter, dev, w.Config)

	w.Presenter, err = gpu.NewPresenter(w.Device, w.Config.Format)
	if err != nil {
		return err
	}

	pipe, err := ahr.NewPipeline(w.cfg, w.Device, ahr.WithLogger(w.log))
	if err != nil {
		return err
	}
	w.Renderer = NewRenderer(NewCornellScene(), pipe, w.Device, w.Device)
	return nil
}

func (w *Window) Resize(width, height int) {
	if width > 0 && height > 0 {
		w.Config.Width = uint32(width)
		w.Config.Height = uint32(height)
		w.Surface.Configure(w.Adapter, w.Device.Device, w.Config)
	}
}

// Render draws one frame for time t and presents it.
func (w *Window) Render(t float64) (ahr.Report, error) {
	rep, err := w.Renderer.Frame(t, int(w.Config.Width), int(w.Config.Height))
	if err != nil {
		return rep, err
	}

	next, err := w.Surface.GetCurrentTexture()
	if err != nil {
		return rep, fmt.Errorf("GetCurrentTexture failed: %w", err)
	}
	defer next.Release()

	view, err := next.CreateView(nil)
	if err != nil {
		return rep, fmt.Errorf("CreateView failed: %w", err)
	}
	defer view.Release()

	if err := w.Presenter.Draw(view, w.Renderer.Target(), w.Exposure); err != nil {
		return rep, err
	}
	w.Surface.Present()

	now := glfw.GetTime()
	if w.LastRenderTime > 0 {
		w.FrameCount++
		w.FPSTime += now - w.LastRenderTime
		if w.FPSTime >= 1.0 {
			w.FPS = float64(w.FrameCount) / w.FPSTime
			w.FrameCount = 0
			w.FPSTime = 0
		}
	}
	w.LastRenderTime = now
	return rep, nil
}

func (w *Window) Release() {
	if w.Renderer != nil {
		w.Renderer.Release()
		w.Renderer.Pipe.Release()
	}
	if w.Presenter != nil {
		w.Presenter.Release()
	}
	if w.Device != nil {
		w.Device.Release()
	}
	if w.Surface != nil {
		w.Surface.Release()
	}
}
