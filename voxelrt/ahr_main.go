package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/gekko3d/ahr"
	"github.com/gekko3d/ahr/voxelrt/ahr/app"
	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/gekko3d/ahr/voxelrt/ahr/gpu"
	"github.com/gekko3d/ahr/voxelrt/ahr/soft"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging and per-stage timings")
	headless := flag.Bool("headless", false, "Render to PNG files instead of a window")
	configPath := flag.String("config", "", "YAML or TOML config file, reloaded on change")
	backend := flag.String("device", "soft", "Headless device: soft or wgpu")
	frames := flag.Int("frames", 1, "Number of frames to render in headless mode")
	width := flag.Int("width", 320, "Render width")
	height := flag.Int("height", 240, "Render height")
	outDir := flag.String("out", "frames", "Output directory in headless mode")
	outWidth := flag.Int("out-width", 0, "Rescale written frames to this width")
	exposure := flag.Float64("exposure", 1, "Exposure applied before tonemapping")
	telemetry := flag.String("telemetry", "", "Serve frame reports over websocket on this address, e.g. :8090")
	flag.Parse()

	log := ahr.NewDefaultLogger("AHR", *debug)

	cfg := ahr.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = ahr.LoadConfig(*configPath)
		if err != nil {
			log.Errorf("%v", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var tel *app.Telemetry
	if *telemetry != "" {
		tel = app.NewTelemetry(log)
		srv := serveTelemetry(*telemetry, tel, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}
	publish := func(rep ahr.Report) {
		if tel != nil {
			tel.Publish(rep)
		}
	}

	if *headless {
		opts := app.DefaultHeadlessOptions()
		opts.Frames = *frames
		opts.Width = *width
		opts.Height = *height
		opts.OutDir = *outDir
		opts.OutWidth = *outWidth
		opts.Exposure = float32(*exposure)
		if err := runHeadless(ctx, cfg, *backend, *configPath, opts, log, publish); err != nil {
			log.Errorf("%v", err)
			os.Exit(1)
		}
		return
	}

	if err := runWindow(ctx, cfg, *configPath, *width, *height, float32(*exposure), log, publish); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func serveTelemetry(addr string, tel *app.Telemetry, log ahr.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/ws", tel)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("telemetry server: %v", err)
		}
	}()
	log.Infof("telemetry on ws://%s/ws", addr)
	return srv
}

// watch reloads the config into pipe while the program runs. A missing path
// disables it.
func watch(path string, pipe *ahr.Pipeline, log ahr.Logger) func() {
	if path == "" {
		return func() {}
	}
	w, err := app.WatchConfig(path, log, pipe.SetConfig)
	if err != nil {
		log.Warnf("config reload disabled: %v", err)
		return func() {}
	}
	return func() { w.Close() }
}

type hostDevice interface {
	device.Device
	app.TargetIO
}

func runHeadless(ctx context.Context, cfg ahr.Config, backend, configPath string, opts app.HeadlessOptions, log ahr.Logger, publish func(ahr.Report)) error {
	var dev hostDevice
	switch backend {
	case "wgpu":
		d, err := gpu.NewHeadless()
		if err != nil {
			return err
		}
		dev = d
	default:
		dev = soft.New()
	}
	defer dev.Release()

	prof := ahr.NewProfiler()
	pipe, err := ahr.NewPipeline(cfg, dev, ahr.WithLogger(log), ahr.WithProfiler(prof))
	if err != nil {
		return err
	}
	defer pipe.Release()
	defer watch(configPath, pipe, log)()

	r := app.NewRenderer(app.NewCornellScene(), pipe, dev, dev)
	defer r.Release()

	err = app.RunHeadless(ctx, r, opts, func(rep ahr.Report) {
		publish(rep)
		if log.DebugEnabled() {
			log.Debugf("frame %d\n%s", rep.Frame, prof.StatsString())
		}
	})
	if err != nil {
		return err
	}
	log.Infof("rendered %d frames on %s into %s", opts.Frames, dev.Name(), opts.OutDir)
	return nil
}

func runWindow(ctx context.Context, cfg ahr.Config, configPath string, width, height int, exposure float32, log ahr.Logger, publish func(ahr.Report)) error {
	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(max(width, 640), max(height, 480), "AHR Go", nil, nil)
	if err != nil {
		return err
	}
	defer window.Destroy()

	w := app.NewWindow(window, cfg, log)
	defer w.Release()
	if err := w.Init(); err != nil {
		return err
	}
	w.Exposure = exposure
	defer watch(configPath, w.Renderer.Pipe, log)()

	window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.Resize(width, height)
	})
	window.SetKeyCallback(func(win *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			win.SetShouldClose(true)
		case glfw.KeyR:
			w.Renderer.Pipe.RequestStaticRebuild()
		case glfw.KeyG:
			c := w.Renderer.Pipe.Config()
			c.Enabled = !c.Enabled
			w.Renderer.Pipe.SetConfig(c)
		}
	})

	start := glfw.GetTime()
	for !window.ShouldClose() && ctx.Err() == nil {
		glfw.PollEvents()
		rep, err := w.Render(glfw.GetTime() - start)
		if err != nil {
			log.Errorf("render: %v", err)
			continue
		}
		publish(rep)
		if rep.Frame%120 == 0 && rep.Frame > 0 {
			log.Debugf("%.1f fps\n%s", w.FPS, w.Renderer.Pipe.Profiler().StatsString())
		}
	}
	return nil
}
