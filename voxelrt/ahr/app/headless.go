package app

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gekko3d/ahr"
	"github.com/gekko3d/ahr/voxelrt/ahr/soft"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"
)

type HeadlessOptions struct {
	Frames int
	Width  int
	Height int
	// Step is the simulated time between frames, in seconds.
	Step float64
	// OutDir receives one PNG per frame. Empty disables writing.
	OutDir string
	// OutWidth rescales the written images. Zero keeps the render size.
	OutWidth int
	Exposure float32
}

func DefaultHeadlessOptions() HeadlessOptions {
	return HeadlessOptions{
		Frames:   1,
		Width:    320,
		Height:   240,
		Step:     1.0 / 30,
		Exposure: 1,
	}
}

// RunHeadless renders opts.Frames frames and writes them out. onReport, when
// set, is called after every frame with its report.
func RunHeadless(ctx context.Context, r *Renderer, opts HeadlessOptions, onReport func(ahr.Report)) error {
	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	log := r.Pipe.Logger()
	for i := 0; i < opts.Frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep, err := r.Frame(float64(i)*opts.Step, opts.Width, opts.Height)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if onReport != nil {
			onReport(rep)
		}
		if !rep.Completed() {
			log.Warnf("frame %d skipped: %s", i, rep.Skipped)
		}
		if opts.OutDir == "" {
			continue
		}
		pix, err := r.Pixels()
		if err != nil {
			return fmt.Errorf("read frame %d: %w", i, err)
		}
		path := filepath.Join(opts.OutDir, fmt.Sprintf("frame_%04d.png", i))
		if err := WritePNG(path, pix, opts.Width, opts.Height, opts.Exposure, opts.OutWidth); err != nil {
			return err
		}
		log.Debugf("wrote %s", path)
	}
	return nil
}

// EncodeImage converts linear texels to an 8-bit image, optionally rescaled to
// outWidth keeping the aspect ratio.
func EncodeImage(pix []mgl32.Vec4, width, height int, exposure float32, outWidth int) image.Image {
	img := soft.NewImage("encode", width, height)
	copy(img.Pix, pix)
	src := img.ToNRGBA(exposure)
	if outWidth <= 0 || outWidth == width {
		return src
	}
	outHeight := max(1, height*outWidth/width)
	dst := image.NewNRGBA(image.Rect(0, 0, outWidth, outHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func WritePNG(path string, pix []mgl32.Vec4, width, height int, exposure float32, outWidth int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, EncodeImage(pix, width, height, exposure, outWidth)); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
