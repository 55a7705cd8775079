package soft

import (
	"fmt"
	"math"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/go-gl/mathgl/mgl32"
)

// Upsample brings the half resolution trace up to the view size, then runs the
// separable depth and normal aware blur Cycles times.
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
	if view == nil || dst.Width() != view.Width || dst.Height() != view.Height {
		return fmt.Errorf("failed to upsample: target %dx%d does not match view", dst.Width(), dst.Height())
	}
	d.stats.Upsamples++

	zmax := p.Blur.ZMax
	if err := d.Rows(dst.Height(), func(y int) {
		for x := 0; x < dst.Width(); x++ {
			dst.Set(x, y, upsamplePixel(src, view, zmax, x, y))
		}
	}); err != nil {
		return err
	}

	if p.Blur.KernelSize <= 0 || p.Blur.Cycles <= 0 {
		return nil
	}
	taps := gaussian(p.Blur.KernelSize)
	tmp := NewImage("AHR blur scratch", dst.Width(), dst.Height())
	for c := 0; c < p.Blur.Cycles; c++ {
		if err := d.blurPass(dst, tmp, view, taps, p.Blur, 1, 0); err != nil {
			return err
		}
		if err := d.blurPass(tmp, dst, view, taps, p.Blur, 0, 1); err != nil {
			return err
		}
	}
	return nil
}

func upsamplePixel(src *Image, view *core.View, zmax float32, x, y int) mgl32.Vec4 {
	if view.IsBackground(x, y) {
		return mgl32.Vec4{}
	}
	depth := view.Depth[view.Index(x, y)]

	u := float32(x) / 2
	v := float32(y) / 2
	i0 := int(u)
	j0 := int(v)
	fu := u - float32(i0)
	fv := v - float32(j0)

	var sum mgl32.Vec4
	var wsum float32
	for dj := 0; dj < 2; dj++ {
		for di := 0; di < 2; di++ {
			i := min(src.Width()-1, i0+di)
			j := min(src.Height()-1, j0+dj)
			sx := min(view.Width-1, 2*i)
			sy := min(view.Height-1, 2*j)
			if view.IsBackground(sx, sy) {
				continue
			}
			w := lerpWeight(fu, di) * lerpWeight(fv, dj)
			w *= depthWeight(depth, view.Depth[view.Index(sx, sy)], zmax)
			if w <= 0 {
				continue
			}
			sum = sum.Add(src.At(i, j).Mul(w))
			wsum += w
		}
	}
	if wsum == 0 {
		// every tap sits across an edge: fall back to the nearest sample
		i := min(src.Width()-1, (x+1)/2)
		j := min(src.Height()-1, (y+1)/2)
		return src.At(i, j)
	}
	return sum.Mul(1 / wsum)
}

func lerpWeight(f float32, side int) float32 {
	if side == 0 {
		return 1 - f
	}
	return f
}

func depthWeight(a, b, zmax float32) float32 {
	if zmax <= 0 {
		return 1
	}
	return max(0, 1-float32(math.Abs(float64(a-b)))/zmax)
}

// gaussian returns the one-sided weights for offsets 0..ceil(2*sigma).
func gaussian(sigma float32) []float32 {
	radius := int(math.Ceil(float64(2 * sigma)))
	taps := make([]float32, radius+1)
	for k := range taps {
		taps[k] = float32(math.Exp(-float64(k*k) / float64(2*sigma*sigma)))
	}
	return taps
}

func (d *Device) blurPass(src, dst *Image, view *core.View, taps []float32, b device.BlurSettings, dx, dy int) error {
	return d.Rows(src.Height(), func(y int) {
		for x := 0; x < src.Width(); x++ {
			if view.IsBackground(x, y) {
				dst.Set(x, y, mgl32.Vec4{})
				continue
			}
			ci := view.Index(x, y)
			cd := view.Depth[ci]
			cn := view.Normal[ci]

			sum := src.At(x, y).Mul(taps[0])
			wsum := taps[0]
			for k := 1; k < len(taps); k++ {
				for _, s := range [2]int{-k, k} {
					sx, sy := x+s*dx, y+s*dy
					if !view.InBounds(sx, sy) || view.IsBackground(sx, sy) {
						continue
					}
					si := view.Index(sx, sy)
					w := taps[k] * depthWeight(cd, view.Depth[si], b.ZMax) * normalWeight(cn, view.Normal[si], b.NormalPower)
					if w <= 0 {
						continue
					}
					sum = sum.Add(src.At(sx, sy).Mul(w))
					wsum += w
				}
			}
			dst.Set(x, y, sum.Mul(1/wsum))
		}
	})
}

func normalWeight(a, b mgl32.Vec3, power float32) float32 {
	if power <= 0 {
		return 1
	}
	c := a.Dot(b)
	if c <= 0 {
		return 0
	}
	return float32(math.Pow(float64(c), float64(power)))
}

// Composite adds the upsampled indirect light into the target. Alpha is left alone.
func (d *Device) Composite(p device.CompositeParams) error {
	src, err := asImage(p.Source)
	if err != nil {
		return fmt.Errorf("failed to composite: %w", err)
	}
	dst, err := asImage(p.Target)
	if err != nil {
		return fmt.Errorf("failed to composite: %w", err)
	}
	if src.Width() != dst.Width() || src.Height() != dst.Height() {
		return fmt.Errorf("failed to composite: source %dx%d, target %dx%d",
			src.Width(), src.Height(), dst.Width(), dst.Height())
	}
	d.stats.Composites++
	return d.Rows(dst.Height(), func(y int) {
		for x := 0; x < dst.Width(); x++ {
			s := src.At(x, y).Vec3().Mul(p.Intensity)
			t := dst.At(x, y)
			dst.Set(x, y, mgl32.Vec4{t[0] + s[0], t[1] + s[1], t[2] + s[2], t[3]})
		}
	})
}
