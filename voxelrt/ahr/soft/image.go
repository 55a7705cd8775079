package soft

import (
	"fmt"
	"image"
	"image/color"
	"slices"

	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/go-gl/mathgl/mgl32"
)

// Image is an RGBA32F render target stored row major.
type Image struct {
	label    string
	width    int
	height   int
	Pix      []mgl32.Vec4
	dev      *Device
	released bool
}

// NewImage creates an image that is not tracked by any device, such as a
// lighting accumulation target owned by the frame driver.
func NewImage(label string, width, height int) *Image {
	return &Image{
		label:  label,
		width:  width,
		height: height,
		Pix:    make([]mgl32.Vec4, width*height),
	}
}

func (i *Image) Label() string { return i.label }
func (i *Image) Width() int    { return i.width }
func (i *Image) Height() int   { return i.height }

func (i *Image) Release() {
	if i.released {
		return
	}
	i.released = true
	if i.dev != nil {
		i.dev.stats.ImagesReleased++
		i.dev.stats.LiveBytes -= uint64(len(i.Pix) * 16)
	}
	i.Pix = nil
}

func (i *Image) At(x, y int) mgl32.Vec4 {
	return i.Pix[y*i.width+x]
}

func (i *Image) Set(x, y int, c mgl32.Vec4) {
	i.Pix[y*i.width+x] = c
}

func (i *Image) Fill(c mgl32.Vec4) {
	for p := range i.Pix {
		i.Pix[p] = c
	}
}

// ToNRGBA converts rgb to 8-bit with the given exposure, clamping to [0,1].
// Alpha is forced opaque.
func (i *Image) ToNRGBA(exposure float32) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, i.width, i.height))
	for y := 0; y < i.height; y++ {
		for x := 0; x < i.width; x++ {
			c := i.At(x, y)
			out.SetNRGBA(x, y, color.NRGBA{
				R: to8(c.X() * exposure),
				G: to8(c.Y() * exposure),
				B: to8(c.Z() * exposure),
				A: 255,
			})
		}
	}
	return out
}

func to8(f float32) uint8 {
	if f != f || f <= 0 {
		return 0
	}
	if f >= 1 {
		return 255
	}
	return uint8(f*255 + 0.5)
}

// ReadImage returns a copy of the image's texels.
func (d *Device) ReadImage(i device.Image) ([]mgl32.Vec4, error) {
	img, err := asImage(i)
	if err != nil {
		return nil, err
	}
	return slices.Clone(img.Pix), nil
}

// WriteImage replaces the image's texels. pix must cover the whole image.
func (d *Device) WriteImage(i device.Image, pix []mgl32.Vec4) error {
	img, err := asImage(i)
	if err != nil {
		return err
	}
	if len(pix) < len(img.Pix) {
		return fmt.Errorf("image %q needs %d texels, got %d", img.label, len(img.Pix), len(pix))
	}
	copy(img.Pix, pix)
	return nil
}
