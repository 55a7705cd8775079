// Package device is the command and resource surface the AHR stages are written against.
// Every call is issued from the render thread in submission order.
package device

import (
	"errors"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gekko3d/ahr/voxelrt/ahr/kernel"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrAllocation is returned when a buffer or image cannot be created.
	ErrAllocation = errors.New("device allocation failed")
	// ErrUnsupported is returned for operations the device cannot run.
	ErrUnsupported = errors.New("device feature unsupported")
)

type FeatureLevel int

const (
	FeatureLevelES31 FeatureLevel = iota
	FeatureLevelSM5
)

func (f FeatureLevel) String() string {
	switch f {
	case FeatureLevelES31:
		return "ES3_1"
	case FeatureLevelSM5:
		return "SM5"
	default:
		return "unknown"
	}
}

// Buffer is a linear buffer of 32-bit words.
type Buffer interface {
	Label() string
	Size() uint64
	Release()
}

// Image is a 2D RGBA float render target.
type Image interface {
	Label() string
	Width() int
	Height() int
	Release()
}

// VolumePair is one occupancy + emissive buffer pair of the same set.
type VolumePair struct {
	Occupancy Buffer
	Emissive  Buffer
}

func (p VolumePair) Valid() bool {
	return p.Occupancy != nil && p.Emissive != nil
}

type TraceSettings struct {
	DiffuseRays    int `yaml:"diffuse_rays" toml:"diffuse_rays"`
	GlossyRays     int `yaml:"glossy_rays" toml:"glossy_rays"`
	DiffuseSamples int `yaml:"diffuse_samples" toml:"diffuse_samples"`
	GlossySamples  int `yaml:"glossy_samples" toml:"glossy_samples"`

	// Displacements are in voxel units.
	InitialDisp float32 `yaml:"initial_disp" toml:"initial_disp"`
	SampleDisp  float32 `yaml:"sample_disp" toml:"sample_disp"`

	LostRayColor mgl32.Vec4 `yaml:"lost_ray_color" toml:"lost_ray_color"`

	DiffuseWeight    float32 `yaml:"diffuse_weight" toml:"diffuse_weight"`
	GlossyWeight     float32 `yaml:"glossy_weight" toml:"glossy_weight"`
	GlossySpread     float32 `yaml:"glossy_spread" toml:"glossy_spread"`
	TraceReflections bool    `yaml:"trace_reflections" toml:"trace_reflections"`
}

type TraceParams struct {
	Grid     core.GridSettings
	Volumes  VolumePair
	View     *core.View
	Lights   []core.Light
	Settings TraceSettings
	Target   Image // half resolution
}

type BlurSettings struct {
	KernelSize  float32 `yaml:"kernel_size" toml:"kernel_size"`
	ZMax        float32 `yaml:"z_max" toml:"z_max"`
	NormalPower float32 `yaml:"normal_power" toml:"normal_power"`
	Cycles      int     `yaml:"cycles" toml:"cycles"`
}

type UpsampleParams struct {
	Source Image // half resolution trace output
	Target Image // full resolution
	View   *core.View
	Blur   BlurSettings
}

type CompositeParams struct {
	Source    Image
	Target    Image
	Intensity float32
}

// Device runs the voxelize, combine, trace, upsample and composite dispatches.
type Device interface {
	Name() string
	FeatureLevel() FeatureLevel

	CreateBuffer(label string, size uint64) (Buffer, error)
	CreateImage(label string, width, height int) (Image, error)
	ClearBuffer(b Buffer) error

	// Voxelize rasterizes tris into dst. Emissive bytes are first writer wins.
	Voxelize(grid core.GridSettings, tris []core.VoxelTriangle, dst VolumePair) error
	// Combine merges static into dynamic: occupancy OR, emissive dynamic wins when non-zero.
	Combine(grid core.GridSettings, static, dynamic VolumePair) error

	UploadPalette(table *[256][4]uint8) error
	UploadKernel(k *kernel.Kernel) error

	Trace(p TraceParams) error
	Upsample(p UpsampleParams) error
	Composite(p CompositeParams) error

	Release()
}
