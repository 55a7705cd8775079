package ahr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsNormalized(t *testing.T) {
	cfg := DefaultConfig()
	norm := cfg
	norm.Normalize()
	assert.Equal(t, cfg, norm)
	assert.Equal(t, 256*256*256, cfg.MaxCells())
}

func TestParseYAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
enabled: true
max_slice_size: 128
voxel_size: 0.5
trace:
  diffuse_rays: 9
  glossy_rays: 1
  lost_ray_color: [0.1, 0.2, 0.3, 1]
  trace_reflections: true
blur:
  cycles: 2
intensity: 0.75
`))
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.MaxSliceSize)
	assert.Equal(t, float32(0.5), cfg.VoxelSize)
	assert.Equal(t, 6, cfg.Trace.DiffuseRays, "clamped to the kernel width")
	assert.Equal(t, 1, cfg.Trace.GlossyRays)
	assert.Equal(t, mgl32.Vec4{0.1, 0.2, 0.3, 1}, cfg.Trace.LostRayColor)
	assert.True(t, cfg.Trace.TraceReflections)
	assert.Equal(t, 2, cfg.Blur.Cycles)
	assert.Equal(t, float32(0.75), cfg.Intensity)
	// untouched fields keep their defaults
	assert.Equal(t, DefaultConfig().Trace.DiffuseSamples, cfg.Trace.DiffuseSamples)
}

func TestParseYAMLEmptyAndUnknown(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = ParseConfig([]byte("voxel_sise: 1\n"))
	assert.Error(t, err)
}

func TestParseTOML(t *testing.T) {
	cfg, err := ParseTOML([]byte(`
enabled = false
min_view_dimension = 64

[trace]
glossy_samples = 12
glossy_spread = 0.5

[blur]
z_max = 0.02
`))
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 64, cfg.MinViewDimension)
	assert.Equal(t, 12, cfg.Trace.GlossySamples)
	assert.Equal(t, float32(0.5), cfg.Trace.GlossySpread)
	assert.Equal(t, float32(0.02), cfg.Blur.ZMax)

	_, err = ParseTOML([]byte("bogus = 1\n"))
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	cfg := Config{
		MaxSliceSize: 1 << 20,
		VoxelSize:    -1,
		Trace:        deviceTraceWithRays(-3, 40),
		Blur:         DefaultConfig().Blur,
		Intensity:    -2,
	}
	cfg.Blur.Cycles = 5
	cfg.Normalize()
	assert.Equal(t, 1024, cfg.MaxSliceSize)
	assert.Equal(t, cfg.MinVoxelSize, cfg.VoxelSize)
	assert.Equal(t, 0, cfg.Trace.DiffuseRays)
	assert.Equal(t, 6, cfg.Trace.GlossyRays)
	assert.Equal(t, 1, cfg.Trace.DiffuseSamples)
	assert.Equal(t, float32(1), cfg.Trace.SampleDisp)
	assert.Equal(t, 2, cfg.Blur.Cycles)
	assert.Zero(t, cfg.Intensity)
	assert.Equal(t, 1, cfg.MinViewDimension)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "ahr.yaml")
	require.NoError(t, os.WriteFile(yml, []byte("voxel_size: 0.125\n"), 0o644))
	tml := filepath.Join(dir, "ahr.TOML")
	require.NoError(t, os.WriteFile(tml, []byte("voxel_size = 0.5\n"), 0o644))

	cfg, err := LoadConfig(yml)
	require.NoError(t, err)
	assert.Equal(t, float32(0.125), cfg.VoxelSize)

	cfg, err = LoadConfig(tml)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), cfg.VoxelSize)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func deviceTraceWithRays(diffuse, glossy int) (s device.TraceSettings) {
	s = DefaultConfig().Trace
	s.DiffuseRays = diffuse
	s.GlossyRays = glossy
	s.DiffuseSamples = 0
	s.SampleDisp = 0
	return s
}
