package ahr

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/gekko3d/ahr/voxelrt/ahr/grid"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the pipeline tunables. It is read at the start of every frame.
type Config struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// MaxSliceSize bounds the grid to MaxSliceSize^3 cells.
	MaxSliceSize int     `yaml:"max_slice_size" toml:"max_slice_size"`
	VoxelSize    float32 `yaml:"voxel_size" toml:"voxel_size"`
	MinVoxelSize float32 `yaml:"min_voxel_size" toml:"min_voxel_size"`

	// Views smaller than this on either axis are skipped.
	MinViewDimension int `yaml:"min_view_dimension" toml:"min_view_dimension"`

	Trace     device.TraceSettings `yaml:"trace" toml:"trace"`
	Blur      device.BlurSettings  `yaml:"blur" toml:"blur"`
	Intensity float32              `yaml:"intensity" toml:"intensity"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		MaxSliceSize:     256,
		VoxelSize:        0.25,
		MinVoxelSize:     grid.DefaultMinVoxelSize,
		MinViewDimension: 128,
		Trace: device.TraceSettings{
			DiffuseRays:    4,
			GlossyRays:     2,
			DiffuseSamples: 32,
			GlossySamples:  48,
			InitialDisp:    1.5,
			SampleDisp:     1,
			DiffuseWeight:  1,
			GlossyWeight:   0.5,
			GlossySpread:   0.3,
		},
		Blur: device.BlurSettings{
			KernelSize:  2,
			ZMax:        0.01,
			NormalPower: 8,
			Cycles:      1,
		},
		Intensity: 1,
	}
}

// MaxCells is the cell budget handed to the grid resolver.
func (c Config) MaxCells() int {
	return c.MaxSliceSize * c.MaxSliceSize * c.MaxSliceSize
}

// Normalize clamps every field into its supported range.
func (c *Config) Normalize() {
	c.MaxSliceSize = clampInt(c.MaxSliceSize, 8, 1024)
	if c.MinVoxelSize <= 0 {
		c.MinVoxelSize = grid.DefaultMinVoxelSize
	}
	if c.VoxelSize < c.MinVoxelSize {
		c.VoxelSize = c.MinVoxelSize
	}
	c.MinViewDimension = max(1, c.MinViewDimension)

	t := &c.Trace
	t.DiffuseRays = clampInt(t.DiffuseRays, 0, 6)
	t.GlossyRays = clampInt(t.GlossyRays, 0, 6)
	t.DiffuseSamples = max(1, t.DiffuseSamples)
	t.GlossySamples = max(1, t.GlossySamples)
	t.InitialDisp = max(0, t.InitialDisp)
	if t.SampleDisp <= 0 {
		t.SampleDisp = 1
	}
	t.DiffuseWeight = max(0, t.DiffuseWeight)
	t.GlossyWeight = max(0, t.GlossyWeight)
	t.GlossySpread = max(0, t.GlossySpread)

	b := &c.Blur
	b.KernelSize = max(0, b.KernelSize)
	b.ZMax = max(0, b.ZMax)
	b.NormalPower = max(0, b.NormalPower)
	b.Cycles = clampInt(b.Cycles, 1, 2)

	c.Intensity = max(0, c.Intensity)
}

func clampInt(v, lo, hi int) int {
	return min(hi, max(lo, v))
}

// ParseConfig decodes YAML over the defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// ParseTOML decodes TOML over the defaults.
func ParseTOML(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// LoadConfig reads a .yaml/.yml or .toml file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ParseTOML(data)
	default:
		return ParseConfig(data)
	}
}
