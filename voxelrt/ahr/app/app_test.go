package app

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gekko3d/ahr"
	"github.com/gekko3d/ahr/voxelrt/ahr/soft"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() ahr.Config {
	cfg := ahr.DefaultConfig()
	cfg.MaxSliceSize = 32
	cfg.Trace.DiffuseRays = 4
	cfg.Trace.GlossyRays = 0
	return cfg
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	dev := soft.New()
	pipe, err := ahr.NewPipeline(testConfig(), dev, ahr.WithLogger(ahr.NewNopLogger()))
	require.NoError(t, err)
	r := NewRenderer(NewCornellScene(), pipe, dev, dev)
	r.ShadowSize = 64
	t.Cleanup(func() {
		r.Release()
		pipe.Release()
	})
	return r
}

func TestSceneMoverIsDynamic(t *testing.T) {
	s := NewCornellScene()
	prims := s.Primitives()
	require.NotEmpty(t, prims)
	assert.Same(t, s.Mover, prims[len(prims)-1])
	assert.True(t, s.Mover.NeedsEveryFrameVoxelization)
	for _, p := range s.Static {
		assert.False(t, p.NeedsEveryFrameVoxelization, p.Owner)
	}
	assert.True(t, s.Lamp.Materials[0].ShouldInjectEmissiveIntoDynamicGI())
}

func TestSceneStepIsAbsolute(t *testing.T) {
	s := NewCornellScene()
	start := s.MoverCenter()

	s.Step(1.3)
	moved := s.MoverCenter()
	assert.Greater(t, moved.Sub(start).Len(), float32(0.1))

	s.Step(0)
	assert.InDelta(t, 0, s.MoverCenter().Sub(start).Len(), 1e-4)
	assert.InDelta(t, moverOrbit, mgl32.Vec2{start.X(), start.Y()}.Len(), 1e-4)
}

func TestSceneBoundsContainPrimitives(t *testing.T) {
	s := NewCornellScene()
	lo := s.Bounds.Center.Sub(s.Bounds.Extent.Mul(0.5))
	hi := s.Bounds.Center.Add(s.Bounds.Extent.Mul(0.5))
	for _, p := range s.Primitives() {
		pLo, pHi := p.Bounds()
		for i := 0; i < 3; i++ {
			assert.GreaterOrEqual(t, pLo[i], lo[i], p.Owner)
			assert.LessOrEqual(t, pHi[i], hi[i], p.Owner)
		}
	}
}

func TestRendererFrameCompletes(t *testing.T) {
	r := newTestRenderer(t)

	rep, err := r.Frame(0, 160, 128)
	require.NoError(t, err)
	require.True(t, rep.Completed(), "skipped: %s, err: %v", rep.Skipped, rep.Err)
	assert.True(t, rep.StaticVoxelized)
	assert.GreaterOrEqual(t, rep.PaletteEntries, 2)

	pix, err := r.Pixels()
	require.NoError(t, err)
	require.Len(t, pix, 160*128)

	lit := 0
	for _, p := range pix {
		if p.X()+p.Y()+p.Z() > 0.01 {
			lit++
		}
	}
	assert.Greater(t, lit, len(pix)/8)
}

func TestRendererStaticRebuildOnlyOnce(t *testing.T) {
	r := newTestRenderer(t)

	rep, err := r.Frame(0, 128, 128)
	require.NoError(t, err)
	require.True(t, rep.Completed())
	assert.True(t, rep.StaticRebuildTriggered)

	rep, err = r.Frame(0.5, 128, 128)
	require.NoError(t, err)
	require.True(t, rep.Completed())
	assert.False(t, rep.StaticRebuildTriggered)
	assert.False(t, rep.StaticVoxelized)
}

func TestRendererResizeRecreatesTarget(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.Frame(0, 128, 128)
	require.NoError(t, err)
	first := r.Target()

	_, err = r.Frame(0, 160, 128)
	require.NoError(t, err)
	assert.NotSame(t, first, r.Target())
	assert.Equal(t, 160, r.Target().Width())
}

func TestPixelsBeforeFrame(t *testing.T) {
	r := newTestRenderer(t)
	_, err := r.Pixels()
	assert.Error(t, err)
}

func TestRunHeadlessWritesFrames(t *testing.T) {
	r := newTestRenderer(t)
	dir := filepath.Join(t.TempDir(), "out")

	opts := DefaultHeadlessOptions()
	opts.Frames = 2
	opts.Width = 128
	opts.Height = 128
	opts.OutDir = dir
	opts.OutWidth = 64

	var reports []ahr.Report
	require.NoError(t, RunHeadless(context.Background(), r, opts, func(rep ahr.Report) {
		reports = append(reports, rep)
	}))
	require.Len(t, reports, 2)
	assert.Equal(t, uint64(1), reports[0].Frame)
	assert.Equal(t, uint64(2), reports[1].Frame)

	for _, name := range []string{"frame_0000.png", "frame_0001.png"} {
		f, err := os.Open(filepath.Join(dir, name))
		require.NoError(t, err)
		img, err := png.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, 64, img.Bounds().Dx())
		assert.Equal(t, 64, img.Bounds().Dy())
	}
}

func TestRunHeadlessHonorsContext(t *testing.T) {
	r := newTestRenderer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := DefaultHeadlessOptions()
	opts.Width, opts.Height = 128, 128
	err := RunHeadless(ctx, r, opts, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEncodeImageKeepsSize(t *testing.T) {
	pix := make([]mgl32.Vec4, 4*2)
	for i := range pix {
		pix[i] = mgl32.Vec4{1, 0.5, 0, 1}
	}
	img := EncodeImage(pix, 4, 2, 1, 0)
	assert.Equal(t, 4, img.Bounds().Dx())
	r, g, b, a := img.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.InDelta(t, 0x8080, g, 0x200)
	assert.Equal(t, uint32(0), b)
	assert.Equal(t, uint32(0xffff), a)
}
