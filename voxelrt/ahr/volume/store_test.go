package volume_test

import (
	"errors"
	"testing"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gekko3d/ahr/voxelrt/ahr/device"
	"github.com/gekko3d/ahr/voxelrt/ahr/soft"
	"github.com/gekko3d/ahr/voxelrt/ahr/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grid(n int) core.GridSettings {
	return core.GridSettings{VoxelSize: 1, SliceSize: [3]int{n, n, n}}
}

func TestEnsureCapacityResize(t *testing.T) {
	dev := soft.New()
	store := volume.NewStore(dev)

	realloc, err := store.EnsureCapacity(grid(64))
	require.NoError(t, err)
	assert.True(t, realloc)
	dev.ResetStats()

	realloc, err = store.EnsureCapacity(grid(128))
	require.NoError(t, err)
	assert.True(t, realloc)

	s := dev.Stats()
	assert.Equal(t, 4, s.BuffersCreated)
	assert.Equal(t, 4, s.BuffersReleased)
	require.Len(t, s.Allocations, 4)
	for _, a := range s.Allocations {
		switch a.Label {
		case "AHR static occupancy", "AHR dynamic occupancy":
			assert.Equal(t, volume.OccupancyBytes([3]int{128, 128, 128}), a.Size, a.Label)
		case "AHR static emissive", "AHR dynamic emissive":
			assert.Equal(t, volume.EmissiveBytes([3]int{128, 128, 128}), a.Size, a.Label)
		default:
			t.Errorf("unexpected allocation %q", a.Label)
		}
	}
	dev.ResetStats()

	realloc, err = store.EnsureCapacity(grid(128))
	require.NoError(t, err)
	assert.False(t, realloc)
	assert.Zero(t, dev.Stats().BuffersCreated)
	assert.Zero(t, dev.Stats().BuffersReleased)
	assert.Equal(t, 2, store.Reallocations())
	assert.Equal(t, [3]int{128, 128, 128}, store.SliceSize())
}

func TestPairSelectsSet(t *testing.T) {
	store := volume.NewStore(soft.New())
	_, err := store.EnsureCapacity(grid(8))
	require.NoError(t, err)

	st := store.Pair(volume.Static)
	dy := store.Pair(volume.Dynamic)
	assert.True(t, st.Valid())
	assert.True(t, dy.Valid())
	assert.NotSame(t, st.Occupancy, dy.Occupancy)
	assert.Same(t, store.Volume(volume.Static, volume.Emissive), st.Emissive)
	assert.Equal(t, "AHR dynamic occupancy", dy.Occupancy.Label())
}

func TestEnsureCapacityAllocationFailure(t *testing.T) {
	// room for a 32^3 store but not a 64^3 one
	limit := 2 * (volume.OccupancyBytes([3]int{32, 32, 32}) + volume.EmissiveBytes([3]int{32, 32, 32}))
	dev := soft.New(soft.WithAllocLimit(limit))
	store := volume.NewStore(dev)

	_, err := store.EnsureCapacity(grid(32))
	require.NoError(t, err)

	_, err = store.EnsureCapacity(grid(64))
	require.Error(t, err)
	assert.True(t, errors.Is(err, device.ErrAllocation))
	assert.False(t, store.Pair(volume.Static).Valid())
	assert.Zero(t, dev.Stats().LiveBytes)

	// next frame retries at a size that fits
	realloc, err := store.EnsureCapacity(grid(32))
	require.NoError(t, err)
	assert.True(t, realloc)
}

func TestRelease(t *testing.T) {
	dev := soft.New()
	store := volume.NewStore(dev)
	_, err := store.EnsureCapacity(grid(16))
	require.NoError(t, err)

	store.Release()
	assert.Equal(t, 4, dev.Stats().BuffersReleased)
	assert.Nil(t, store.Volume(volume.Dynamic, volume.Occupancy))
	store.Release()
	assert.Equal(t, 4, dev.Stats().BuffersReleased)
}
