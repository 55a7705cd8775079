package palette

import (
	"fmt"
	"testing"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emissive(n int) []*core.Material {
	out := make([]*core.Material, n)
	for i := range out {
		out[i] = core.NewEmissiveMaterial(fmt.Sprintf("m%d", i), [4]uint8{uint8(i), uint8(i >> 8), 1, 255})
	}
	return out
}

func TestAssignUniqueWithinFrame(t *testing.T) {
	p := New()
	p.Begin(1)

	seen := map[uint8]*core.Material{}
	for _, m := range emissive(40) {
		idx, ok := p.Assign(m)
		require.True(t, ok)
		assert.NotZero(t, idx)
		if prev, dup := seen[idx]; dup {
			t.Fatalf("index %d given to %s and %s", idx, prev.Name, m.Name)
		}
		seen[idx] = m
	}
	assert.Equal(t, 40, p.Len())
}

func TestStoredMaterialNotReassigned(t *testing.T) {
	p := New()
	p.Begin(1)
	m := emissive(2)

	a, _ := p.Assign(m[0])
	again, _ := p.Assign(m[0])
	b, _ := p.Assign(m[1])

	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, a, p.Index(m[0]))
}

func TestOverflowDropsBeyond255(t *testing.T) {
	p := New()
	p.Begin(1)

	got := map[uint8]bool{}
	dropped := 0
	for _, m := range emissive(300) {
		idx, ok := p.Assign(m)
		if !ok {
			dropped++
			continue
		}
		got[idx] = true
	}

	assert.Len(t, got, 255)
	assert.Equal(t, 45, dropped)
	assert.Equal(t, 45, p.Dropped())
	assert.False(t, got[0])
	for i := 1; i <= 255; i++ {
		assert.True(t, got[uint8(i)], "index %d unused", i)
	}
}

func TestNewFrameResetsStoredFlag(t *testing.T) {
	p := New()
	m := emissive(3)

	p.Begin(1)
	p.Assign(m[0])
	p.Assign(m[1])

	p.Begin(2)
	assert.Zero(t, p.Index(m[0]))
	idx, _ := p.Assign(m[1])
	assert.Equal(t, uint8(1), idx)
}

func TestChangedTracksSnapshot(t *testing.T) {
	p := New()
	m := emissive(2)

	p.Begin(1)
	p.Assign(m[0])
	assert.True(t, p.Changed())
	p.Commit()

	p.Begin(2)
	p.Assign(m[0])
	assert.False(t, p.Changed())

	p.Begin(3)
	p.Assign(m[0])
	p.Assign(m[1])
	assert.True(t, p.Changed())
	p.Commit()

	m[1].Emissive = [4]uint8{9, 9, 9, 255}
	p.Begin(4)
	p.Assign(m[0])
	p.Assign(m[1])
	assert.True(t, p.Changed())

	p.Invalidate()
	p.Commit()
	assert.False(t, p.Changed())
}

func TestReservedEntryStaysBlack(t *testing.T) {
	p := New()
	p.Begin(1)
	for _, m := range emissive(10) {
		p.Assign(m)
	}
	assert.Equal(t, [4]uint8{}, p.Table()[0])
}

func TestDroppedCountsDistinctMaterials(t *testing.T) {
	p := New()
	p.Begin(1)
	mats := emissive(257)
	for _, m := range mats[:255] {
		p.Assign(m)
	}
	for i := 0; i < 3; i++ {
		_, ok := p.Assign(mats[255])
		assert.False(t, ok)
	}
	p.Assign(mats[256])
	assert.Equal(t, 2, p.Dropped())

	p.Begin(2)
	assert.Zero(t, p.Dropped())
	idx, ok := p.Assign(mats[255])
	assert.True(t, ok)
	assert.Equal(t, uint8(1), idx)
}

func TestReserveKeepsSlot(t *testing.T) {
	p := New()
	m := emissive(3)

	p.Begin(1)
	require.True(t, p.Reserve(m[0], 2))
	require.True(t, p.Reserve(m[1], 1))
	idx, ok := p.Assign(m[2])
	require.True(t, ok)

	assert.Equal(t, uint8(3), idx)
	assert.Equal(t, uint8(2), p.Index(m[0]))
	assert.Equal(t, uint8(1), p.Index(m[1]))
	assert.Equal(t, m[0].EmissiveColor(), p.Table()[2])
	assert.Equal(t, 3, p.Len())

	again, _ := p.Assign(m[0])
	assert.Equal(t, uint8(2), again)
}

func TestReserveZeroDrops(t *testing.T) {
	p := New()
	m := emissive(1)
	p.Begin(1)

	assert.False(t, p.Reserve(m[0], 0))
	assert.Zero(t, p.Index(m[0]))
	assert.Equal(t, 1, p.Dropped())
	assert.Zero(t, p.Len())
}
