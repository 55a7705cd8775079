package bvh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoObjectsSplit(t *testing.T) {
	aabbs := [][2]mgl32.Vec3{
		{{-100, -1, -1}, {-98, 1, 1}},
		{{100, -1, -1}, {102, 1, 1}},
	}

	tree := (&Builder{}).Build(aabbs)
	require.Len(t, tree.Nodes, 3)

	root := tree.Nodes[0]
	if root.Min.X() > -100 {
		t.Errorf("Root min X should be <= -100, got %f", root.Min.X())
	}
	if root.Max.X() < 100 {
		t.Errorf("Root max X should be >= 100, got %f", root.Max.X())
	}
	if root.Left == -1 || root.Right == -1 || root.Left == root.Right {
		t.Fatalf("bad children: left=%d right=%d", root.Left, root.Right)
	}
	assert.True(t, tree.Nodes[root.Left].IsLeaf())
	assert.True(t, tree.Nodes[root.Right].IsLeaf())
	assert.False(t, root.IsLeaf())
}

func TestEmptyBuild(t *testing.T) {
	tree := (&Builder{}).Build(nil)
	assert.Empty(t, tree.Nodes)
	tree.Traverse(mgl32.Vec3{}, mgl32.Vec3{1, 0, 0}, 100, func(int, float32) float32 {
		t.Fatal("visit on empty tree")
		return 0
	})
}

func TestTraverseVisitsOnlyHitLeaves(t *testing.T) {
	aabbs := [][2]mgl32.Vec3{
		{{4, -1, -1}, {6, 1, 1}},
		{{10, -1, -1}, {12, 1, 1}},
		{{4, 10, -1}, {6, 12, 1}},
	}
	tree := (&Builder{}).Build(aabbs)

	var visited []int
	tree.Traverse(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0}, 100, func(i int, tMax float32) float32 {
		visited = append(visited, i)
		return tMax
	})
	assert.ElementsMatch(t, []int{0, 1}, visited)

	visited = visited[:0]
	tree.Traverse(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0}, 8, func(i int, tMax float32) float32 {
		visited = append(visited, i)
		return tMax
	})
	assert.Equal(t, []int{0}, visited)
}

func TestRayBox(t *testing.T) {
	inv := mgl32.Vec3{1, float32(1) / 0.0000001, float32(1) / 0.0000001}
	tHit, ok := RayBox(mgl32.Vec3{0, 0, 0}, inv, mgl32.Vec3{2, -1, -1}, mgl32.Vec3{3, 1, 1}, 100)
	require.True(t, ok)
	assert.InDelta(t, 2, tHit, 1e-5)

	_, ok = RayBox(mgl32.Vec3{0, 5, 0}, inv, mgl32.Vec3{2, -1, -1}, mgl32.Vec3{3, 1, 1}, 100)
	assert.False(t, ok)
}
