// Package bvh is a median split bounding volume hierarchy over primitive bounds.
package bvh

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

type Node struct {
	Min       mgl32.Vec3
	Max       mgl32.Vec3
	Left      int32
	Right     int32
	LeafFirst int32 // item index for leaves, -1 otherwise
	LeafCount int32
}

func (n *Node) IsLeaf() bool {
	return n.LeafCount > 0
}

type item struct {
	min      mgl32.Vec3
	max      mgl32.Vec3
	centroid mgl32.Vec3
	index    int
}

type Tree struct {
	Nodes []Node
}

type Builder struct{}

// Build returns a tree with one leaf per box. Box i is reported as index i.
func (b *Builder) Build(aabbs [][2]mgl32.Vec3) *Tree {
	t := &Tree{}
	if len(aabbs) == 0 {
		return t
	}
	items := make([]item, len(aabbs))
	for i, bounds := range aabbs {
		items[i] = item{
			min:      bounds[0],
			max:      bounds[1],
			centroid: bounds[0].Add(bounds[1]).Mul(0.5),
			index:    i,
		}
	}
	b.recursiveBuild(items, &t.Nodes)
	return t
}

func (b *Builder) recursiveBuild(items []item, nodes *[]Node) int32 {
	idx := int32(len(*nodes))
	*nodes = append(*nodes, Node{Left: -1, Right: -1, LeafFirst: -1})

	inf := float32(math.Inf(1))
	minB := mgl32.Vec3{inf, inf, inf}
	maxB := mgl32.Vec3{-inf, -inf, -inf}
	for _, it := range items {
		for a := 0; a < 3; a++ {
			minB[a] = min(minB[a], it.min[a])
			maxB[a] = max(maxB[a], it.max[a])
		}
	}
	(*nodes)[idx].Min = minB
	(*nodes)[idx].Max = maxB

	if len(items) == 1 {
		(*nodes)[idx].LeafFirst = int32(items[0].index)
		(*nodes)[idx].LeafCount = 1
		return idx
	}

	extent := maxB.Sub(minB)
	axis := 0
	if extent.Y() > extent.X() {
		axis = 1
	}
	if extent.Z() > extent[axis] {
		axis = 2
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].centroid[axis] < items[j].centroid[axis]
	})

	mid := len(items) / 2
	left := b.recursiveBuild(items[:mid], nodes)
	right := b.recursiveBuild(items[mid:], nodes)
	(*nodes)[idx].Left = left
	(*nodes)[idx].Right = right
	return idx
}

// Traverse calls visit for every leaf whose box the ray enters before tMax.
// visit returns a new tMax (or the old one) so closer hits prune the walk.
func (t *Tree) Traverse(origin, dir mgl32.Vec3, tMax float32, visit func(index int, tMax float32) float32) {
	if len(t.Nodes) == 0 {
		return
	}
	var inv mgl32.Vec3
	for a := 0; a < 3; a++ {
		inv[a] = 1 / dir[a]
	}
	stack := make([]int32, 0, 64)
	stack = append(stack, 0)
	for len(stack) > 0 {
		n := &t.Nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if _, ok := RayBox(origin, inv, n.Min, n.Max, tMax); !ok {
			continue
		}
		if n.IsLeaf() {
			tMax = visit(int(n.LeafFirst), tMax)
			continue
		}
		stack = append(stack, n.Left, n.Right)
	}
}

// RayBox is the slab test. invDir holds 1/dir per axis (may be +-Inf).
func RayBox(origin, invDir, bmin, bmax mgl32.Vec3, tMax float32) (float32, bool) {
	tNear := float32(0)
	tFar := tMax
	for a := 0; a < 3; a++ {
		t0 := (bmin[a] - origin[a]) * invDir[a]
		t1 := (bmax[a] - origin[a]) * invDir[a]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		// NaN from 0*Inf means the ray runs inside the slab on this axis.
		if t0 == t0 {
			tNear = max(tNear, t0)
		}
		if t1 == t1 {
			tFar = min(tFar, t1)
		}
		if tNear > tFar {
			return 0, false
		}
	}
	return tNear, true
}
