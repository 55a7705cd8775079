// Package palette maps emissive materials to one-byte indices for the emissive volume.
package palette

import "github.com/gekko3d/ahr/voxelrt/ahr/core"

const (
	Size = 256
	// MaxEntries is the number of usable slots; index 0 is background.
	MaxEntries = Size - 1
)

type Table [Size][4]uint8

// Palette is rebuilt every frame. The snapshot of the last committed table lets
// the caller skip the lookup texture upload when nothing changed.
type Palette struct {
	frame    uint64
	table    Table
	next     int
	dropped  int
	snapshot Table
	hasSnap  bool
}

func New() *Palette {
	return &Palette{next: 1}
}

// Begin starts a new frame. Materials stamped with an older frame are treated as not stored.
func (p *Palette) Begin(frame uint64) {
	p.frame = frame
	p.table = Table{}
	p.next = 1
	p.dropped = 0
}

func (p *Palette) Frame() uint64 {
	return p.frame
}

// Assign returns the palette index for m, handing out the next free slot the
// first time m is seen this frame. ok is false once all 255 slots are used.
func (p *Palette) Assign(m *core.Material) (uint8, bool) {
	if m.Palette.StoredIn(p.frame) {
		return m.Palette.Index, true
	}
	if p.next > MaxEntries {
		p.drop(m)
		return 0, false
	}
	idx := uint8(p.next)
	p.next++
	p.table[idx] = m.EmissiveColor()
	m.Palette = core.PaletteState{Frame: p.frame, Index: idx}
	return idx, true
}

// Reserve gives m the fixed slot idx for this frame, so that volumes written on
// an earlier frame keep resolving to m. Index 0 marks m as dropped. Reserve
// must run before Assign in a frame.
func (p *Palette) Reserve(m *core.Material, idx uint8) bool {
	if idx == 0 {
		p.drop(m)
		return false
	}
	p.table[idx] = m.EmissiveColor()
	m.Palette = core.PaletteState{Frame: p.frame, Index: idx}
	p.next = max(p.next, int(idx)+1)
	return true
}

// drop counts m once per frame, however many times it is offered.
func (p *Palette) drop(m *core.Material) {
	if m.Palette.Frame == p.frame && m.Palette.Index == 0 && p.frame != 0 {
		return
	}
	p.dropped++
	m.Palette = core.PaletteState{Frame: p.frame}
}

// Index returns m's index for the current frame, or 0 when it has none.
func (p *Palette) Index(m *core.Material) uint8 {
	if m == nil || !m.Palette.StoredIn(p.frame) {
		return 0
	}
	return m.Palette.Index
}

// Len is the number of assigned entries, not counting the reserved one.
func (p *Palette) Len() int {
	return p.next - 1
}

// Dropped counts the distinct materials left without a slot this frame.
func (p *Palette) Dropped() int {
	return p.dropped
}

// Changed reports whether the working table differs from the last committed one.
func (p *Palette) Changed() bool {
	return !p.hasSnap || p.table != p.snapshot
}

func (p *Palette) Commit() {
	p.snapshot = p.table
	p.hasSnap = true
}

func (p *Palette) Table() *Table {
	return &p.table
}

// Invalidate forces the next Changed call to report true.
func (p *Palette) Invalidate() {
	p.hasSnap = false
}
