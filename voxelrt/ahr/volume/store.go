package volume

import (
	"errors"
	"fmt"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gekko3d/ahr/voxelrt/ahr/device"
)

// Set selects the static or dynamic half of the store.
type Set int

const (
	Static Set = iota
	Dynamic
)

func (s Set) String() string {
	if s == Static {
		return "static"
	}
	return "dynamic"
}

// Kind selects occupancy or emissive data.
type Kind int

const (
	Occupancy Kind = iota
	Emissive
)

func (k Kind) String() string {
	if k == Occupancy {
		return "occupancy"
	}
	return "emissive"
}

// Store is the only owner of the four volume buffers. Nothing else creates,
// resizes or releases them.
type Store struct {
	dev      device.Device
	buffers  [2][2]device.Buffer
	slice    [3]int
	reallocs int
}

func NewStore(dev device.Device) *Store {
	return &Store{dev: dev}
}

// EnsureCapacity recreates all four buffers when grid.SliceSize differs from the
// current sizing. It reports whether a reallocation happened. On failure the
// store is left empty so the next frame retries.
func (s *Store) EnsureCapacity(grid core.GridSettings) (bool, error) {
	if s.allocated() && s.slice == grid.SliceSize {
		return false, nil
	}
	s.Release()

	sizes := [2]uint64{OccupancyBytes(grid.SliceSize), EmissiveBytes(grid.SliceSize)}
	for _, set := range []Set{Static, Dynamic} {
		for _, kind := range []Kind{Occupancy, Emissive} {
			label := fmt.Sprintf("AHR %s %s", set, kind)
			buf, err := s.dev.CreateBuffer(label, sizes[kind])
			if err != nil {
				s.Release()
				return false, fmt.Errorf("failed to create %s volume (%d bytes): %w", label, sizes[kind], wrapAlloc(err))
			}
			s.buffers[set][kind] = buf
		}
	}
	s.slice = grid.SliceSize
	s.reallocs++
	return true, nil
}

func wrapAlloc(err error) error {
	if errors.Is(err, device.ErrAllocation) {
		return err
	}
	return fmt.Errorf("%w: %v", device.ErrAllocation, err)
}

func (s *Store) allocated() bool {
	for _, pair := range s.buffers {
		for _, b := range pair {
			if b == nil {
				return false
			}
		}
	}
	return true
}

func (s *Store) Volume(set Set, kind Kind) device.Buffer {
	return s.buffers[set][kind]
}

func (s *Store) Pair(set Set) device.VolumePair {
	return device.VolumePair{
		Occupancy: s.buffers[set][Occupancy],
		Emissive:  s.buffers[set][Emissive],
	}
}

// Reallocations counts successful EnsureCapacity calls that recreated the buffers.
func (s *Store) Reallocations() int {
	return s.reallocs
}

func (s *Store) SliceSize() [3]int {
	return s.slice
}

func (s *Store) Release() {
	for set := range s.buffers {
		for kind := range s.buffers[set] {
			if b := s.buffers[set][kind]; b != nil {
				b.Release()
				s.buffers[set][kind] = nil
			}
		}
	}
	s.slice = [3]int{}
}
