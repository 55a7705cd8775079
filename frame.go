package ahr

import (
	"time"

	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gekko3d/ahr/voxelrt/ahr/device"
)

// State is a step of the per-frame pipeline.
type State int

const (
	StateIdle State = iota
	StateGridResolved
	StateStaticVoxelized
	StateStaticSkipped
	StateDynamicVoxelized
	StateCombined
	StateTraced
	StateUpsampled
	StateComposited
)

var stateNames = [...]string{
	StateIdle:             "Idle",
	StateGridResolved:     "GridResolved",
	StateStaticVoxelized:  "StaticVoxelized",
	StateStaticSkipped:    "StaticSkipped",
	StateDynamicVoxelized: "DynamicVoxelized",
	StateCombined:         "Combined",
	StateTraced:           "Traced",
	StateUpsampled:        "Upsampled",
	StateComposited:       "Composited",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// SkipReason says why a frame contributed nothing.
type SkipReason int

const (
	NotSkipped SkipReason = iota
	SkipDisabled
	SkipUnsupported
	SkipNoView
	SkipViewTooSmall
	SkipAllocation
	SkipDeviceError
)

func (r SkipReason) String() string {
	switch r {
	case NotSkipped:
		return "none"
	case SkipDisabled:
		return "disabled"
	case SkipUnsupported:
		return "unsupported feature level"
	case SkipNoView:
		return "no view"
	case SkipViewTooSmall:
		return "view too small"
	case SkipAllocation:
		return "allocation failed"
	case SkipDeviceError:
		return "device error"
	default:
		return "unknown"
	}
}

// Frame is everything the frame driver hands the pipeline for one view.
type Frame struct {
	Primitives []*core.Primitive
	View       *core.View
	// Bounds of the scene to voxelize. The zero value means "fit the primitives".
	Bounds core.SceneBounds
	Lights []core.Light
	// Target is the lighting accumulation buffer, the size of View.
	Target device.Image
	// Trace overrides the configured ray settings for this view. The
	// reflections toggle always comes from the configuration.
	Trace *device.TraceSettings
}

type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// Report describes what one RenderFrame call did.
type Report struct {
	Frame   uint64
	States  []State
	Skipped SkipReason
	Err     error

	Grid        core.GridSettings
	Reallocated bool

	StaticRebuildTriggered bool
	StaticVoxelized        bool
	StaticCleared          bool
	PaletteChanged         bool
	PaletteEntries         int
	PaletteDropped         int
	LightsDropped          int

	Timings []StageTiming
}

// Completed reports whether the frame went all the way to composite.
func (r *Report) Completed() bool {
	return r.Skipped == NotSkipped && r.Err == nil
}

func (r *Report) enter(s State) {
	r.States = append(r.States, s)
}
