package ahr

import (
	"errors"

	"github.com/gekko3d/ahr/voxelrt/ahr/device"
)

var (
	ErrUnsupported  = device.ErrUnsupported
	ErrAllocation   = device.ErrAllocation
	ErrViewTooSmall = errors.New("view below minimum size")
)
