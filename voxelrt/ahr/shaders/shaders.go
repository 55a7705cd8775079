// Package shaders holds the WGSL compute and present passes of the wgpu backend.
package shaders

import (
	_ "embed"
)

//go:embed voxelize.wgsl
var VoxelizeWGSL string

//go:embed combine.wgsl
var CombineWGSL string

//go:embed trace.wgsl
var TraceWGSL string

//go:embed upsample.wgsl
var UpsampleWGSL string

//go:embed blur.wgsl
var BlurWGSL string

//go:embed composite.wgsl
var CompositeWGSL string

//go:embed present.wgsl
var PresentWGSL string
