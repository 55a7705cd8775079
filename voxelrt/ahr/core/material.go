package core

// PaletteState is the per-material bookkeeping the voxelizer reads and writes.
// A material counts as stored for a frame when Frame equals that frame number,
// so the flag resets itself when the frame counter advances.
type PaletteState struct {
	Frame uint64
	Index uint8
}

func (s PaletteState) StoredIn(frame uint64) bool {
	return s.Frame == frame && s.Index != 0
}

type Material struct {
	Name           string
	BaseColor      [4]uint8 // RGBA
	Emissive       [4]uint8 // RGBA
	InjectEmissive bool
	Palette        PaletteState
}

func NewMaterial(name string, baseColor [4]uint8) *Material {
	return &Material{
		Name:      name,
		BaseColor: baseColor,
	}
}

// NewEmissiveMaterial returns a material that injects its emissive color into the GI grid.
func NewEmissiveMaterial(name string, emissive [4]uint8) *Material {
	return &Material{
		Name:           name,
		BaseColor:      [4]uint8{255, 255, 255, 255},
		Emissive:       emissive,
		InjectEmissive: true,
	}
}

func (m *Material) ShouldInjectEmissiveIntoDynamicGI() bool {
	return m != nil && m.InjectEmissive
}

func (m *Material) EmissiveColor() [4]uint8 {
	return m.Emissive
}

// Helper for default white
func DefaultMaterial() *Material {
	return NewMaterial("default", [4]uint8{255, 255, 255, 255})
}
