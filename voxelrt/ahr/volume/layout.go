// Package volume owns the four voxel buffers and the packed layout they share.
package volume

// Occupancy is 1 bit per cell packed into 32-bit words; emissive is 1 byte per
// cell packed 4 per word. Cells are linearised x-fastest.

func Cells(slice [3]int) int {
	return slice[0] * slice[1] * slice[2]
}

func OccupancyWords(slice [3]int) int {
	return (Cells(slice) + 31) / 32
}

func EmissiveWords(slice [3]int) int {
	return (Cells(slice) + 3) / 4
}

func OccupancyBytes(slice [3]int) uint64 {
	return uint64(OccupancyWords(slice)) * 4
}

func EmissiveBytes(slice [3]int) uint64 {
	return uint64(EmissiveWords(slice)) * 4
}

func CellIndex(x, y, z int, slice [3]int) int {
	return x + y*slice[0] + z*slice[0]*slice[1]
}

func Bit(words []uint32, cell int) bool {
	return words[cell>>5]&(1<<(uint(cell)&31)) != 0
}

func SetBit(words []uint32, cell int) {
	words[cell>>5] |= 1 << (uint(cell) & 31)
}

func Byte(words []uint32, cell int) uint8 {
	return uint8(words[cell>>2] >> ((uint(cell) & 3) * 8))
}

func SetByte(words []uint32, cell int, v uint8) {
	shift := (uint(cell) & 3) * 8
	words[cell>>2] = words[cell>>2]&^(0xFF<<shift) | uint32(v)<<shift
}

// SetByteIfZero writes v only when the cell is still empty.
func SetByteIfZero(words []uint32, cell int, v uint8) bool {
	if Byte(words, cell) != 0 {
		return false
	}
	SetByte(words, cell, v)
	return true
}
