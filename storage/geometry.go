package storage

import "math/bits"

// Geometry implements the size/sector-size accessors shared by every
// ByteStorage implementation. Concrete devices embed it rather than
// re-deriving SectorAddress/IsSameSector/SectorRemaining themselves,
// mirroring how the original ByteStorage base class centralized these
// in terms of a single sectorMask field.
type Geometry struct {
	size       uint32
	sectorMask uint32
}

// NewGeometry validates that sectorSize is a power of two dividing size
// and returns the corresponding Geometry.
func NewGeometry(size, sectorSize uint32) (Geometry, error) {
	if sectorSize == 0 || bits.OnesCount32(sectorSize) != 1 {
		return Geometry{}, ErrBadGeometry
	}
	if size%sectorSize != 0 {
		return Geometry{}, ErrBadGeometry
	}
	return Geometry{size: size, sectorMask: sectorSize - 1}, nil
}

func (g Geometry) Size() uint32 { return g.size }

func (g Geometry) SectorSize() uint32 { return g.sectorMask + 1 }

func (g Geometry) SectorSizeBits() uint { return uint(bits.Len32(g.sectorMask)) }

func (g Geometry) SectorMask() uint32 { return g.sectorMask }

func (g Geometry) SectorAddress(addr uint32) uint32 { return addr &^ g.sectorMask }

func (g Geometry) IsSameSector(a, b uint32) bool { return (a^b)&^g.sectorMask == 0 }

func (g Geometry) SectorRemaining(addr uint32) uint32 { return (^addr & g.sectorMask) + 1 }

// SectorCount returns the number of sectors in the device.
func (g Geometry) SectorCount() uint32 { return g.size / g.SectorSize() }

// InRange reports whether [addr, addr+length) lies within [0, size).
func (g Geometry) InRange(addr, length uint32) bool {
	if addr > g.size {
		return false
	}
	end := addr + length
	return end >= addr && end <= g.size
}
