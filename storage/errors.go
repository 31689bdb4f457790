package storage

import "errors"

var (
	// ErrOutOfRange is returned when an address/length pair falls outside
	// the bounds of the device or the span it was requested against.
	ErrOutOfRange = errors.New("storage: address range out of bounds")

	// ErrBadGeometry is returned by device constructors when the sector
	// size is not a power of two, or does not evenly divide the total size.
	ErrBadGeometry = errors.New("storage: sector size must be a power of two dividing the device size")
)
