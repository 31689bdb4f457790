// Package storage defines the byte-storage device contract that the
// journal engine is built on, along with the ranged view used to scope
// device operations to a single sector or record.
package storage

import (
	"context"
	"io"
	"time"
)

// ByteStorage represents external byte-addressable storage that can only
// be erased at sector granularity (e.g. NOR flash). Program operations
// are bitwise-AND into the existing contents; turning a programmed bit
// back to 1 requires erasing the whole sector it lives in.
//
// Every blocking operation takes a context.Context. Implementations are
// expected to check ctx between internal steps, the same places the
// original cooperative-task implementation would yield.
type ByteStorage interface {
	// Size returns the total addressable size of the device in bytes.
	Size() uint32
	// SectorSize returns the erase granularity in bytes. Always a power of two.
	SectorSize() uint32
	// SectorSizeBits returns the number of bits covered by SectorSize.
	SectorSizeBits() uint
	// SectorMask returns SectorSize() - 1.
	SectorMask() uint32
	// SectorAddress returns the address of the first byte of addr's sector.
	SectorAddress(addr uint32) uint32
	// IsSameSector reports whether a and b fall within the same sector.
	IsSameSector(a, b uint32) bool
	// SectorRemaining returns the number of bytes from addr to the end of its sector.
	SectorRemaining(addr uint32) uint32

	// Read reads len(data) bytes starting at addr. Out-of-range addr/length
	// is reported as ErrOutOfRange; it is a caller bug.
	Read(ctx context.Context, addr uint32, data []byte) (int, error)
	// ReadToRegister reads length bytes starting at addr, writing each byte
	// into reg in turn (the Go analogue of streaming into a fixed hardware
	// register). Exposed for interface completeness; the journal engine
	// never calls it.
	ReadToRegister(ctx context.Context, addr uint32, reg []byte, length uint32) (int, error)
	// ReadToPipe streams length bytes starting at addr to w, honoring timeout.
	// A short write due to timeout is reported as a short count, not an error.
	ReadToPipe(ctx context.Context, w io.Writer, addr uint32, length uint32, timeout time.Duration) (int, error)

	// Program performs data[i] -> device[addr+i] &= data[i] for each byte.
	// The caller must ensure any bit it wants to see as 0 is currently 1;
	// violating this is undefined and is not detected here.
	Program(ctx context.Context, addr uint32, data []byte) error
	// WriteFromPipe streams up to length bytes from r to addr, honoring timeout.
	WriteFromPipe(ctx context.Context, r io.Reader, addr uint32, length uint32, timeout time.Duration) (int, error)
	// Fill programs length bytes at addr with value (AND semantics, as Program).
	Fill(ctx context.Context, addr uint32, value byte, length uint32) error

	// IsAll reports whether every byte in [addr, addr+length) equals value.
	IsAll(ctx context.Context, addr uint32, value byte, length uint32) (bool, error)
	// IsEmpty reports whether [addr, addr+length) reads as all-ones.
	IsEmpty(ctx context.Context, addr uint32, length uint32) (bool, error)

	// Erase erases every sector intersecting [addr, addr+length). It
	// returns false only if no sector could be erased at all.
	Erase(ctx context.Context, addr uint32, length uint32) (bool, error)
	// EraseFirst erases exactly one sector within [addr, addr+length) and
	// returns the address of the next unaffected sector. A return value
	// equal to addr means nothing was erased.
	EraseFirst(ctx context.Context, addr uint32, length uint32) (uint32, error)
	// Sync returns once all previously issued Program/Fill/Erase calls have completed.
	Sync(ctx context.Context) error

	// Span returns a ranged view over [addr, addr+length).
	Span(addr uint32, length uint32) Span
	// SectorSpan returns a ranged view over the whole sector containing addr.
	SectorSpan(addr uint32) Span
	// RestOfSectorSpan returns a ranged view from addr to the end of its sector.
	RestOfSectorSpan(addr uint32) Span
}
