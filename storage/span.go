package storage

import (
	"context"
	"io"
	"time"
)

// Span is a ranged (device, addr, length) view that delegates every
// operation to the underlying ByteStorage with addresses relative to
// addr and lengths clamped to the span's own length. It is the Go
// rendering of ByteStorageSpan: the format codec reads and programs
// headers through a Span scoped to a sector or the rest of one.
type Span struct {
	dev    ByteStorage
	addr   uint32
	length uint32
}

// NewSpan constructs a Span over dev, with bounds checked against the
// device's total size: addr and addr+length must both fall in [0, dev.Size()].
func NewSpan(dev ByteStorage, addr, length uint32) Span {
	if addr > dev.Size() || addr+length > dev.Size() || addr+length < addr {
		panic(ErrOutOfRange)
	}
	return Span{dev: dev, addr: addr, length: length}
}

// Size returns the length of the span.
func (s Span) Size() uint32 { return s.length }

// Offset returns the span's starting address within its device.
func (s Span) Offset() uint32 { return s.addr }

// Storage returns the underlying device.
func (s Span) Storage() ByteStorage { return s.dev }

// limitLength clamps a caller-requested length at offset to what
// actually remains in the span, matching ByteStorageSpan::LimitLength:
// negative residuals (offset beyond the span) silently become zero.
func (s Span) limitLength(offset, length uint32) uint32 {
	if offset >= s.length {
		return 0
	}
	remaining := s.length - offset
	if length < remaining {
		return length
	}
	return remaining
}

func (s Span) Read(ctx context.Context, offset uint32, data []byte) (int, error) {
	n := int(s.limitLength(offset, uint32(len(data))))
	return s.dev.Read(ctx, s.addr+offset, data[:n])
}

func (s Span) ReadToRegister(ctx context.Context, offset uint32, reg []byte, length uint32) (int, error) {
	length = s.limitLength(offset, length)
	return s.dev.ReadToRegister(ctx, s.addr+offset, reg, length)
}

func (s Span) ReadToPipe(ctx context.Context, w io.Writer, offset uint32, length uint32, timeout time.Duration) (int, error) {
	length = s.limitLength(offset, length)
	return s.dev.ReadToPipe(ctx, w, s.addr+offset, length, timeout)
}

func (s Span) Program(ctx context.Context, offset uint32, data []byte) error {
	n := int(s.limitLength(offset, uint32(len(data))))
	return s.dev.Program(ctx, s.addr+offset, data[:n])
}

func (s Span) WriteFromPipe(ctx context.Context, r io.Reader, offset uint32, length uint32, timeout time.Duration) (int, error) {
	length = s.limitLength(offset, length)
	return s.dev.WriteFromPipe(ctx, r, s.addr+offset, length, timeout)
}

func (s Span) Fill(ctx context.Context, offset uint32, value byte, length uint32) error {
	length = s.limitLength(offset, length)
	return s.dev.Fill(ctx, s.addr+offset, value, length)
}

func (s Span) IsAll(ctx context.Context, offset uint32, value byte, length uint32) (bool, error) {
	length = s.limitLength(offset, length)
	return s.dev.IsAll(ctx, s.addr+offset, value, length)
}

func (s Span) IsEmpty(ctx context.Context, offset uint32, length uint32) (bool, error) {
	return s.IsAll(ctx, offset, 0xFF, length)
}
