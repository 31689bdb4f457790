// Package memdevice provides an in-memory ByteStorage double for tests,
// grounded on the original TestByteStorage harness: a flat byte buffer
// that enforces AND-semantics programming and sector-granularity erase,
// with optional simulated per-operation latency.
package memdevice

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/google/uuid"

	"github.com/minuteos/lib-storage/storage"
)

// ErrEraseRangeInvalid describes an erase range that does not cover at
// least one whole sector. EraseFirst does not return it: it reports such
// a range by returning addr unchanged with a nil error.
var ErrEraseRangeInvalid = errors.New("memdevice: erase range does not cover a whole sector")

// Device is an in-memory NOR-flash-like byte storage double. It is not
// safe for concurrent use; the journal engine it backs is single-threaded
// by design (see spec §5).
type Device struct {
	storage.Geometry
	data []byte
	log  logger.Logger
	id   uuid.UUID

	readLatency  time.Duration
	progLatency  time.Duration
	eraseLatency time.Duration

	reads, programs, erases int
}

// Option configures a Device at construction time.
type Option func(*Device)

// WithLogger installs a structured logger for read/program/erase tracing.
func WithLogger(log logger.Logger) Option {
	return func(d *Device) { d.log = log }
}

// WithLatency simulates per-operation delay, scaled by byte count for
// reads/programs and applied once per erased sector. Zero (the default)
// makes every operation return immediately, matching TestByteStorage's
// MakeSync().
func WithLatency(read, program, erase time.Duration) Option {
	return func(d *Device) {
		d.readLatency = read
		d.progLatency = program
		d.eraseLatency = erase
	}
}

// New creates a Device of size bytes with the given sector size, already
// fully erased (all bytes 0xFF).
func New(size, sectorSize uint32, opts ...Option) (*Device, error) {
	geom, err := storage.NewGeometry(size, sectorSize)
	if err != nil {
		return nil, err
	}
	d := &Device{
		Geometry: geom,
		data:     make([]byte, size),
		log:      logger.New("NOOP"),
		id:       uuid.New(),
	}
	for i := range d.data {
		d.data[i] = 0xFF
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Bytes returns the raw backing buffer. Intended for assertions in tests
// and for constructing a fresh Device over a byte-identical snapshot to
// exercise restart recovery (spec §8 scenario 5).
func (d *Device) Bytes() []byte { return d.data }

func (d *Device) checkRange(addr, length uint32) error {
	if !d.InRange(addr, length) {
		return storage.ErrOutOfRange
	}
	return nil
}

func (d *Device) wait(ctx context.Context, per time.Duration, n int) error {
	if per == 0 || n == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(per * time.Duration(n))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Device) Read(ctx context.Context, addr uint32, data []byte) (int, error) {
	if err := d.checkRange(addr, uint32(len(data))); err != nil {
		return 0, err
	}
	if err := d.wait(ctx, d.readLatency, len(data)); err != nil {
		return 0, err
	}
	n := copy(data, d.data[addr:])
	d.reads++
	d.log.Debugf("memdevice: read %d bytes @ %#x", n, addr)
	return n, nil
}

func (d *Device) ReadToRegister(ctx context.Context, addr uint32, reg []byte, length uint32) (int, error) {
	if err := d.checkRange(addr, length); err != nil {
		return 0, err
	}
	if int(length) > len(reg) {
		length = uint32(len(reg))
	}
	return d.Read(ctx, addr, reg[:length])
}

func (d *Device) ReadToPipe(ctx context.Context, w io.Writer, addr uint32, length uint32, timeout time.Duration) (int, error) {
	if err := d.checkRange(addr, length); err != nil {
		return 0, err
	}
	pctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	buf := make([]byte, length)
	n, err := d.Read(pctx, addr, buf)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return 0, err
	}
	wn, werr := w.Write(buf[:n])
	return wn, werr
}

func (d *Device) Program(ctx context.Context, addr uint32, data []byte) error {
	if err := d.checkRange(addr, uint32(len(data))); err != nil {
		return err
	}
	if err := d.wait(ctx, d.progLatency, len(data)); err != nil {
		return err
	}
	for i, b := range data {
		d.data[addr+uint32(i)] &= b
	}
	d.programs++
	d.log.Debugf("memdevice: program %d bytes @ %#x", len(data), addr)
	return nil
}

func (d *Device) WriteFromPipe(ctx context.Context, r io.Reader, addr uint32, length uint32, timeout time.Duration) (int, error) {
	if err := d.checkRange(addr, length); err != nil {
		return 0, err
	}
	pctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	buf := make([]byte, length)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if perr := d.Program(pctx, addr, buf[:n]); perr != nil && !errors.Is(perr, context.DeadlineExceeded) {
		return 0, perr
	}
	return n, nil
}

func (d *Device) Fill(ctx context.Context, addr uint32, value byte, length uint32) error {
	if err := d.checkRange(addr, length); err != nil {
		return err
	}
	if err := d.wait(ctx, d.progLatency, int(length)); err != nil {
		return err
	}
	for i := uint32(0); i < length; i++ {
		d.data[addr+i] &= value
	}
	d.programs++
	return nil
}

func (d *Device) IsAll(ctx context.Context, addr uint32, value byte, length uint32) (bool, error) {
	if err := d.checkRange(addr, length); err != nil {
		return false, err
	}
	if length == 0 {
		return true, nil
	}
	if err := d.wait(ctx, d.readLatency, int(length)); err != nil {
		return false, err
	}
	for i := uint32(0); i < length; i++ {
		if d.data[addr+i] != value {
			return false, nil
		}
	}
	return true, nil
}

func (d *Device) IsEmpty(ctx context.Context, addr uint32, length uint32) (bool, error) {
	return d.IsAll(ctx, addr, 0xFF, length)
}

func (d *Device) Erase(ctx context.Context, addr uint32, length uint32) (bool, error) {
	if err := d.checkRange(addr, length); err != nil {
		return false, err
	}
	mask := d.SectorMask()
	start := addr &^ mask
	end := (addr + length + mask) &^ mask
	for start < end {
		next, err := d.EraseFirst(ctx, start, end-start)
		if err != nil {
			return false, err
		}
		if next == start {
			return false, nil
		}
		start = next
	}
	return true, nil
}

func (d *Device) EraseFirst(ctx context.Context, addr uint32, length uint32) (uint32, error) {
	if err := d.checkRange(addr, length); err != nil {
		return addr, err
	}
	mask := d.SectorMask()
	start := addr &^ mask
	end := (addr + length + mask) &^ mask
	if start+d.SectorSize() > end {
		d.log.Debugf("memdevice: invalid erase range %#x-%#x", start, end)
		return addr, nil
	}
	end = start + d.SectorSize()
	if err := d.wait(ctx, d.eraseLatency, 1); err != nil {
		return addr, err
	}
	for i := start; i < end; i++ {
		d.data[i] = 0xFF
	}
	d.erases++
	d.log.Debugf("memdevice: erased sector @ %#x", start)
	return end, nil
}

func (d *Device) Sync(ctx context.Context) error {
	return ctx.Err()
}

func (d *Device) Span(addr, length uint32) storage.Span {
	return storage.NewSpan(d, addr, length)
}

func (d *Device) SectorSpan(addr uint32) storage.Span {
	return storage.SectorSpanOf(d, addr)
}

func (d *Device) RestOfSectorSpan(addr uint32) storage.Span {
	return storage.RestOfSectorSpanOf(d, addr)
}

// Stats reports operation counters, useful in tests asserting that a
// blank-checked sector skips an unnecessary erase cycle.
type Stats struct {
	Reads, Programs, Erases int
}

func (d *Device) Stats() Stats {
	return Stats{Reads: d.reads, Programs: d.programs, Erases: d.erases}
}

// ID returns the device's diagnostic identity, stamped once at construction.
func (d *Device) ID() uuid.UUID { return d.id }
