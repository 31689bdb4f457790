// Package journal implements a log-structured ring journal over a
// storage.ByteStorage: the sector/record format codec contract, one
// concrete "simple variable" format, and the journal engine that drives
// ring discipline, sector lifecycle, and record enumeration on top of it.
package journal

import (
	"context"

	"github.com/minuteos/lib-storage/storage"
)

// SectorState classifies a sector as scanned by a Format.
type SectorState int

const (
	// SectorBad means a header is present but not recognized (magic
	// mismatch, or a torn write left an inconsistent header).
	SectorBad SectorState = iota
	// SectorEmpty means the sector header reads as all-ones: nothing has
	// ever been written here since the last erase.
	SectorEmpty
	// SectorValid means the header carries a recognized magic and sequence.
	SectorValid
	// SectorValidPreceding is SectorValid, with the additional fact that
	// the sector's sequence is exactly one less than a reference sector's
	// sequence. Only produced when ScanSector is given a preceding hint.
	SectorValidPreceding
)

// SectorInfo is the result of scanning, initializing, or re-initializing a
// sector header.
type SectorInfo struct {
	State           SectorState
	Sequence        uint32
	FirstRecord     uint32
	FixedRecordSize uint32
}

func (si SectorInfo) IsBad() bool       { return si.State == SectorBad }
func (si SectorInfo) IsEmpty() bool     { return si.State == SectorEmpty }
func (si SectorInfo) IsValid() bool     { return si.State >= SectorValid }
func (si SectorInfo) IsPreceding() bool { return si.State == SectorValidPreceding }

// RecordState classifies a record as scanned, allocated, or committed by a Format.
type RecordState int

const (
	// RecordBad means a header is present but marks the record as
	// torn/incomplete or otherwise inconsistent.
	RecordBad RecordState = iota
	// RecordEmpty means the header reads as all-ones: no further records
	// follow in this sector.
	RecordEmpty
	// RecordValid means the record is framed and, after CommitRecord, committed.
	RecordValid
)

// RecordInfo is the result of scanning or allocating a record.
type RecordInfo struct {
	State RecordState
	// NextRecord is the offset of the record following this one, measured
	// from the start of the span the operation was given (not from this
	// record's own header).
	NextRecord uint32
	// Payload is the record's payload length in bytes.
	Payload uint32
}

func (ri RecordInfo) IsBad() bool   { return ri.State == RecordBad }
func (ri RecordInfo) IsEmpty() bool { return ri.State == RecordEmpty }
func (ri RecordInfo) IsValid() bool { return ri.State == RecordValid }

// Format encodes and decodes the on-media sector and record layout. It is
// stateless beyond its own configuration (e.g. the magic value); all
// mutable scan/allocation state lives in the SectorInfo/RecordInfo the
// caller passes in.
type Format interface {
	// ScanSector reads sector's header and classifies it. preceding, when
	// non-nil, is the SectorInfo of a sector this one is suspected to
	// immediately precede in sequence; when the header's sequence is
	// exactly preceding.Sequence-1, info.State is set to SectorValidPreceding.
	ScanSector(ctx context.Context, sector storage.Span, info *SectorInfo, preceding *SectorInfo) error

	// ScanRecord reads the next record header at offset 0 of
	// sectorRemaining and classifies it. sectorInfo must be the SectorInfo
	// previously returned by ScanSector for the same sector. It returns the
	// offset of the record's payload from the start of sectorRemaining.
	ScanRecord(ctx context.Context, sectorRemaining storage.Span, sectorInfo SectorInfo, info *RecordInfo) (uint32, error)

	// InitSector programs a fresh header into an already-erased sector.
	// info carries, on entry, the SectorInfo whose sequence the new header
	// follows (the engine passes the previous last sector's info; a value
	// that is not Valid starts the sequence over), and the new sector's
	// state on return.
	InitSector(ctx context.Context, erasedSector storage.Span, info *SectorInfo) error

	// InitRecord reserves space for a record of up to payloadLen payload
	// bytes within sectorRemaining, in the reserved-but-uncommitted state.
	// It returns the offset of the payload from the start of sectorRemaining.
	InitRecord(ctx context.Context, sectorRemaining storage.Span, info *RecordInfo, payloadLen uint32) (uint32, error)

	// CommitRecord transitions a previously InitRecord'd record from
	// reserved to valid in a single program operation. payload must be the
	// span InitRecord's returned offset designates: payload.Offset() minus
	// the format's record header size must be the record's own sector.
	CommitRecord(ctx context.Context, payload storage.Span) error

	// MaxPayload returns the largest payload length the format can frame
	// in a single record, independent of available sector space.
	MaxPayload() uint32
}
