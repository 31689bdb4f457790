package journal

import (
	"context"
	"encoding/binary"

	"github.com/minuteos/lib-storage/storage"
)

const (
	sectorHeaderSize = 8 // magic(4) + sequence(4)
	recordHeaderSize = 2 // size-with-flags(2)

	recordUnfinishedBit = uint16(0x8000)
	recordSizeMask      = uint16(0x7FFF)
	recordEmptyMarker   = uint16(0xFFFF)

	// MaxSimpleVariablePayload is the largest payload a SimpleVariableFormat
	// record header can frame: 15 bits of length.
	MaxSimpleVariablePayload = uint32(recordSizeMask)
)

// SimpleVariableFormat is the concrete codec from the spec: an 8-byte
// sector header (magic, sequence) and a 2-byte record header (size with
// bit 15 reserved as the uncommitted flag). Magic must be non-zero. Only
// a header that is all-ones in all 8 bytes reads back as an empty sector;
// an all-ones magic with a programmed sequence reads back as Bad.
type SimpleVariableFormat struct {
	Magic uint32
}

var _ Format = SimpleVariableFormat{}

func (f SimpleVariableFormat) MaxPayload() uint32 { return MaxSimpleVariablePayload }

// ScanSector implements Format. Write order in InitSector (sequence
// before magic) makes a sector torn between the two program operations
// scan as Bad here, not as a falsely-Valid sector with a stale sequence.
func (f SimpleVariableFormat) ScanSector(ctx context.Context, sector storage.Span, info *SectorInfo, preceding *SectorInfo) error {
	var hdr [sectorHeaderSize]byte
	if _, err := sector.Read(ctx, 0, hdr[:]); err != nil {
		return err
	}

	magic := binary.LittleEndian.Uint32(hdr[0:4])
	sequence := binary.LittleEndian.Uint32(hdr[4:8])

	info.FirstRecord = sectorHeaderSize
	info.Sequence = sequence
	info.FixedRecordSize = 0

	switch {
	case isAllOnes(hdr[:]):
		info.State = SectorEmpty
	case magic != f.Magic:
		info.State = SectorBad
	case preceding != nil && sequence+1 == preceding.Sequence:
		info.State = SectorValidPreceding
	default:
		info.State = SectorValid
	}
	return nil
}

// ScanRecord implements Format.
func (f SimpleVariableFormat) ScanRecord(ctx context.Context, sectorRemaining storage.Span, sectorInfo SectorInfo, info *RecordInfo) (uint32, error) {
	var hdr [recordHeaderSize]byte
	if _, err := sectorRemaining.Read(ctx, 0, hdr[:]); err != nil {
		return 0, err
	}

	size := binary.LittleEndian.Uint16(hdr[:])
	payload := uint32(size & recordSizeMask)
	info.Payload = payload
	info.NextRecord = payload + recordHeaderSize

	switch {
	case size == recordEmptyMarker:
		info.State = RecordEmpty
	case size&recordUnfinishedBit != 0:
		info.State = RecordBad
	default:
		info.State = RecordValid
	}
	return recordHeaderSize, nil
}

// InitSector implements Format. The sequence is bumped from the sequence
// info holds on entry (treated as 0 when info is not Valid), and is
// programmed before the magic: the two-step write is what keeps a
// torn InitSector recoverable, see spec §7.
func (f SimpleVariableFormat) InitSector(ctx context.Context, erasedSector storage.Span, info *SectorInfo) error {
	next := uint32(1)
	if info.IsValid() {
		next = info.Sequence + 1
	}

	var seq [4]byte
	binary.LittleEndian.PutUint32(seq[:], next)
	if err := erasedSector.Program(ctx, 4, seq[:]); err != nil {
		return err
	}

	var magic [4]byte
	binary.LittleEndian.PutUint32(magic[:], f.Magic)
	if err := erasedSector.Program(ctx, 0, magic[:]); err != nil {
		return err
	}

	info.Sequence = next
	info.FirstRecord = sectorHeaderSize
	info.FixedRecordSize = 0
	info.State = SectorValid
	return nil
}

// InitRecord implements Format. Payload is clamped to the format's
// maximum, and, only when the cursor sits at the very first record
// position in the sector, further clamped to what's left in the sector.
// A later record that requests more than remains is reported Bad and
// left for the caller to rotate into a fresh sector — this asymmetry is
// the original's actual behavior and is covered by a dedicated test
// (oversize records, spec §8 scenario 4).
func (f SimpleVariableFormat) InitRecord(ctx context.Context, sectorRemaining storage.Span, info *RecordInfo, payloadLen uint32) (uint32, error) {
	if payloadLen > MaxSimpleVariablePayload {
		payloadLen = MaxSimpleVariablePayload
	}

	dev := sectorRemaining.Storage()
	atFirstRecord := sectorRemaining.Offset()&dev.SectorMask() == sectorHeaderSize
	if atFirstRecord && sectorRemaining.Size() >= recordHeaderSize {
		if max := sectorRemaining.Size() - recordHeaderSize; payloadLen > max {
			payloadLen = max
		}
	}

	if uint32(recordHeaderSize)+payloadLen > sectorRemaining.Size() {
		info.State = RecordBad
		info.NextRecord = 0
		return 0, nil
	}

	size := uint16(payloadLen) | recordUnfinishedBit
	var hdr [recordHeaderSize]byte
	binary.LittleEndian.PutUint16(hdr[:], size)
	if err := sectorRemaining.Program(ctx, 0, hdr[:]); err != nil {
		return 0, err
	}

	info.Payload = payloadLen
	info.NextRecord = recordHeaderSize + payloadLen
	info.State = RecordValid
	return recordHeaderSize, nil
}

// CommitRecord implements Format: clearing the uncommitted bit is a
// single AND-program of the 2-byte header, so it can never be observed
// half-done (spec §7 case 4).
func (f SimpleVariableFormat) CommitRecord(ctx context.Context, payload storage.Span) error {
	dev := payload.Storage()
	headerAddr := payload.Offset() - recordHeaderSize
	var mask [recordHeaderSize]byte
	binary.LittleEndian.PutUint16(mask[:], recordSizeMask)
	return dev.Program(ctx, headerAddr, mask[:])
}

func isAllOnes(b []byte) bool {
	for _, c := range b {
		if c != 0xFF {
			return false
		}
	}
	return true
}
