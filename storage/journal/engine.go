package journal

import (
	"context"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/minuteos/lib-storage/storage"
)

// Journal is a ring of sectors on top of a storage.ByteStorage, keyed by
// per-sector sequence number. It implements the journal engine from
// spec §4.3: recovery scan, record append with two-phase commit, sector
// rotation that drops the oldest sector when the ring is full, and
// forward/backward enumeration.
//
// Journal is not safe for concurrent use: Scan and BeginWrite mutate
// shared engine state and must not run concurrently on the same Journal
// (spec §5, "Engine state is not reentrant").
type Journal struct {
	device storage.ByteStorage
	format Format
	log    logger.Logger
	yield  func(ctx context.Context)

	firstSector, lastSector uint32
	freeOffset, maxRecord   uint32
	last                    SectorInfo
	scanned                 bool
}

// NewJournal constructs a Journal over device using format. Scan must be
// called before any other method.
func NewJournal(device storage.ByteStorage, format Format, opts ...Option) *Journal {
	initGlobalStats()
	j := &Journal{
		device: device,
		format: format,
		log:    logger.New("NOOP"),
		yield:  func(context.Context) {},
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

func seqGreater(a, b uint32) bool { return int32(a-b) > 0 }

func (j *Journal) nextSectorAddr(addr uint32) uint32 {
	addr += j.device.SectorSize()
	if addr == j.device.Size() {
		return 0
	}
	return addr
}

func (j *Journal) prevSectorAddr(addr uint32) uint32 {
	if addr == 0 {
		addr = j.device.Size()
	}
	return addr - j.device.SectorSize()
}

// Scan performs the recovery pass described in spec §4.3.1: classify
// every sector, pick the highest-sequence Valid sector as lastSector,
// walk its records to establish freeOffset, then walk backward while
// sectors remain sequence-adjacent to establish firstSector.
func (j *Journal) Scan(ctx context.Context) error {
	j.log.Infof("journal: scanning sectors")

	var (
		foundAny              bool
		bestAddr              uint32
		bestInfo              SectorInfo
		baseSeq               uint32
		badSectors, freeCount uint32
	)

	for addr := uint32(0); addr < j.device.Size(); addr += j.device.SectorSize() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var si SectorInfo
		if err := j.format.ScanSector(ctx, j.device.SectorSpan(addr), &si, nil); err != nil {
			return err
		}
		j.yield(ctx)

		switch {
		case si.IsEmpty():
			freeCount++
			continue
		case !si.IsValid():
			badSectors++
			GlobalStats().SectorsBad.Add(1)
			continue
		}

		j.log.Debugf("journal: sector %#x valid, seq %d", addr, si.Sequence)

		if !foundAny {
			baseSeq = si.Sequence
		} else if !(seqGreater(si.Sequence, bestInfo.Sequence) && seqGreater(si.Sequence, baseSeq)) {
			continue
		}

		foundAny = true
		bestAddr = addr
		bestInfo = si
	}

	sectorCount := j.device.Size() / j.device.SectorSize()
	j.log.Infof("journal: found %d free sectors out of %d (%d bad)", freeCount, sectorCount, badSectors)

	if !foundAny {
		j.log.Infof("journal: storage is empty")
		j.firstSector = 0
		j.lastSector = 0
		j.freeOffset = 0
		j.last = SectorInfo{}
		j.scanned = true
		GlobalStats().ScansCompleted.Add(1)
		return nil
	}

	j.lastSector = bestAddr
	j.log.Infof("journal: highest sequence sector @ %#x, seq %d", j.lastSector, bestInfo.Sequence)

	re := j.EnumerateRecords(j.lastSector)
	for {
		n, err := j.NextRecord(ctx, re)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}

	if re.IsEmpty() {
		j.freeOffset = re.r - j.lastSector
		j.log.Debugf("journal: last sector has free space @ %#x", re.r)
	} else {
		j.freeOffset = 0
		j.log.Debugf("journal: last sector is full or corrupted @ %#x", re.r)
	}

	siFirst := bestInfo
	j.firstSector = j.lastSector
	for addr := j.prevSectorAddr(j.lastSector); addr != j.lastSector; addr = j.prevSectorAddr(addr) {
		if err := ctx.Err(); err != nil {
			return err
		}
		var si SectorInfo
		if err := j.format.ScanSector(ctx, j.device.SectorSpan(addr), &si, &siFirst); err != nil {
			return err
		}
		j.yield(ctx)

		if si.IsPreceding() {
			j.firstSector = addr
			siFirst = si
			continue
		}
		if si.IsValid() {
			j.log.Infof("journal: unexpected sector sequence @ %#x - %d", addr, si.Sequence)
		}
		break
	}

	j.log.Infof("journal: stored sequence %d-%d in sectors %#x-%#x", siFirst.Sequence, bestInfo.Sequence, j.firstSector, j.lastSector)
	j.last = bestInfo
	j.scanned = true
	GlobalStats().ScansCompleted.Add(1)
	return nil
}

// RecordWriter is the handle BeginWrite returns: a span over the
// record's reserved-but-uncommitted payload, ready to be filled in and
// then passed to EndWrite.
type RecordWriter struct {
	span storage.Span
}

// Size returns the payload capacity actually allocated, which may be
// smaller than requested if the format clamped it.
func (w *RecordWriter) Size() uint32 { return w.span.Size() }

// Write programs data into the record's payload at offset.
func (w *RecordWriter) Write(ctx context.Context, offset uint32, data []byte) error {
	return w.span.Program(ctx, offset, data)
}

// BeginWrite allocates a span of up to length payload bytes, rotating
// sectors as needed. ok is false only when the ring is exhausted (every
// sector failed to erase/initialize); that is not reported as an error,
// matching spec §6.1's begin_write(...) -> bool contract.
func (j *Journal) BeginWrite(ctx context.Context, length uint32) (*RecordWriter, bool, error) {
	if !j.scanned {
		return nil, false, ErrNotScanned
	}
	if length > j.format.MaxPayload() {
		return nil, false, ErrRecordTooLarge
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		if j.freeOffset == 0 || j.freeOffset >= j.device.SectorSize() {
			ok, err := j.newSector(ctx)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, nil
			}
		}

		var ri RecordInfo
		payloadOffset, err := j.format.InitRecord(ctx, j.device.RestOfSectorSpan(j.lastSector+j.freeOffset), &ri, length)
		if err != nil {
			return nil, false, err
		}

		j.freeOffset += ri.NextRecord
		remaining := int64(j.device.SectorSize()) - int64(j.freeOffset) - int64(payloadOffset)
		if remaining < 0 {
			remaining = 0
		}
		j.maxRecord = uint32(remaining)

		if ri.IsValid() {
			addr := j.lastSector + j.freeOffset - ri.NextRecord + payloadOffset
			return &RecordWriter{span: j.device.Span(addr, ri.Payload)}, true, nil
		}

		if ri.IsBad() {
			GlobalStats().RecordsBad.Add(1)
		}
		if !(ri.IsBad() && ri.NextRecord != 0) {
			// unable to try the next record position, force rotation
			j.freeOffset = j.device.SectorSize()
		}
	}
}

// EndWrite commits a record previously allocated with BeginWrite.
func (j *Journal) EndWrite(ctx context.Context, w *RecordWriter) error {
	return j.format.CommitRecord(ctx, w.span)
}

// Write allocates, fills, and commits a single record in one call.
func (j *Journal) Write(ctx context.Context, data []byte) (bool, error) {
	w, ok, err := j.BeginWrite(ctx, uint32(len(data)))
	if err != nil || !ok {
		return false, err
	}
	if err := w.Write(ctx, 0, data); err != nil {
		return false, err
	}
	if err := j.EndWrite(ctx, w); err != nil {
		return false, err
	}
	return true, nil
}

// CloseSector seals the current sector so the next BeginWrite allocates
// a fresh one, even if the current sector still has room.
func (j *Journal) CloseSector(ctx context.Context) error {
	if j.freeOffset != 0 {
		return j.advanceSector(ctx)
	}
	return nil
}

// MaximumRecord reports the largest payload that would fit without
// rotating, as of the most recent BeginWrite or newSector. Advisory only.
func (j *Journal) MaximumRecord() uint32 { return j.maxRecord }

// LastSectorAddress returns the address of the sector currently being written to.
func (j *Journal) LastSectorAddress() uint32 { return j.lastSector }

// LastSectorInfo returns the cached SectorInfo of the last sector.
func (j *Journal) LastSectorInfo() SectorInfo { return j.last }

func (j *Journal) advanceSector(ctx context.Context) error {
	j.lastSector = j.nextSectorAddr(j.lastSector)
	j.freeOffset = 0
	j.log.Debugf("journal: advancing to sector %#x", j.lastSector)

	if j.lastSector != j.firstSector {
		return nil
	}

	// The first sector is about to be overwritten; look for the next
	// Valid sector that can take over as firstSector.
	for addr := j.nextSectorAddr(j.firstSector); addr != j.lastSector; addr = j.nextSectorAddr(addr) {
		if err := ctx.Err(); err != nil {
			return err
		}
		var si SectorInfo
		if err := j.format.ScanSector(ctx, j.device.SectorSpan(addr), &si, nil); err != nil {
			return err
		}
		j.yield(ctx)

		if si.IsValid() {
			j.firstSector = addr
			GlobalStats().SectorsRotated.Add(1)
			j.log.Debugf("journal: moved first sector to %#x, seq %d, about to be overwritten", addr, si.Sequence)
			return nil
		}
	}

	j.log.Debugf("journal: no valid first sector found, keeping first==last @ %#x", j.firstSector)
	return nil
}

func (j *Journal) newSector(ctx context.Context) (bool, error) {
	if j.freeOffset != 0 {
		if err := j.advanceSector(ctx); err != nil {
			return false, err
		}
	}

	start := j.lastSector
	for first := true; ; first = false {
		if !first && j.lastSector == start {
			GlobalStats().RingExhausted.Add(1)
			return false, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		empty, err := j.device.IsEmpty(ctx, j.lastSector, j.device.SectorSize())
		if err != nil {
			return false, err
		}
		if !empty {
			j.log.Debugf("journal: erasing sector @ %#x", j.lastSector)
			erased, err := j.device.Erase(ctx, j.lastSector, j.device.SectorSize())
			if err != nil {
				return false, err
			}
			if !erased {
				j.log.Debugf("journal: failed to erase sector @ %#x", j.lastSector)
				if err := j.advanceSector(ctx); err != nil {
					return false, err
				}
				continue
			}
		}

		if err := j.format.InitSector(ctx, j.device.SectorSpan(j.lastSector), &j.last); err != nil {
			return false, err
		}
		if j.last.IsValid() {
			j.freeOffset = j.last.FirstRecord
			j.log.Debugf("journal: initialized sector @ %#x, seq %d", j.lastSector, j.last.Sequence)
			return true, nil
		}

		j.log.Debugf("journal: failed to initialize sector @ %#x", j.lastSector)
		if err := j.advanceSector(ctx); err != nil {
			return false, err
		}
	}
}

// EnumerateSectors returns a fresh SectorEnumerator positioned before the
// first sector.
func (j *Journal) EnumerateSectors() *SectorEnumerator { return &SectorEnumerator{} }

// NextSector advances e to the next Valid sector, starting from
// firstSector. It returns false once the ring has been fully traversed,
// resetting e to its zero value.
func (j *Journal) NextSector(ctx context.Context, e *SectorEnumerator) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if e.valid && e.addr == j.lastSector {
			*e = SectorEnumerator{}
			return false, nil
		}
		if !e.valid {
			e.addr = j.firstSector
		} else {
			e.addr = j.nextSectorAddr(e.addr)
		}
		e.valid = true

		var si SectorInfo
		if err := j.format.ScanSector(ctx, j.device.SectorSpan(e.addr), &si, nil); err != nil {
			return false, err
		}
		if si.IsValid() {
			return true, nil
		}
	}
}

// PreviousSector retreats e to the previous Valid sector, starting from
// lastSector. It returns false once it has stepped back past firstSector.
func (j *Journal) PreviousSector(ctx context.Context, e *SectorEnumerator) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if e.valid && e.addr == j.firstSector {
			*e = SectorEnumerator{}
			return false, nil
		}
		if !e.valid {
			e.addr = j.lastSector
		} else {
			e.addr = j.prevSectorAddr(e.addr)
		}
		e.valid = true

		var si SectorInfo
		if err := j.format.ScanSector(ctx, j.device.SectorSpan(e.addr), &si, nil); err != nil {
			return false, err
		}
		if si.IsValid() {
			return true, nil
		}
	}
}

// ReadSectorHeader reads up to len(buf) bytes of the sector at e,
// starting offset bytes into it.
func (j *Journal) ReadSectorHeader(ctx context.Context, e *SectorEnumerator, buf []byte, offset uint32) (int, error) {
	if !e.valid || offset >= j.device.SectorSize() {
		return 0, nil
	}
	max := j.device.SectorSize() - offset
	if uint32(len(buf)) > max {
		buf = buf[:max]
	}
	return j.device.Read(ctx, e.addr+offset, buf)
}

// EnumerateRecords returns a fresh RecordEnumerator over sector.
func (j *Journal) EnumerateRecords(sector uint32) *RecordEnumerator {
	return &RecordEnumerator{sector: sector, r: sector, rNext: sector}
}

// NextRecord advances e to the next record in its sector, returning its
// payload length, or 0 once the sector's live records are exhausted.
func (j *Journal) NextRecord(ctx context.Context, e *RecordEnumerator) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if !e.scanned {
		var si SectorInfo
		if err := j.format.ScanSector(ctx, j.device.SectorSpan(e.r), &si, nil); err != nil {
			return 0, err
		}
		e.sectorInfo = si
		e.rNext = e.r + si.FirstRecord
		e.scanned = true
	}

	if !e.sectorInfo.IsValid() {
		return 0, nil
	}

	for j.device.IsSameSector(e.r, e.rNext) {
		e.r = e.rNext

		var ri RecordInfo
		payloadOffset, err := j.format.ScanRecord(ctx, j.device.RestOfSectorSpan(e.r), e.sectorInfo, &ri)
		if err != nil {
			return 0, err
		}
		if ri.IsEmpty() {
			return 0, nil
		}

		e.rNext = e.r + ri.NextRecord
		if ri.IsBad() {
			GlobalStats().RecordsBad.Add(1)
			if e.rNext != e.r {
				// skippable: retry at the next record position
				continue
			}
			e.exhausted = true
			return 0, nil
		}

		e.r += payloadOffset
		e.length = ri.Payload
		return ri.Payload, nil
	}

	if e.rNext > j.device.SectorAddress(e.r)+j.device.SectorSize() {
		j.log.Debugf("journal: next record pointer walked past sector end: %#x", e.rNext)
	}
	return 0, nil
}

// ReadRecord reads up to len(buf) bytes of the current record at e,
// starting offset bytes into its payload.
func (j *Journal) ReadRecord(ctx context.Context, e *RecordEnumerator, buf []byte, offset uint32) (int, error) {
	if !e.sectorInfo.IsValid() || offset >= e.length {
		return 0, nil
	}
	max := e.length - offset
	if uint32(len(buf)) > max {
		buf = buf[:max]
	}
	return j.device.Read(ctx, e.r+offset, buf)
}
