package journal

// SectorEnumerator walks Valid sectors forward (via Journal.NextSector)
// or backward (via Journal.PreviousSector). The zero value is "before
// the first sector" / "after the last sector" depending on direction.
type SectorEnumerator struct {
	addr  uint32
	valid bool
}

// Address returns the sector address the enumerator currently points at.
// Only meaningful when Valid reports true.
func (e SectorEnumerator) Address() uint32 { return e.addr }

// Valid reports whether the enumerator currently designates a sector.
func (e SectorEnumerator) Valid() bool { return e.valid }

// RecordEnumerator walks the records of a single sector via
// Journal.NextRecord. Unlike the original C++ implementation, a bad,
// unskippable record is tracked with an explicit exhausted flag rather
// than an out-of-sector sentinel address (spec §9, Open Question:
// adopted the clearer design it recommends).
type RecordEnumerator struct {
	sector     uint32
	r, rNext   uint32
	length     uint32
	sectorInfo SectorInfo
	scanned    bool
	exhausted  bool
}

// IsEmpty reports true when the latest NextRecord call stopped at an
// empty record header. It is false after an unskippable bad record.
func (e RecordEnumerator) IsEmpty() bool { return e.r == e.rNext && !e.exhausted }

// Address returns the payload address of the current record. Only
// meaningful immediately after a NextRecord call that returned a
// non-zero length.
func (e RecordEnumerator) Address() uint32 { return e.r }

// Length returns the payload length of the current record.
func (e RecordEnumerator) Length() uint32 { return e.length }
