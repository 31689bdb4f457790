package storage

// SectorSpanOf returns the span covering the entire sector containing addr.
// Device implementations delegate their SectorSpan method here so the
// sector/rest-of-sector arithmetic lives in one place.
func SectorSpanOf(dev ByteStorage, addr uint32) Span {
	return NewSpan(dev, dev.SectorAddress(addr), dev.SectorSize())
}

// RestOfSectorSpanOf returns the span from addr to the end of its sector.
func RestOfSectorSpanOf(dev ByteStorage, addr uint32) Span {
	return NewSpan(dev, addr, dev.SectorRemaining(addr))
}
