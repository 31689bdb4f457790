package journal

import (
	"sync"
	"sync/atomic"
)

// Stats is a process-wide, zero-initialized aggregate of journal
// diagnostics counters. On the single-threaded cooperative runtime the
// original targets a plain increment would suffice; the atomic fields
// here cost nothing extra and make the counters safe to read from a
// separate diagnostics goroutine.
type Stats struct {
	ScansCompleted atomic.Uint64
	SectorsBad     atomic.Uint64
	SectorsRotated atomic.Uint64
	RecordsBad     atomic.Uint64
	RingExhausted  atomic.Uint64
}

var (
	globalStats     Stats
	globalStatsOnce sync.Once
)

// GlobalStats returns the process-wide diagnostics aggregate. It starts
// zeroed and is shared by every Journal in the process.
func GlobalStats() *Stats {
	initGlobalStats()
	return &globalStats
}

func initGlobalStats() {
	globalStatsOnce.Do(func() {})
}
