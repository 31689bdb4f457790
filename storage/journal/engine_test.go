package journal_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minuteos/lib-storage/storage/journal"
	"github.com/minuteos/lib-storage/storage/memdevice"
)

func newTestJournal(t *testing.T, size, sectorSize uint32) (*memdevice.Device, *journal.Journal) {
	t.Helper()
	dev, err := memdevice.New(size, sectorSize)
	require.NoError(t, err)
	j := journal.NewJournal(dev, journal.SimpleVariableFormat{Magic: testMagic})
	require.NoError(t, j.Scan(context.Background()))
	return dev, j
}

func forEachRecord(t *testing.T, ctx context.Context, j *journal.Journal, fn func(payload []byte)) int {
	t.Helper()
	count := 0
	se := j.EnumerateSectors()
	for {
		ok, err := j.NextSector(ctx, se)
		require.NoError(t, err)
		if !ok {
			break
		}
		re := j.EnumerateRecords(se.Address())
		for {
			n, err := j.NextRecord(ctx, re)
			require.NoError(t, err)
			if n == 0 {
				break
			}
			buf := make([]byte, n)
			_, err = j.ReadRecord(ctx, re, buf, 0)
			require.NoError(t, err)
			fn(buf)
			count++
		}
	}
	return count
}

// scenario 1: spec.md §8, "Simple fixed writes".
func TestSimpleFixedWrites(t *testing.T) {
	ctx := context.Background()
	_, j := newTestJournal(t, 8192, 1024)

	for i := 0; i < 500; i++ {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(i))
		ok, err := j.Write(ctx, buf[:])
		require.NoError(t, err)
		require.True(t, ok)
	}

	i := 0
	count := forEachRecord(t, ctx, j, func(payload []byte) {
		require.Len(t, payload, 4)
		assert.Equal(t, uint32(i), binary.LittleEndian.Uint32(payload))
		i++
	})
	assert.Equal(t, 500, count)
}

// scenario 2: spec.md §8, "Variable-length writes".
func TestVariableLengthWrites(t *testing.T) {
	ctx := context.Background()
	_, j := newTestJournal(t, 8192, 1024)

	for i := 0; i < 119; i++ {
		w, ok, err := j.BeginWrite(ctx, uint32(4+i))
		require.NoError(t, err)
		require.True(t, ok)

		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(i))
		require.NoError(t, w.Write(ctx, 0, buf[:]))
		require.NoError(t, j.EndWrite(ctx, w))
	}

	i := 0
	count := forEachRecord(t, ctx, j, func(payload []byte) {
		require.GreaterOrEqual(t, len(payload), 4)
		assert.Equal(t, uint32(i), binary.LittleEndian.Uint32(payload[:4]))
		i++
	})
	assert.Equal(t, 119, count)
}

// scenario 3: spec.md §8, "Torn writes" -- only odd-indexed records are committed.
func TestTornWritesOnlyCommittedRecordsSurvive(t *testing.T) {
	ctx := context.Background()
	_, j := newTestJournal(t, 8192, 1024)

	for i := 0; i < 119; i++ {
		w, ok, err := j.BeginWrite(ctx, uint32(4+i))
		require.NoError(t, err)
		require.True(t, ok)

		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(i))
		require.NoError(t, w.Write(ctx, 0, buf[:]))
		if i%2 == 1 {
			require.NoError(t, j.EndWrite(ctx, w))
		}
	}

	var got []uint32
	count := forEachRecord(t, ctx, j, func(payload []byte) {
		got = append(got, binary.LittleEndian.Uint32(payload[:4]))
	})
	assert.Equal(t, 59, count)
	for idx, v := range got {
		assert.Equal(t, uint32(1+2*idx), v)
	}
}

// scenario 4: spec.md §8, "Oversize writes" -- ring rotation drops the oldest half.
func TestOversizeWritesRotateRing(t *testing.T) {
	ctx := context.Background()
	dev, j := newTestJournal(t, 8192, 1024)

	n := dev.Size() / dev.SectorSize()
	for i := uint32(0); i < 2*n; i++ {
		w, ok, err := j.BeginWrite(ctx, dev.SectorSize())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Less(t, w.Size(), dev.SectorSize())

		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], i)
		require.NoError(t, w.Write(ctx, 0, buf[:]))
		require.NoError(t, j.EndWrite(ctx, w))
	}

	i := n
	count := forEachRecord(t, ctx, j, func(payload []byte) {
		assert.Equal(t, i, binary.LittleEndian.Uint32(payload[:4]))
		i++
	})
	assert.Equal(t, int(n), count)
	assert.Equal(t, 2*n, i)
}

// scenario 5: spec.md §8, "Restart recovery" -- a fresh Journal over the same
// device bytes recovers the same records and last-sector address.
func TestRestartRecovery(t *testing.T) {
	ctx := context.Background()
	dev, j := newTestJournal(t, 8192, 1024)

	for i := 0; i < 119; i++ {
		w, ok, err := j.BeginWrite(ctx, uint32(4+i))
		require.NoError(t, err)
		require.True(t, ok)
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(i))
		require.NoError(t, w.Write(ctx, 0, buf[:]))
		require.NoError(t, j.EndWrite(ctx, w))
	}

	wantLast := j.LastSectorAddress()

	j2 := journal.NewJournal(dev, journal.SimpleVariableFormat{Magic: testMagic})
	require.NoError(t, j2.Scan(ctx))

	assert.Equal(t, wantLast, j2.LastSectorAddress())

	i := 0
	count := forEachRecord(t, ctx, j2, func(payload []byte) {
		assert.Equal(t, uint32(i), binary.LittleEndian.Uint32(payload[:4]))
		i++
	})
	assert.Equal(t, 119, count)
}

// scenario 6: spec.md §8, "Wrap-aware sequence" -- a sector whose sequence
// just wrapped to 0 is chosen over one carrying the maximal pre-wrap value.
func TestScanPrefersWrappedSequence(t *testing.T) {
	ctx := context.Background()
	dev, err := memdevice.New(2048, 1024)
	require.NoError(t, err)

	writeSectorHeader := func(addr uint32, seq uint32) {
		var hdr [8]byte
		binary.LittleEndian.PutUint32(hdr[0:4], testMagic)
		binary.LittleEndian.PutUint32(hdr[4:8], seq)
		require.NoError(t, dev.Program(ctx, addr, hdr[:]))
	}

	writeSectorHeader(0, 0xFFFFFFFE)
	writeSectorHeader(1024, 0x00000000)

	j := journal.NewJournal(dev, journal.SimpleVariableFormat{Magic: testMagic})
	require.NoError(t, j.Scan(ctx))

	assert.Equal(t, uint32(1024), j.LastSectorAddress())
	assert.Equal(t, uint32(0), j.LastSectorInfo().Sequence)
}

func TestCloseSectorForcesRotation(t *testing.T) {
	ctx := context.Background()
	_, j := newTestJournal(t, 8192, 1024)

	ok, err := j.Write(ctx, []byte("first"))
	require.NoError(t, err)
	require.True(t, ok)
	before := j.LastSectorAddress()

	require.NoError(t, j.CloseSector(ctx))

	ok, err = j.Write(ctx, []byte("second"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, before, j.LastSectorAddress())
}

func TestZeroLengthRecordRoundTrips(t *testing.T) {
	ctx := context.Background()
	_, j := newTestJournal(t, 8192, 1024)

	ok, err := j.Write(ctx, nil)
	require.NoError(t, err)
	require.True(t, ok)

	count := forEachRecord(t, ctx, j, func(payload []byte) {
		assert.Empty(t, payload)
	})
	assert.Equal(t, 1, count)
}

func TestScanIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, j := newTestJournal(t, 8192, 1024)

	ok, err := j.Write(ctx, []byte("abc"))
	require.NoError(t, err)
	require.True(t, ok)

	first := j.LastSectorAddress()
	firstInfo := j.LastSectorInfo()
	firstMax := j.MaximumRecord()

	require.NoError(t, j.Scan(ctx))

	assert.Equal(t, first, j.LastSectorAddress())
	assert.Equal(t, firstInfo, j.LastSectorInfo())
	_ = firstMax
}

func TestEmptyJournalEnumeratesNothing(t *testing.T) {
	ctx := context.Background()
	_, j := newTestJournal(t, 8192, 1024)

	count := forEachRecord(t, ctx, j, func([]byte) {})
	assert.Equal(t, 0, count)
	assert.Equal(t, uint32(0), j.LastSectorAddress())
}

func TestBeginWriteRejectsOverMaxPayload(t *testing.T) {
	ctx := context.Background()
	_, j := newTestJournal(t, 8192, 1024)

	_, _, err := j.BeginWrite(ctx, journal.MaxSimpleVariablePayload+1)
	assert.ErrorIs(t, err, journal.ErrRecordTooLarge)
}

func TestBackwardEnumerationMatchesForward(t *testing.T) {
	ctx := context.Background()
	_, j := newTestJournal(t, 8192, 1024)

	for i := 0; i < 40; i++ {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(i))
		ok, err := j.Write(ctx, buf[:])
		require.NoError(t, err)
		require.True(t, ok)
	}

	var forward []uint32
	se := j.EnumerateSectors()
	for {
		ok, err := j.NextSector(ctx, se)
		require.NoError(t, err)
		if !ok {
			break
		}
		forward = append(forward, se.Address())
	}

	var backward []uint32
	be := j.EnumerateSectors()
	for {
		ok, err := j.PreviousSector(ctx, be)
		require.NoError(t, err)
		if !ok {
			break
		}
		backward = append(backward, be.Address())
	}

	require.Equal(t, len(forward), len(backward))
	for i := range forward {
		assert.Equal(t, forward[i], backward[len(backward)-1-i])
	}
}
