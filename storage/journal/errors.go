package journal

import "errors"

var (
	// ErrRingExhausted names the condition in which every sector in the
	// ring failed to erase or initialize. The engine does not return it:
	// BeginWrite reports that condition as (nil, false, nil), matching
	// spec §6.1's bool-returning contract.
	ErrRingExhausted = errors.New("journal: ring exhausted, no sector could be allocated")

	// ErrNotScanned is returned by BeginWrite (and so by Write) when called
	// on a Journal that has not yet completed a successful Scan. The other
	// methods do not check for a completed Scan.
	ErrNotScanned = errors.New("journal: Scan must run before this operation")

	// ErrRecordTooLarge is returned by BeginWrite when length exceeds the
	// format's MaxPayload, so the caller learns immediately rather than
	// after a silently truncated allocation.
	ErrRecordTooLarge = errors.New("journal: requested record length exceeds format maximum")
)
