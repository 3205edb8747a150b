package trade

import "time"

// Mode is the kind of scan a wallet is due for.
type Mode string

const (
	// Historical walks the full (or lookback-bounded) history.
	Historical Mode = "historical"

	// Incremental only looks at activity at or after the watermark.
	Incremental Mode = "incremental"
)

// SyncState is the persisted synchronization progress of one wallet.
type SyncState struct {
	WalletID            string
	Address             string
	InitialScanComplete bool
	Watermark           *time.Time // latest point known to be fully ingested
	UpdatedAt           time.Time
}

// Mode returns the scan mode the state calls for.
func (s *SyncState) Mode() Mode {
	if s == nil || !s.InitialScanComplete {
		return Historical
	}

	return Incremental
}

// Advance returns a copy of s marked complete with the watermark moved to
// candidate, unless that would move it backward.
func (s SyncState) Advance(candidate time.Time, now time.Time) SyncState {
	next := s
	next.InitialScanComplete = true
	next.UpdatedAt = now

	if s.Watermark == nil || candidate.After(*s.Watermark) {
		wm := candidate
		next.Watermark = &wm
	}

	return next
}
