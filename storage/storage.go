// Package storage defines durable snapshot persistence for the peripheral's
// session collection. Backends persist the snapshot as a whole; a save must
// never leave the stored state non-loadable.
package storage

import (
	"context"

	"github.com/biketracker/biketracker-go/sessions"
)

// LoadStatus distinguishes why a load produced an empty snapshot. Loads never
// fail the caller; the status is surfaced for observability.
type LoadStatus int

const (
	// StatusLoaded means a snapshot was read and parsed.
	StatusLoaded LoadStatus = iota
	// StatusMissing means no snapshot existed yet (first boot).
	StatusMissing
	// StatusCorrupt means a snapshot existed but could not be read or parsed.
	StatusCorrupt
)

func (s LoadStatus) String() string {
	switch s {
	case StatusLoaded:
		return "loaded"
	case StatusMissing:
		return "missing"
	case StatusCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// SnapshotStore loads and saves the full session snapshot.
type SnapshotStore interface {
	// Load reads the persisted snapshot. On missing or unparseable data it
	// returns an empty snapshot and the corresponding status rather than an
	// error; err is reserved for unexpected I/O failures, and even then the
	// returned snapshot is usable.
	Load(ctx context.Context) (snap *sessions.Snapshot, status LoadStatus, err error)

	// Save atomically replaces the persisted snapshot. A crash mid-save must
	// leave either the previous or the new snapshot readable, never a
	// partial one.
	Save(ctx context.Context, snap *sessions.Snapshot) error
}
