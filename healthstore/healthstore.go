// Package healthstore defines the client-side durable record store that
// confirmed sessions are written into. It is the source of truth for the
// sync cursor: the cursor is recomputed from the store's contents on every
// pass rather than persisted separately.
package healthstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Record is one synced session as stored on the client.
type Record struct {
	// PeripheralID identifies the source device (typically its BLE address).
	PeripheralID string
	StartTime    int64
	EndTime      int64
	Revolutions  int
}

// ID returns the record's deterministic identifier.
func (r Record) ID() string {
	return RecordID(r.PeripheralID, r.StartTime)
}

// recordNamespace scopes the UUIDv5 derivation of record ids.
var recordNamespace = uuid.MustParse("b80c4bcd-1b3e-4a52-9e1f-64c28907f8a3")

// RecordID derives a stable unique id from (peripheral identity, session
// start time). Repeated upserts of the same session therefore land on the
// same record, which is what makes the sync loop safe to retry and to
// re-run with a stale cursor.
func RecordID(peripheralID string, startTime int64) string {
	return uuid.NewSHA1(recordNamespace, fmt.Appendf(nil, "%s|%d", peripheralID, startTime)).String()
}

// Store is the durable record store boundary. Implementations must make
// Upsert idempotent on Record.ID and must be safe for concurrent use.
type Store interface {
	// MaxStartTime returns the largest StartTime among records belonging to
	// the peripheral, or 0 when none exist. This is the sync cursor.
	MaxStartTime(ctx context.Context, peripheralID string) (int64, error)

	// Upsert inserts or overwrites the record under its deterministic id.
	Upsert(ctx context.Context, rec Record) error

	// Close releases backend resources.
	Close() error
}
