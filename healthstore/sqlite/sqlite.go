// Package sqlite provides a SQLite-backed healthstore.Store using the
// cgo-free modernc.org/sqlite driver. This is the default backend for the
// sync CLI: a single file on the phone-adjacent host.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/biketracker/biketracker-go/healthstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS health_records (
	record_id     TEXT PRIMARY KEY,
	peripheral_id TEXT NOT NULL,
	start_time    INTEGER NOT NULL,
	end_time      INTEGER NOT NULL,
	revolutions   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_health_records_peripheral_start
	ON health_records (peripheral_id, start_time);
`

// Store implements healthstore.Store on a SQLite database file.
type Store struct {
	db *sql.DB
}

var _ healthstore.Store = (*Store)(nil)

// Open opens (creating if necessary) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// MaxStartTime returns the latest synced start time for the peripheral.
func (s *Store) MaxStartTime(ctx context.Context, peripheralID string) (int64, error) {
	var max int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(start_time), 0) FROM health_records WHERE peripheral_id = ?`,
		peripheralID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("query max start time: %w", err)
	}
	return max, nil
}

// Upsert inserts the record or overwrites it in place when the deterministic
// id already exists.
func (s *Store) Upsert(ctx context.Context, rec healthstore.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_records (record_id, peripheral_id, start_time, end_time, revolutions)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			end_time = excluded.end_time,
			revolutions = excluded.revolutions`,
		rec.ID(), rec.PeripheralID, rec.StartTime, rec.EndTime, rec.Revolutions,
	)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}
