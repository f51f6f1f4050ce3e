// Package memory provides an in-memory healthstore.Store for tests and for
// dry-run syncs where nothing should be persisted.
package memory

import (
	"context"
	"sync"

	"github.com/biketracker/biketracker-go/healthstore"
)

// Store implements healthstore.Store with a map keyed by record id.
type Store struct {
	mu      sync.RWMutex
	records map[string]healthstore.Record
}

var _ healthstore.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]healthstore.Record)}
}

// MaxStartTime scans the peripheral's records for the largest start time.
func (s *Store) MaxStartTime(ctx context.Context, peripheralID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max int64
	for _, rec := range s.records {
		if rec.PeripheralID == peripheralID && rec.StartTime > max {
			max = rec.StartTime
		}
	}
	return max, nil
}

// Upsert stores the record under its deterministic id.
func (s *Store) Upsert(ctx context.Context, rec healthstore.Record) error {
	s.mu.Lock()
	s.records[rec.ID()] = rec
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Len reports how many records are stored. Intended for tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns the record with the given id. Intended for tests.
func (s *Store) Get(id string) (healthstore.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}
