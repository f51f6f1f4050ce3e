// Package memory provides an in-memory storage.SnapshotStore for tests;
// nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/biketracker/biketracker-go/sessions"
	"github.com/biketracker/biketracker-go/storage"
)

// Store implements storage.SnapshotStore in memory.
type Store struct {
	mu   sync.Mutex
	data []byte
}

var _ storage.SnapshotStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store { return &Store{} }

// Load returns the last saved snapshot, or an empty one.
func (s *Store) Load(ctx context.Context) (*sessions.Snapshot, storage.LoadStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return &sessions.Snapshot{}, storage.StatusMissing, nil
	}
	var snap sessions.Snapshot
	if err := json.Unmarshal(s.data, &snap); err != nil {
		return &sessions.Snapshot{}, storage.StatusCorrupt, nil
	}
	snap.Normalize()
	return &snap, storage.StatusLoaded, nil
}

// Save stores an encoded copy of the snapshot, mirroring the serialization
// boundary a file store has.
func (s *Store) Save(ctx context.Context, snap *sessions.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}
