// Package file persists the session snapshot as a single JSON file, using a
// write-to-temp-then-rename scheme so a crash mid-write never corrupts the
// canonical file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/biketracker/biketracker-go/sessions"
	"github.com/biketracker/biketracker-go/storage"
)

// Store implements storage.SnapshotStore on a local file.
type Store struct {
	path string
	log  *slog.Logger
}

var _ storage.SnapshotStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New creates a file-backed snapshot store at path. The parent directory is
// created if needed.
func New(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	s := &Store{path: path, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load reads and parses the snapshot file. Missing and corrupt files both
// yield an empty snapshot; the status tells them apart.
func (s *Store) Load(ctx context.Context) (*sessions.Snapshot, storage.LoadStatus, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &sessions.Snapshot{}, storage.StatusMissing, nil
		}
		s.log.Error("snapshot unreadable; starting empty", "path", s.path, "err", err)
		return &sessions.Snapshot{}, storage.StatusCorrupt, fmt.Errorf("read snapshot: %w", err)
	}
	var snap sessions.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.Error("snapshot unparseable; starting empty", "path", s.path, "err", err)
		return &sessions.Snapshot{}, storage.StatusCorrupt, nil
	}
	snap.Normalize()
	return &snap, storage.StatusLoaded, nil
}

// Save writes the snapshot to a temporary file in the same directory and
// renames it over the canonical path.
func (s *Store) Save(ctx context.Context, snap *sessions.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	// The rename is only atomic with respect to the data actually being on
	// disk if the temp file is synced first.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Path returns the canonical snapshot path.
func (s *Store) Path() string { return s.path }
