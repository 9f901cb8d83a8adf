package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotFileName is the default on-disk snapshot name under
// <root>/.index-cache/
const SnapshotFileName = "index.json"

// CacheDirName is the directory under the indexed root holding persisted
// index state
const CacheDirName = ".index-cache"

// Snapshot is the persisted form of the index: the full entry list, the
// aggregate stats, a monotonic version, and the write time in epoch
// milliseconds. Entry timestamps serialize as RFC-3339 strings and are
// re-hydrated by the JSON decoder on load.
type Snapshot struct {
	Entries     []Entry `json:"entries"`
	Stats       Stats   `json:"stats"`
	Version     int     `json:"version"`
	LastUpdated int64   `json:"lastUpdated"`
}

// DefaultSnapshotPath returns <root>/.index-cache/index.json
func DefaultSnapshotPath(root string) string {
	return filepath.Join(root, CacheDirName, SnapshotFileName)
}

// SnapshotStore reads and writes index snapshots at a fixed path
type SnapshotStore struct {
	path string
}

// NewSnapshotStore creates a store for the given snapshot path
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Path returns the snapshot location
func (s *SnapshotStore) Path() string {
	return s.path
}

// Load reads and decodes the snapshot. Callers treat any error as
// "start from empty": a missing or corrupt snapshot is never fatal.
func (s *SnapshotStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	return &snap, nil
}

// Save writes the snapshot atomically: encode to a temp file in the target
// directory, then rename over the previous snapshot. A crash mid-write leaves
// the old snapshot intact.
func (s *SnapshotStore) Save(snap *Snapshot) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, SnapshotFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot %s: %w", s.path, err)
	}
	return nil
}
