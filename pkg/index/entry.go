package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Kind classifies an indexed object
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
	KindSymlink   Kind = "symbolic-link"
)

// Entry is one indexed object. The absolute Path is the unique key; exactly
// one entry exists per path. Kind is recomputed from the filesystem on every
// update, never inherited from a previous entry.
type Entry struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	RelPath    string    `json:"relPath"`
	Extension  string    `json:"extension,omitempty"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Kind       Kind      `json:"kind"`
}

// IsDir reports whether the entry is a directory
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// Stats aggregates counters over the entry set. The values are maintained
// incrementally but always re-derivable by folding the entries, which
// VerifyStats uses as a consistency self-check.
type Stats struct {
	FileCount      int       `json:"fileCount"`
	DirectoryCount int       `json:"directoryCount"`
	TotalSize      int64     `json:"totalSize"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// add folds one entry into the counters
func (s *Stats) add(e Entry) {
	if e.Kind == KindDirectory {
		s.DirectoryCount++
	} else {
		s.FileCount++
	}
	s.TotalSize += e.Size
}

// subtract removes one entry from the counters
func (s *Stats) subtract(e Entry) {
	if e.Kind == KindDirectory {
		s.DirectoryCount--
	} else {
		s.FileCount--
	}
	s.TotalSize -= e.Size
}

// ResolveEntry builds an Entry from the current filesystem state of path.
// Symlinks are detected without following them. Directory sizes are recorded
// as zero so TotalSize reflects file bytes only.
func ResolveEntry(root, path string) (Entry, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Entry{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	return entryFromInfo(root, path, info), nil
}

func entryFromInfo(root, path string, info os.FileInfo) Entry {
	kind := KindFile
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		kind = KindSymlink
	case info.IsDir():
		kind = KindDirectory
	}

	e := Entry{
		Path:       path,
		Name:       info.Name(),
		RelPath:    relTo(root, path),
		ModifiedAt: info.ModTime(),
		// Portable creation time is unavailable; the service preserves the
		// original CreatedAt across updates of an existing path.
		CreatedAt: info.ModTime(),
		Kind:      kind,
	}
	if kind == KindFile {
		e.Size = info.Size()
		e.Extension = strings.ToLower(filepath.Ext(path))
	}
	return e
}

func relTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
