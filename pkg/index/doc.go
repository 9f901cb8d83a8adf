// Package index holds the authoritative, persisted path-to-entry mapping and
// its search surface.
//
// # Overview
//
// The Service owns the live entry set exclusively: the incremental indexer
// mutates it only through AddOrUpdate/AddOrUpdateBatch/Remove, and search
// layers read it through Search/Stats. Entries carry file metadata only
// (name, path, size, timestamps, kind) — file bodies are never indexed.
//
// # Persistence
//
// State persists as a single JSON snapshot, by default at
// <root>/.index-cache/index.json, written atomically via temp-file-and-rename
// a short delay after mutations settle. Persistence is best effort: a failed
// write is logged and retried on the next change, in-memory state is never
// rolled back, and a missing or corrupt snapshot at startup simply means
// starting from empty. The index is an advisory accelerator, not the source
// of truth for file existence; after a crash it self-heals from subsequent
// watcher events.
//
// # Search
//
// Fuzzy mode ranks entries by approximate match quality against relative
// paths (github.com/sahilm/fuzzy); exact mode does case-normalized substring
// matching over names and relative paths. Scores are distance-like, lower is
// better. Empty queries return nothing.
package index
