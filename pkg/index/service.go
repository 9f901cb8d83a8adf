package index

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/scout/pkg/async"
	"github.com/platinummonkey/scout/pkg/observability"
	"github.com/sahilm/fuzzy"
)

// DefaultSearchLimit caps result counts when the caller does not specify one
const DefaultSearchLimit = 100

// defaultPersistDelay batches rapid mutations into one snapshot write
const defaultPersistDelay = 500 * time.Millisecond

// SearchOptions selects the search mode and result cap
type SearchOptions struct {
	// Fuzzy ranks entries by approximate match quality (the default mode)
	Fuzzy bool
	// Exact restricts results to case-normalized substring matches over
	// entry names and relative paths
	Exact bool
	// Limit caps the result count; <=0 uses DefaultSearchLimit
	Limit int
}

// Result is one ranked search hit. Score is distance-like: lower is better.
type Result struct {
	Entry   Entry   `json:"item"`
	Score   float64 `json:"score"`
	Matches []int   `json:"matches,omitempty"`
}

// Service is the authoritative, persisted path-to-entry mapping plus fuzzy
// search. It exclusively owns the live entry set and the snapshot on disk;
// all mutation flows through AddOrUpdate/AddOrUpdateBatch/Remove.
type Service struct {
	log     *observability.Logger
	metrics *observability.Metrics

	mu      sync.RWMutex
	root    string
	store   *SnapshotStore
	entries map[string]Entry
	stats   Stats
	version int
	dirty   bool
	missed  bool

	// generation increments on every state change; search layers use it to
	// invalidate caches
	generation uint64

	// candidates is the fuzzy engine's flattened entry set, rebuilt lazily
	// after mutations
	candidates      []Entry
	candidatesStale bool

	persistDelay time.Duration
	persistTimer *time.Timer
	destroyed    bool
}

// NewService creates an index service. Call Initialize before use.
func NewService(log *observability.Logger) *Service {
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Service{
		log:          log.WithField("component", "index"),
		entries:      make(map[string]Entry),
		persistDelay: defaultPersistDelay,
	}
}

// SetMetrics attaches Prometheus metrics. Optional; nil disables reporting.
func (s *Service) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Initialize seeds the in-memory entry set from the snapshot at snapshotPath
// (empty string uses <root>/.index-cache/index.json). Any load failure means
// starting from empty and is never fatal.
func (s *Service) Initialize(root, snapshotPath string) error {
	if snapshotPath == "" {
		snapshotPath = DefaultSnapshotPath(root)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = root
	s.store = NewSnapshotStore(snapshotPath)
	s.entries = make(map[string]Entry)
	s.stats = Stats{}
	s.candidatesStale = true

	snap, err := s.store.Load()
	if err != nil {
		s.log.WithError(err).WithField("path", snapshotPath).
			Warn("no usable snapshot, starting from empty index")
		return nil
	}

	for _, e := range snap.Entries {
		s.entries[e.Path] = e
	}
	s.stats = snap.Stats
	s.version = snap.Version
	s.log.WithFields(map[string]interface{}{
		"entries": len(s.entries),
		"version": snap.Version,
	}).Info("index snapshot loaded")
	s.reportGauges()
	return nil
}

// AddOrUpdate upserts a single entry by path
func (s *Service) AddOrUpdate(e Entry) error {
	return s.AddOrUpdateBatch([]Entry{e})
}

// AddOrUpdateBatch upserts entries by path in one state change. Stats adjust
// incrementally; a kind transition on an existing path moves both counters in
// the same step. CreatedAt of an existing path is preserved.
func (s *Service) AddOrUpdateBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	for _, e := range entries {
		if prev, exists := s.entries[e.Path]; exists {
			s.stats.subtract(prev)
			if !prev.CreatedAt.IsZero() {
				e.CreatedAt = prev.CreatedAt
			}
		}
		s.entries[e.Path] = e
		s.stats.add(e)
	}
	s.afterMutationLocked()
	s.mu.Unlock()
	return nil
}

// Remove deletes the entry for path if present; a miss is a no-op
func (s *Service) Remove(path string) error {
	s.mu.Lock()
	prev, exists := s.entries[path]
	if !exists {
		s.mu.Unlock()
		return nil
	}
	delete(s.entries, path)
	s.stats.subtract(prev)
	s.afterMutationLocked()
	s.mu.Unlock()
	return nil
}

// RemovePrefix deletes every entry at or under dir (for directory removals
// where children never get their own events)
func (s *Service) RemovePrefix(dir string) (int, error) {
	prefix := dir
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	s.mu.Lock()
	removed := 0
	for path, e := range s.entries {
		if path == dir || strings.HasPrefix(path, prefix) {
			delete(s.entries, path)
			s.stats.subtract(e)
			removed++
		}
	}
	if removed > 0 {
		s.afterMutationLocked()
	}
	s.mu.Unlock()
	return removed, nil
}

// afterMutationLocked updates bookkeeping after a state change. Callers hold
// the write lock.
func (s *Service) afterMutationLocked() {
	s.stats.LastUpdated = time.Now()
	s.generation++
	s.dirty = true
	s.candidatesStale = true
	s.reportGauges()
	s.schedulePersistLocked()
}

// schedulePersistLocked arranges a background snapshot write shortly after
// the mutation settles. An already-pending write is not rescheduled.
func (s *Service) schedulePersistLocked() {
	if s.destroyed || s.persistTimer != nil {
		return
	}
	s.persistTimer = time.AfterFunc(s.persistDelay, func() {
		s.mu.Lock()
		s.persistTimer = nil
		s.mu.Unlock()
		async.SafeGo(context.Background(), 15*time.Second, "index snapshot write", func(ctx context.Context) error {
			s.persist()
			return nil
		})
	})
}

// persist writes the snapshot when dirty. Write failure is logged, never
// propagated: in-memory state is not rolled back and the next mutation
// retries the write.
func (s *Service) persist() {
	s.mu.Lock()
	if !s.dirty || s.store == nil {
		s.mu.Unlock()
		return
	}
	snap := s.buildSnapshotLocked()
	s.dirty = false
	store := s.store
	s.mu.Unlock()

	if err := store.Save(snap); err != nil {
		s.log.WithError(err).Warn("snapshot write failed, will retry on next change")
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.IndexPersistTotal.WithLabelValues("error").Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.IndexPersistTotal.WithLabelValues("ok").Inc()
	}
}

// buildSnapshotLocked assembles the persisted form and bumps the monotonic
// version. Callers hold the write lock.
func (s *Service) buildSnapshotLocked() *Snapshot {
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	s.version++
	return &Snapshot{
		Entries:     entries,
		Stats:       s.stats,
		Version:     s.version,
		LastUpdated: time.Now().UnixMilli(),
	}
}

// Flush forces a synchronous snapshot write of any unpersisted state
func (s *Service) Flush() error {
	s.mu.Lock()
	if s.store == nil || !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snap := s.buildSnapshotLocked()
	s.dirty = false
	store := s.store
	s.mu.Unlock()

	if err := store.Save(snap); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.IndexPersistTotal.WithLabelValues("error").Inc()
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.IndexPersistTotal.WithLabelValues("ok").Inc()
	}
	return nil
}

// Search runs a fuzzy or exact query over the entry set. Empty or
// whitespace-only queries return no results regardless of index size.
func (s *Service) Search(query string, opts SearchOptions) []Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	candidates := s.searchCandidates()
	if opts.Exact {
		return exactSearch(candidates, query, limit)
	}
	return fuzzySearch(candidates, query, limit)
}

// searchCandidates returns the fuzzy engine's entry slice, rebuilding it if
// mutations happened since the last search
func (s *Service) searchCandidates() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candidatesStale {
		s.candidates = make([]Entry, 0, len(s.entries))
		for _, e := range s.entries {
			s.candidates = append(s.candidates, e)
		}
		sort.Slice(s.candidates, func(i, j int) bool {
			return s.candidates[i].RelPath < s.candidates[j].RelPath
		})
		s.candidatesStale = false
	}
	return s.candidates
}

// entrySource adapts the candidate slice to the fuzzy matcher
type entrySource []Entry

func (s entrySource) String(i int) string { return s[i].RelPath }
func (s entrySource) Len() int            { return len(s) }

func fuzzySearch(candidates []Entry, query string, limit int) []Result {
	matches := fuzzy.FindFrom(query, entrySource(candidates))
	if len(matches) > limit {
		matches = matches[:limit]
	}
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			Entry: candidates[m.Index],
			// The matcher scores higher-is-better; invert so consumers sort
			// ascending by distance
			Score:   -float64(m.Score),
			Matches: m.MatchedIndexes,
		})
	}
	return results
}

func exactSearch(candidates []Entry, query string, limit int) []Result {
	needle := strings.ToLower(query)
	var results []Result
	for _, e := range candidates {
		score, ok := substringScore(e, needle)
		if !ok {
			continue
		}
		results = append(results, Result{Entry: e, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score < results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// substringScore ranks a case-normalized substring hit in name or relative
// path. Lower is better: 0.0 exact name, then prefix, then position-weighted
// containment.
func substringScore(e Entry, needle string) (float64, bool) {
	name := strings.ToLower(e.Name)
	rel := strings.ToLower(e.RelPath)

	switch {
	case name == needle:
		return 0.0, true
	case strings.HasPrefix(name, needle):
		return 0.2, true
	case strings.Contains(name, needle):
		idx := strings.Index(name, needle)
		return 0.5 + float64(idx)/float64(len(name))*0.3, true
	case strings.Contains(rel, needle):
		idx := strings.Index(rel, needle)
		return 0.8 + float64(idx)/float64(len(rel))*0.2, true
	default:
		return 0, false
	}
}

// Reconcile prunes entries whose paths no longer exist on disk. A loaded
// snapshot can be arbitrarily stale: files deleted while the process was down
// never produce watcher events, so startup runs this after Initialize.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	entries := s.Entries()
	if len(entries) == 0 {
		return 0, nil
	}

	var mu sync.Mutex
	var vanished []string
	errs := async.Batch(ctx, entries, 8, "snapshot reconcile", 10*time.Second,
		func(ctx context.Context, e Entry) error {
			if _, err := os.Lstat(e.Path); os.IsNotExist(err) {
				mu.Lock()
				vanished = append(vanished, e.Path)
				mu.Unlock()
			}
			return nil
		})
	if len(errs) > 0 {
		return 0, fmt.Errorf("reconcile: %w", errs[0])
	}

	for _, path := range vanished {
		if err := s.Remove(path); err != nil {
			return 0, err
		}
	}
	if len(vanished) > 0 {
		s.log.WithField("removed", len(vanished)).Info("pruned vanished snapshot entries")
	}
	return len(vanished), nil
}

// Entries returns the current entry set ordered by relative path. The slice
// is shared with the search path and must be treated as read-only; mutations
// replace it rather than editing it in place.
func (s *Service) Entries() []Entry {
	return s.searchCandidates()
}

// Get returns the entry for path
func (s *Service) Get(path string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[path]
	return e, ok
}

// EntryCount returns the number of indexed entries
func (s *Service) EntryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats returns a copy of the aggregate counters
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Generation returns the state-change counter for cache invalidation
func (s *Service) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Version returns the snapshot version of the last persisted write
func (s *Service) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// MarkMissed flags that a change was dropped after exhausting its retry
// budget; the index may be behind the filesystem until a later event heals it
func (s *Service) MarkMissed() {
	s.mu.Lock()
	s.missed = true
	s.mu.Unlock()
}

// HasMissedUpdates reports whether any change was dropped on the floor
func (s *Service) HasMissedUpdates() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.missed
}

// VerifyStats re-derives the counters by folding the entry set. On drift the
// incremental stats are repaired in place and the drift is logged.
func (s *Service) VerifyStats() (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var derived Stats
	for _, e := range s.entries {
		derived.add(e)
	}
	derived.LastUpdated = s.stats.LastUpdated

	consistent := derived.FileCount == s.stats.FileCount &&
		derived.DirectoryCount == s.stats.DirectoryCount &&
		derived.TotalSize == s.stats.TotalSize
	if !consistent {
		s.log.WithFields(map[string]interface{}{
			"tracked_files": s.stats.FileCount,
			"derived_files": derived.FileCount,
			"tracked_dirs":  s.stats.DirectoryCount,
			"derived_dirs":  derived.DirectoryCount,
			"tracked_size":  s.stats.TotalSize,
			"derived_size":  derived.TotalSize,
		}).Warn("index stats drifted from entry set, repairing")
		s.stats = derived
		s.reportGauges()
	}
	return derived, consistent
}

// Destroy forces a final flush, then releases state. The service must not be
// used afterwards.
func (s *Service) Destroy() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	if s.persistTimer != nil {
		s.persistTimer.Stop()
		s.persistTimer = nil
	}
	s.mu.Unlock()

	err := s.Flush()

	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.candidates = nil
	s.candidatesStale = true
	s.mu.Unlock()
	return err
}

// reportGauges pushes entry counts and total size to Prometheus. Callers
// hold the lock.
func (s *Service) reportGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.IndexEntries.WithLabelValues("file").Set(float64(s.stats.FileCount))
	s.metrics.IndexEntries.WithLabelValues("directory").Set(float64(s.stats.DirectoryCount))
	s.metrics.IndexSizeBytes.Set(float64(s.stats.TotalSize))
}
