package indexer

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/scout/pkg/index"
	"github.com/platinummonkey/scout/pkg/observability"
	"github.com/platinummonkey/scout/pkg/watcher"
)

// Store is the mutation surface the indexer drives. It is the only way the
// indexer touches index state; *index.Service satisfies it.
type Store interface {
	AddOrUpdateBatch(entries []index.Entry) error
	Remove(path string) error
	RemovePrefix(dir string) (int, error)
	MarkMissed()
}

// PendingChange is one queued mutation. A later change for the same path
// overwrites an earlier queued one, so a burst on one path yields exactly
// one mutation per batch.
type PendingChange struct {
	Kind     watcher.EventKind
	Path     string
	Entry    *index.Entry // pre-resolved metadata for upserts
	Attempts int
	QueuedAt time.Time
}

// Config controls batching and retry behavior
type Config struct {
	// DebounceWindow restarts on each newly queued change; the batch window
	// only starts once it has gone quiet. Default 300ms.
	DebounceWindow time.Duration

	// BatchWindow elapses after the debounce settles before the batch is
	// applied, absorbing correlated multi-file changes. Default 1s.
	BatchWindow time.Duration

	// MaxAttempts bounds how many times a failing change is applied before it
	// is dropped. Default 3.
	MaxAttempts int
}

// DefaultConfig returns the indexer defaults
func DefaultConfig() Config {
	return Config{
		DebounceWindow: 300 * time.Millisecond,
		BatchWindow:    time.Second,
		MaxAttempts:    3,
	}
}

// Indexer turns a watcher's event stream into minimal batched index updates.
// It implements watcher.Handler.
type Indexer struct {
	store   Store
	root    string
	cfg     Config
	log     logrus.FieldLogger
	metrics *observability.Metrics

	// applyMu serializes batch application; timers and Flush both funnel
	// through it so only one batch is in flight at a time.
	applyMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]*PendingChange
	debounce *time.Timer
	batch    *time.Timer
	stopped  bool
}

// New creates an indexer feeding store with changes under root
func New(store Store, root string, cfg Config, log logrus.FieldLogger) *Indexer {
	def := DefaultConfig()
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = def.DebounceWindow
	}
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = def.BatchWindow
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Indexer{
		store:   store,
		root:    root,
		cfg:     cfg,
		log:     log.WithField("component", "indexer"),
		pending: make(map[string]*PendingChange),
	}
}

// SetMetrics attaches prometheus instrumentation
func (ix *Indexer) SetMetrics(m *observability.Metrics) {
	ix.metrics = m
}

// OnAdd resolves metadata for the new file and queues an upsert. If the file
// vanished before we could stat it, the change is dropped.
func (ix *Indexer) OnAdd(e watcher.Event) {
	ix.enqueueUpsert(watcher.EventAdd, e.Path)
}

// OnChange resolves fresh metadata and queues an upsert
func (ix *Indexer) OnChange(e watcher.Event) {
	ix.enqueueUpsert(watcher.EventChange, e.Path)
}

// OnUnlink queues a removal; nothing to resolve for a path that is gone
func (ix *Indexer) OnUnlink(e watcher.Event) {
	ix.enqueue(&PendingChange{Kind: watcher.EventRemove, Path: e.Path})
}

// OnAddDir resolves the directory and queues an upsert
func (ix *Indexer) OnAddDir(e watcher.Event) {
	ix.enqueueUpsert(watcher.EventAddDir, e.Path)
}

// OnUnlinkDir queues removal of the directory and everything under it
func (ix *Indexer) OnUnlinkDir(e watcher.Event) {
	ix.enqueue(&PendingChange{Kind: watcher.EventRemoveDir, Path: e.Path})
}

// OnError surfaces non-fatal watcher errors
func (ix *Indexer) OnError(err error) {
	ix.log.WithError(err).Warn("watcher error")
	if ix.metrics != nil {
		ix.metrics.WatcherErrorsTotal.Inc()
	}
}

func (ix *Indexer) enqueueUpsert(kind watcher.EventKind, path string) {
	ent, err := index.ResolveEntry(ix.root, path)
	if err != nil {
		ix.log.WithError(err).WithField("path", path).Debug("skipping change, path no longer resolvable")
		return
	}
	ix.enqueue(&PendingChange{Kind: kind, Path: path, Entry: &ent})
}

func (ix *Indexer) enqueue(c *PendingChange) {
	c.QueuedAt = time.Now()
	if ix.metrics != nil {
		ix.metrics.WatcherEventsTotal.WithLabelValues(string(c.Kind)).Inc()
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.stopped {
		return
	}
	ix.pending[c.Path] = c
	ix.armTimersLocked()
	ix.reportPendingLocked()
}

// armTimersLocked restarts the debounce stage. An armed batch window is torn
// down so the cycle begins again from a quiet period.
func (ix *Indexer) armTimersLocked() {
	if ix.batch != nil {
		ix.batch.Stop()
		ix.batch = nil
	}
	if ix.debounce != nil {
		ix.debounce.Stop()
	}
	ix.debounce = time.AfterFunc(ix.cfg.DebounceWindow, ix.debounceSettled)
}

func (ix *Indexer) debounceSettled() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.stopped || len(ix.pending) == 0 {
		return
	}
	ix.batch = time.AfterFunc(ix.cfg.BatchWindow, ix.apply)
}

// apply drains the pending queue and pushes it through the store. Changes
// queued while a batch is in flight accumulate and start a fresh
// debounce/batch cycle of their own.
func (ix *Indexer) apply() {
	ix.applyMu.Lock()
	defer ix.applyMu.Unlock()

	ix.mu.Lock()
	batch := ix.pending
	ix.pending = make(map[string]*PendingChange)
	ix.clearTimersLocked()
	ix.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	start := time.Now()
	failed := ix.applyBatch(batch)
	if ix.metrics != nil {
		ix.metrics.IndexBatchApplyDuration.Observe(time.Since(start).Seconds())
	}

	ix.mu.Lock()
	for _, c := range failed {
		c.Attempts++
		if c.Attempts >= ix.cfg.MaxAttempts {
			ix.log.WithFields(logrus.Fields{
				"path":     c.Path,
				"kind":     c.Kind,
				"attempts": c.Attempts,
			}).Warn("dropping change, retry budget exhausted")
			if ix.metrics != nil {
				ix.metrics.IndexDroppedChangesTotal.Inc()
			}
			ix.store.MarkMissed()
			continue
		}
		if ix.metrics != nil {
			ix.metrics.IndexRetriesTotal.Inc()
		}
		// a change queued mid-apply is newer and wins over the retry
		if _, exists := ix.pending[c.Path]; !exists {
			ix.pending[c.Path] = c
		}
	}
	if len(ix.pending) > 0 && !ix.stopped {
		ix.armTimersLocked()
	}
	ix.reportPendingLocked()
	ix.mu.Unlock()
}

// applyBatch groups upserts into one batch call and applies removals one path
// at a time, in path order. It returns the changes that failed.
func (ix *Indexer) applyBatch(batch map[string]*PendingChange) []*PendingChange {
	changes := make([]*PendingChange, 0, len(batch))
	for _, c := range batch {
		changes = append(changes, c)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	var upserts []index.Entry
	var upsertChanges []*PendingChange
	var failed []*PendingChange

	for _, c := range changes {
		switch c.Kind {
		case watcher.EventAdd, watcher.EventChange, watcher.EventAddDir:
			if c.Entry == nil {
				continue
			}
			upserts = append(upserts, *c.Entry)
			upsertChanges = append(upsertChanges, c)
		case watcher.EventRemove:
			if err := ix.store.Remove(c.Path); err != nil {
				ix.log.WithError(err).WithField("path", c.Path).Warn("remove failed")
				failed = append(failed, c)
			}
		case watcher.EventRemoveDir:
			if _, err := ix.store.RemovePrefix(c.Path); err != nil {
				ix.log.WithError(err).WithField("path", c.Path).Warn("directory remove failed")
				failed = append(failed, c)
			}
		}
	}

	if len(upserts) > 0 {
		if err := ix.store.AddOrUpdateBatch(upserts); err != nil {
			ix.log.WithError(err).WithField("entries", len(upserts)).Warn("batch upsert failed")
			failed = append(failed, upsertChanges...)
		}
	}

	ix.log.WithFields(logrus.Fields{
		"changes": len(changes),
		"upserts": len(upserts),
		"failed":  len(failed),
	}).Debug("applied batch")
	return failed
}

// Flush synchronously cancels the timers and applies everything pending.
// Intended for shutdown and for callers that need the index current now.
func (ix *Indexer) Flush() {
	ix.mu.Lock()
	ix.clearTimersLocked()
	ix.mu.Unlock()
	ix.apply()
}

// PendingCount reports the queue depth
func (ix *Indexer) PendingCount() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.pending)
}

// Stop cancels outstanding timers and refuses further changes. Pending
// changes are not applied; call Flush first for a clean drain.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	ix.stopped = true
	ix.clearTimersLocked()
	ix.mu.Unlock()
}

func (ix *Indexer) clearTimersLocked() {
	if ix.debounce != nil {
		ix.debounce.Stop()
		ix.debounce = nil
	}
	if ix.batch != nil {
		ix.batch.Stop()
		ix.batch = nil
	}
}

func (ix *Indexer) reportPendingLocked() {
	if ix.metrics != nil {
		ix.metrics.IndexerPendingChanges.Set(float64(len(ix.pending)))
	}
}
