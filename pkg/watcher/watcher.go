package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// EventKind classifies a change notification
type EventKind string

const (
	EventAdd       EventKind = "add"
	EventChange    EventKind = "change"
	EventRemove    EventKind = "remove"
	EventAddDir    EventKind = "add-directory"
	EventRemoveDir EventKind = "remove-directory"
)

// Event is a filtered, debounced change notification
type Event struct {
	Kind      EventKind
	Path      string // absolute path
	RelPath   string // path relative to the watched root
	IsDir     bool
	Extension string // files only, lowercased with leading dot
	Timestamp time.Time
}

// Handler receives events after filtering and debouncing. Methods are invoked
// from watcher goroutines and should return quickly; consumers that need to
// do real work should queue internally.
type Handler interface {
	OnAdd(e Event)
	OnChange(e Event)
	OnUnlink(e Event)
	OnAddDir(e Event)
	OnUnlinkDir(e Event)
	OnError(err error)
}

// Config controls filtering and debouncing behavior
type Config struct {
	// DebounceWindow collapses repeated events for one path; the per-path
	// timer resets on each new event. Default 300ms.
	DebounceWindow time.Duration

	// AllowedExtensions is the file extension allow-list (with or without
	// leading dot, case-insensitive). Empty means all files pass.
	// Directories are never extension-filtered.
	AllowedExtensions []string

	// ExcludedDirs drops any path with one of these directory names in it.
	ExcludedDirs []string

	// EmitInitial emits add/add-directory events for everything found during
	// the initial scan. Off by default: nothing is emitted until the scan
	// completes.
	EmitInitial bool

	// ScanRate bounds the initial scan to this many filesystem entries per
	// second. Zero means unlimited.
	ScanRate int
}

// DefaultConfig returns the watcher defaults
func DefaultConfig() Config {
	return Config{
		DebounceWindow: 300 * time.Millisecond,
		ExcludedDirs:   []string{".git", ".index-cache", "node_modules"},
	}
}

// Watcher presents file-system changes under a root as a clean, filtered,
// debounced event stream built on fsnotify
type Watcher struct {
	root    string
	cfg     Config
	handler Handler
	log     logrus.FieldLogger

	fsw     *fsnotify.Watcher
	limiter *rate.Limiter

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]Event
	dirs    map[string]struct{}
	stopped bool

	scanDone bool
	done     chan struct{}
	wg       sync.WaitGroup

	allowedExt map[string]struct{}
	excluded   map[string]struct{}
}

// New creates a watcher for root. Start must be called before events flow.
func New(root string, cfg Config, handler Handler, log logrus.FieldLogger) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("watcher handler is required")
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 300 * time.Millisecond
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	w := &Watcher{
		root:       abs,
		cfg:        cfg,
		handler:    handler,
		log:        log.WithField("component", "watcher"),
		timers:     make(map[string]*time.Timer),
		pending:    make(map[string]Event),
		dirs:       make(map[string]struct{}),
		done:       make(chan struct{}),
		allowedExt: make(map[string]struct{}),
		excluded:   make(map[string]struct{}),
	}
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.allowedExt[ext] = struct{}{}
	}
	for _, dir := range cfg.ExcludedDirs {
		if dir != "" {
			w.excluded[dir] = struct{}{}
		}
	}
	if cfg.ScanRate > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(cfg.ScanRate), cfg.ScanRate)
	}
	return w, nil
}

// Start performs the initial recursive scan and begins delivering events.
// Nothing is emitted before the scan completes unless EmitInitial is set.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.scan(ctx, w.root); err != nil {
		fsw.Close()
		return fmt.Errorf("initial scan of %s failed: %w", w.root, err)
	}

	w.mu.Lock()
	w.scanDone = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop()

	w.log.WithField("root", w.root).Info("watcher started")
	return nil
}

// scan walks root, registering watches for every non-excluded directory and
// optionally emitting initial events
func (w *Watcher) scan(ctx context.Context, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Unreadable subtree is non-fatal; report and keep walking
			w.handler.OnError(fmt.Errorf("scan %s: %w", path, err))
			return nil
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		rel := w.relPath(path)
		if info.IsDir() {
			if w.isExcludedDir(rel, info.Name()) {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				w.handler.OnError(fmt.Errorf("watch %s: %w", path, err))
				return nil
			}
			w.mu.Lock()
			w.dirs[path] = struct{}{}
			w.mu.Unlock()
			if w.cfg.EmitInitial && path != root {
				w.dispatch(w.makeEvent(EventAddDir, path, true))
			}
			return nil
		}
		if w.cfg.EmitInitial && w.passesFilter(rel, info.Name(), false) {
			w.dispatch(w.makeEvent(EventAdd, path, false))
		}
		return nil
	})
}

// loop consumes raw fsnotify events until Stop or a fatal watcher failure
func (w *Watcher) loop() {
	defer w.wg.Done()
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Non-fatal OS errors surface without stopping the session
			w.handler.OnError(err)
		}
	}
}

// handleRaw classifies, filters, and debounces one raw fsnotify event
func (w *Watcher) handleRaw(raw fsnotify.Event) {
	path := raw.Name
	rel := w.relPath(path)
	base := filepath.Base(path)

	switch {
	case raw.Op&fsnotify.Create != 0:
		info, err := os.Stat(path)
		if err != nil {
			// Vanished between event and stat; nothing to report
			return
		}
		if info.IsDir() {
			if w.isExcludedDir(rel, base) {
				return
			}
			w.watchNewDir(path)
			return
		}
		if !w.passesFilter(rel, base, false) {
			return
		}
		w.debounce(w.makeEvent(EventAdd, path, false))

	case raw.Op&fsnotify.Write != 0:
		if !w.passesFilter(rel, base, false) {
			return
		}
		w.debounce(w.makeEvent(EventChange, path, false))

	case raw.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.mu.Lock()
		_, wasDir := w.dirs[path]
		if wasDir {
			delete(w.dirs, path)
		}
		w.mu.Unlock()
		if wasDir {
			if w.isExcludedDir(rel, base) {
				return
			}
			w.debounce(w.makeEvent(EventRemoveDir, path, true))
			return
		}
		if !w.passesFilter(rel, base, false) {
			return
		}
		w.debounce(w.makeEvent(EventRemove, path, false))
	}
}

// watchNewDir registers a directory created after the initial scan and walks
// it, since fsnotify misses anything written before the watch was in place
func (w *Watcher) watchNewDir(dir string) {
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel := w.relPath(path)
		if info.IsDir() {
			if w.isExcludedDir(rel, info.Name()) {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				w.handler.OnError(fmt.Errorf("watch %s: %w", path, err))
				return nil
			}
			w.mu.Lock()
			w.dirs[path] = struct{}{}
			w.mu.Unlock()
			w.debounce(w.makeEvent(EventAddDir, path, true))
			return nil
		}
		if w.passesFilter(rel, info.Name(), false) {
			w.debounce(w.makeEvent(EventAdd, path, false))
		}
		return nil
	})
}

// debounce coalesces rapid events for one path into a single emission
// carrying the latest kind; the timer resets on each new event
func (w *Watcher) debounce(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	w.pending[e.Path] = e
	if timer, exists := w.timers[e.Path]; exists {
		timer.Stop()
	}
	path := e.Path
	w.timers[path] = time.AfterFunc(w.cfg.DebounceWindow, func() {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		pending, ok := w.pending[path]
		delete(w.pending, path)
		delete(w.timers, path)
		w.mu.Unlock()
		if ok {
			w.dispatch(pending)
		}
	})
}

// dispatch routes an event to the matching handler callback
func (w *Watcher) dispatch(e Event) {
	switch e.Kind {
	case EventAdd:
		w.handler.OnAdd(e)
	case EventChange:
		w.handler.OnChange(e)
	case EventRemove:
		w.handler.OnUnlink(e)
	case EventAddDir:
		w.handler.OnAddDir(e)
	case EventRemoveDir:
		w.handler.OnUnlinkDir(e)
	}
}

// AddPath registers an additional directory with the underlying watcher
func (w *Watcher) AddPath(path string) error {
	if w.fsw == nil {
		return fmt.Errorf("watcher not started")
	}
	if err := w.fsw.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	w.mu.Lock()
	w.dirs[path] = struct{}{}
	w.mu.Unlock()
	return nil
}

// UnwatchPath removes a directory from the underlying watcher
func (w *Watcher) UnwatchPath(path string) error {
	if w.fsw == nil {
		return fmt.Errorf("watcher not started")
	}
	w.mu.Lock()
	delete(w.dirs, path)
	w.mu.Unlock()
	return w.fsw.Remove(path)
}

// Stop releases OS resources and cancels all per-path debounce timers.
// No events are delivered after Stop returns.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.pending = make(map[string]Event)
	w.mu.Unlock()

	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
		w.wg.Wait()
	} else {
		close(w.done)
	}
	w.log.Info("watcher stopped")
	return err
}

// Done is closed once the event loop has exited, whether from Stop or a
// fatal watcher failure
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Root returns the absolute watched root
func (w *Watcher) Root() string {
	return w.root
}

func (w *Watcher) makeEvent(kind EventKind, path string, isDir bool) Event {
	e := Event{
		Kind:      kind,
		Path:      path,
		RelPath:   w.relPath(path),
		IsDir:     isDir,
		Timestamp: time.Now(),
	}
	if !isDir {
		e.Extension = strings.ToLower(filepath.Ext(path))
	}
	return e
}

func (w *Watcher) relPath(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// isExcludedDir reports whether any element of the relative path, or the
// directory itself, is on the exclusion list
func (w *Watcher) isExcludedDir(rel, base string) bool {
	if _, ok := w.excluded[base]; ok {
		return true
	}
	return w.pathExcluded(rel)
}

// passesFilter applies the exclusion list and, for files, the extension
// allow-list
func (w *Watcher) passesFilter(rel, base string, isDir bool) bool {
	if w.pathExcluded(rel) {
		return false
	}
	if isDir {
		return true
	}
	if len(w.allowedExt) == 0 {
		return true
	}
	_, ok := w.allowedExt[strings.ToLower(filepath.Ext(base))]
	return ok
}

func (w *Watcher) pathExcluded(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if _, ok := w.excluded[part]; ok {
			return true
		}
	}
	return false
}
