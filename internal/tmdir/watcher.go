package tmdir

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/standardbeagle/tmxmatch/internal/debug"
)

// DefaultDebounce is the quiet period before a burst of file events is applied
const DefaultDebounce = 200 * time.Millisecond

// EventType is the kind of change applied to the set
type EventType int

const (
	EventReload EventType = iota
	EventRemove
)

func (t EventType) String() string {
	if t == EventRemove {
		return "remove"
	}
	return "reload"
}

// Change describes one applied file change
type Change struct {
	Name string
	Path string
	Type EventType
	Err  error
}

// Watcher keeps a Set in sync with its directory
type Watcher struct {
	set       *Set
	watcher   *fsnotify.Watcher
	debouncer *eventDebouncer
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// OnChange receives each batch of applied changes. It runs on the
	// debouncer's goroutine and must not call Stop.
	onChange func([]Change)

	statsMu         sync.RWMutex
	eventsProcessed int64
	errorCount      int64
	lastEventTime   time.Time
}

// WatchStats reports watcher activity
type WatchStats struct {
	EventsProcessed int64
	ErrorCount      int64
	LastEventTime   time.Time
	IsActive        bool
}

// NewWatcher creates a watcher for set. A non-positive debounce uses
// DefaultDebounce.
func NewWatcher(set *Set, debounce time.Duration, onChange func([]Change)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		set:      set,
		watcher:  fsw,
		logger:   debug.Logger("tmdir"),
		ctx:      ctx,
		cancel:   cancel,
		onChange: onChange,
	}
	w.debouncer = newEventDebouncer(debounce, w.apply)
	return w, nil
}

// Start begins watching the set's directory
func (w *Watcher) Start() error {
	if err := w.addWatches(w.set.Dir()); err != nil {
		return fmt.Errorf("failed to add watches starting from %s: %w", w.set.Dir(), err)
	}

	w.wg.Add(1)
	go w.processEvents()

	w.logger.Debug("watching external translation memories", zap.String("dir", w.set.Dir()))
	return nil
}

// Stop stops watching. Pending events are dropped.
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	w.debouncer.stop()
	return err
}

// Stats returns current watcher statistics
func (w *Watcher) Stats() WatchStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return WatchStats{
		EventsProcessed: w.eventsProcessed,
		ErrorCount:      w.errorCount,
		LastEventTime:   w.lastEventTime,
		IsActive:        w.ctx.Err() == nil,
	}
}

// addWatches adds a watch for every directory below root
func (w *Watcher) addWatches(root string) error {
	visited := make(map[string]bool)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		// symlink cycles
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to add watch", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
			w.incrementStats(0, 1)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	info, err := os.Stat(path)
	if err != nil {
		// gone: removed or renamed away
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && w.set.Accepts(path) {
			w.debouncer.addEvent(path, EventRemove)
		}
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := w.addWatches(path); err != nil {
				w.logger.Warn("failed to watch new directory", zap.String("path", path), zap.Error(err))
			}
		}
		return
	}

	if !w.set.Accepts(path) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
		w.debouncer.addEvent(path, EventReload)
	}
}

// apply runs a debounced batch against the set. Removals go first.
func (w *Watcher) apply(events map[string]EventType) {
	paths := make([]string, 0, len(events))
	for path := range events {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		if events[paths[i]] != events[paths[j]] {
			return events[paths[i]] == EventRemove
		}
		return paths[i] < paths[j]
	})

	var changes []Change
	var failed int64
	for _, path := range paths {
		change := Change{Name: w.set.name(path), Path: path, Type: events[path]}
		switch change.Type {
		case EventRemove:
			if !w.set.Remove(path) {
				continue
			}
		case EventReload:
			changed, err := w.set.Reload(path)
			if err != nil {
				failed++
				change.Err = err
				w.logger.Warn("failed to reload translation memory", zap.String("path", path), zap.Error(err))
			}
			if !changed && err == nil {
				continue
			}
		}
		changes = append(changes, change)
	}

	w.incrementStats(int64(len(events)), failed)
	if len(changes) > 0 && w.onChange != nil {
		w.onChange(changes)
	}
}

func (w *Watcher) incrementStats(events, errors int64) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.eventsProcessed += events
	w.errorCount += errors
	w.lastEventTime = time.Now()
}

// eventDebouncer batches file events so an editor's write burst reloads a
// file once
type eventDebouncer struct {
	mu       sync.Mutex
	events   map[string]EventType
	debounce time.Duration
	timer    *time.Timer
	stopped  bool
	flushFn  func(map[string]EventType)

	// held for the duration of a flush so stop can wait for it
	flushMu sync.Mutex
}

func newEventDebouncer(debounce time.Duration, flush func(map[string]EventType)) *eventDebouncer {
	return &eventDebouncer{
		events:   make(map[string]EventType),
		debounce: debounce,
		flushFn:  flush,
	}
}

func (d *eventDebouncer) addEvent(path string, eventType EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	// latest event wins
	d.events[path] = eventType

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.flush)
}

func (d *eventDebouncer) flush() {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	events := d.events
	d.events = make(map[string]EventType)
	d.mu.Unlock()

	if len(events) > 0 {
		d.flushFn(events)
	}
}

// stop cancels the pending timer and waits for a running flush to finish
func (d *eventDebouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.events = nil
	d.mu.Unlock()

	d.flushMu.Lock()
	d.flushMu.Unlock() //nolint:staticcheck // waits for an in-flight flush
}
