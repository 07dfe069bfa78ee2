// Package project ties the engine together for one translation project: the
// writable project TM, the read-only external TMs and the ranker that
// searches them. A Session is safe for concurrent use; lookups share a read
// lock and edits take the write lock.
package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/standardbeagle/tmxmatch/internal/config"
	"github.com/standardbeagle/tmxmatch/internal/debug"
	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
	"github.com/standardbeagle/tmxmatch/internal/match"
	"github.com/standardbeagle/tmxmatch/internal/orphan"
	"github.com/standardbeagle/tmxmatch/internal/tm"
	"github.com/standardbeagle/tmxmatch/internal/tmdir"
	"github.com/standardbeagle/tmxmatch/internal/tmx"
)

// ProjectSource names the project TM among match origins
const ProjectSource = "project"

// Session is an open project
type Session struct {
	cfg    *config.Config
	props  *tm.Properties
	ranker *match.Ranker
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	store *tm.Store
	doc   *tmx.Document
	saved uint64 // store fingerprint at the last load or save
	live  *orphan.Predicates

	external *tmdir.Set
	watcher  *tmdir.Watcher
}

// Option customizes a session
type Option func(*Session)

// WithClock replaces time.Now for edit stamps and save dates
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Open loads the project TM and the external TMs named by cfg. A missing
// project TM starts an empty store. Per-file failures in the external
// directory are logged and the remaining files are used.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	props, err := cfg.Properties()
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:    cfg,
		props:  props,
		ranker: match.NewRanker(props.Normalizer(), cfg.Matching.CacheSize),
		logger: debug.Logger("project"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.loadProjectTM(); err != nil {
		return nil, err
	}

	s.external, err = tmdir.Open(ctx, cfg.TMDirPath(), props, cfg.Filter())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("some external translation memories failed to load", zap.Error(err))
	}

	if cfg.Watch.Enabled {
		if err := s.startWatcher(); err != nil {
			s.logger.Warn("external translation memories will not be watched", zap.Error(err))
		}
	}

	s.logger.Info("project opened",
		zap.String("tm", cfg.TMPath()),
		zap.Int("entries", s.store.Len()),
		zap.Int("external", s.external.Len()))
	return s, nil
}

func (s *Session) loadProjectTM() error {
	path := s.cfg.TMPath()
	store, doc, err := tmx.Load(path, s.props, tmx.Options{Partial: s.cfg.Codec.Partial})
	switch {
	case errors.Is(err, fs.ErrNotExist):
		store = tm.NewStore(s.props)
		doc = tmx.NewDocument(s.props, s.now())
		doc.BOM = s.cfg.Codec.BOM
	case err != nil && store == nil:
		return err
	case err != nil:
		s.logger.Warn("project TM is damaged, continuing with the readable entries",
			zap.String("path", path), zap.Error(err))
	}

	s.store = store
	s.doc = doc
	s.saved = store.Fingerprint()
	return nil
}

func (s *Session) startWatcher() error {
	if _, err := os.Stat(s.external.Dir()); err != nil {
		return err
	}
	debounce := time.Duration(s.cfg.Watch.DebounceMs) * time.Millisecond
	w, err := tmdir.NewWatcher(s.external, debounce, s.externalChanged)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return err
	}
	s.watcher = w
	return nil
}

func (s *Session) externalChanged(changes []tmdir.Change) {
	s.ranker.Purge()
	for _, c := range changes {
		s.logger.Info("external translation memory changed",
			zap.String("name", c.Name),
			zap.Stringer("type", c.Type),
			zap.Error(c.Err))
	}
}

// Config returns the session configuration
func (s *Session) Config() *config.Config {
	return s.cfg
}

// Properties returns the engine properties of the project
func (s *Session) Properties() *tm.Properties {
	return s.props
}

// Options returns the configured match options
func (s *Session) Options() match.Options {
	return s.cfg.MatchOptions()
}

// Match ranks the project TM and every external TM against query. The
// project TM is searched first and wins ties.
func (s *Session) Match(ctx context.Context, query string, opts match.Options) ([]match.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	external := s.external.Sources()
	sources := make([]match.Source, 0, len(external)+1)
	sources = append(sources, match.Source{Name: ProjectSource, Store: s.store})
	for _, src := range external {
		sources = append(sources, match.Source{Name: src.Name, Store: src.Store})
	}
	return s.ranker.FindMatchesMulti(ctx, query, sources, opts)
}

// Lookup returns the project translation stored under key
func (s *Session) Lookup(key tm.Key) (tm.Unit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Lookup(key)
}

// Alternatives returns the context-keyed project translations of source
func (s *Session) Alternatives(source string) []tm.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Alternatives(source)
}

// SetTranslation stores target under key, revising an existing unit or
// creating a new one. The configured author is recorded as changeid.
func (s *Session) SetTranslation(key tm.Key, target string) (tm.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = s.store.NormalizeKey(key)
	at := s.now()

	var unit tm.Unit
	if prev, ok := s.store.Lookup(key); ok {
		unit = prev.Revise(target, s.cfg.Project.Author, at)
	} else {
		unit = tm.NewUnit(key.Source, target, s.cfg.Project.Author, at, key.HasContext())
	}
	if _, _, err := s.store.InsertOrReplace(key, unit); err != nil {
		return tm.Unit{}, err
	}
	return unit, nil
}

// SetLiveSegments records which segments the project currently contains.
// Save marks orphans against them.
func (s *Session) SetLiveSegments(preds orphan.Predicates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = &preds
}

// MarkOrphans retags the project TM against preds right away
func (s *Session) MarkOrphans(preds orphan.Predicates) orphan.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return orphan.Mark(s.store, preds)
}

// Dirty reports whether the store changed since it was loaded or saved
func (s *Session) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Fingerprint() != s.saved
}

// Save writes the project TM. Orphans are marked first when live segments
// are known. A store that did not change is not rewritten; saved reports
// whether a write happened.
func (s *Session) Save() (saved bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live != nil {
		orphan.Mark(s.store, *s.live)
	}

	fp := s.store.Fingerprint()
	path := s.cfg.TMPath()
	if fp == s.saved {
		if _, statErr := os.Stat(path); statErr == nil {
			return false, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, tmerrors.NewFileError("mkdir", filepath.Dir(path), err)
	}
	if s.cfg.Codec.Backup {
		if err := backup(path); err != nil {
			return false, err
		}
	}
	if err := tmx.Save(path, s.store, s.doc, tmx.EncodeOptions{Now: s.now}); err != nil {
		return false, err
	}

	s.saved = fp
	s.logger.Info("project TM saved", zap.String("path", path), zap.Int("entries", s.store.Len()))
	return true, nil
}

// backup copies the current file to path.bak. A missing file needs none.
func backup(path string) error {
	src, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return tmerrors.NewFileError("backup", path, err)
	}
	defer src.Close()

	dst, err := os.Create(path + ".bak")
	if err != nil {
		return tmerrors.NewFileError("backup", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return tmerrors.NewFileError("backup", path, err)
	}
	if err := dst.Close(); err != nil {
		return tmerrors.NewFileError("backup", path, err)
	}
	return nil
}

// Stats summarizes the project and external TMs
type Stats struct {
	Project  tm.Stats
	Dirty    bool
	External []ExternalStats
	Watching bool
	Watch    tmdir.WatchStats // zero unless Watching
}

// ExternalStats describes one external TM
type ExternalStats struct {
	Name    string
	Entries int
}

// Stats reports entry counts
func (s *Session) Stats() Stats {
	s.mu.RLock()
	st := Stats{
		Project:  s.store.Stats(),
		Dirty:    s.store.Fingerprint() != s.saved,
		Watching: s.watcher != nil,
	}
	if s.watcher != nil {
		st.Watch = s.watcher.Stats()
	}
	s.mu.RUnlock()

	for _, src := range s.external.Sources() {
		st.External = append(st.External, ExternalStats{Name: src.Name, Entries: src.Store.Len()})
	}
	return st
}

// Entries returns a snapshot of the project TM in persisted order
func (s *Session) Entries() []tm.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.All()
}

// Close stops watching the external directory. It does not save.
func (s *Session) Close() error {
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Stop()
	s.watcher = nil
	if err != nil {
		return fmt.Errorf("stop watcher: %w", err)
	}
	return nil
}
