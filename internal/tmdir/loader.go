// Package tmdir manages the external translation memories of a project: the
// read-only TMX files kept in a reference directory. Files are loaded in
// parallel, filtered by glob patterns, and can be watched for changes.
package tmdir

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/tmxmatch/internal/debug"
	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
	"github.com/standardbeagle/tmxmatch/internal/security"
	"github.com/standardbeagle/tmxmatch/internal/tm"
	"github.com/standardbeagle/tmxmatch/internal/tmx"
	"github.com/standardbeagle/tmxmatch/pkg/pathutil"
)

// DefaultInclude matches every TMX file below the directory
var DefaultInclude = []string{"**/*.tmx", "**/*.TMX"}

// Filter selects files by doublestar patterns matched against the
// slash-separated path relative to the directory
type Filter struct {
	Include []string
	Exclude []string
}

// Match reports whether the relative name passes the filter
func (f Filter) Match(name string) bool {
	for _, pattern := range f.Exclude {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return false
		}
	}
	include := f.Include
	if len(include) == 0 {
		include = DefaultInclude
	}
	for _, pattern := range include {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Source is one loaded external TM. Its store is never written; a reload
// replaces the whole Source.
type Source struct {
	Name  string // path relative to the directory, slash separated
	Path  string
	Store *tm.Store
	Doc   *tmx.Document
	Hash  uint64 // xxhash of the file content
}

// LoadDir loads every matching TMX file below dir concurrently. A file that
// fails to load is reported in the returned MultiError while the others
// still load; a corrupt file keeps whatever entries preceded the damage.
// Sources are returned sorted by name.
func LoadDir(ctx context.Context, dir string, props *tm.Properties, filter Filter) ([]*Source, error) {
	paths, err := listFiles(dir, filter)
	if err != nil {
		return nil, err
	}

	results := make([]*Source, len(paths))
	errs := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = loadFile(dir, path, props)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var sources []*Source
	for _, src := range results {
		if src != nil {
			sources = append(sources, src)
		}
	}

	debug.Logger("tmdir").Debug("loaded external translation memories",
		zap.String("dir", dir),
		zap.Int("files", len(paths)),
		zap.Int("loaded", len(sources)))

	return sources, tmerrors.NewMultiError(errs).ErrOrNil()
}

// listFiles walks dir and returns the matching files in name order
func listFiles(dir string, filter Filter) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if filter.Match(pathutil.Name(path, dir)) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, tmerrors.NewFileError("walk", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// loadFile reads and decodes one file. A corrupt file yields a partial
// source when anything before the damage was readable.
// headerCheck keeps large files that are not TMX out of memory
var headerCheck = security.NewFileValidator(security.DefaultThresholdKB)

func loadFile(dir, path string, props *tm.Properties) (*Source, error) {
	if err := headerCheck.ValidateLargeFile(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tmerrors.NewFileError("read", path, err)
	}
	return decodeSource(dir, path, data, props)
}

func decodeSource(dir, path string, data []byte, props *tm.Properties) (*Source, error) {
	store, doc, err := tmx.Decode(bytes.NewReader(data), props, tmx.Options{Partial: true})
	if err != nil {
		err = fmt.Errorf("%s: %w", path, err)
		if store == nil || store.Len() == 0 {
			return nil, err
		}
	}
	return &Source{
		Name:  pathutil.Name(path, dir),
		Path:  path,
		Store: store,
		Doc:   doc,
		Hash:  xxhash.Sum64(data),
	}, err
}

// Set is the live collection of external TMs for one directory. It is safe
// for concurrent use; the stores it hands out are immutable.
type Set struct {
	dir    string
	props  *tm.Properties
	filter Filter

	mu      sync.RWMutex
	sources map[string]*Source
}

// Open loads the directory into a new Set. A missing directory yields an
// empty set. Per-file failures are returned alongside the usable set.
func Open(ctx context.Context, dir string, props *tm.Properties, filter Filter) (*Set, error) {
	s := &Set{dir: dir, props: props, filter: filter, sources: make(map[string]*Source)}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return s, nil
	}

	loaded, err := LoadDir(ctx, dir, props, filter)
	for _, src := range loaded {
		s.sources[src.Name] = src
	}
	return s, err
}

// Dir returns the watched directory
func (s *Set) Dir() string {
	return s.dir
}

// Sources returns a snapshot of the loaded TMs sorted by name
func (s *Set) Sources() []*Source {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of loaded TMs
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}

// Accepts reports whether path is a file the set tracks
func (s *Set) Accepts(path string) bool {
	return s.filter.Match(s.name(path))
}

func (s *Set) name(path string) string {
	return pathutil.Name(path, s.dir)
}

// Reload re-reads path and replaces its source. Unchanged content (same
// hash) is skipped and reported with changed=false.
func (s *Set) Reload(path string) (changed bool, err error) {
	if err := headerCheck.ValidateLargeFile(path); err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, tmerrors.NewFileError("read", path, err)
	}
	name := s.name(path)

	s.mu.RLock()
	prev, ok := s.sources[name]
	s.mu.RUnlock()
	if ok && prev.Hash == xxhash.Sum64(data) {
		return false, nil
	}

	src, err := decodeSource(s.dir, path, data, s.props)
	if src == nil {
		return false, err
	}

	s.mu.Lock()
	s.sources[name] = src
	s.mu.Unlock()
	return true, err
}

// Remove drops the source loaded from path. Returns false if none was loaded.
func (s *Set) Remove(path string) bool {
	name := s.name(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[name]; !ok {
		return false
	}
	delete(s.sources, name)
	return true
}
