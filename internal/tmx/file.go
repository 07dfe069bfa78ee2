package tmx

import (
	"bufio"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/standardbeagle/tmxmatch/internal/debug"
	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
	"github.com/standardbeagle/tmxmatch/internal/tm"
)

// Load reads the TMX file at path. A missing file is a FileError that
// satisfies errors.Is(err, fs.ErrNotExist).
func Load(path string, props *tm.Properties, opts Options) (*tm.Store, *Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, tmerrors.NewFileError("open", path, err)
	}
	defer f.Close()

	store, doc, err := decodeNamed(path, f, props, opts)
	if store != nil {
		debug.Logger("tmx").Debug("loaded translation memory",
			zap.String("path", path),
			zap.Int("entries", store.Len()),
			zap.Int("skipped", doc.Skipped))
	}
	return store, doc, err
}

// Save writes the store to path atomically: the file is written next to
// the target, synced, then renamed over it. On failure the previous file is
// left untouched.
func Save(path string, store *tm.Store, doc *Document, opts EncodeOptions) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return tmerrors.NewFileError("create", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = Encode(w, store, doc, opts); err != nil {
		return tmerrors.NewFileError("write", path, err)
	}
	if err = w.Flush(); err != nil {
		return tmerrors.NewFileError("write", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return tmerrors.NewFileError("sync", path, err)
	}
	if info, statErr := os.Stat(path); statErr == nil {
		_ = tmp.Chmod(info.Mode().Perm())
	}
	if err = tmp.Close(); err != nil {
		return tmerrors.NewFileError("close", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return tmerrors.NewFileError("rename", path, err)
	}

	debug.Logger("tmx").Debug("saved translation memory",
		zap.String("path", path),
		zap.Int("entries", store.Len()))
	return nil
}
