// Package pathutil converts between the absolute paths used internally and
// the relative, slash-separated names shown to users and used as TM origins.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts an absolute path to relative based on a root directory.
// Falls back to the original path if conversion fails or path is already relative.
//
// Examples:
//   - ToRelative("/home/user/project/tm/ref.tmx", "/home/user/project") → "tm/ref.tmx"
//   - ToRelative("/other/location/ref.tmx", "/home/user/project") → "/other/location/ref.tmx" (outside root)
//   - ToRelative("tm/ref.tmx", "/home/user/project") → "tm/ref.tmx" (already relative)
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}

	if !filepath.IsAbs(absPath) {
		return absPath
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		// different volumes on Windows
		return absPath
	}

	// outside the root the absolute path is clearer
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return absPath
	}

	return relPath
}

// Name returns path relative to root with forward slashes, the form used
// for glob matching and for naming external TMs. Relative inputs are
// resolved against the working directory first.
func Name(path, rootDir string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if rootDir != "" {
		if abs, err := filepath.Abs(rootDir); err == nil {
			rootDir = abs
		}
	}
	return filepath.ToSlash(ToRelative(path, rootDir))
}
