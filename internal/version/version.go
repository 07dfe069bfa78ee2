package version

import (
	"crypto/sha256"
	"fmt"
	"runtime/debug"
	"sync"
)

const (
	// Version is the current semantic version
	Version = "0.3.0"

	// ToolName is written to the creationtool attribute of new TMX headers
	ToolName = "tmxmatch"
)

// Set at build time with -ldflags "-X github.com/standardbeagle/tmxmatch/internal/version.GitCommit=..."
var (
	BuildDate = "development"
	GitCommit = "unknown"
)

// FullInfo is the line printed by --version
func FullInfo() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, build: %s)", ToolName, Version, GitCommit, BuildDate, BuildID())
}

// ServerVersion is the version an MCP client sees: the release plus the
// build fingerprint, so clients can tell rebuilt binaries apart
func ServerVersion() string {
	return Version + "+" + BuildID()
}

var (
	buildID     string
	buildIDOnce sync.Once
)

// BuildID returns a short fingerprint of the running binary
func BuildID() string {
	buildIDOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			buildID = GitCommit
			return
		}
		buildID = fingerprint(info)
	})
	return buildID
}

// fingerprint hashes the Go version, main module and VCS state
func fingerprint(info *debug.BuildInfo) string {
	h := sha256.New()
	for _, s := range []string{info.GoVersion, info.Main.Path, info.Main.Version} {
		h.Write([]byte(s))
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision", "vcs.modified", "vcs.time":
			h.Write([]byte(s.Key))
			h.Write([]byte(s.Value))
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}
