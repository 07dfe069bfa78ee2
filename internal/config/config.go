package config

import (
	"os"
	"path/filepath"

	"github.com/standardbeagle/tmxmatch/internal/match"
	"github.com/standardbeagle/tmxmatch/internal/tm"
	"github.com/standardbeagle/tmxmatch/internal/tmdir"
)

// Default locations, relative to the project root
const (
	DefaultProjectTM = "omegat/project_save.tmx"
	DefaultTMDir     = "tm"
	DefaultDebounce  = 300
)

type Config struct {
	Version  int      `toml:"version"`
	Project  Project  `toml:"project"`
	Matching Matching `toml:"matching"`
	Codec    Codec    `toml:"codec"`
	Watch    Watch    `toml:"watch"`
	Include  []string `toml:"include"` // external TM globs, relative to TMDir
	Exclude  []string `toml:"exclude"`
}

type Project struct {
	Root       string `toml:"root"`
	Name       string `toml:"name"`
	SourceLang string `toml:"source_lang"`
	TargetLang string `toml:"target_lang"`
	TM         string `toml:"tm"`     // project TM file
	TMDir      string `toml:"tm_dir"` // directory of external reference TMs
	Author     string `toml:"author"` // recorded as changeid on edits

	SupportDefaultTranslations bool `toml:"support_default_translations"`
	OrphanDetection            bool `toml:"orphan_detection"`
}

type Matching struct {
	Limit         int `toml:"limit"`
	MinScore      int `toml:"min_score"`
	MaxCandidates int `toml:"max_candidates"`
	CheckInterval int `toml:"check_interval"`
	CacheSize     int `toml:"cache_size"` // prepared-source cache entries

	FoldCase         bool `toml:"fold_case"`
	StripPunctuation bool `toml:"strip_punctuation"`
	Stemming         bool `toml:"stemming"`
}

type Codec struct {
	Partial bool `toml:"partial"` // keep entries read before a parse failure
	Backup  bool `toml:"backup"`  // keep the previous project TM as .bak on save
	BOM     bool `toml:"bom"`     // write a byte-order mark when creating a project TM
}

type Watch struct {
	Enabled    bool `toml:"enabled"`
	DebounceMs int  `toml:"debounce_ms"`
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot loads the configuration for the project at rootDir. A global
// ~/.tmxmatch.kdl is the base; the project's .tmxmatch.kdl or .tmxmatch.toml
// overrides it. Without either file the defaults apply.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	homeDir, err := os.UserHomeDir()
	var baseConfig *Config
	if err == nil {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	var projectConfig *Config
	if path != "" {
		projectConfig, err = LoadFile(path)
		if err != nil {
			return nil, err
		}
	} else if kdlCfg, err := LoadKDL(searchDir); err != nil {
		return nil, err
	} else if kdlCfg != nil {
		projectConfig = kdlCfg
	} else if tomlCfg, err := LoadTOML(searchDir); err != nil {
		return nil, err
	} else {
		projectConfig = tomlCfg
	}

	if baseConfig != nil && projectConfig != nil {
		return mergeConfigs(baseConfig, projectConfig), nil
	} else if projectConfig != nil {
		return projectConfig, nil
	} else if baseConfig != nil {
		baseConfig.Project.Root = absOr(searchDir)
		return baseConfig, nil
	}

	return Default(absOr(searchDir)), nil
}

// LoadFile loads an explicit config file, picking the format by extension
func LoadFile(path string) (*Config, error) {
	dir := filepath.Dir(path)
	if filepath.Ext(path) == ".toml" {
		return loadTOMLFile(path, dir)
	}
	return loadKDLFile(path, dir)
}

// Default returns the configuration used when no file is present
func Default(root string) *Config {
	return &Config{
		Version: 1,
		Project: Project{
			Root:                       root,
			SourceLang:                 "en",
			TargetLang:                 "fr",
			TM:                         DefaultProjectTM,
			TMDir:                      DefaultTMDir,
			SupportDefaultTranslations: true,
			OrphanDetection:            true,
		},
		Matching: Matching{
			Limit:            match.DefaultLimit,
			MinScore:         match.DefaultMinScore,
			MaxCandidates:    match.DefaultMaxCandidates,
			CheckInterval:    match.DefaultCheckInterval,
			CacheSize:        match.DefaultCacheSize,
			FoldCase:         true,
			StripPunctuation: true,
			Stemming:         true,
		},
		Codec: Codec{
			Partial: false,
			Backup:  true,
		},
		Watch: Watch{
			Enabled:    true,
			DebounceMs: DefaultDebounce,
		},
		Include: []string{},
		Exclude: []string{},
	}
}

// mergeConfigs merges a base config with a project config.
// Project config takes precedence, but base exclusions are preserved.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Exclude) > 0 {
		merged.Exclude = DeduplicatePatterns(append(append([]string{}, base.Exclude...), project.Exclude...))
	}

	if len(project.Include) == 0 && len(base.Include) > 0 {
		merged.Include = base.Include
	}

	// translator identity usually lives in the global file
	if merged.Project.Author == "" {
		merged.Project.Author = base.Project.Author
	}

	return &merged
}

// DeduplicatePatterns removes repeated patterns, keeping first occurrences
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if !seen[pattern] {
			seen[pattern] = true
			result = append(result, pattern)
		}
	}
	return result
}

// Properties builds the engine properties for the project
func (c *Config) Properties() (*tm.Properties, error) {
	props, err := tm.NewProperties(c.Project.SourceLang, c.Project.TargetLang)
	if err != nil {
		return nil, err
	}
	props.SupportDefaultTranslations = c.Project.SupportDefaultTranslations
	props.OrphanDetection = c.Project.OrphanDetection
	props.FoldCase = c.Matching.FoldCase
	props.StripPunctuation = c.Matching.StripPunctuation
	props.Stemming = c.Matching.Stemming
	return props, nil
}

// MatchOptions returns the ranker options
func (c *Config) MatchOptions() match.Options {
	return match.Options{
		Limit:         c.Matching.Limit,
		MinScore:      c.Matching.MinScore,
		MaxCandidates: c.Matching.MaxCandidates,
		CheckInterval: c.Matching.CheckInterval,
	}
}

// Filter returns the external TM file filter
func (c *Config) Filter() tmdir.Filter {
	return tmdir.Filter{Include: c.Include, Exclude: c.Exclude}
}

// TMPath returns the absolute path of the project TM
func (c *Config) TMPath() string {
	return c.resolve(c.Project.TM)
}

// TMDirPath returns the absolute path of the external TM directory
func (c *Config) TMDirPath() string {
	return c.resolve(c.Project.TMDir)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Project.Root, p)
}

func absOr(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
