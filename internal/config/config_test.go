package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
	"github.com/standardbeagle/tmxmatch/internal/match"
)

func TestParseKDL_Defaults(t *testing.T) {
	cfg, err := parseKDL("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, DefaultProjectTM, cfg.Project.TM)
	assert.Equal(t, DefaultTMDir, cfg.Project.TMDir)
	assert.True(t, cfg.Project.SupportDefaultTranslations)
	assert.True(t, cfg.Project.OrphanDetection)
	assert.Equal(t, match.DefaultMinScore, cfg.Matching.MinScore)
	assert.Equal(t, match.DefaultLimit, cfg.Matching.Limit)
	assert.True(t, cfg.Matching.Stemming)
	assert.True(t, cfg.Watch.Enabled)
	assert.True(t, cfg.Codec.Backup)
}

func TestParseKDL_FullConfig(t *testing.T) {
	content := `
version 1
project {
    name "manual"
    source_lang "en-US"
    target_lang "de"
    tm "save/project.tmx"
    tm_dir "reference"
    author "kim"
    support_default_translations false
    orphan_detection false
}
matching {
    limit 5
    min_score 70
    max_candidates 100
    check_interval 16
    cache_size 64
    fold_case false
    strip_punctuation false
    stemming false
}
codec {
    partial true
    backup false
    bom true
}
watch {
    enabled false
    debounce_ms 50
}
include "**/*.tmx"
exclude {
    "penalty-*/**"
    "old/**"
}
`
	cfg, err := parseKDL(content)
	require.NoError(t, err)

	assert.Equal(t, "manual", cfg.Project.Name)
	assert.Equal(t, "en-US", cfg.Project.SourceLang)
	assert.Equal(t, "de", cfg.Project.TargetLang)
	assert.Equal(t, "save/project.tmx", cfg.Project.TM)
	assert.Equal(t, "reference", cfg.Project.TMDir)
	assert.Equal(t, "kim", cfg.Project.Author)
	assert.False(t, cfg.Project.SupportDefaultTranslations)
	assert.False(t, cfg.Project.OrphanDetection)

	assert.Equal(t, 5, cfg.Matching.Limit)
	assert.Equal(t, 70, cfg.Matching.MinScore)
	assert.Equal(t, 100, cfg.Matching.MaxCandidates)
	assert.Equal(t, 16, cfg.Matching.CheckInterval)
	assert.Equal(t, 64, cfg.Matching.CacheSize)
	assert.False(t, cfg.Matching.FoldCase)
	assert.False(t, cfg.Matching.StripPunctuation)
	assert.False(t, cfg.Matching.Stemming)

	assert.True(t, cfg.Codec.Partial)
	assert.False(t, cfg.Codec.Backup)
	assert.True(t, cfg.Codec.BOM)
	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, 50, cfg.Watch.DebounceMs)

	assert.Equal(t, []string{"**/*.tmx"}, cfg.Include)
	assert.Equal(t, []string{"penalty-*/**", "old/**"}, cfg.Exclude)
}

func TestParseKDL_PartialMatchingConfig(t *testing.T) {
	cfg, err := parseKDL(`matching { min_score 50 }`)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Matching.MinScore)
	assert.Equal(t, match.DefaultLimit, cfg.Matching.Limit, "other values stay at defaults")
}

func TestParseKDL_OneLineBlocks(t *testing.T) {
	content := `project { source_lang "en"; target_lang "fr"; tm "omegat/project_save.tmx" }
matching { limit 10; min_score 30 }
codec { backup true }
watch { enabled true; debounce_ms 300 }
include "**/*.tmx"
exclude { "penalty-*/**" }
`
	cfg, err := parseKDL(content)
	require.NoError(t, err)

	assert.Equal(t, "fr", cfg.Project.TargetLang)
	assert.Equal(t, "omegat/project_save.tmx", cfg.Project.TM)
	assert.Equal(t, 10, cfg.Matching.Limit)
	assert.Equal(t, 30, cfg.Matching.MinScore)
	assert.True(t, cfg.Codec.Backup)
	assert.Equal(t, 300, cfg.Watch.DebounceMs)
	assert.Equal(t, []string{"penalty-*/**"}, cfg.Exclude)
}

func TestTerminateChildren(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"one child", `matching { min_score 50 }`, `matching { min_score 50; }`},
		{"already terminated", `matching { limit 1; min_score 50; }`, `matching { limit 1; min_score 50; }`},
		{"multi line", "exclude {\n    \"old/**\"\n}", "exclude {\n    \"old/**\"\n}"},
		{"empty block", `watch { }`, `watch { }`},
		{"brace in string", `project { name "a } b" }`, `project { name "a } b"; }`},
		{"brace in raw string", `project { name r#"x }"# }`, `project { name r#"x }"#; }`},
		{"brace in comment", "project { // }\n  name \"x\"\n}", "project { // }\n  name \"x\"\n}"},
		{"block comment", `project { name "x" /* } */ }`, `project { name "x" /* } */; }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, terminateChildren(tt.in))
		})
	}
}

func TestParseKDL_Invalid(t *testing.T) {
	_, err := parseKDL(`project { name "unterminated }`)
	assert.Error(t, err)
}

func TestParseTOML(t *testing.T) {
	content := `
include = ["mt/**/*.tmx"]

[project]
source_lang = "en"
target_lang = "ja"
author = "kim"

[matching]
min_score = 60
stemming = false

[watch]
enabled = false
`
	cfg, err := parseTOML([]byte(content))
	require.NoError(t, err)

	assert.Equal(t, "ja", cfg.Project.TargetLang)
	assert.Equal(t, "kim", cfg.Project.Author)
	assert.Equal(t, DefaultProjectTM, cfg.Project.TM, "absent keys keep defaults")
	assert.Equal(t, 60, cfg.Matching.MinScore)
	assert.False(t, cfg.Matching.Stemming)
	assert.True(t, cfg.Matching.FoldCase)
	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, []string{"mt/**/*.tmx"}, cfg.Include)
}

func TestParseTOML_UnknownKey(t *testing.T) {
	_, err := parseTOML([]byte("[matching]\nmin_scor = 60\n"))
	assert.Error(t, err)
}

func TestMergeConfigs_ExclusionsMerge(t *testing.T) {
	base := &Config{Exclude: []string{"old/**", "penalty-*/**"}}
	project := &Config{Exclude: []string{"draft/**", "old/**"}}

	merged := mergeConfigs(base, project)

	assert.Equal(t, []string{"old/**", "penalty-*/**", "draft/**"}, merged.Exclude)
}

func TestMergeConfigs_InclusionsAndAuthor(t *testing.T) {
	base := &Config{
		Include: []string{"**/*.tmx"},
		Project: Project{Author: "kim", TargetLang: "de"},
	}
	project := &Config{Project: Project{TargetLang: "fr"}}

	merged := mergeConfigs(base, project)

	assert.Equal(t, []string{"**/*.tmx"}, merged.Include)
	assert.Equal(t, "kim", merged.Project.Author)
	assert.Equal(t, "fr", merged.Project.TargetLang, "project settings take precedence")

	project.Include = []string{"mt/*.tmx"}
	merged = mergeConfigs(base, project)
	assert.Equal(t, []string{"mt/*.tmx"}, merged.Include)
}

func TestLoadWithRoot_MergesGlobalAndProjectConfigs(t *testing.T) {
	tmpHome := t.TempDir()
	tmpProject := t.TempDir()

	globalConfig := `
project { author "kim" }
exclude { "penalty-*/**" }
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpHome, KDLFile), []byte(globalConfig), 0644))

	projectConfig := `
project {
    name "manual"
    target_lang "de"
}
exclude { "old/**" }
matching { min_score 45 }
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpProject, KDLFile), []byte(projectConfig), 0644))

	t.Setenv("HOME", tmpHome)

	cfg, err := LoadWithRoot("", tmpProject)
	require.NoError(t, err)

	assert.Contains(t, cfg.Exclude, "penalty-*/**")
	assert.Contains(t, cfg.Exclude, "old/**")
	assert.Equal(t, "kim", cfg.Project.Author)
	assert.Equal(t, "manual", cfg.Project.Name)
	assert.Equal(t, 45, cfg.Matching.MinScore)
	assert.Equal(t, absOr(tmpProject), cfg.Project.Root)
	assert.Equal(t, filepath.Join(absOr(tmpProject), DefaultProjectTM), cfg.TMPath())
	assert.Equal(t, filepath.Join(absOr(tmpProject), DefaultTMDir), cfg.TMDirPath())
}

func TestLoadWithRoot_TOMLProject(t *testing.T) {
	tmpProject := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpProject, TOMLFile),
		[]byte("[project]\ntarget_lang = \"es\"\n"), 0644))
	t.Setenv("HOME", "/nonexistent")

	cfg, err := LoadWithRoot("", tmpProject)
	require.NoError(t, err)
	assert.Equal(t, "es", cfg.Project.TargetLang)
}

func TestLoadWithRoot_DefaultConfigFallback(t *testing.T) {
	tmpProject := t.TempDir()
	t.Setenv("HOME", "/nonexistent")

	cfg, err := LoadWithRoot("", tmpProject)
	require.NoError(t, err)
	assert.Equal(t, absOr(tmpProject), cfg.Project.Root)
	assert.Equal(t, DefaultProjectTM, cfg.Project.TM)
}

func TestLoadWithRoot_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("[project]\nroot = \"sub\"\n"), 0644))
	t.Setenv("HOME", "/nonexistent")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(absOr(dir), "sub"), cfg.Project.Root)
}

func TestProperties(t *testing.T) {
	cfg := Default("/p")
	cfg.Project.SupportDefaultTranslations = false
	cfg.Matching.Stemming = false

	props, err := cfg.Properties()
	require.NoError(t, err)
	assert.Equal(t, "en", props.SourceLanguage.String())
	assert.False(t, props.SupportDefaultTranslations)
	assert.True(t, props.OrphanDetection)
	assert.False(t, props.Stemming)

	cfg.Project.SourceLang = "not a language!"
	_, err = cfg.Properties()
	assert.True(t, tmerrors.IsValidation(err))
}

func TestMatchOptionsAndFilter(t *testing.T) {
	cfg := Default("/p")
	cfg.Matching.MinScore = 80
	cfg.Exclude = []string{"old/**"}

	opts := cfg.MatchOptions()
	assert.Equal(t, 80, opts.MinScore)
	assert.Equal(t, match.DefaultLimit, opts.Limit)

	filter := cfg.Filter()
	assert.True(t, filter.Match("ref.tmx"))
	assert.False(t, filter.Match("old/ref.tmx"))
}

func TestValidateAndSetDefaults(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"empty root", func(c *Config) { c.Project.Root = "" }, "project"},
		{"empty tm", func(c *Config) { c.Project.TM = "" }, "project"},
		{"bad source language", func(c *Config) { c.Project.SourceLang = "??" }, "project"},
		{"negative limit", func(c *Config) { c.Matching.Limit = -1 }, "matching"},
		{"min score too high", func(c *Config) { c.Matching.MinScore = 101 }, "matching"},
		{"negative candidates", func(c *Config) { c.Matching.MaxCandidates = -5 }, "matching"},
		{"negative debounce", func(c *Config) { c.Watch.DebounceMs = -1 }, "watch"},
		{"bad include", func(c *Config) { c.Include = []string{"[unclosed"} }, "include"},
		{"bad exclude", func(c *Config) { c.Exclude = []string{"{a,b"} }, "exclude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("/p")
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ce *tmerrors.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantErr, ce.Field)
		})
	}
}

func TestSetSmartDefaults(t *testing.T) {
	cfg := Default("/p")
	cfg.Matching = Matching{}
	cfg.Watch.DebounceMs = 0
	cfg.Project.TMDir = ""

	require.NoError(t, ValidateConfig(cfg))
	assert.Equal(t, match.DefaultLimit, cfg.Matching.Limit)
	assert.Equal(t, match.DefaultMaxCandidates, cfg.Matching.MaxCandidates)
	assert.Equal(t, match.DefaultCheckInterval, cfg.Matching.CheckInterval)
	assert.Equal(t, match.DefaultCacheSize, cfg.Matching.CacheSize)
	assert.Equal(t, DefaultDebounce, cfg.Watch.DebounceMs)
	assert.Equal(t, DefaultTMDir, cfg.Project.TMDir)
	assert.Equal(t, 0, cfg.Matching.MinScore, "zero min score is a valid choice")
}
