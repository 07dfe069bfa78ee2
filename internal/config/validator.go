package config

import (
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/language"

	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
	"github.com/standardbeagle/tmxmatch/internal/match"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults.
// Returns a ConfigError naming the failing section.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return tmerrors.NewConfigError("project", "", err)
	}

	if err := v.validateMatchingConfig(&cfg.Matching); err != nil {
		return tmerrors.NewConfigError("matching", "", err)
	}

	if err := v.validateWatchConfig(&cfg.Watch); err != nil {
		return tmerrors.NewConfigError("watch", "", err)
	}

	if err := v.validatePatterns(cfg.Include); err != nil {
		return tmerrors.NewConfigError("include", "", err)
	}
	if err := v.validatePatterns(cfg.Exclude); err != nil {
		return tmerrors.NewConfigError("exclude", "", err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	if project.TM == "" {
		return errors.New("project TM path cannot be empty")
	}
	if _, err := language.Parse(project.SourceLang); err != nil {
		return fmt.Errorf("invalid source language %q: %w", project.SourceLang, err)
	}
	if _, err := language.Parse(project.TargetLang); err != nil {
		return fmt.Errorf("invalid target language %q: %w", project.TargetLang, err)
	}
	return nil
}

func (v *Validator) validateMatchingConfig(m *Matching) error {
	if m.Limit < 0 {
		return fmt.Errorf("Limit cannot be negative, got %d", m.Limit)
	}
	if m.MinScore < 0 || m.MinScore > 100 {
		return fmt.Errorf("MinScore must be between 0 and 100, got %d", m.MinScore)
	}
	if m.MaxCandidates < 0 {
		return fmt.Errorf("MaxCandidates cannot be negative, got %d", m.MaxCandidates)
	}
	if m.CheckInterval < 0 {
		return fmt.Errorf("CheckInterval cannot be negative, got %d", m.CheckInterval)
	}
	if m.CacheSize < 0 {
		return fmt.Errorf("CacheSize cannot be negative, got %d", m.CacheSize)
	}
	return nil
}

func (v *Validator) validateWatchConfig(w *Watch) error {
	if w.DebounceMs < 0 {
		return fmt.Errorf("DebounceMs cannot be negative, got %d", w.DebounceMs)
	}
	return nil
}

func (v *Validator) validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return nil
}

// setSmartDefaults fills zero values with engine defaults
func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Matching.Limit == 0 {
		cfg.Matching.Limit = match.DefaultLimit
	}
	if cfg.Matching.MaxCandidates == 0 {
		cfg.Matching.MaxCandidates = match.DefaultMaxCandidates
	}
	if cfg.Matching.CheckInterval == 0 {
		cfg.Matching.CheckInterval = match.DefaultCheckInterval
	}
	if cfg.Matching.CacheSize == 0 {
		cfg.Matching.CacheSize = match.DefaultCacheSize
	}
	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = DefaultDebounce
	}
	if cfg.Project.TMDir == "" {
		cfg.Project.TMDir = DefaultTMDir
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
