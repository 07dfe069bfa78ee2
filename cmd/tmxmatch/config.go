package main

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v2"
)

// configShowCommand prints the effective configuration as TOML
func configShowCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func configValidateCommand(c *cli.Context) error {
	w := c.App.Writer
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		fmt.Fprintf(w, "Configuration validation failed: %v\n", err)
		return err
	}

	var warnings []string
	if cfg.Matching.MinScore < 20 {
		warnings = append(warnings, "min_score below 20 returns mostly unrelated proposals")
	}
	if cfg.Matching.MaxCandidates > 20000 {
		warnings = append(warnings, "max_candidates above 20000 makes large memories slow to query")
	}
	if !cfg.Project.SupportDefaultTranslations && cfg.Project.OrphanDetection {
		warnings = append(warnings, "without default translations, orphan detection compares source text only")
	}

	fmt.Fprintf(w, "Configuration is valid\n")
	printSettings(w, cfg.Project.Root, cfg.TMPath(), cfg.TMDirPath(), cfg.Project.SourceLang, cfg.Project.TargetLang)
	if len(warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings:\n")
		for _, warning := range warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
	return nil
}

func printSettings(w io.Writer, root, tmPath, tmDir, src, tgt string) {
	fmt.Fprintf(w, "  Root:       %s\n", root)
	fmt.Fprintf(w, "  Project TM: %s\n", tmPath)
	fmt.Fprintf(w, "  TM dir:     %s\n", tmDir)
	fmt.Fprintf(w, "  Languages:  %s -> %s\n", src, tgt)
}
