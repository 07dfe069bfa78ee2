package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/tmxmatch/internal/config"
	"github.com/standardbeagle/tmxmatch/internal/debug"
	"github.com/standardbeagle/tmxmatch/internal/project"
	"github.com/standardbeagle/tmxmatch/internal/version"
)

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	rootDir := c.String("root")
	if rootDir != "" {
		absRoot, err := filepath.Abs(rootDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", rootDir, err)
		}
		rootDir = absRoot
	}

	cfg, err := config.LoadWithRoot(c.String("config"), rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if rootDir != "" {
		cfg.Project.Root = rootDir
	}
	if tmPath := c.String("tm"); tmPath != "" {
		cfg.Project.TM = tmPath
	}
	if lang := c.String("source-lang"); lang != "" {
		cfg.Project.SourceLang = lang
	}
	if lang := c.String("target-lang"); lang != "" {
		cfg.Project.TargetLang = lang
	}
	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Exclude = config.DeduplicatePatterns(append(cfg.Exclude, excludeFlags...))
	}
	if c.Bool("no-watch") {
		cfg.Watch.Enabled = false
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSession loads the project for a one-shot command. Watching is only
// useful for long-running servers.
func openSession(c *cli.Context) (*project.Session, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, err
	}
	cfg.Watch.Enabled = false
	return project.Open(c.Context, cfg)
}

func printVersion(c *cli.Context) {
	fmt.Fprintln(c.App.Writer, version.FullInfo())
}

func newApp() *cli.App {
	cli.VersionPrinter = printVersion
	return &cli.App{
		Name:                   version.ToolName,
		Usage:                  "Translation memory matching for TMX files",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (.kdl or .toml); defaults to the project's .tmxmatch.kdl or .tmxmatch.toml",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (overrides config)",
			},
			&cli.StringFlag{
				Name:  "tm",
				Usage: "Project TMX file, relative to the root",
			},
			&cli.StringFlag{
				Name:  "source-lang",
				Usage: "Source language tag (e.g. en-US)",
			},
			&cli.StringFlag{
				Name:  "target-lang",
				Usage: "Target language tag (e.g. fr)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Skip external TMX files matching glob patterns (e.g., --exclude 'old/**')",
			},
			&cli.BoolFlag{
				Name:  "no-watch",
				Usage: "Do not reload external TMX files when they change",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Write debug logs to a temp file",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				path, err := debug.InitDebugLogFile()
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.ErrWriter, "debug log: %s\n", path)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			return debug.CloseDebugLog()
		},
		Commands: []*cli.Command{
			{
				Name:      "match",
				Aliases:   []string{"m"},
				Usage:     "Find translation proposals for a source segment",
				ArgsUsage: "<segment>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum proposals (0 = config value)",
					},
					&cli.IntFlag{
						Name:  "min-score",
						Usage: "Minimum similarity percentage (default from config)",
					},
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
					&cli.BoolFlag{
						Name:    "diff",
						Aliases: []string{"d"},
						Usage:   "Highlight the differing words",
					},
				},
				Action: matchCommand,
			},
			{
				Name:      "lookup",
				Aliases:   []string{"l"},
				Usage:     "Show the stored translation of a source segment",
				ArgsUsage: "<segment>",
				Flags:     append(contextFlags(), &cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"}),
				Action:    lookupCommand,
			},
			{
				Name:      "set",
				Usage:     "Store a translation in the project TM and save it",
				ArgsUsage: "<segment> <translation>",
				Flags:     contextFlags(),
				Action:    setCommand,
			},
			{
				Name:    "stats",
				Aliases: []string{"st"},
				Usage:   "Summarize the project TM and the external TMs",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: statsCommand,
			},
			{
				Name:      "orphans",
				Usage:     "Tag translations whose segment is no longer in the project",
				ArgsUsage: "<segments-file>",
				Description: `Reads the live project segments, one per line. A line may carry the
segment's file and id after the text, separated by tabs. Entries whose
segment is missing are tagged orphaned; entries whose segment came back
are cleared.`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Write the updated project TM",
					},
				},
				Action: orphansCommand,
			},
			{
				Name:      "roundtrip",
				Usage:     "Check that a TMX file is written back unchanged",
				ArgsUsage: "<file.tmx>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Also write the re-encoded file here",
					},
				},
				Action: roundtripCommand,
			},
			{
				Name:  "config",
				Usage: "Configuration management",
				Subcommands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Show the effective configuration",
						Action: configShowCommand,
					},
					{
						Name:   "validate",
						Usage:  "Validate the configuration",
						Action: configValidateCommand,
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Start MCP (Model Context Protocol) server with stdio transport",
				Action: mcpCommand,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				return matchCommand(c)
			}
			if isMCPMode() {
				debug.Logger("main").Info("auto-detected MCP mode")
				return mcpCommand(c)
			}
			return cli.ShowAppHelp(c)
		},
	}
}

func contextFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "file", Usage: "Context: document the segment belongs to"},
		&cli.StringFlag{Name: "id", Usage: "Context: segment identifier within the file"},
		&cli.StringFlag{Name: "prev", Usage: "Context: previous segment text"},
		&cli.StringFlag{Name: "next", Usage: "Context: next segment text"},
		&cli.StringFlag{Name: "path", Usage: "Context: structural path of the segment"},
	}
}

// isMCPMode detects if tmxmatch should enter MCP mode
func isMCPMode() bool {
	if v := os.Getenv("TMXMATCH_MCP_MODE"); v == "1" || v == "true" {
		return true
	}

	// Non-terminal stdin (pipes, redirects) is likely JSON-RPC
	stat, err := os.Stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		return true
	}

	if len(os.Args) > 0 {
		arg0 := strings.ToLower(filepath.Base(os.Args[0]))
		if strings.Contains(arg0, "mcp") {
			return true
		}
	}
	return false
}

func main() {
	app := newApp()
	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
