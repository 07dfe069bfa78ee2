package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
	"go.uber.org/zap"

	"github.com/standardbeagle/tmxmatch/internal/debug"
)

// KDLFile is the project configuration file name
const KDLFile = ".tmxmatch.kdl"

// LoadKDL attempts to load configuration from .tmxmatch.kdl in dir. A
// missing file returns nil without error.
func LoadKDL(dir string) (*Config, error) {
	kdlPath := filepath.Join(dir, KDLFile)

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}
	return loadKDLFile(kdlPath, dir)
}

func loadKDLFile(path, dir string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	resolveRoot(cfg, dir)
	return cfg, nil
}

// resolveRoot makes the project root absolute. A relative root is taken
// relative to the directory holding the config file.
func resolveRoot(cfg *Config, dir string) {
	if cfg.Project.Root != "" {
		if !filepath.IsAbs(cfg.Project.Root) {
			cfg.Project.Root = filepath.Join(dir, cfg.Project.Root)
		}
		cfg.Project.Root = absOr(filepath.Clean(cfg.Project.Root))
		return
	}
	cfg.Project.Root = absOr(dir)
}

// parseKDL reads the tmxmatch KDL layout on top of the defaults:
//
//	project { source_lang "en"; target_lang "fr"; tm "omegat/project_save.tmx" }
//	matching { limit 10; min_score 30 }
//	codec { backup true }
//	watch { enabled true; debounce_ms 300 }
//	include "**/*.tmx"
//	exclude { "penalty-*/**" }
//
// Children blocks may sit on one line as above; kdl-go needs a terminator
// after the last child, which terminateChildren supplies.
func parseKDL(content string) (*Config, error) {
	cfg := Default("")

	doc, err := kdl.Parse(strings.NewReader(terminateChildren(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "version":
			if v, ok := firstIntArg(n); ok {
				cfg.Version = v
			}
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
				assignSimpleString(cn, "source_lang", func(v string) { cfg.Project.SourceLang = v })
				assignSimpleString(cn, "target_lang", func(v string) { cfg.Project.TargetLang = v })
				assignSimpleString(cn, "tm", func(v string) { cfg.Project.TM = v })
				assignSimpleString(cn, "tm_dir", func(v string) { cfg.Project.TMDir = v })
				assignSimpleString(cn, "author", func(v string) { cfg.Project.Author = v })
				assignSimpleBool(cn, "support_default_translations", func(v bool) { cfg.Project.SupportDefaultTranslations = v })
				assignSimpleBool(cn, "orphan_detection", func(v bool) { cfg.Project.OrphanDetection = v })
			}
		case "matching":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "limit":
					if v, ok := firstIntArg(cn); ok {
						cfg.Matching.Limit = v
					}
				case "min_score":
					if v, ok := firstIntArg(cn); ok {
						cfg.Matching.MinScore = v
					}
				case "max_candidates":
					if v, ok := firstIntArg(cn); ok {
						cfg.Matching.MaxCandidates = v
					}
				case "check_interval":
					if v, ok := firstIntArg(cn); ok {
						cfg.Matching.CheckInterval = v
					}
				case "cache_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Matching.CacheSize = v
					}
				case "fold_case":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Matching.FoldCase = b
					}
				case "strip_punctuation":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Matching.StripPunctuation = b
					}
				case "stemming":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Matching.Stemming = b
					}
				default:
					warnUnknown("matching", cn)
				}
			}
		case "codec":
			for _, cn := range n.Children {
				assignSimpleBool(cn, "partial", func(v bool) { cfg.Codec.Partial = v })
				assignSimpleBool(cn, "backup", func(v bool) { cfg.Codec.Backup = v })
				assignSimpleBool(cn, "bom", func(v bool) { cfg.Codec.BOM = v })
			}
		case "watch":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Watch.Enabled = b
					}
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Watch.DebounceMs = v
					}
				default:
					warnUnknown("watch", cn)
				}
			}
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			cfg.Exclude = collectStringArgs(n)
		default:
			warnUnknown("", n)
		}
	}

	return cfg, nil
}

func warnUnknown(section string, n *document.Node) {
	debug.Logger("config").Warn("unknown KDL config node",
		zap.String("section", section),
		zap.String("node", nodeName(n)))
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

// collectStringArgs reads both the inline form (include "a" "b") and the
// block form (exclude { "a"; "b" })
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// in block form the node name itself is the string value
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

func assignSimpleBool(n *document.Node, target string, set func(bool)) {
	if nodeName(n) == target {
		if b, ok := firstBoolArg(n); ok {
			set(b)
		}
	}
}

// terminateChildren inserts a ';' before each '}' that closes a children
// block on the same line as its last child. Strings and comments are copied
// untouched.
func terminateChildren(content string) string {
	var sb strings.Builder
	sb.Grow(len(content) + 8)

	for i := 0; i < len(content); i++ {
		c := content[i]
		switch {
		case c == '"':
			end := quotedEnd(content, i)
			sb.WriteString(content[i:end])
			i = end - 1
		case c == 'r' && rawStringStart(content, i):
			end := rawStringEnd(content, i)
			sb.WriteString(content[i:end])
			i = end - 1
		case strings.HasPrefix(content[i:], "//"):
			end := strings.IndexByte(content[i:], '\n')
			if end < 0 {
				end = len(content) - i
			}
			sb.WriteString(content[i : i+end])
			i += end - 1
		case strings.HasPrefix(content[i:], "/*"):
			end := blockCommentEnd(content, i)
			sb.WriteString(content[i:end])
			i = end - 1
		case c == '}':
			if before := sb.String(); needsTerminator(before) {
				trimmed := strings.TrimRight(before, " \t")
				sb.Reset()
				sb.WriteString(trimmed)
				sb.WriteByte(';')
				sb.WriteString(before[len(trimmed):])
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// needsTerminator reports whether the text before a '}' ends in a node on
// the same line
func needsTerminator(before string) bool {
	trimmed := strings.TrimRight(before, " \t")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '\n', '\r', '{', ';', '}':
		return false
	}
	return true
}

func quotedEnd(s string, i int) int {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '"':
			return j + 1
		}
	}
	return len(s)
}

func rawStringStart(s string, i int) bool {
	if i > 0 && isIdentByte(s[i-1]) {
		return false
	}
	j := i + 1
	for j < len(s) && s[j] == '#' {
		j++
	}
	return j < len(s) && s[j] == '"'
}

func rawStringEnd(s string, i int) int {
	j := i + 1
	hashes := 0
	for s[j] == '#' {
		hashes++
		j++
	}
	closing := "\"" + strings.Repeat("#", hashes)
	end := strings.Index(s[j+1:], closing)
	if end < 0 {
		return len(s)
	}
	return j + 1 + end + len(closing)
}

func blockCommentEnd(s string, i int) int {
	depth := 0
	for j := i; j < len(s)-1; j++ {
		switch {
		case s[j] == '/' && s[j+1] == '*':
			depth++
			j++
		case s[j] == '*' && s[j+1] == '/':
			depth--
			j++
			if depth == 0 {
				return j + 1
			}
		}
	}
	return len(s)
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '-' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
