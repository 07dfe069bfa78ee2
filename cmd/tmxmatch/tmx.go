package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/tmxmatch/internal/orphan"
	"github.com/standardbeagle/tmxmatch/internal/tm"
	"github.com/standardbeagle/tmxmatch/internal/tmx"
)

// orphansCommand tags project entries against a list of live segments
func orphansCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("orphans requires a segments file")
	}
	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	idx, err := readSegments(c.Args().First(), session.Properties())
	if err != nil {
		return err
	}

	rep := session.MarkOrphans(idx.Predicates())
	w := c.App.Writer
	if rep.Skipped {
		fmt.Fprintln(w, "Orphan detection is disabled for this project")
		return nil
	}
	fmt.Fprintf(w, "Checked %d entries against %d live segments\n", rep.Checked, idx.Len())
	fmt.Fprintf(w, "  Orphaned: %d (%d newly tagged, %d cleared)\n", rep.Orphaned, rep.Tagged, rep.Cleared)

	if !c.Bool("save") {
		return nil
	}
	saved, err := session.Save()
	if err != nil {
		return err
	}
	if saved {
		fmt.Fprintf(w, "Saved %s\n", session.Config().TMPath())
	}
	return nil
}

// readSegments parses a segments file: one segment per line, optionally
// followed by tab-separated file and id.
func readSegments(path string, props *tm.Properties) (*orphan.ProjectIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx := orphan.NewProjectIndex(props)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Split(scanner.Text(), "\t")
		if strings.TrimSpace(fields[0]) == "" {
			continue
		}
		var ctx tm.Context
		if len(fields) > 1 {
			ctx.File = fields[1]
		}
		if len(fields) > 2 {
			ctx.ID = fields[2]
		}
		key, err := tm.NewKey(fields[0], ctx)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		idx.Add(key)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return idx, nil
}

// roundtripCommand decodes a TMX file and encodes it again, reporting the
// first line that differs
func roundtripCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("roundtrip requires a TMX file")
	}
	path := c.Args().First()

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	props, err := cfg.Properties()
	if err != nil {
		return err
	}

	original, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	store, doc, err := tmx.Decode(bytes.NewReader(original), props, tmx.Options{})
	if err != nil {
		return err
	}

	// keep the header date so an unchanged file compares equal
	now := time.Now()
	if t, ok := doc.HeaderChangeDate(); ok {
		now = t
	}
	opts := tmx.EncodeOptions{Now: func() time.Time { return now }}

	var out bytes.Buffer
	if err := tmx.Encode(&out, store, doc, opts); err != nil {
		return err
	}
	if output := c.String("output"); output != "" {
		if err := tmx.Save(output, store, doc, opts); err != nil {
			return err
		}
	}

	w := c.App.Writer
	if bytes.Equal(original, out.Bytes()) {
		fmt.Fprintf(w, "%s: %d entries, identical after round trip (%s, %s)\n",
			path, store.Len(), doc.Encoding, describeEOL(doc.LineEnding))
		return nil
	}
	line, want, got := firstDifference(original, out.Bytes())
	fmt.Fprintf(w, "%s: differs at line %d\n  read:  %q\n  wrote: %q\n", path, line, want, got)
	return fmt.Errorf("%s does not round-trip", path)
}

func describeEOL(eol string) string {
	switch eol {
	case tmx.CRLF:
		return "CRLF"
	default:
		return "LF"
	}
}

// firstDifference returns the 1-based number and content of the first
// differing line
func firstDifference(a, b []byte) (int, string, string) {
	la := strings.Split(string(a), "\n")
	lb := strings.Split(string(b), "\n")
	for i := 0; i < len(la) || i < len(lb); i++ {
		var x, y string
		if i < len(la) {
			x = la[i]
		}
		if i < len(lb) {
			y = lb[i]
		}
		if x != y || i >= len(la) || i >= len(lb) {
			return i + 1, x, y
		}
	}
	return 0, "", ""
}
