package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
	"github.com/standardbeagle/tmxmatch/internal/match"
	"github.com/standardbeagle/tmxmatch/internal/similarity"
	"github.com/standardbeagle/tmxmatch/internal/tm"
	"github.com/standardbeagle/tmxmatch/internal/tmx"
)

// MatchReport is the JSON form of one proposal
type MatchReport struct {
	Source        string              `json:"source"`
	Target        string              `json:"target"`
	Score         int                 `json:"score"`
	Kind          match.Kind          `json:"kind"`
	Origin        string              `json:"origin"`
	ChangedBy     string              `json:"changed_by,omitempty"`
	ChangedAt     string              `json:"changed_at,omitempty"`
	QueryDiff     []similarity.Region `json:"query_diff,omitempty"`
	CandidateDiff []similarity.Region `json:"source_diff,omitempty"`
}

// matchCommand prints the proposals for one segment
func matchCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("match requires a segment")
	}
	query := strings.Join(c.Args().Slice(), " ")

	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	opts := session.Options()
	if limit := c.Int("limit"); limit != 0 {
		opts.Limit = limit
	}
	if c.IsSet("min-score") {
		opts.MinScore = c.Int("min-score")
	}

	start := time.Now()
	candidates, err := session.Match(c.Context, query, opts)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	w := c.App.Writer
	if c.Bool("json") {
		reports := make([]MatchReport, 0, len(candidates))
		for _, cand := range candidates {
			r := MatchReport{
				Source:    cand.Unit.Source,
				Target:    cand.Unit.Target,
				Score:     cand.Score,
				Kind:      cand.Kind,
				Origin:    cand.Origin,
				ChangedBy: cand.Unit.ChangeID,
			}
			if !cand.Unit.ChangeDate.IsZero() {
				r.ChangedAt = cand.Unit.ChangeDate.UTC().Format(tmx.TimeFormat)
			}
			if c.Bool("diff") {
				r.QueryDiff = cand.QueryDiff
				r.CandidateDiff = cand.CandidateDiff
			}
			reports = append(reports, r)
		}
		return writeJSON(w, reports)
	}

	if len(candidates) == 0 {
		fmt.Fprintf(w, "No matches for %q\n", query)
		return nil
	}
	for i, cand := range candidates {
		source := cand.Unit.Source
		if c.Bool("diff") {
			source = markRegions(source, cand.CandidateDiff)
		}
		fmt.Fprintf(w, "%d. [%3d%%] %s (%s)\n", i+1, cand.Score, cand.Kind, cand.Origin)
		fmt.Fprintf(w, "   source: %s\n", source)
		fmt.Fprintf(w, "   target: %s\n", cand.Unit.Target)
		if cand.Unit.ChangeID != "" {
			fmt.Fprintf(w, "   by %s", cand.Unit.ChangeID)
			if !cand.Unit.ChangeDate.IsZero() {
				fmt.Fprintf(w, " on %s", cand.Unit.ChangeDate.Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintf(w, "\n%d matches in %v\n", len(candidates), elapsed)
	return nil
}

// markRegions brackets the differing byte ranges of text
func markRegions(text string, regions []similarity.Region) string {
	var sb strings.Builder
	pos := 0
	for _, r := range regions {
		end := r.Offset + r.Length
		if r.Offset < pos || end > len(text) {
			continue
		}
		sb.WriteString(text[pos:r.Offset])
		sb.WriteString("[")
		sb.WriteString(text[r.Offset:end])
		sb.WriteString("]")
		pos = end
	}
	sb.WriteString(text[pos:])
	return sb.String()
}

func segmentKey(c *cli.Context) (tm.Key, error) {
	if c.NArg() < 1 {
		return tm.Key{}, errors.New("a segment is required")
	}
	return tm.NewKey(c.Args().First(), tm.Context{
		File: c.String("file"),
		ID:   c.String("id"),
		Prev: c.String("prev"),
		Next: c.String("next"),
		Path: c.String("path"),
	})
}

// lookupCommand prints the stored translation of one segment
func lookupCommand(c *cli.Context) error {
	key, err := segmentKey(c)
	if err != nil {
		return err
	}
	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	unit, found := session.Lookup(key)
	var alternatives []tm.Entry
	if !key.HasContext() {
		alternatives = session.Alternatives(key.Source)
	}
	if !found && len(alternatives) == 0 {
		return fmt.Errorf("%w: %s", tmerrors.ErrNotFound, key)
	}

	w := c.App.Writer
	if c.Bool("json") {
		out := map[string]interface{}{}
		if found {
			out["translation"] = unit.Target
		}
		if len(alternatives) > 0 {
			alts := make([]map[string]string, 0, len(alternatives))
			for _, e := range alternatives {
				alts = append(alts, map[string]string{
					"target": e.Unit.Target,
					"file":   e.Key.Context.File,
					"id":     e.Key.Context.ID,
				})
			}
			out["alternatives"] = alts
		}
		return writeJSON(w, out)
	}

	if found {
		fmt.Fprintln(w, unit.Target)
	}
	for _, e := range alternatives {
		fmt.Fprintf(w, "  %s: %s\n", e.Key, e.Unit.Target)
	}
	return nil
}

// setCommand stores one translation and saves the project TM
func setCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return errors.New("set requires a segment and its translation")
	}
	key, err := segmentKey(c)
	if err != nil {
		return err
	}
	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	unit, err := session.SetTranslation(key, c.Args().Get(1))
	if err != nil {
		return err
	}
	if _, err := session.Save(); err != nil {
		return err
	}

	kind := "default"
	if unit.Alternative {
		kind = "alternative"
	}
	fmt.Fprintf(c.App.Writer, "Stored %s translation of %s in %s\n", kind, key, session.Config().TMPath())
	return nil
}

// statsCommand summarizes the loaded memories
func statsCommand(c *cli.Context) error {
	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	st := session.Stats()
	w := c.App.Writer
	if c.Bool("json") {
		return writeJSON(w, map[string]interface{}{
			"project":  session.Config().TMPath(),
			"entries":  st.Project.Entries,
			"defaults": st.Project.Defaults,
			"alts":     st.Project.Alternatives,
			"orphaned": st.Project.Orphaned,
			"sources":  st.Project.Sources,
			"terms":    st.Project.Terms,
			"external": st.External,
		})
	}

	fmt.Fprintf(w, "Project TM: %s\n", session.Config().TMPath())
	fmt.Fprintf(w, "  Entries:       %d\n", st.Project.Entries)
	fmt.Fprintf(w, "  Defaults:      %d\n", st.Project.Defaults)
	fmt.Fprintf(w, "  Alternatives:  %d\n", st.Project.Alternatives)
	fmt.Fprintf(w, "  Orphaned:      %d\n", st.Project.Orphaned)
	fmt.Fprintf(w, "  Source texts:  %d\n", st.Project.Sources)
	fmt.Fprintf(w, "  Index terms:   %d\n", st.Project.Terms)
	fmt.Fprintf(w, "\nExternal TMs (%d):\n", len(st.External))
	for _, ext := range st.External {
		fmt.Fprintf(w, "  %-40s %d\n", ext.Name, ext.Entries)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
