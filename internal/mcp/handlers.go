package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
	"github.com/standardbeagle/tmxmatch/internal/match"
	"github.com/standardbeagle/tmxmatch/internal/similarity"
	"github.com/standardbeagle/tmxmatch/internal/tm"
	"github.com/standardbeagle/tmxmatch/internal/tmx"
)

// MatchParams are the tm_match arguments
type MatchParams struct {
	Query    string `json:"query"`
	Limit    int    `json:"limit,omitempty"`
	MinScore *int   `json:"min_score,omitempty"`
	Diff     bool   `json:"diff,omitempty"`
}

// SegmentParams address one project entry; Target is used by
// tm_set_translation only
type SegmentParams struct {
	Source string `json:"source"`
	Target string `json:"target,omitempty"`
	File   string `json:"file,omitempty"`
	ID     string `json:"id,omitempty"`
	Prev   string `json:"prev,omitempty"`
	Next   string `json:"next,omitempty"`
	Path   string `json:"path,omitempty"`
}

func (p SegmentParams) key() (tm.Key, error) {
	return tm.NewKey(p.Source, tm.Context{File: p.File, ID: p.ID, Prev: p.Prev, Next: p.Next, Path: p.Path})
}

// UnitView is the JSON form of a stored translation
type UnitView struct {
	Source      string      `json:"source"`
	Target      string      `json:"target"`
	Context     *tm.Context `json:"context,omitempty"`
	Alternative bool        `json:"alternative,omitempty"`
	ChangeID    string      `json:"changed_by,omitempty"`
	ChangeDate  string      `json:"changed_at,omitempty"`
	Note        string      `json:"note,omitempty"`
}

func newUnitView(key tm.Key, u tm.Unit) UnitView {
	v := UnitView{
		Source:      u.Source,
		Target:      u.Target,
		Alternative: u.Alternative,
		ChangeID:    u.ChangeID,
		Note:        u.Note,
	}
	if key.HasContext() {
		ctx := key.Context
		v.Context = &ctx
	}
	if !u.ChangeDate.IsZero() {
		v.ChangeDate = u.ChangeDate.UTC().Format(tmx.TimeFormat)
	}
	return v
}

// MatchResult is one proposal
type MatchResult struct {
	UnitView
	Score         int                 `json:"score"`
	Kind          match.Kind          `json:"kind"`
	Origin        string              `json:"origin"`
	Orphaned      bool                `json:"orphaned,omitempty"`
	QueryDiff     []similarity.Region `json:"query_diff,omitempty"`
	CandidateDiff []similarity.Region `json:"source_diff,omitempty"`
}

// MatchResponse is the tm_match result
type MatchResponse struct {
	Query    string        `json:"query"`
	Count    int           `json:"count"`
	Matches  []MatchResult `json:"matches"`
	Duration string        `json:"duration"`
}

// LookupResponse is the tm_lookup result
type LookupResponse struct {
	Translation  *UnitView  `json:"translation,omitempty"`
	Alternatives []UnitView `json:"alternatives,omitempty"`
}

// StatsResponse is the tm_stats result
type StatsResponse struct {
	Entries      int             `json:"entries"`
	Defaults     int             `json:"defaults"`
	Alternatives int             `json:"alternatives"`
	Orphaned     int             `json:"orphaned"`
	Unsaved      bool            `json:"unsaved"`
	Watching     bool            `json:"watching"`
	WatchEvents  int64           `json:"watch_events,omitempty"`
	WatchErrors  int64           `json:"watch_errors,omitempty"`
	LastChange   string          `json:"last_change,omitempty"`
	External     []ExternalEntry `json:"external,omitempty"`
	Truncated    bool            `json:"external_truncated,omitempty"`
}

// ExternalEntry describes one external TM
type ExternalEntry struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
}

func decodeParams(req *mcp.CallToolRequest, v interface{}) error {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

func (s *Server) handleMatch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic(ToolMatch, func() (*mcp.CallToolResult, error) {
		var params MatchParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		if strings.TrimSpace(params.Query) == "" {
			return nil, tmerrors.NewValidationError("query", params.Query, "must not be empty")
		}
		if utf8.RuneCountInString(params.Query) > MatchMaxQueryRunes {
			return nil, tmerrors.NewValidationError("query", "", fmt.Sprintf("longer than %d characters", MatchMaxQueryRunes))
		}

		opts := s.session.Options()
		opts.Limit = MatchDefaultLimit
		if params.Limit != 0 {
			if params.Limit < 0 || params.Limit > MatchMaxLimit {
				return nil, tmerrors.NewValidationError("limit", fmt.Sprint(params.Limit), fmt.Sprintf("must be between 1 and %d", MatchMaxLimit))
			}
			opts.Limit = params.Limit
		}
		if params.MinScore != nil {
			opts.MinScore = *params.MinScore
		}

		start := time.Now()
		candidates, err := s.session.Match(ctx, params.Query, opts)
		if err != nil {
			return nil, err
		}

		resp := MatchResponse{
			Query:    params.Query,
			Count:    len(candidates),
			Matches:  make([]MatchResult, 0, len(candidates)),
			Duration: time.Since(start).String(),
		}
		for _, c := range candidates {
			r := MatchResult{
				UnitView: newUnitView(c.Key, c.Unit),
				Score:    c.Score,
				Kind:     c.Kind,
				Origin:   c.Origin,
				Orphaned: c.Orphaned,
			}
			if params.Diff {
				r.QueryDiff = c.QueryDiff
				r.CandidateDiff = c.CandidateDiff
			}
			resp.Matches = append(resp.Matches, r)
		}
		return createJSONResponse(resp)
	})
}

func (s *Server) handleLookup(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic(ToolLookup, func() (*mcp.CallToolResult, error) {
		var params SegmentParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		key, err := params.key()
		if err != nil {
			return nil, err
		}

		var resp LookupResponse
		if unit, ok := s.session.Lookup(key); ok {
			view := newUnitView(key, unit)
			resp.Translation = &view
		}
		if !key.HasContext() {
			for _, e := range s.session.Alternatives(key.Source) {
				resp.Alternatives = append(resp.Alternatives, newUnitView(e.Key, e.Unit))
			}
		}
		if resp.Translation == nil && len(resp.Alternatives) == 0 {
			return nil, fmt.Errorf("%w: %s", tmerrors.ErrNotFound, key)
		}
		return createJSONResponse(resp)
	})
}

func (s *Server) handleSetTranslation(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic(ToolSetTranslation, func() (*mcp.CallToolResult, error) {
		var params SegmentParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		key, err := params.key()
		if err != nil {
			return nil, err
		}

		unit, err := s.session.SetTranslation(key, params.Target)
		if err != nil {
			return nil, err
		}
		return createJSONResponse(map[string]interface{}{
			"success":     true,
			"translation": newUnitView(key, unit),
		})
	})
}

func (s *Server) handleStats(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic(ToolStats, func() (*mcp.CallToolResult, error) {
		st := s.session.Stats()
		resp := StatsResponse{
			Entries:      st.Project.Entries,
			Defaults:     st.Project.Defaults,
			Alternatives: st.Project.Alternatives,
			Orphaned:     st.Project.Orphaned,
			Unsaved:      st.Dirty,
			Watching:     st.Watching,
			WatchEvents:  st.Watch.EventsProcessed,
			WatchErrors:  st.Watch.ErrorCount,
		}
		if !st.Watch.LastEventTime.IsZero() {
			resp.LastChange = st.Watch.LastEventTime.UTC().Format(time.RFC3339)
		}
		for i, ext := range st.External {
			if i == StatsMaxExternal {
				resp.Truncated = true
				break
			}
			resp.External = append(resp.External, ExternalEntry{Name: ext.Name, Entries: ext.Entries})
		}
		return createJSONResponse(resp)
	})
}

func (s *Server) handleSave(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic(ToolSave, func() (*mcp.CallToolResult, error) {
		saved, err := s.session.Save()
		if err != nil {
			return nil, err
		}
		return createJSONResponse(map[string]interface{}{
			"success": true,
			"written": saved,
			"path":    s.session.Config().TMPath(),
		})
	})
}
