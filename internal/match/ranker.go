// Package match ranks stored translation units against a query segment.
//
// A lookup runs in three passes. Entries whose source equals the query
// (ignoring surrounding whitespace) are classified Exact at score 100 without
// scoring. The remaining candidates come from the store's token-overlap index,
// so entries sharing no term with the query are never scored. Survivors are
// scored, filtered by MinScore, ordered and truncated; diff regions are
// computed only for the returned candidates.
//
// Ranking is read-only against the store. Callers serialize it against writes.
package match

import (
	"context"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/standardbeagle/tmxmatch/internal/debug"
	"github.com/standardbeagle/tmxmatch/internal/similarity"
	"github.com/standardbeagle/tmxmatch/internal/tm"
	"github.com/standardbeagle/tmxmatch/internal/tokenizer"
)

// DefaultCacheSize is the number of prepared segments a session ranker keeps
const DefaultCacheSize = 4096

// Source is a named store searched by FindMatchesMulti
type Source struct {
	Name  string
	Store *tm.Store
}

// Ranker scores candidates under one normalization and caches prepared
// segments between lookups. A Ranker is safe for concurrent use.
type Ranker struct {
	scorer *similarity.Scorer
	cache  *lru.Cache[string, *similarity.Prepared]
	logger *zap.Logger
}

// NewRanker creates a ranker. cacheSize <= 0 disables the segment cache.
func NewRanker(norm tokenizer.Normalizer, cacheSize int) *Ranker {
	r := &Ranker{
		scorer: similarity.NewScorer(norm),
		logger: debug.Logger("match"),
	}
	if cacheSize > 0 {
		r.cache, _ = lru.New[string, *similarity.Prepared](cacheSize)
	}
	return r
}

// FindMatches ranks the entries of a single store using its normalization
func FindMatches(ctx context.Context, query string, store *tm.Store, opts Options) ([]Candidate, error) {
	return NewRanker(store.Normalizer(), 0).FindMatches(ctx, query, store, opts)
}

// FindMatches ranks the entries of store against query
func (r *Ranker) FindMatches(ctx context.Context, query string, store *tm.Store, opts Options) ([]Candidate, error) {
	return r.FindMatchesMulti(ctx, query, []Source{{Store: store}}, opts)
}

// FindMatchesMulti ranks the entries of several stores together. Candidates
// carry the Name of their source as Origin; on equal score and length,
// earlier sources win.
func (r *Ranker) FindMatchesMulti(ctx context.Context, query string, sources []Source, opts Options) ([]Candidate, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	q := r.prepare(query)
	var out []Candidate
	for i, src := range sources {
		if src.Store == nil || src.Store.Len() == 0 {
			continue
		}
		found, err := r.collect(ctx, q, i, src, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return less(&out[i], &out[j])
	})
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}

	for i := range out {
		if out[i].Kind == Exact {
			continue
		}
		res := r.scorer.CompareWithDiff(q, r.prepare(out[i].Key.Source))
		out[i].QueryDiff = res.QueryDiff
		out[i].CandidateDiff = res.CandidateDiff
	}
	return out, nil
}

// collect gathers and scores the candidates of one store
func (r *Ranker) collect(ctx context.Context, q *similarity.Prepared, originIdx int, src Source, opts Options) ([]Candidate, error) {
	store := src.Store
	seen := make(map[string]struct{})
	var out []Candidate

	add := func(source string, score, raw int, exact bool) {
		for _, key := range store.CandidatesForSource(source) {
			unit, ok := store.Lookup(key)
			if !ok {
				continue
			}
			order, _ := store.Position(key)
			c := newCandidate(key, unit, store.IsOrphaned(key), src.Name, originIdx, order)
			c.Score = score
			c.RawScore = raw
			switch {
			case exact:
				c.Kind = Exact
			case c.Orphaned:
				c.Kind = OrphanedFuzzy
			default:
				c.Kind = Fuzzy
			}
			out = append(out, c)
		}
	}

	for _, source := range exactSources(q.Text) {
		if _, dup := seen[source]; dup {
			continue
		}
		if len(store.CandidatesForSource(source)) == 0 {
			continue
		}
		seen[source] = struct{}{}
		add(source, 100, 100, true)
	}

	hits := store.SourcesSharingTerms(store.Normalizer().IndexTerms(q.Text))
	if len(hits) > opts.MaxCandidates {
		r.logger.Debug("candidate set truncated",
			zap.String("origin", src.Name),
			zap.Int("sources", len(hits)),
			zap.Int("max", opts.MaxCandidates))
		hits = hits[:opts.MaxCandidates]
	}

	for i, hit := range hits {
		if i%opts.CheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if _, dup := seen[hit.Source]; dup {
			continue
		}
		seen[hit.Source] = struct{}{}

		if tokenizer.Equivalent(hit.Source, q.Text) {
			add(hit.Source, 100, 100, true)
			continue
		}

		res := r.scorer.ComparePrepared(q, r.prepare(hit.Source))
		score := min(res.Normalized, MaxFuzzyScore)
		if score < opts.MinScore {
			continue
		}
		add(hit.Source, score, min(res.Raw, MaxFuzzyScore), false)
	}
	return out, nil
}

// exactSources lists the stored source texts that count as an exact match
func exactSources(query string) []string {
	trimmed := strings.TrimSpace(query)
	if trimmed == query {
		return []string{query}
	}
	return []string{query, trimmed}
}

func (r *Ranker) prepare(text string) *similarity.Prepared {
	if r.cache == nil {
		return r.scorer.Prepare(text)
	}
	if p, ok := r.cache.Get(text); ok {
		return p
	}
	p := r.scorer.Prepare(text)
	r.cache.Add(text, p)
	return p
}

// Purge drops every cached segment
func (r *Ranker) Purge() {
	if r.cache != nil {
		r.cache.Purge()
	}
}
