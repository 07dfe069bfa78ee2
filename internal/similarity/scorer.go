// Package similarity scores a query segment against a stored segment using
// token-level edit distance.
//
// Distance is measured over word tokens rather than characters: segments
// mostly differ by whole-word substitutions and markup, and a one-word change
// should cost one edit regardless of the word's length.
//
// Every comparison produces two alignments. The normalized alignment applies
// the project's case folding and punctuation stripping; the raw alignment
// compares the untouched words and punctuation. The ranker uses the pair to
// tell exact matches from normalized-equal ones.
package similarity

import (
	"github.com/standardbeagle/tmxmatch/internal/tokenizer"
)

// Region is a byte range of segment text that differs from the other side
type Region struct {
	Offset int
	Length int
}

// Result carries both alignments and the highlighted differences
type Result struct {
	Normalized int
	Raw        int

	// QueryDiff and CandidateDiff hold the regions outside the common
	// subsequence of the normalized alignment
	QueryDiff     []Region
	CandidateDiff []Region
}

// Prepared is a segment tokenized for both alignments. Prepared values are
// immutable and may be cached and shared between goroutines.
type Prepared struct {
	Text       string
	Normalized []tokenizer.Token
	Raw        []tokenizer.Token

	normTexts []string
	rawTexts  []string
}

// Scorer compares segments under a fixed normalization
type Scorer struct {
	norm tokenizer.Normalizer
}

// NewScorer creates a scorer for the given normalization
func NewScorer(norm tokenizer.Normalizer) *Scorer {
	return &Scorer{norm: norm}
}

// Prepare tokenizes text for both alignments
func (s *Scorer) Prepare(text string) *Prepared {
	normalized := s.norm.Normalize(text)
	raw := tokenizer.Raw(text)
	return &Prepared{
		Text:       text,
		Normalized: normalized,
		Raw:        raw,
		normTexts:  tokenizer.Texts(normalized),
		rawTexts:   tokenizer.Texts(raw),
	}
}

// Compare prepares and compares two texts
func (s *Scorer) Compare(query, candidate string) Result {
	return s.CompareWithDiff(s.Prepare(query), s.Prepare(candidate))
}

// ComparePrepared scores two prepared segments without computing diff regions
func (s *Scorer) ComparePrepared(query, candidate *Prepared) Result {
	return Result{
		Normalized: Score(query.normTexts, candidate.normTexts),
		Raw:        Score(query.rawTexts, candidate.rawTexts),
	}
}

// CompareWithDiff scores two prepared segments and fills in diff regions
func (s *Scorer) CompareWithDiff(query, candidate *Prepared) Result {
	res := s.ComparePrepared(query, candidate)
	qm, cm := commonMask(query.normTexts, candidate.normTexts)
	res.QueryDiff = regions(query.Normalized, qm)
	res.CandidateDiff = regions(candidate.Normalized, cm)
	return res
}

// regions merges runs of unmatched tokens into text ranges
func regions(tokens []tokenizer.Token, matched []bool) []Region {
	var out []Region
	for i := 0; i < len(tokens); {
		if matched[i] {
			i++
			continue
		}
		start := tokens[i].Offset
		end := tokens[i].End()
		for i++; i < len(tokens) && !matched[i]; i++ {
			end = tokens[i].End()
		}
		out = append(out, Region{Offset: start, Length: end - start})
	}
	return out
}
