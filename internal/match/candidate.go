package match

import (
	"fmt"
	"unicode/utf8"

	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
	"github.com/standardbeagle/tmxmatch/internal/similarity"
	"github.com/standardbeagle/tmxmatch/internal/tm"
)

// Kind classifies a match
type Kind int

const (
	Exact Kind = iota
	Fuzzy
	OrphanedFuzzy
)

func (k Kind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Fuzzy:
		return "fuzzy"
	case OrphanedFuzzy:
		return "orphaned-fuzzy"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText renders the kind by name in JSON output
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name
func (k *Kind) UnmarshalText(text []byte) error {
	for _, kind := range []Kind{Exact, Fuzzy, OrphanedFuzzy} {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown match kind %q", text)
}

// Candidate is one ranked match
type Candidate struct {
	Key      tm.Key
	Unit     tm.Unit
	Score    int // 100 only for exact matches
	RawScore int // score of the punctuation and case sensitive alignment
	Kind     Kind
	Orphaned bool

	// Origin names the TM the candidate came from; empty for the project TM
	Origin string

	QueryDiff     []similarity.Region
	CandidateDiff []similarity.Region

	// tie-break state
	runes  int
	origin int
	order  int
}

func newCandidate(key tm.Key, unit tm.Unit, orphaned bool, origin string, originIdx, order int) Candidate {
	return Candidate{
		Key:      key,
		Unit:     unit,
		Orphaned: orphaned,
		Origin:   origin,
		runes:    utf8.RuneCountInString(key.Source),
		origin:   originIdx,
		order:    order,
	}
}

// less orders by score descending, then shorter source, then origin and
// store order.
func less(a, b *Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.runes != b.runes {
		return a.runes < b.runes
	}
	if a.origin != b.origin {
		return a.origin < b.origin
	}
	return a.order < b.order
}

// Defaults
const (
	DefaultLimit         = 10
	DefaultMinScore      = 30
	DefaultMaxCandidates = 2000
	DefaultCheckInterval = 256

	// MaxFuzzyScore is the ceiling for anything that is not an exact match
	MaxFuzzyScore = 99
)

// Options bound a single lookup
type Options struct {
	Limit         int // results kept; 0 means DefaultLimit
	MinScore      int // candidates scoring below are discarded
	MaxCandidates int // distinct sources scored; 0 means DefaultMaxCandidates
	CheckInterval int // candidates between cancellation checks; 0 means DefaultCheckInterval
}

// DefaultOptions returns the project defaults
func DefaultOptions() Options {
	return Options{
		Limit:         DefaultLimit,
		MinScore:      DefaultMinScore,
		MaxCandidates: DefaultMaxCandidates,
		CheckInterval: DefaultCheckInterval,
	}
}

func (o Options) withDefaults() (Options, error) {
	if o.Limit < 0 {
		return o, tmerrors.NewValidationError("limit", fmt.Sprint(o.Limit), "must not be negative")
	}
	if o.MinScore < 0 || o.MinScore > 100 {
		return o, tmerrors.NewValidationError("min score", fmt.Sprint(o.MinScore), "must be between 0 and 100")
	}
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = DefaultMaxCandidates
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = DefaultCheckInterval
	}
	return o, nil
}
