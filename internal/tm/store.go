// Package tm holds the segment store: translation units keyed by entry
// identity, a secondary index from source text to keys, and a token-overlap
// index used to gather fuzzy-match candidates.
//
// The store does no locking. Callers serialize writes (InsertOrReplace,
// SetOrphaned, codec saves) against reads on the same instance.
package tm

import (
	"sort"
	"strings"

	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
	"github.com/standardbeagle/tmxmatch/internal/tokenizer"
)

// Entry is one stored unit together with its key and orphan tag
type Entry struct {
	Key      Key
	Unit     Unit
	Orphaned bool
}

// SourceHit is a distinct source text returned by term lookup
type SourceHit struct {
	Source  string
	Overlap int // number of query terms the source shares
	Order   int // position of the first entry with this source
}

type slot struct {
	key      Key
	unit     Unit
	orphaned bool
}

// Store is the in-memory translation memory
type Store struct {
	props *Properties
	norm  tokenizer.Normalizer

	slots []*slot
	byKey map[Key]int

	// secondary index: source text -> keys in insertion order
	bySource    map[string][]Key
	sourceOrder map[string]int

	// token-overlap index: term -> sources containing it
	postings map[string]map[string]struct{}
}

// NewStore creates an empty store for the given project
func NewStore(props *Properties) *Store {
	return &Store{
		props:       props,
		norm:        props.Normalizer(),
		byKey:       make(map[Key]int),
		bySource:    make(map[string][]Key),
		sourceOrder: make(map[string]int),
		postings:    make(map[string]map[string]struct{}),
	}
}

// Properties returns the project properties the store was built with
func (s *Store) Properties() *Properties {
	return s.props
}

// Normalizer returns the normalization used by the store's term index
func (s *Store) Normalizer() tokenizer.Normalizer {
	return s.norm
}

// Len returns the number of stored entries
func (s *Store) Len() int {
	return len(s.slots)
}

// NormalizeKey drops the context discriminator when the project does not
// support per-context alternatives.
func (s *Store) NormalizeKey(key Key) Key {
	if s.props.SupportDefaultTranslations {
		return key
	}
	return Key{Source: key.Source}
}

// InsertOrReplace stores unit under key. Replacing keeps the entry's position
// and orphan tag. The previous unit is returned for undo/history.
func (s *Store) InsertOrReplace(key Key, unit Unit) (prev Unit, replaced bool, err error) {
	if strings.TrimSpace(key.Source) == "" {
		return Unit{}, false, tmerrors.NewValidationError("key source", key.Source, "must not be empty")
	}
	if unit.Source != key.Source {
		return Unit{}, false, tmerrors.NewValidationError("unit source", unit.Source, "does not match key source")
	}
	key = s.NormalizeKey(key)
	if unit.Alternative != key.HasContext() {
		reason := "alternative translation requires a context key"
		if !unit.Alternative {
			reason = "default translation must not carry context"
		}
		return Unit{}, false, tmerrors.NewValidationError("unit alternative flag", key.String(), reason)
	}

	if idx, ok := s.byKey[key]; ok {
		prev = s.slots[idx].unit
		s.slots[idx].unit = unit
		return prev, true, nil
	}

	s.byKey[key] = len(s.slots)
	s.slots = append(s.slots, &slot{key: key, unit: unit})

	if _, seen := s.sourceOrder[key.Source]; !seen {
		s.sourceOrder[key.Source] = len(s.slots) - 1
		s.indexTerms(key.Source)
	}
	s.bySource[key.Source] = append(s.bySource[key.Source], key)

	return Unit{}, false, nil
}

func (s *Store) indexTerms(source string) {
	for _, term := range s.norm.IndexTerms(source) {
		set, ok := s.postings[term]
		if !ok {
			set = make(map[string]struct{})
			s.postings[term] = set
		}
		set[source] = struct{}{}
	}
}

// Lookup returns the unit stored under key. Absence is reported with ok=false.
func (s *Store) Lookup(key Key) (Unit, bool) {
	idx, ok := s.byKey[s.NormalizeKey(key)]
	if !ok {
		return Unit{}, false
	}
	return s.slots[idx].unit, true
}

// CandidatesForSource returns all keys sharing exactly this source text
func (s *Store) CandidatesForSource(source string) []Key {
	keys := s.bySource[source]
	if len(keys) == 0 {
		return nil
	}
	out := make([]Key, len(keys))
	copy(out, keys)
	return out
}

// DefaultTranslation returns the context-free translation of source
func (s *Store) DefaultTranslation(source string) (Unit, bool) {
	return s.Lookup(Key{Source: source})
}

// Alternatives returns the context-keyed entries sharing source
func (s *Store) Alternatives(source string) []Entry {
	var out []Entry
	for _, key := range s.bySource[source] {
		if key.HasContext() {
			out = append(out, s.entryAt(s.byKey[key]))
		}
	}
	return out
}

// Position returns the persisted-order index of the entry at key
func (s *Store) Position(key Key) (int, bool) {
	idx, ok := s.byKey[s.NormalizeKey(key)]
	return idx, ok
}

// SourceOrder returns the store position of the first entry with source
func (s *Store) SourceOrder(source string) (int, bool) {
	order, ok := s.sourceOrder[source]
	return order, ok
}

// SourcesSharingTerms returns every distinct source sharing at least one term,
// most overlapping first, then in store order.
func (s *Store) SourcesSharingTerms(terms []string) []SourceHit {
	overlap := make(map[string]int)
	for _, term := range terms {
		for source := range s.postings[term] {
			overlap[source]++
		}
	}
	if len(overlap) == 0 {
		return nil
	}

	hits := make([]SourceHit, 0, len(overlap))
	for source, n := range overlap {
		hits = append(hits, SourceHit{Source: source, Overlap: n, Order: s.sourceOrder[source]})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Overlap != hits[j].Overlap {
			return hits[i].Overlap > hits[j].Overlap
		}
		return hits[i].Order < hits[j].Order
	})
	return hits
}

// SetOrphaned tags or untags the entry at key. Returns false if absent.
func (s *Store) SetOrphaned(key Key, orphaned bool) bool {
	idx, ok := s.byKey[s.NormalizeKey(key)]
	if !ok {
		return false
	}
	s.slots[idx].orphaned = orphaned
	return true
}

// IsOrphaned reports the orphan tag of the entry at key
func (s *Store) IsOrphaned(key Key) bool {
	idx, ok := s.byKey[s.NormalizeKey(key)]
	return ok && s.slots[idx].orphaned
}

// Each calls fn for every entry in persisted order until fn returns false
func (s *Store) Each(fn func(Entry) bool) {
	for i := range s.slots {
		if !fn(s.entryAt(i)) {
			return
		}
	}
}

// All returns every entry in persisted order
func (s *Store) All() []Entry {
	out := make([]Entry, len(s.slots))
	for i := range s.slots {
		out[i] = s.entryAt(i)
	}
	return out
}

// At returns the entry at a store position
func (s *Store) At(i int) Entry {
	return s.entryAt(i)
}

func (s *Store) entryAt(i int) Entry {
	sl := s.slots[i]
	return Entry{Key: sl.key, Unit: sl.unit, Orphaned: sl.orphaned}
}

// Stats summarizes the store contents
type Stats struct {
	Entries      int
	Defaults     int
	Alternatives int
	Orphaned     int
	Sources      int
	Terms        int
}

// Stats counts entries by kind
func (s *Store) Stats() Stats {
	st := Stats{Entries: len(s.slots), Sources: len(s.bySource), Terms: len(s.postings)}
	for _, sl := range s.slots {
		if sl.key.HasContext() {
			st.Alternatives++
		} else {
			st.Defaults++
		}
		if sl.orphaned {
			st.Orphaned++
		}
	}
	return st
}
