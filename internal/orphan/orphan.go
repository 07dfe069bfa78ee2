// Package orphan tags stored translations whose segment no longer appears in
// the live project. Tagging never removes anything: orphaned entries keep
// their history and are written to their own section on save.
package orphan

import (
	"go.uber.org/zap"

	"github.com/standardbeagle/tmxmatch/internal/debug"
	"github.com/standardbeagle/tmxmatch/internal/tm"
)

// Predicates answer whether a segment is still part of the project. The
// caller owns the documents, so it supplies both checks. A nil predicate
// never holds.
type Predicates struct {
	SourceExists func(source string) bool
	EntryExists  func(key tm.Key) bool
}

func (p Predicates) live(key tm.Key) bool {
	if p.SourceExists != nil && p.SourceExists(key.Source) {
		return true
	}
	return p.EntryExists != nil && p.EntryExists(key)
}

// Report summarizes one marking pass
type Report struct {
	Checked  int
	Orphaned int // entries orphaned after the pass
	Tagged   int // entries newly tagged
	Cleared  int // entries whose segment came back
	Skipped  bool
}

// Mark recomputes the orphan tag of every entry: an entry is orphaned when
// neither its source text nor its exact key is live. Running Mark twice with
// the same predicates yields the same tagged set. When the store's project
// has orphan detection disabled, Mark leaves every tag alone.
func Mark(store *tm.Store, preds Predicates) Report {
	if !store.Properties().OrphanDetection {
		return Report{Skipped: true}
	}

	var rep Report
	store.Each(func(e tm.Entry) bool {
		rep.Checked++
		orphaned := !preds.live(e.Key)
		if orphaned {
			rep.Orphaned++
		}
		if orphaned != e.Orphaned {
			store.SetOrphaned(e.Key, orphaned)
			if orphaned {
				rep.Tagged++
			} else {
				rep.Cleared++
			}
		}
		return true
	})

	debug.Logger("orphan").Debug("orphan pass",
		zap.Int("checked", rep.Checked),
		zap.Int("orphaned", rep.Orphaned),
		zap.Int("tagged", rep.Tagged),
		zap.Int("cleared", rep.Cleared))
	return rep
}

// ProjectIndex collects the live segments of a project and answers both
// predicates from them
type ProjectIndex struct {
	props   *tm.Properties
	sources map[string]struct{}
	keys    map[tm.Key]struct{}
}

// NewProjectIndex creates an empty index for the project
func NewProjectIndex(props *tm.Properties) *ProjectIndex {
	return &ProjectIndex{
		props:   props,
		sources: make(map[string]struct{}),
		keys:    make(map[tm.Key]struct{}),
	}
}

// Add records a live segment
func (p *ProjectIndex) Add(key tm.Key) {
	p.sources[key.Source] = struct{}{}
	p.keys[p.normalize(key)] = struct{}{}
}

// Len returns the number of distinct live entries
func (p *ProjectIndex) Len() int {
	return len(p.keys)
}

func (p *ProjectIndex) normalize(key tm.Key) tm.Key {
	if p.props != nil && !p.props.SupportDefaultTranslations {
		return tm.Key{Source: key.Source}
	}
	return key
}

// Predicates exposes the index to Mark
func (p *ProjectIndex) Predicates() Predicates {
	return Predicates{
		SourceExists: func(source string) bool {
			_, ok := p.sources[source]
			return ok
		},
		EntryExists: func(key tm.Key) bool {
			_, ok := p.keys[p.normalize(key)]
			return ok
		},
	}
}
