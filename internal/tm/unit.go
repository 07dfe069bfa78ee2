package tm

import (
	"fmt"
	"strings"
	"time"

	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
)

// Context discriminates translations of the same source text. The fields
// follow the context properties written by CAT tools: the file the segment
// came from, its segment id, and the neighbouring segments.
type Context struct {
	File string
	ID   string
	Prev string
	Next string
	Path string
}

// IsZero reports whether no context field is set
func (c Context) IsZero() bool {
	return c == Context{}
}

// Key identifies a translation unit. Keys are comparable and are used
// directly as map keys, so equality is full structural equality.
type Key struct {
	Source  string
	Context Context
}

// NewKey validates and builds a key. Blank source text is rejected.
func NewKey(source string, ctx Context) (Key, error) {
	if strings.TrimSpace(source) == "" {
		return Key{}, tmerrors.NewValidationError("key source", source, "must not be empty")
	}
	return Key{Source: source, Context: ctx}, nil
}

// DefaultKey builds a context-free key
func DefaultKey(source string) (Key, error) {
	return NewKey(source, Context{})
}

// HasContext reports whether the key carries a context discriminator
func (k Key) HasContext() bool {
	return !k.Context.IsZero()
}

func (k Key) String() string {
	if !k.HasContext() {
		return fmt.Sprintf("%q", k.Source)
	}
	return fmt.Sprintf("%q@%s#%s", k.Source, k.Context.File, k.Context.ID)
}

// Prop is a typed property carried by a unit (<prop type="...">)
type Prop struct {
	Type  string
	Lang  string
	Value string
}

// Attr is an XML attribute preserved verbatim for round-trips
type Attr struct {
	Name  string
	Value string
}

// InlineTag maps a shortcut in segment text (<g0>, </g0>, <x1/>) back to the
// inline markup it stands for.
type InlineTag struct {
	Shortcut string
	Raw      string
}

// Fidelity holds exchange-format detail that matching never looks at but a
// lossless save must reproduce. Attribute lists are in file order; the
// codec refreshes the attributes it models (lang, change and creation
// metadata) in place and writes the rest verbatim.
type Fidelity struct {
	TUAttrs     []Attr
	SourceAttrs []Attr
	TargetAttrs []Attr
	SourceTags  []InlineTag
	TargetTags  []InlineTag
	ExtraNotes  []string
	ExtraTUVs   []string // raw markup of <tu> children outside the language pair
	NoTarget    bool     // the file carried no target <tuv>

	// Content as written, for text whose markup plain escaping would not
	// reproduce (character references, CDATA, escaped shortcut text)
	SourceSeg Verbatim
	TargetSeg Verbatim
	Texts     []Verbatim // <note> and <prop> content

	// AltSection is set for units read from the alternative translations
	// section, which keeps them there when context props are not keys
	AltSection bool
}

// Verbatim pairs decoded text with the markup it was read from
type Verbatim struct {
	Text string
	Raw  string
}

// For returns the raw markup when it still encodes text
func (v Verbatim) For(text string) (string, bool) {
	if v.Raw == "" || v.Text != text {
		return "", false
	}
	return v.Raw, true
}

// Unit is an immutable translation unit
type Unit struct {
	Source string
	Target string

	CreationID   string
	CreationDate time.Time
	ChangeID     string
	ChangeDate   time.Time

	Note        string
	Alternative bool
	Props       []Prop

	Fidelity *Fidelity
}

// NewUnit builds a unit stamped with author and time for both creation and change
func NewUnit(source, target, author string, at time.Time, alternative bool) Unit {
	at = at.UTC().Truncate(time.Second)
	return Unit{
		Source:       source,
		Target:       target,
		CreationID:   author,
		CreationDate: at,
		ChangeID:     author,
		ChangeDate:   at,
		Alternative:  alternative,
	}
}

// Revise returns a copy of u with a new target, keeping creation metadata.
// Tag shortcuts typed into the new target resolve against the source markup.
func (u Unit) Revise(target, author string, at time.Time) Unit {
	out := u
	out.Target = target
	out.ChangeID = author
	out.ChangeDate = at.UTC().Truncate(time.Second)
	if u.Fidelity != nil {
		f := *u.Fidelity
		f.TargetTags = u.Fidelity.SourceTags
		f.NoTarget = false
		out.Fidelity = &f
	}
	return out
}
