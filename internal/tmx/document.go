// Package tmx reads and writes translation memories in TMX, the XML exchange
// format shared by CAT tools.
//
// The codec is lossless for files in the layout it writes itself: decoding a
// file and encoding the unchanged store reproduces the file byte for byte,
// except for the header changedate, which every save refreshes. To get
// there it records everything about the file that the store does not model
// (byte-order mark, encoding, line endings, XML declaration, header
// attributes and children, per-unit attributes, inline markup, extra tuvs,
// content written with character references or CDATA) on a Document and on
// each unit's tm.Fidelity.
//
// Entries are written in three sections marked by comments: default
// translations, alternative (context-keyed) translations, and orphaned
// translations. The section an entry is read from restores its orphan tag
// and keeps alternative entries in place.
package tmx

import (
	"strings"
	"time"

	"github.com/standardbeagle/tmxmatch/internal/tm"
	"github.com/standardbeagle/tmxmatch/internal/version"
)

// Encoding is the character encoding of a TMX file on disk
type Encoding int

const (
	UTF8 Encoding = iota
	UTF16LE
	UTF16BE
)

func (e Encoding) String() string {
	switch e {
	case UTF16LE:
		return "UTF-16LE"
	case UTF16BE:
		return "UTF-16BE"
	default:
		return "UTF-8"
	}
}

// Line endings
const (
	LF   = "\n"
	CRLF = "\r\n"
)

// TimeFormat is the TMX date format (ISO 8601 basic, UTC)
const TimeFormat = "20060102T150405Z"

// Section comments
const (
	sectionDefault     = "Default translations"
	sectionAlternative = "Alternative translations"
	sectionOrphaned    = "Orphaned translations"
)

// Context property types written on alternative translations
const (
	propFile = "file"
	propID   = "id"
	propPrev = "prev"
	propNext = "next"
	propPath = "path"
)

// Document is the file-level state of a TMX file
type Document struct {
	Encoding       Encoding
	BOM            bool
	LineEnding     string
	NoFinalNewline bool

	XMLDecl string // declaration as written, without line ending
	Doctype string // <!DOCTYPE ...> as written, empty when absent

	RootAttrs      []tm.Attr
	HeaderAttrs    []tm.Attr
	HeaderChildren []string // raw <prop>, <note> and <ude> markup

	// Sections is set when entries are partitioned by section comments
	Sections bool

	// Language attribute values used for units created after load
	SourceLang string
	TargetLang string

	// Charset names a legacy encoding transcoded to UTF-8 on load
	Charset string

	// Skipped counts units dropped on load (no source tuv, blank source,
	// duplicate key)
	Skipped int
}

// NewDocument describes a fresh TMX 1.4 file for the project
func NewDocument(props *tm.Properties, now time.Time) *Document {
	stamp := now.UTC().Format(TimeFormat)
	src := props.SourceLanguage.String()
	return &Document{
		Encoding:   UTF8,
		LineEnding: LF,
		XMLDecl:    `<?xml version="1.0" encoding="UTF-8"?>`,
		Doctype:    `<!DOCTYPE tmx SYSTEM "tmx14.dtd">`,
		RootAttrs:  []tm.Attr{{Name: "version", Value: "1.4"}},
		HeaderAttrs: []tm.Attr{
			{Name: "creationtool", Value: version.ToolName},
			{Name: "o-tmf", Value: version.ToolName + " TMX"},
			{Name: "adminlang", Value: "EN-US"},
			{Name: "datatype", Value: "plaintext"},
			{Name: "creationtoolversion", Value: version.Version},
			{Name: "segtype", Value: "sentence"},
			{Name: "srclang", Value: src},
			{Name: "creationdate", Value: stamp},
			{Name: "changedate", Value: stamp},
		},
		Sections:   true,
		SourceLang: src,
		TargetLang: props.TargetLanguage.String(),
	}
}

// Version returns the TMX version declared on the root element
func (d *Document) Version() string {
	v, _ := attr(d.RootAttrs, "version")
	return v
}

// LangAttr is the attribute naming a tuv's language: "lang" in TMX 1.1 and
// earlier, "xml:lang" from 1.2 on.
func (d *Document) LangAttr() string {
	switch d.Version() {
	case "1.0", "1.1":
		return "lang"
	default:
		return "xml:lang"
	}
}

// HeaderChangeDate returns the header's changedate, which Encode refreshes
func (d *Document) HeaderChangeDate() (time.Time, bool) {
	v, ok := attr(d.HeaderAttrs, "changedate")
	if !ok {
		return time.Time{}, false
	}
	return parseTime(v)
}

func (d *Document) eol() string {
	if d.LineEnding == "" {
		return LF
	}
	return d.LineEnding
}

// attr returns the value of the named attribute
func attr(attrs []tm.Attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// setAttr replaces the value of an existing attribute in place
func setAttr(attrs []tm.Attr, name, value string) []tm.Attr {
	out := make([]tm.Attr, len(attrs))
	copy(out, attrs)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
		}
	}
	return out
}

func isLangAttr(name string) bool {
	return name == "xml:lang" || name == "lang"
}

func isContextProp(typ string) bool {
	switch typ {
	case propFile, propID, propPrev, propNext, propPath:
		return true
	}
	return false
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeFormat)
}

func parseTime(s string) (time.Time, bool) {
	t, err := time.Parse(TimeFormat, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
