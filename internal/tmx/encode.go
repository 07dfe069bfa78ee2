package tmx

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/standardbeagle/tmxmatch/internal/tm"
)

// EncodeOptions control encoding
type EncodeOptions struct {
	// Now stamps the header changedate; time.Now when nil
	Now func() time.Time
}

func (o EncodeOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Encode writes the store as TMX. A nil doc writes a new TMX 1.4 file.
func Encode(w io.Writer, store *tm.Store, doc *Document, opts EncodeOptions) error {
	now := opts.now()
	if doc == nil {
		doc = NewDocument(store.Properties(), now)
	}

	e := &encoder{doc: doc, eol: doc.eol(), lang: doc.LangAttr()}
	e.prolog(now)
	e.body(store)
	e.sb.WriteString("</tmx>")
	if !doc.NoFinalNewline {
		e.sb.WriteString(e.eol)
	}

	out := []byte(e.sb.String())
	var err error
	switch doc.Encoding {
	case UTF16LE:
		out, err = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes(out)
	case UTF16BE:
		out, err = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder().Bytes(out)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", doc.Encoding, err)
	}

	if doc.BOM {
		if _, err := w.Write(bom(doc.Encoding)); err != nil {
			return err
		}
	}
	_, err = w.Write(out)
	return err
}

func bom(enc Encoding) []byte {
	switch enc {
	case UTF16LE:
		return bomUTF16LE
	case UTF16BE:
		return bomUTF16BE
	default:
		return bomUTF8
	}
}

type encoder struct {
	sb   strings.Builder
	doc  *Document
	eol  string
	lang string
}

func (e *encoder) line(indent int, s string) {
	for i := 0; i < indent; i++ {
		e.sb.WriteByte(' ')
	}
	e.sb.WriteString(s)
	e.sb.WriteString(e.eol)
}

func (e *encoder) prolog(now time.Time) {
	d := e.doc
	if d.XMLDecl != "" {
		e.line(0, d.XMLDecl)
	}
	if d.Doctype != "" {
		e.line(0, d.Doctype)
	}
	e.line(0, "<tmx"+formatAttrs(d.RootAttrs)+">")

	header := d.HeaderAttrs
	if _, ok := attr(header, "changedate"); ok {
		header = setAttr(header, "changedate", now.UTC().Format(TimeFormat))
	}
	if len(d.HeaderChildren) == 0 {
		e.line(2, "<header"+formatAttrs(header)+"/>")
	} else {
		e.line(2, "<header"+formatAttrs(header)+">")
		for _, child := range d.HeaderChildren {
			e.line(4, child)
		}
		e.line(2, "</header>")
	}
}

func (e *encoder) body(store *tm.Store) {
	e.line(2, "<body>")
	defer e.line(2, "</body>")

	entries := store.All()
	sections := e.doc.Sections
	for _, en := range entries {
		if en.Orphaned {
			sections = true
			break
		}
	}

	if !sections {
		for _, en := range entries {
			e.tu(en)
		}
		return
	}

	e.line(4, "<!-- "+sectionDefault+" -->")
	for _, en := range entries {
		if !en.Orphaned && !alternative(en) {
			e.tu(en)
		}
	}
	e.line(4, "<!-- "+sectionAlternative+" -->")
	for _, en := range entries {
		if !en.Orphaned && alternative(en) {
			e.tu(en)
		}
	}
	e.line(4, "<!-- "+sectionOrphaned+" -->")
	for _, en := range entries {
		if en.Orphaned {
			e.tu(en)
		}
	}
}

// alternative reports whether an entry belongs in the alternative section:
// its key has context, or it was read from there
func alternative(en tm.Entry) bool {
	if en.Key.HasContext() {
		return true
	}
	return en.Unit.Fidelity != nil && en.Unit.Fidelity.AltSection
}

func (e *encoder) tu(en tm.Entry) {
	u := en.Unit
	f := u.Fidelity
	if f == nil {
		f = &tm.Fidelity{}
	}

	e.line(4, "<tu"+formatAttrs(f.TUAttrs)+">")
	if u.Note != "" {
		e.line(6, "<note>"+e.text(f, u.Note)+"</note>")
	}
	for _, n := range f.ExtraNotes {
		e.line(6, "<note>"+e.text(f, n)+"</note>")
	}

	ctx := en.Key.Context
	for _, pr := range []tm.Prop{
		{Type: propFile, Value: ctx.File},
		{Type: propID, Value: ctx.ID},
		{Type: propPrev, Value: ctx.Prev},
		{Type: propNext, Value: ctx.Next},
		{Type: propPath, Value: ctx.Path},
	} {
		if pr.Value != "" {
			e.prop(f, pr)
		}
	}
	for _, pr := range u.Props {
		e.prop(f, pr)
	}

	e.tuv(f.SourceAttrs, []tm.Attr{{Name: e.lang, Value: e.doc.SourceLang}}, u.Source, f.SourceTags, f.SourceSeg)
	if !f.NoTarget {
		e.tuv(f.TargetAttrs, []tm.Attr{
			{Name: e.lang, Value: e.doc.TargetLang},
			{Name: "changeid", Value: u.ChangeID},
			{Name: "changedate", Value: formatTime(u.ChangeDate)},
			{Name: "creationid", Value: u.CreationID},
			{Name: "creationdate", Value: formatTime(u.CreationDate)},
		}, u.Target, f.TargetTags, f.TargetSeg)
	}
	for _, x := range f.ExtraTUVs {
		e.line(6, x)
	}
	e.line(4, "</tu>")
}

func (e *encoder) prop(f *tm.Fidelity, pr tm.Prop) {
	open := `<prop type="` + attrEscaper.Replace(pr.Type) + `"`
	if pr.Lang != "" {
		open += " " + e.lang + `="` + attrEscaper.Replace(pr.Lang) + `"`
	}
	e.line(6, open+">"+e.text(f, pr.Value)+"</prop>")
}

func (e *encoder) tuv(attrs, known []tm.Attr, text string, tags []tm.InlineTag, written tm.Verbatim) {
	e.line(6, "<tuv"+formatAttrs(mergeAttrs(attrs, known))+">")

	var seg strings.Builder
	seg.WriteString("        <seg>")
	if raw, ok := written.For(text); ok {
		seg.WriteString(raw)
	} else {
		writeSegText(&seg, text, tags, e.eol)
	}
	seg.WriteString("</seg>")
	e.line(0, seg.String())

	e.line(6, "</tuv>")
}

// text escapes s, reusing the markup it was read from when there is one
func (e *encoder) text(f *tm.Fidelity, s string) string {
	for _, v := range f.Texts {
		if raw, ok := v.For(s); ok {
			return raw
		}
	}
	var sb strings.Builder
	writeText(&sb, s, e.eol)
	return sb.String()
}

// mergeAttrs keeps the file's attributes in their original order, refreshing
// the ones the store models from known. Language attributes keep the value
// as written. Known attributes missing from the file are appended in order.
func mergeAttrs(attrs, known []tm.Attr) []tm.Attr {
	out := make([]tm.Attr, 0, len(attrs)+len(known))
	used := make(map[string]bool, len(known))
	hasLang := false

	for _, a := range attrs {
		if isLangAttr(a.Name) {
			hasLang = true
			out = append(out, a)
			continue
		}
		if v, ok := attr(known, a.Name); ok {
			used[a.Name] = true
			if v != "" {
				a.Value = v
			}
		}
		out = append(out, a)
	}

	for _, k := range known {
		if isLangAttr(k.Name) {
			if !hasLang && k.Value != "" {
				out = append(out, k)
			}
			continue
		}
		if !used[k.Name] && k.Value != "" {
			out = append(out, k)
		}
	}
	return out
}

func formatAttrs(attrs []tm.Attr) string {
	var sb strings.Builder
	for _, a := range attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.Name)
		sb.WriteString(`="`)
		sb.WriteString(attrEscaper.Replace(a.Value))
		sb.WriteByte('"')
	}
	return sb.String()
}
