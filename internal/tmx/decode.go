package tmx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"

	"github.com/standardbeagle/tmxmatch/internal/debug"
	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
	"github.com/standardbeagle/tmxmatch/internal/tm"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}

	encodingDecl = regexp.MustCompile(`^<\?xml[^>]*?encoding\s*=\s*["']([^"']+)["']`)
)

// Options control decoding
type Options struct {
	// Partial keeps what was read before a parse failure: Decode then
	// returns the partial store and document along with the error.
	Partial bool
}

// Decode reads a TMX document into a new store for the project
func Decode(r io.Reader, props *tm.Properties, opts Options) (*tm.Store, *Document, error) {
	return decodeNamed("", r, props, opts)
}

func decodeNamed(path string, r io.Reader, props *tm.Properties, opts Options) (*tm.Store, *Document, error) {
	input, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, tmerrors.NewFileError("read", path, err)
	}

	doc := &Document{LineEnding: LF}
	data, err := transcode(input, doc)
	if err != nil {
		return nil, nil, tmerrors.NewCorruptStoreError(path, 1, 1, err)
	}
	if bytes.Contains(data, []byte(CRLF)) {
		doc.LineEnding = CRLF
	}
	doc.NoFinalNewline = len(data) > 0 && data[len(data)-1] != '\n'

	p := &parser{
		path:   path,
		data:   data,
		props:  props,
		doc:    doc,
		store:  tm.NewStore(props),
		logger: debug.Logger("tmx"),
		d:      xml.NewDecoder(bytes.NewReader(data)),
	}
	// input is UTF-8 by now whatever the declaration says
	p.d.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) {
		return in, nil
	}

	err = p.parse()
	p.finish()
	if err != nil {
		if opts.Partial {
			return p.store, doc, err
		}
		return nil, nil, err
	}
	return p.store, doc, nil
}

// transcode strips the byte-order mark and converts the input to UTF-8
func transcode(input []byte, doc *Document) ([]byte, error) {
	switch {
	case bytes.HasPrefix(input, bomUTF8):
		doc.BOM = true
		return input[len(bomUTF8):], nil
	case bytes.HasPrefix(input, bomUTF16LE):
		doc.BOM = true
		doc.Encoding = UTF16LE
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(input[2:])
	case bytes.HasPrefix(input, bomUTF16BE):
		doc.BOM = true
		doc.Encoding = UTF16BE
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(input[2:])
	}

	m := encodingDecl.FindSubmatch(input[:min(len(input), 256)])
	if m == nil {
		return input, nil
	}
	label := strings.ToLower(strings.TrimSpace(string(m[1])))
	if label == "utf-8" || label == "utf8" {
		return input, nil
	}

	cr, err := charset.NewReaderLabel(label, bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", m[1], err)
	}
	out, err := io.ReadAll(cr)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", label, err)
	}
	doc.Charset = label
	return out, nil
}

type parser struct {
	path   string
	data   []byte
	props  *tm.Properties
	doc    *Document
	store  *tm.Store
	logger *zap.Logger
	d      *xml.Decoder
}

type tuvData struct {
	lang  string
	attrs []tm.Attr
	seg   string
	tags  []tm.InlineTag
	text  tm.Verbatim
	raw   string
}

type tuData struct {
	attrs []tm.Attr
	notes []string
	props []tm.Prop
	texts []tm.Verbatim
	tuvs  []tuvData
	extra []string
	line  int
}

func (p *parser) corrupt(err error) error {
	line, col := p.d.InputPos()
	return tmerrors.NewCorruptStoreError(p.path, line, col, err)
}

func (p *parser) raw(start int64) string {
	return string(p.data[start:p.d.InputOffset()])
}

func (p *parser) next() (xml.Token, int64, error) {
	start := p.d.InputOffset()
	tok, err := p.d.Token()
	if err != nil {
		return nil, start, p.corrupt(err)
	}
	return tok, start, nil
}

func (p *parser) skip() error {
	if err := p.d.Skip(); err != nil {
		return p.corrupt(err)
	}
	return nil
}

func (p *parser) parse() error {
	for {
		start := p.d.InputOffset()
		tok, err := p.d.Token()
		if err == io.EOF {
			if p.doc.RootAttrs == nil {
				return p.corrupt(errors.New("missing <tmx> root element"))
			}
			return nil
		}
		if err != nil {
			return p.corrupt(err)
		}

		switch t := tok.(type) {
		case xml.ProcInst:
			if t.Target == "xml" && p.doc.XMLDecl == "" {
				p.doc.XMLDecl = p.raw(start)
			}
		case xml.Directive:
			if p.doc.Doctype == "" {
				p.doc.Doctype = p.raw(start)
			}
		case xml.StartElement:
			if t.Name.Local != "tmx" {
				return p.corrupt(fmt.Errorf("unexpected root element <%s>", t.Name.Local))
			}
			p.doc.RootAttrs = attrs(t.Attr)
			if p.doc.RootAttrs == nil {
				p.doc.RootAttrs = []tm.Attr{}
			}
			if err := p.root(); err != nil {
				return err
			}
		}
	}
}

// finish fills in document defaults once parsing stops
func (p *parser) finish() {
	if p.doc.Charset != "" {
		p.doc.XMLDecl = `<?xml version="1.0" encoding="UTF-8"?>`
	}
	if p.doc.SourceLang == "" {
		if src, ok := attr(p.doc.HeaderAttrs, "srclang"); ok && !strings.EqualFold(src, "*all*") {
			p.doc.SourceLang = src
		} else {
			p.doc.SourceLang = p.props.SourceLanguage.String()
		}
	}
	if p.doc.TargetLang == "" {
		p.doc.TargetLang = p.props.TargetLanguage.String()
	}
}

func (p *parser) root() error {
	for {
		tok, _, err := p.next()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "header":
				err = p.header(t)
			case "body":
				err = p.body()
			default:
				err = p.skip()
			}
			if err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (p *parser) header(t xml.StartElement) error {
	p.doc.HeaderAttrs = attrs(t.Attr)
	for {
		tok, start, err := p.next()
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			if err := p.skip(); err != nil {
				return err
			}
			p.doc.HeaderChildren = append(p.doc.HeaderChildren, p.raw(start))
		case xml.EndElement:
			return nil
		}
	}
}

func (p *parser) body() error {
	var section string
	for {
		tok, _, err := p.next()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.Comment:
			switch strings.TrimSpace(string(t)) {
			case sectionDefault, sectionAlternative, sectionOrphaned:
				p.doc.Sections = true
				section = strings.TrimSpace(string(t))
			}
		case xml.StartElement:
			if t.Name.Local != "tu" {
				if err := p.skip(); err != nil {
					return err
				}
				continue
			}
			if err := p.tu(t, section); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (p *parser) tu(t xml.StartElement, section string) error {
	line, _ := p.d.InputPos()
	tu := tuData{attrs: attrs(t.Attr), line: line}
	for {
		tok, start, err := p.next()
		if err != nil {
			return err
		}
		switch e := tok.(type) {
		case xml.StartElement:
			switch e.Name.Local {
			case "note":
				text, err := p.text(&tu)
				if err != nil {
					return err
				}
				tu.notes = append(tu.notes, text)
			case "prop":
				text, err := p.text(&tu)
				if err != nil {
					return err
				}
				tu.props = append(tu.props, tm.Prop{Type: elementAttr(e, "type"), Lang: langOf(e), Value: text})
			case "tuv":
				v, err := p.tuv(e, start)
				if err != nil {
					return err
				}
				tu.tuvs = append(tu.tuvs, v)
			default:
				if err := p.skip(); err != nil {
					return err
				}
				tu.extra = append(tu.extra, p.raw(start))
			}
		case xml.EndElement:
			p.addUnit(tu, section)
			return nil
		}
	}
}

// text returns the character data of the current element, recording the
// content as written on tu when plain escaping would not reproduce it
func (p *parser) text(tu *tuData) (string, error) {
	var sb strings.Builder
	begin := p.d.InputOffset()
	for {
		tok, start, err := p.next()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			if err := p.skip(); err != nil {
				return "", err
			}
		case xml.EndElement:
			text := sb.String()
			if v := verbatim(text, string(p.data[begin:start]), nil); v.Raw != "" {
				tu.texts = append(tu.texts, v)
			}
			return text, nil
		}
	}
}

// verbatim keeps raw only when writing text with tags would not reproduce it
func verbatim(text, raw string, tags []tm.InlineTag) tm.Verbatim {
	var sb strings.Builder
	writeSegText(&sb, text, tags, LF)
	if sb.String() == strings.ReplaceAll(raw, CRLF, LF) {
		return tm.Verbatim{}
	}
	return tm.Verbatim{Text: text, Raw: raw}
}

func (p *parser) tuv(e xml.StartElement, start int64) (tuvData, error) {
	v := tuvData{attrs: attrs(e.Attr), lang: langOf(e)}
	for {
		tok, _, err := p.next()
		if err != nil {
			return v, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "seg" {
				if err := p.skip(); err != nil {
					return v, err
				}
				continue
			}
			var raw string
			v.seg, v.tags, raw, err = readSeg(p.d, p.data)
			if err != nil {
				return v, p.corrupt(err)
			}
			v.text = verbatim(v.seg, raw, v.tags)
		case xml.EndElement:
			v.raw = p.raw(start)
			return v, nil
		}
	}
}

func (p *parser) dropUnit(tu tuData, reason string) {
	p.doc.Skipped++
	p.logger.Warn("skipping translation unit",
		zap.String("path", p.path),
		zap.Int("line", tu.line),
		zap.String("reason", reason))
}

func (p *parser) addUnit(tu tuData, section string) {
	src, tgt := -1, -1
	for i, v := range tu.tuvs {
		if p.props.IsSourceLanguage(v.lang) {
			src = i
			break
		}
	}
	if src < 0 {
		p.dropUnit(tu, "no source language variant")
		return
	}
	for i, v := range tu.tuvs {
		if i != src && p.props.IsTargetLanguage(v.lang) {
			tgt = i
			break
		}
	}

	var ctx tm.Context
	var props []tm.Prop
	for _, pr := range tu.props {
		if p.props.SupportDefaultTranslations && pr.Lang == "" && isContextProp(pr.Type) {
			setContext(&ctx, pr)
			continue
		}
		props = append(props, pr)
	}

	source := tu.tuvs[src]
	key, err := tm.NewKey(source.seg, ctx)
	if err != nil {
		p.dropUnit(tu, "blank source text")
		return
	}
	if _, dup := p.store.Lookup(key); dup {
		p.dropUnit(tu, "duplicate entry for "+key.String())
		return
	}

	unit := tm.Unit{
		Source:      source.seg,
		Alternative: key.HasContext(),
		Props:       props,
	}
	fid := &tm.Fidelity{
		TUAttrs:     tu.attrs,
		SourceAttrs: source.attrs,
		SourceTags:  source.tags,
		SourceSeg:   source.text,
		Texts:       tu.texts,
		NoTarget:    tgt < 0,
		AltSection:  section == sectionAlternative,
	}
	if len(tu.notes) > 0 {
		unit.Note = tu.notes[0]
		fid.ExtraNotes = tu.notes[1:]
	}
	if tgt >= 0 {
		target := tu.tuvs[tgt]
		unit.Target = target.seg
		fid.TargetAttrs = target.attrs
		fid.TargetTags = target.tags
		fid.TargetSeg = target.text
		applyMetadata(&unit, target.attrs)
	}
	for i, v := range tu.tuvs {
		if i != src && i != tgt {
			fid.ExtraTUVs = append(fid.ExtraTUVs, v.raw)
		}
	}
	fid.ExtraTUVs = append(fid.ExtraTUVs, tu.extra...)
	unit.Fidelity = fid

	if _, _, err := p.store.InsertOrReplace(key, unit); err != nil {
		p.dropUnit(tu, err.Error())
		return
	}
	if section == sectionOrphaned {
		p.store.SetOrphaned(key, true)
	}

	if p.doc.SourceLang == "" {
		p.doc.SourceLang = source.lang
	}
	if p.doc.TargetLang == "" && tgt >= 0 {
		p.doc.TargetLang = tu.tuvs[tgt].lang
	}
}

// applyMetadata reads change and creation metadata from target tuv attributes
func applyMetadata(u *tm.Unit, attrs []tm.Attr) {
	for _, a := range attrs {
		switch a.Name {
		case "changeid":
			u.ChangeID = a.Value
		case "creationid":
			u.CreationID = a.Value
		case "changedate":
			if t, ok := parseTime(a.Value); ok {
				u.ChangeDate = t
			}
		case "creationdate":
			if t, ok := parseTime(a.Value); ok {
				u.CreationDate = t
			}
		}
	}
}

func setContext(ctx *tm.Context, pr tm.Prop) {
	switch pr.Type {
	case propFile:
		ctx.File = pr.Value
	case propID:
		ctx.ID = pr.Value
	case propPrev:
		ctx.Prev = pr.Value
	case propNext:
		ctx.Next = pr.Value
	case propPath:
		ctx.Path = pr.Value
	}
}

func langOf(e xml.StartElement) string {
	for _, a := range e.Attr {
		if a.Name.Local == "lang" {
			return a.Value
		}
	}
	return ""
}

func attrs(in []xml.Attr) []tm.Attr {
	if len(in) == 0 {
		return nil
	}
	out := make([]tm.Attr, len(in))
	for i, a := range in {
		out[i] = tm.Attr{Name: qualifiedName(a.Name), Value: a.Value}
	}
	return out
}

func qualifiedName(n xml.Name) string {
	switch n.Space {
	case "":
		return n.Local
	case xmlNamespace:
		return "xml:" + n.Local
	default:
		return n.Space + ":" + n.Local
	}
}
