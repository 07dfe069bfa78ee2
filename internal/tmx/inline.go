package tmx

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/standardbeagle/tmxmatch/internal/tm"
	"github.com/standardbeagle/tmxmatch/internal/tokenizer"
)

// Inline markup inside <seg> is replaced in the segment text by shortcuts
// the tokenizer treats as single tokens:
//
//	<bpt>/<ept> pair      <g0> ... </g0>
//	<ph>, <it>, <ut>      <x1/>
//	<hi>, <mrk> content   <h2> ... </h2>
//
// Numbers are assigned in document order per segment, skipping any number
// that already appears in shortcut-shaped character data. The raw markup
// behind each shortcut is kept so the writer can put it back; shortcut text
// with no markup behind it is written escaped.

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// segPart is character data or one piece of inline markup
type segPart struct {
	text   string // character data, empty for markup
	raw    string // markup as written
	format string // shortcut format for markup
	pair   int    // index of the opening part for closing markup, -1 otherwise
}

// segReader reads the content of one <seg> element
type segReader struct {
	d    *xml.Decoder
	data []byte

	parts []segPart
	begin int64 // offset of the content
	end   int64 // offset of </seg>
}

// readSeg consumes tokens up to and including the </seg> end tag. It returns
// the text with shortcuts, the markup behind them, and the content as written.
func readSeg(d *xml.Decoder, data []byte) (string, []tm.InlineTag, string, error) {
	r := &segReader{d: d, data: data, begin: d.InputOffset()}
	if err := r.run(); err != nil {
		return "", nil, "", err
	}
	text, tags := r.assign()
	return text, tags, string(data[r.begin:r.end]), nil
}

func (r *segReader) chars(s []byte) {
	if n := len(r.parts); n > 0 && r.parts[n-1].format == "" {
		r.parts[n-1].text += string(s)
		return
	}
	r.parts = append(r.parts, segPart{text: string(s), pair: -1})
}

func (r *segReader) markup(raw, format string, pair int) int {
	r.parts = append(r.parts, segPart{raw: raw, format: format, pair: pair})
	return len(r.parts) - 1
}

func (r *segReader) run() error {
	paired := make(map[string]int) // bpt i attribute -> part index
	var open []int                 // enclosing <hi>/<mrk> part indexes

	for {
		start := r.d.InputOffset()
		tok, err := r.d.Token()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.CharData:
			r.chars(t)

		case xml.StartElement:
			switch t.Name.Local {
			case "bpt":
				raw, err := r.element(start)
				if err != nil {
					return err
				}
				paired[elementAttr(t, "i")] = r.markup(raw, "<g%d>", -1)

			case "ept":
				raw, err := r.element(start)
				if err != nil {
					return err
				}
				i := elementAttr(t, "i")
				if at, ok := paired[i]; ok {
					delete(paired, i)
					r.markup(raw, "</g%d>", at)
				} else {
					r.markup(raw, "<x%d/>", -1)
				}

			case "hi", "mrk":
				at := r.markup(string(r.data[start:r.d.InputOffset()]), "<h%d>", -1)
				open = append(open, at)

			default:
				// ph, it, ut and anything unknown stand alone
				raw, err := r.element(start)
				if err != nil {
					return err
				}
				r.markup(raw, "<x%d/>", -1)
			}

		case xml.EndElement:
			if t.Name.Local == "seg" {
				r.end = start
				return nil
			}
			if len(open) > 0 {
				at := open[len(open)-1]
				open = open[:len(open)-1]
				r.markup(string(r.data[start:r.d.InputOffset()]), "</h%d>", at)
			}
		}
	}
}

// assign numbers markup in document order, skipping numbers already taken
// by shortcut-shaped character data so the two never collide
func (r *segReader) assign() (string, []tm.InlineTag) {
	taken := make(map[int]bool)
	for _, part := range r.parts {
		if part.format != "" {
			continue
		}
		for _, loc := range tokenizer.TagIndexes(part.text) {
			if n, ok := shortcutNumber(part.text[loc[0]:loc[1]]); ok {
				taken[n] = true
			}
		}
	}

	var text strings.Builder
	var tags []tm.InlineTag
	nums := make([]int, len(r.parts))
	next := 0
	for i, part := range r.parts {
		if part.format == "" {
			text.WriteString(part.text)
			continue
		}
		if part.pair >= 0 {
			nums[i] = nums[part.pair]
		} else {
			for taken[next] {
				next++
			}
			nums[i] = next
			next++
		}
		sc := fmt.Sprintf(part.format, nums[i])
		text.WriteString(sc)
		tags = append(tags, tm.InlineTag{Shortcut: sc, Raw: part.raw})
	}
	return text.String(), tags
}

// shortcutNumber returns the number in a shortcut such as </g12>
func shortcutNumber(sc string) (int, bool) {
	digits := strings.TrimRightFunc(strings.TrimLeftFunc(sc, func(c rune) bool {
		return c < '0' || c > '9'
	}), func(c rune) bool {
		return c < '0' || c > '9'
	})
	n, err := strconv.Atoi(digits)
	return n, err == nil
}

// element skips the rest of the element just started at start and returns
// its raw markup
func (r *segReader) element(start int64) (string, error) {
	if err := r.d.Skip(); err != nil {
		return "", err
	}
	return string(r.data[start:r.d.InputOffset()]), nil
}

func elementAttr(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// writeSegText writes segment text, expanding shortcuts that resolve to
// inline markup and escaping everything else
func writeSegText(sb *strings.Builder, text string, tags []tm.InlineTag, eol string) {
	raw := make(map[string]string, len(tags))
	for _, tag := range tags {
		raw[tag.Shortcut] = tag.Raw
	}

	prev := 0
	for _, loc := range tokenizer.TagIndexes(text) {
		markup, ok := raw[text[loc[0]:loc[1]]]
		if !ok {
			continue
		}
		writeText(sb, text[prev:loc[0]], eol)
		sb.WriteString(markup)
		prev = loc[1]
	}
	writeText(sb, text[prev:], eol)
}

func writeText(sb *strings.Builder, s, eol string) {
	s = textEscaper.Replace(s)
	if eol != LF {
		s = strings.ReplaceAll(s, LF, eol)
	}
	sb.WriteString(s)
}
