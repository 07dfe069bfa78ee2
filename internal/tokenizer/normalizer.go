package tokenizer

import (
	"strings"

	"github.com/surgebase/porter2"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// minStemLength mirrors the stemmer default: shorter words are left alone
const minStemLength = 3

// Normalizer is the configurable pre-normalization pass applied before
// distance computation. The zero value keeps case and punctuation.
type Normalizer struct {
	FoldCase         bool // compare case-insensitively
	StripPunctuation bool // drop separators and punctuation inside words
	Stemming         bool // reduce index terms with porter2 (English sources only)
}

// Normalize returns the tokens used for normalized alignment. Offsets point
// into the original text; Text holds the normalized form.
func (n Normalizer) Normalize(text string) []Token {
	words := Tokenize(text)
	if !n.StripPunctuation {
		words = merge(words, Separators(text, words))
	}

	var caser cases.Caser
	if n.FoldCase {
		// Casers are stateful, one per call keeps Normalize pure
		caser = cases.Fold()
	}

	out := words[:0:0]
	for _, tok := range words {
		s := norm.NFC.String(tok.Text)
		if n.StripPunctuation && !IsTag(s) {
			s = stripPunct(s)
			if s == "" {
				continue
			}
		}
		if n.FoldCase && !IsTag(s) {
			s = caser.String(s)
		}
		out = append(out, Token{Offset: tok.Offset, Length: tok.Length, Text: s})
	}
	return out
}

// IndexTerms returns the distinct folded (and optionally stemmed) word terms
// of text, in first-occurrence order. Used for the token-overlap index, so it
// ignores FoldCase and StripPunctuation: candidate gathering is always lenient.
func (n Normalizer) IndexTerms(text string) []string {
	words := Tokenize(text)
	if len(words) == 0 {
		return nil
	}

	caser := cases.Fold()
	seen := make(map[string]struct{}, len(words))
	terms := make([]string, 0, len(words))
	for _, tok := range words {
		term := tok.Text
		if !IsTag(term) {
			term = stripPunct(caser.String(norm.NFC.String(term)))
			if n.Stemming && len(term) >= minStemLength {
				term = porter2.Stem(term)
			}
		}
		if term == "" {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}

// Equivalent reports whether a and b are equal after trimming leading and
// trailing whitespace, the only difference an exact match tolerates.
func Equivalent(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
