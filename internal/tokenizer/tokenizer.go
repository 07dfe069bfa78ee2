// Package tokenizer splits segment text into comparable units.
//
// Word tokens follow Unicode word boundaries (UAX #29). Whitespace and
// punctuation are never word tokens, but their positions stay recoverable
// from token offsets, and Separators turns the non-blank gaps between words
// back into tokens for raw (punctuation-sensitive) alignment.
//
// Inline tag shortcuts produced by the TMX codec (<g0>, </g0>, <x1/>) are
// kept whole so that markup compares as ordinary tokens.
//
// Every function here is pure and safe for concurrent use.
package tokenizer

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// Token is a slice of the input text. Offset and Length are in bytes.
type Token struct {
	Offset int
	Length int
	Text   string
}

// End returns the byte offset just past the token
func (t Token) End() int {
	return t.Offset + t.Length
}

var (
	tagShortcut = regexp.MustCompile(`^</?[A-Za-z]+[0-9]+/?>`)
	tagAnywhere = regexp.MustCompile(`</?[A-Za-z]+[0-9]+/?>`)
)

// IsTag reports whether s is an inline tag shortcut such as <g0> or <x1/>
func IsTag(s string) bool {
	loc := tagShortcut.FindStringIndex(s)
	return loc != nil && loc[1] == len(s)
}

// TagIndexes returns the byte ranges of every tag shortcut in text
func TagIndexes(text string) [][]int {
	return tagAnywhere.FindAllStringIndex(text, -1)
}

// Tokenize splits text into word tokens. Empty or blank input yields nil.
func Tokenize(text string) []Token {
	var tokens []Token
	rest := text
	offset := 0
	state := -1

	for len(rest) > 0 {
		if rest[0] == '<' {
			if loc := tagShortcut.FindStringIndex(rest); loc != nil {
				tokens = append(tokens, Token{Offset: offset, Length: loc[1], Text: rest[:loc[1]]})
				rest = rest[loc[1]:]
				offset += loc[1]
				state = -1
				continue
			}
		}

		var word string
		word, rest, state = uniseg.FirstWordInString(rest, state)
		if isWord(word) {
			tokens = append(tokens, Token{Offset: offset, Length: len(word), Text: word})
		}
		offset += len(word)
	}

	return tokens
}

// isWord reports whether a boundary segment carries a letter or digit
func isWord(segment string) bool {
	for _, r := range segment {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

// Separators returns the punctuation runs between word tokens, split on
// whitespace. The tokens must come from Tokenize(text).
func Separators(text string, tokens []Token) []Token {
	var seps []Token
	prev := 0
	for _, tok := range tokens {
		seps = appendFields(seps, text, prev, tok.Offset)
		prev = tok.End()
	}
	return appendFields(seps, text, prev, len(text))
}

// appendFields appends the whitespace-separated fields of text[from:to]
func appendFields(dst []Token, text string, from, to int) []Token {
	start := -1
	for i := from; i < to; {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			if start >= 0 {
				dst = append(dst, Token{Offset: start, Length: i - start, Text: text[start:i]})
				start = -1
			}
		} else if start < 0 {
			start = i
		}
		i += size
	}
	if start >= 0 {
		dst = append(dst, Token{Offset: start, Length: to - start, Text: text[start:to]})
	}
	return dst
}

// Raw returns words and separators merged in text order, untouched.
// This is the alignment used to decide whether two segments differ at all.
func Raw(text string) []Token {
	words := Tokenize(text)
	return merge(words, Separators(text, words))
}

func merge(a, b []Token) []Token {
	if len(b) == 0 {
		return a
	}
	out := make([]Token, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// Texts projects tokens onto their text
func Texts(tokens []Token) []string {
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

// stripPunct removes punctuation runes from inside a word ("don't" -> "dont")
func stripPunct(s string) string {
	if strings.IndexFunc(s, unicode.IsPunct) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
}
