package similarity

import (
	"strings"

	"github.com/hbollon/go-edlib"
)

// Tokens are compared as whole units by mapping every distinct token of a
// comparison onto its own private-use rune; go-edlib then runs its
// rune-level algorithms over those strings.
const (
	runeBase = 0xF0000
	runeMax  = 0x10FFFD
)

type encoder struct {
	ids map[string]rune
}

func newEncoder(size int) *encoder {
	return &encoder{ids: make(map[string]rune, size)}
}

func (e *encoder) encode(tokens []string) string {
	var sb strings.Builder
	sb.Grow(len(tokens) * 4)
	for _, tok := range tokens {
		r, ok := e.ids[tok]
		if !ok {
			r = runeBase + rune(len(e.ids))
			// past the private-use planes every new token shares the last rune,
			// which can only under-count the distance
			if r > runeMax {
				r = runeMax
			}
			e.ids[tok] = r
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func encodePair(a, b []string) (string, string) {
	e := newEncoder(len(a) + len(b))
	return e.encode(a), e.encode(b)
}

// Distance is the token-level Levenshtein distance: inserting, deleting or
// substituting one token costs 1.
func Distance(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	ea, eb := encodePair(a, b)
	return edlib.LevenshteinDistance(ea, eb)
}

// Score normalizes Distance onto 0..100:
// 100 * (1 - distance / max(len(query), len(candidate))), floored at 0.
// Two empty sequences score 100; empty against non-empty scores 0.
func Score(query, candidate []string) int {
	longest := max(len(query), len(candidate))
	if longest == 0 {
		return 100
	}
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	d := Distance(query, candidate)
	score := 100 * (longest - d) / longest
	if score < 0 {
		return 0
	}
	return score
}

// commonMask marks, for each side, the tokens that belong to a longest
// common subsequence of a and b.
func commonMask(a, b []string) ([]bool, []bool) {
	ma, mb := make([]bool, len(a)), make([]bool, len(b))
	if len(a) == 0 || len(b) == 0 {
		return ma, mb
	}
	ea, eb := encodePair(a, b)
	lcs, err := edlib.LCSBacktrack(ea, eb)
	if err != nil {
		return ma, mb
	}
	common := []rune(lcs)
	embed(ea, common, ma)
	embed(eb, common, mb)
	return ma, mb
}

// embed marks the leftmost embedding of the subsequence common in encoded
func embed(encoded string, common []rune, mask []bool) {
	j := 0
	i := 0
	for _, r := range encoded {
		if j < len(common) && r == common[j] {
			mask[i] = true
			j++
		}
		i++
	}
}
