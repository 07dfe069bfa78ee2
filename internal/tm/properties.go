package tm

import (
	"strings"

	"golang.org/x/text/language"

	tmerrors "github.com/standardbeagle/tmxmatch/internal/errors"
	"github.com/standardbeagle/tmxmatch/internal/tokenizer"
)

// Properties is the per-session project configuration. It is owned by the
// caller and only ever read by the engine.
type Properties struct {
	SourceLanguage language.Tag
	TargetLanguage language.Tag

	// SupportDefaultTranslations enables per-context alternative translations.
	// When false, keys collapse to their source text and source is unique.
	SupportDefaultTranslations bool

	// OrphanDetection enables orphan tagging on save
	OrphanDetection bool

	// Normalization applied before similarity scoring
	FoldCase         bool
	StripPunctuation bool
	Stemming         bool
}

// NewProperties parses the language pair and applies engine defaults
func NewProperties(sourceLang, targetLang string) (*Properties, error) {
	src, err := language.Parse(sourceLang)
	if err != nil {
		return nil, tmerrors.NewValidationError("source language", sourceLang, err.Error())
	}
	tgt, err := language.Parse(targetLang)
	if err != nil {
		return nil, tmerrors.NewValidationError("target language", targetLang, err.Error())
	}

	return &Properties{
		SourceLanguage:             src,
		TargetLanguage:             tgt,
		SupportDefaultTranslations: true,
		OrphanDetection:            true,
		FoldCase:                   true,
		StripPunctuation:           true,
		Stemming:                   true,
	}, nil
}

// Normalizer returns the tokenizer normalization matching these properties.
// Stemming is only meaningful for English sources.
func (p *Properties) Normalizer() tokenizer.Normalizer {
	return tokenizer.Normalizer{
		FoldCase:         p.FoldCase,
		StripPunctuation: p.StripPunctuation,
		Stemming:         p.Stemming && sameBase(p.SourceLanguage, language.English),
	}
}

// IsSourceLanguage reports whether a TMX lang attribute names the source language
func (p *Properties) IsSourceLanguage(lang string) bool {
	return matchesLang(p.SourceLanguage, lang)
}

// IsTargetLanguage reports whether a TMX lang attribute names the target language
func (p *Properties) IsTargetLanguage(lang string) bool {
	return matchesLang(p.TargetLanguage, lang)
}

// matchesLang compares on the base language so "EN-US" in a file matches an
// "en" project. Unparseable attributes fall back to a prefix comparison.
func matchesLang(want language.Tag, lang string) bool {
	tag, err := language.Parse(lang)
	if err != nil {
		base, _ := want.Base()
		return strings.HasPrefix(strings.ToLower(lang), base.String())
	}
	return sameBase(want, tag)
}

func sameBase(a, b language.Tag) bool {
	ab, _ := a.Base()
	bb, _ := b.Base()
	return ab == bb
}
