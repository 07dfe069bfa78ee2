package tokenizer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"blank", "  \t\n ", nil},
		{"punctuation only", "... !?", nil},
		{"simple sentence", "Hello world.", []string{"Hello", "world"}},
		{"punctuation variant", "Hello, world!", []string{"Hello", "world"}},
		{"apostrophe stays inside word", "don't stop", []string{"don't", "stop"}},
		{"decimal number", "pi is 3.14", []string{"pi", "is", "3.14"}},
		{"hyphen splits", "e-mail", []string{"e", "mail"}},
		{"non latin", "Привет мир", []string{"Привет", "мир"}},
		{"tag shortcuts", "Click <g0>here</g0> now<x1/>", []string{"Click", "<g0>", "here", "</g0>", "now", "<x1/>"}},
		{"lone angle bracket", "a < b", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Texts(Tokenize(tt.text)))
		})
	}
}

func TestTokenOffsetsPointIntoText(t *testing.T) {
	text := "  Zürich, <g0>den</g0> 5. Mai — «Grüße»!"
	for _, tok := range Tokenize(text) {
		assert.Equal(t, tok.Text, text[tok.Offset:tok.End()])
	}
	for _, sep := range Separators(text, Tokenize(text)) {
		assert.Equal(t, sep.Text, text[sep.Offset:sep.End()])
	}
}

func TestSeparators(t *testing.T) {
	text := "Hello, world!"
	seps := Separators(text, Tokenize(text))
	require.Len(t, seps, 2)
	assert.Equal(t, Token{Offset: 5, Length: 1, Text: ","}, seps[0])
	assert.Equal(t, Token{Offset: 12, Length: 1, Text: "!"}, seps[1])

	text = "a ,; b"
	assert.Equal(t, []string{",;"}, Texts(Separators(text, Tokenize(text))))

	text = "a , ; b"
	assert.Equal(t, []string{",", ";"}, Texts(Separators(text, Tokenize(text))))
}

func TestRawKeepsPunctuationInOrder(t *testing.T) {
	assert.Equal(t, []string{"Hello", ",", "world", "!"}, Texts(Raw("Hello, world!")))
	assert.Equal(t, []string{"Hello", "world", "."}, Texts(Raw("Hello world.")))
	assert.Nil(t, Raw("   "))
}

func TestIsTag(t *testing.T) {
	assert.True(t, IsTag("<g0>"))
	assert.True(t, IsTag("</g12>"))
	assert.True(t, IsTag("<x3/>"))
	assert.False(t, IsTag("<g>"))
	assert.False(t, IsTag("<g0> tail"))
	assert.False(t, IsTag("g0"))
}

func TestTagIndexes(t *testing.T) {
	text := "Click <g0>Save</g0> or <x1/>"
	idx := TagIndexes(text)
	require.Len(t, idx, 3)
	assert.Equal(t, "<g0>", text[idx[0][0]:idx[0][1]])
	assert.Equal(t, "</g0>", text[idx[1][0]:idx[1][1]])
	assert.Equal(t, "<x1/>", text[idx[2][0]:idx[2][1]])
	assert.Nil(t, TagIndexes("no tags < here >"))
}

func TestTokenizeIsSafeForConcurrentUse(t *testing.T) {
	texts := []string{"Hello world.", "Goodbye, cruel world!", "Open <g0>File</g0> menu"}
	expected := make([][]Token, len(texts))
	for i, text := range texts {
		expected[i] = Tokenize(text)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				idx := i % len(texts)
				assert.Equal(t, expected[idx], Tokenize(texts[idx]))
			}
		}()
	}
	wg.Wait()
}
