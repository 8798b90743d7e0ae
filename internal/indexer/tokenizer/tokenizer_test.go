package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeKeepsEveryPosition(t *testing.T) {
	tokens := Tokenize("The Cats sat on a mat, the dogs barked!")
	words := make([]string, len(tokens))
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		assert.Equal(t, i, tok.Position)
		words[i] = tok.Word
		terms[i] = tok.Term
	}
	assert.Equal(t, []string{"the", "cats", "sat", "on", "a", "mat", "the", "dogs", "barked"}, words)
	assert.Equal(t, []string{"", "cat", "sat", "", "", "mat", "", "dog", "bark"}, terms)
	assert.False(t, tokens[0].Indexed())
	assert.True(t, tokens[1].Indexed())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		word string
		want string
	}{
		{"x", ""},
		{"é", ""},
		{"with", ""},
		{"cats", "cat"},
		{"relational", "relate"},
		{"happiness", "happy"},
		{"glass", "glass"},
		{"go", "go"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.word), tt.word)
	}
}

func TestWordsSplitsOnPunctuation(t *testing.T) {
	assert.Equal(t, []string{"don", "t", "stop", "42x"}, Words("Don't STOP -- 42x"))
	assert.Empty(t, Words("  ...  "))
}

func TestWordsFoldsDiacritics(t *testing.T) {
	assert.Equal(t, []string{"cafe", "naive", "uber"}, Words("Café NAÏVE über"))
	assert.Equal(t, Normalize("cafes"), Normalize(Words("Cafés")[0]))
}

func BenchmarkTokenize(b *testing.B) {
	text := "The quick brown fox jumps over the lazy dog while the cats are sleeping in the warm afternoon sun"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Tokenize(text)
	}
}
