// Package tokenizer turns document and query text into index terms.
//
// Text is case-folded, stripped of diacritics and split on anything that is
// not a letter or digit. Every word keeps its position; stop-words and
// single letters get no term, so phrase offsets match the source text.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopWords = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(`
		a an and are as at be but by can do each for from had has have he
		if in is it its no not of on or so that the their they this to was
		were what when where which who will with`) {
		set[w] = struct{}{}
	}
	return set
}()

// Token is one word of the source text. Term is the stemmed index term,
// empty when the word is not indexed.
type Token struct {
	Term     string
	Word     string
	Position int
}

func (t Token) Indexed() bool { return t.Term != "" }

// fold lower-cases s and removes combining marks.
func fold(s string) string {
	s = strings.ToLower(s)
	if isASCII(s) {
		return s
	}
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return folded
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Words folds text and splits it into words.
func Words(text string) []string {
	return strings.FieldsFunc(fold(text), isSeparator)
}

// Tokenize returns one Token per word of text, in order.
func Tokenize(text string) []Token {
	words := Words(text)
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		tokens = append(tokens, Token{Term: Normalize(word), Word: word, Position: pos})
	}
	return tokens
}

// Normalize maps a folded word to its index term, or "" if it is not
// indexed.
func Normalize(word string) string {
	if utf8.RuneCountInString(word) < 2 {
		return ""
	}
	if _, stop := stopWords[word]; stop {
		return ""
	}
	return stem(word)
}

type suffixRule struct {
	suffix, replacement string
	minStem             int
}

// suffixRules are tried in order. A rule applies when its result keeps at
// least minStem bytes; the first rule that applies wins.
var suffixRules = []suffixRule{
	{"ational", "ate", 2}, {"tional", "tion", 2}, {"encies", "ence", 2},
	{"ances", "ance", 2}, {"ments", "ment", 2}, {"izing", "ize", 2},
	{"ating", "ate", 2}, {"iness", "y", 2}, {"ously", "ous", 2},
	{"ively", "ive", 2}, {"eness", "ene", 2},
	{"tion", "t", 3}, {"sion", "s", 3}, {"ying", "y", 2}, {"ling", "l", 3},
	{"ies", "y", 2}, {"ing", "", 3}, {"ers", "er", 2}, {"est", "", 3},
	{"ful", "", 3}, {"ous", "", 3}, {"ess", "", 3}, {"ble", "", 3},
	{"ed", "", 3}, {"er", "", 3}, {"ly", "", 3}, {"es", "", 3},
	{"ss", "ss", 2}, {"s", "", 3},
}

func stem(word string) string {
	for _, rule := range suffixRules {
		base, ok := strings.CutSuffix(word, rule.suffix)
		if !ok {
			continue
		}
		if stemmed := base + rule.replacement; len(stemmed) >= rule.minStem {
			return stemmed
		}
	}
	return word
}
