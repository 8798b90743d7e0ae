// Package parser turns the q request parameter into a query plan: a list of
// word or phrase clauses, how they combine, and which terms exclude a
// document. A clause may be labelled (label:word or label:"a phrase") to
// capture the span it matched.
package parser

import (
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/tokenizer"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

// Clause matches consecutive words. Terms holds one index term per word, ""
// for words that are not indexed and match any word at that offset.
type Clause struct {
	Label string
	Terms []string
}

// Len is the number of words a match of the clause spans.
func (c Clause) Len() int32 { return int32(len(c.Terms)) }

func (c Clause) String() string {
	text := strings.Join(c.Terms, " ")
	if len(c.Terms) > 1 {
		text = `"` + text + `"`
	}
	if c.Label != "" {
		return c.Label + ":" + text
	}
	return text
}

type QueryPlan struct {
	Clauses      []Clause
	Type         QueryType
	ExcludeTerms []string
	RawQuery     string
}

// Labels returns the capture labels of the plan in clause order.
func (p *QueryPlan) Labels() []string {
	var out []string
	for _, c := range p.Clauses {
		if c.Label != "" {
			out = append(out, c.Label)
		}
	}
	return out
}

// Empty reports whether the plan can match nothing.
func (p *QueryPlan) Empty() bool { return len(p.Clauses) == 0 }

func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Clauses:      make([]Clause, 0),
		ExcludeTerms: make([]string, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	excludeNext := false
	for _, f := range fields(query) {
		if !f.quoted && f.label == "" {
			switch strings.ToUpper(f.text) {
			case "AND":
				plan.Type = QueryAND
				continue
			case "OR":
				plan.Type = QueryOR
				continue
			case "NOT":
				excludeNext = true
				continue
			}
		}
		terms := clauseTerms(f.text)
		if terms == nil {
			excludeNext = false
			continue
		}
		if excludeNext {
			for _, t := range terms {
				if t != "" {
					plan.ExcludeTerms = append(plan.ExcludeTerms, t)
				}
			}
			excludeNext = false
			continue
		}
		plan.Clauses = append(plan.Clauses, Clause{Label: f.label, Terms: terms})
	}
	return plan
}

// clauseTerms normalizes the words of text, trimming unindexed words at both
// ends. It returns nil when no word is indexed.
func clauseTerms(text string) []string {
	words := tokenizer.Words(text)
	terms := make([]string, len(words))
	first, last := -1, -1
	for i, w := range words {
		terms[i] = tokenizer.Normalize(w)
		if terms[i] != "" {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return nil
	}
	return terms[first : last+1]
}

type field struct {
	label  string
	text   string
	quoted bool
}

// fields splits query on whitespace outside double quotes. A leading
// identifier followed by ':' and a word or quote becomes the field's label.
func fields(query string) []field {
	var (
		out   []field
		cur   strings.Builder
		label string
		quote bool
		had   bool
	)
	flush := func() {
		if had || cur.Len() > 0 {
			out = append(out, field{label: label, text: cur.String(), quoted: had})
		}
		cur.Reset()
		label, had = "", false
	}
	runes := []rune(query)
	for i, r := range runes {
		switch {
		case r == '"':
			quote = !quote
			had = true
		case quote:
			cur.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		case r == ':' && label == "" && !had && isLabel(cur.String()) && startsClause(runes[i+1:]):
			label = cur.String()
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// startsClause reports whether the text after a ':' begins a clause, so
// "http://host" is not read as a label.
func startsClause(rest []rune) bool {
	return len(rest) > 0 && (rest[0] == '"' || unicode.IsLetter(rest[0]) || unicode.IsDigit(rest[0]))
}

func isLabel(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
