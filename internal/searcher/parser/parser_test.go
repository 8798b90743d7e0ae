package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		clauses []Clause
		typ     QueryType
		exclude []string
	}{
		{
			name:    "single term",
			query:   "Cats",
			clauses: []Clause{{Terms: []string{"cat"}}},
		},
		{
			name:    "stop words dropped",
			query:   "the cats",
			clauses: []Clause{{Terms: []string{"cat"}}},
		},
		{
			name:    "phrase keeps inner stop words as gaps",
			query:   `"the cat in the hat"`,
			clauses: []Clause{{Terms: []string{"cat", "", "", "hat"}}},
		},
		{
			name:    "or with exclusion",
			query:   "dogs OR cats NOT mice",
			clauses: []Clause{{Terms: []string{"dog"}}, {Terms: []string{"cat"}}},
			typ:     QueryOR,
			exclude: []string{"mice"},
		},
		{
			name:  "labelled clauses",
			query: `who:dogs what:"chase cats"`,
			clauses: []Clause{
				{Label: "who", Terms: []string{"dog"}},
				{Label: "what", Terms: []string{"chase", "cat"}},
			},
		},
		{
			name:    "single letters are trimmed",
			query:   "don't",
			clauses: []Clause{{Terms: []string{"don"}}},
		},
		{
			name:    "empty",
			query:   "   ",
			clauses: []Clause{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Parse(tt.query)
			assert.Equal(t, tt.clauses, plan.Clauses)
			assert.Equal(t, tt.typ, plan.Type)
			if tt.exclude == nil {
				tt.exclude = []string{}
			}
			assert.Equal(t, tt.exclude, plan.ExcludeTerms)
			assert.Equal(t, tt.query, plan.RawQuery)
		})
	}
}

func TestPlanHelpers(t *testing.T) {
	plan := Parse(`x:"black cats" dogs y:birds`)
	assert.Equal(t, []string{"x", "y"}, plan.Labels())
	assert.False(t, plan.Empty())
	assert.Equal(t, `x:"black cat"`, plan.Clauses[0].String())
	assert.Equal(t, int32(2), plan.Clauses[0].Len())
	assert.True(t, Parse("the of").Empty())
	assert.Equal(t, "OR", QueryOR.String())
}

func TestColonInsideWordIsNotALabel(t *testing.T) {
	plan := Parse("http://example")
	assert.Empty(t, plan.Labels())
	assert.Equal(t, []Clause{{Terms: []string{"http", "example"}}}, plan.Clauses)
}
