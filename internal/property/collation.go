package property

import (
	"bytes"
	"fmt"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
)

// Collation orders strings by the rules of a locale. A collate.Collator is
// not safe for concurrent use, so each goroutine borrows its own.
type Collation struct {
	tag  language.Tag
	pool sync.Pool
}

// NewCollation creates a collation for the configured locale. Unless the
// configuration asks for case sensitivity, case and diacritics are ignored.
func NewCollation(cfg config.HitsConfig) (*Collation, error) {
	locale := cfg.CollationLocale
	if locale == "" {
		locale = "en"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("%w: collation locale %q: %v", apperrors.ErrInvalidInput, locale, err)
	}
	var opts []collate.Option
	if !cfg.CaseSensitive {
		opts = append(opts, collate.IgnoreCase, collate.IgnoreDiacritics)
	}
	c := &Collation{tag: tag}
	c.pool.New = func() any { return collate.New(tag, opts...) }
	return c, nil
}

func (c *Collation) Locale() string { return c.tag.String() }

// Key returns a binary sort key for s. Keys compare with bytes.Compare in the
// same order Compare would give for the strings.
func (c *Collation) Key(s string) []byte {
	col := c.pool.Get().(*collate.Collator)
	defer c.pool.Put(col)
	var buf collate.Buffer
	return bytes.Clone(col.KeyFromString(&buf, s))
}

func (c *Collation) Compare(a, b string) int {
	col := c.pool.Get().(*collate.Collator)
	defer c.pool.Put(col)
	return col.CompareString(a, b)
}
