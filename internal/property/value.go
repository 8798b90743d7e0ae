// Package property extracts sort and group keys from hits.
package property

import (
	"cmp"
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindInt Kind = iota
	KindString
	KindMulti
)

// multiSep joins the parts of a compound value.
const multiSep = "\x1f"

// Value is a property value. It is comparable and can be used as a map key.
type Value struct {
	Kind Kind
	Int  int64
	Str  string
}

func Int(v int64) Value { return Value{Kind: KindInt, Int: v} }

func String(s string) Value { return Value{Kind: KindString, Str: s} }

func multi(parts []Value) Value {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = p.String()
	}
	return Value{Kind: KindMulti, Str: strings.Join(s, multiSep)}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindMulti:
		return strings.ReplaceAll(v.Str, multiSep, " / ")
	default:
		return v.Str
	}
}

// Compare orders values of the same kind; ints sort before strings.
func (v Value) Compare(o Value) int {
	if v.Kind != o.Kind {
		return cmp.Compare(v.Kind, o.Kind)
	}
	if v.Kind == KindInt {
		return cmp.Compare(v.Int, o.Int)
	}
	return strings.Compare(v.Str, o.Str)
}

// ParseValue interprets s as a value for p, used for filters given as text.
func ParseValue(p Property, s string) (Value, error) {
	if leafKind(p) == KindInt {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, err
		}
		return Int(n), nil
	}
	return String(s), nil
}
