package property

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
)

// DocSource resolves global document ids to their stored data.
type DocSource interface {
	ExternalID(doc int32) string
	// Words returns the words at positions [start, end) of doc, clipped to
	// the document.
	Words(doc int32, start, end int32) []string
}

// Context is what a property needs to interpret the hits of one buffer.
// DocBase converts the buffer's docs to global ids; it is zero for buffers
// that already hold global docs.
type Context struct {
	DocBase int32
	Docs    DocSource
	Defs    *hits.MatchInfoDefs
}

func (c Context) globalDoc(buf *hits.Buffer, i int64) int32 {
	return c.DocBase + buf.Doc(i)
}

// Property computes a value for hit i of buf.
type Property interface {
	Name() string
	Value(ctx Context, buf *hits.Buffer, i int64) Value
}

type docID struct{}

func (docID) Name() string { return "docid" }

func (docID) Value(ctx Context, buf *hits.Buffer, i int64) Value {
	return Int(int64(ctx.globalDoc(buf, i)))
}

type docName struct{}

func (docName) Name() string { return "docname" }

func (docName) Value(ctx Context, buf *hits.Buffer, i int64) Value {
	return String(ctx.Docs.ExternalID(ctx.globalDoc(buf, i)))
}

type hitText struct{}

func (hitText) Name() string { return "hittext" }

func (hitText) Value(ctx Context, buf *hits.Buffer, i int64) Value {
	return String(strings.Join(ctx.Docs.Words(ctx.globalDoc(buf, i), buf.Start(i), buf.End(i)), " "))
}

// neighbour returns the word right before (left) or after (right) the hit.
type neighbour struct {
	left bool
}

func (c neighbour) Name() string {
	if c.left {
		return "left"
	}
	return "right"
}

func (c neighbour) Value(ctx Context, buf *hits.Buffer, i int64) Value {
	doc := ctx.globalDoc(buf, i)
	var words []string
	if c.left {
		start := buf.Start(i)
		if start == 0 {
			return String("")
		}
		words = ctx.Docs.Words(doc, start-1, start)
	} else {
		end := buf.End(i)
		words = ctx.Docs.Words(doc, end, end+1)
	}
	return String(strings.Join(words, " "))
}

type position struct{}

func (position) Name() string { return "start" }

func (position) Value(_ Context, buf *hits.Buffer, i int64) Value {
	return Int(int64(buf.Start(i)))
}

type length struct{}

func (length) Name() string { return "length" }

func (length) Value(_ Context, buf *hits.Buffer, i int64) Value {
	return Int(int64(buf.End(i) - buf.Start(i)))
}

// capture is the text of a named capture. Hits from segments where the
// capture was never registered get the empty string.
type capture struct {
	name string
}

func (c capture) Name() string { return "capture:" + c.name }

func (c capture) Value(ctx Context, buf *hits.Buffer, i int64) Value {
	idx := ctx.Defs.IndexOf(c.name)
	if idx < 0 {
		return String("")
	}
	switch mi := hits.MatchInfoAt(buf.MatchInfo(i), idx).(type) {
	case hits.Span:
		return String(strings.Join(ctx.Docs.Words(ctx.globalDoc(buf, i), mi.Start, mi.End), " "))
	case hits.Tag:
		return String(mi.Value)
	default:
		return String("")
	}
}

// Reverse inverts the sort order of p. Group and filter values are those
// of p.
type Reverse struct {
	Property Property
}

func (r Reverse) Name() string { return "-" + r.Property.Name() }

func (r Reverse) Value(ctx Context, buf *hits.Buffer, i int64) Value {
	return r.Property.Value(ctx, buf, i)
}

// Multiple orders by each property in turn.
type Multiple []Property

func (m Multiple) Name() string {
	names := make([]string, len(m))
	for i, p := range m {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

func (m Multiple) Value(ctx Context, buf *hits.Buffer, i int64) Value {
	parts := make([]Value, len(m))
	for j, p := range m {
		parts[j] = p.Value(ctx, buf, i)
	}
	return multi(parts)
}

var (
	DocID   Property = docID{}
	DocName Property = docName{}
	HitText Property = hitText{}
	Left    Property = neighbour{left: true}
	Right   Property = neighbour{}
	Start   Property = position{}
	Length  Property = length{}
)

// Capture returns the property holding the text of the named capture.
func Capture(name string) Property { return capture{name: name} }

// Parse reads a property expression such as "docid", "-hittext" or
// "docname,capture:adj".
func Parse(expr string) (Property, error) {
	parts := strings.Split(expr, ",")
	props := make(Multiple, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		reverse := strings.HasPrefix(part, "-")
		part = strings.TrimPrefix(part, "-")
		var p Property
		switch {
		case part == "docid":
			p = DocID
		case part == "docname":
			p = DocName
		case part == "hittext":
			p = HitText
		case part == "left":
			p = Left
		case part == "right":
			p = Right
		case part == "start":
			p = Start
		case part == "length":
			p = Length
		case strings.HasPrefix(part, "capture:") && len(part) > len("capture:"):
			p = Capture(strings.TrimPrefix(part, "capture:"))
		default:
			return nil, fmt.Errorf("%w: unknown hit property %q", apperrors.ErrInvalidInput, part)
		}
		if reverse {
			p = Reverse{Property: p}
		}
		props = append(props, p)
	}
	if len(props) == 1 {
		return props[0], nil
	}
	return props, nil
}

// leaf is one column of a possibly compound property.
type leaf struct {
	prop    Property
	reverse bool
}

func leaves(p Property, reverse bool, out []leaf) []leaf {
	switch p := p.(type) {
	case Multiple:
		for _, sub := range p {
			out = leaves(sub, reverse, out)
		}
		return out
	case Reverse:
		return leaves(p.Property, !reverse, out)
	default:
		return append(out, leaf{prop: p, reverse: reverse})
	}
}

func leafKind(p Property) Kind {
	switch p := p.(type) {
	case docID, position, length:
		return KindInt
	case Reverse:
		return leafKind(p.Property)
	case Multiple:
		return KindMulti
	default:
		return KindString
	}
}
