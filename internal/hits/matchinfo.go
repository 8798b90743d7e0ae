package hits

import (
	"fmt"
	"sync"
)

// MatchInfoKind identifies the shape of a MatchInfo value.
type MatchInfoKind uint8

const (
	KindSpan MatchInfoKind = iota
	KindTag
)

func (k MatchInfoKind) String() string {
	switch k {
	case KindSpan:
		return "span"
	case KindTag:
		return "tag"
	default:
		return "unknown"
	}
}

// MatchInfo is extra data attached to a hit, such as a captured span.
type MatchInfo interface {
	Kind() MatchInfoKind
	Equal(other MatchInfo) bool
	String() string
}

// Span is a captured token range [Start, End).
type Span struct {
	Start int32
	End   int32
}

func (s Span) Kind() MatchInfoKind { return KindSpan }

func (s Span) Equal(other MatchInfo) bool {
	o, ok := other.(Span)
	return ok && o == s
}

func (s Span) String() string {
	return fmt.Sprintf("%d-%d", s.Start, s.End)
}

// Tag is a captured element with a name and attribute value.
type Tag struct {
	Span
	Name  string
	Value string
}

func (t Tag) Kind() MatchInfoKind { return KindTag }

func (t Tag) Equal(other MatchInfo) bool {
	o, ok := other.(Tag)
	return ok && o == t
}

func (t Tag) String() string {
	return fmt.Sprintf("<%s=%s>%d-%d", t.Name, t.Value, t.Start, t.End)
}

// MatchInfoAt returns the i-th entry of infos, or nil when the slice is too
// short. Slices from different segments may have different lengths because
// captures are registered lazily.
func MatchInfoAt(infos []MatchInfo, i int) MatchInfo {
	if i < 0 || i >= len(infos) {
		return nil
	}
	return infos[i]
}

// MatchInfosEqual compares two match info slices, treating missing trailing
// entries as absent.
func MatchInfosEqual(a, b []MatchInfo) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		x, y := MatchInfoAt(a, i), MatchInfoAt(b, i)
		switch {
		case x == nil && y == nil:
			continue
		case x == nil || y == nil:
			return false
		case !x.Equal(y):
			return false
		}
	}
	return true
}

// MatchInfoDef describes one registered capture.
type MatchInfoDef struct {
	Name  string
	Index int
	Kind  MatchInfoKind
}

// MatchInfoDefs is the append-only registry of capture names for one query.
// It is shared by every buffer derived from the query and grows as segments
// discover new captures; indexes are stable once assigned.
type MatchInfoDefs struct {
	mu     sync.RWMutex
	defs   []MatchInfoDef
	byName map[string]int
}

func NewMatchInfoDefs() *MatchInfoDefs {
	return &MatchInfoDefs{byName: make(map[string]int)}
}

// Register returns the index for name, adding it if it is new.
func (d *MatchInfoDefs) Register(name string, kind MatchInfoKind) int {
	d.mu.RLock()
	idx, ok := d.byName[name]
	d.mu.RUnlock()
	if ok {
		return idx
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx, ok := d.byName[name]; ok {
		return idx
	}
	idx = len(d.defs)
	d.defs = append(d.defs, MatchInfoDef{Name: name, Index: idx, Kind: kind})
	d.byName[name] = idx
	return idx
}

// IndexOf returns the index for name, or -1 if it was never registered.
func (d *MatchInfoDefs) IndexOf(name string) int {
	if d == nil {
		return -1
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if idx, ok := d.byName[name]; ok {
		return idx
	}
	return -1
}

func (d *MatchInfoDefs) Len() int {
	if d == nil {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.defs)
}

// Defs returns a copy of the registered definitions in index order.
func (d *MatchInfoDefs) Defs() []MatchInfoDef {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]MatchInfoDef, len(d.defs))
	copy(out, d.defs)
	return out
}
