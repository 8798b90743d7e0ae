// Package hits holds the hit value types and the growable column storage
// that every fetch, sort and group operation reads from and writes to.
package hits

import "fmt"

// Hit identifies one match: a document, a token range [Start, End) and
// optional match info. Doc is segment-relative inside a segment buffer and
// global in any cross-segment structure.
type Hit struct {
	Doc       int32
	Start     int32
	End       int32
	MatchInfo []MatchInfo
}

// Equal reports whether two hits have the same position and match info.
func (h Hit) Equal(o Hit) bool {
	return h.Doc == o.Doc && h.Start == o.Start && h.End == o.End && MatchInfosEqual(h.MatchInfo, o.MatchInfo)
}

func (h Hit) String() string {
	return fmt.Sprintf("doc=%d start=%d end=%d", h.Doc, h.Start, h.End)
}

// EphemeralHit is a reusable cursor filled by Buffer.Get. It must not be
// retained after the next call that fills it; use ToHit for a stable copy.
type EphemeralHit struct {
	Doc       int32
	Start     int32
	End       int32
	MatchInfo []MatchInfo
}

func (e *EphemeralHit) Set(doc, start, end int32, matchInfo []MatchInfo) {
	e.Doc = doc
	e.Start = start
	e.End = end
	e.MatchInfo = matchInfo
}

// ConvertDocToGlobal adds a segment's document base to Doc.
func (e *EphemeralHit) ConvertDocToGlobal(docBase int32) {
	e.Doc += docBase
}

// SamePosition reports whether e and o share doc, start, end and match info.
func (e *EphemeralHit) SamePosition(o *EphemeralHit) bool {
	return e.Doc == o.Doc && e.Start == o.Start && e.End == o.End && MatchInfosEqual(e.MatchInfo, o.MatchInfo)
}

func (e *EphemeralHit) ToHit() Hit {
	h := Hit{Doc: e.Doc, Start: e.Start, End: e.End}
	if e.MatchInfo != nil {
		h.MatchInfo = make([]MatchInfo, len(e.MatchInfo))
		copy(h.MatchInfo, e.MatchInfo)
	}
	return h
}

func (e *EphemeralHit) CopyFrom(o *EphemeralHit) {
	e.Doc, e.Start, e.End = o.Doc, o.Start, o.End
	e.MatchInfo = append(e.MatchInfo[:0], o.MatchInfo...)
	if o.MatchInfo == nil {
		e.MatchInfo = nil
	}
}

func checkHit(doc, start, end int32) {
	if doc < 0 || start < 0 || end < start {
		panic(fmt.Sprintf("hits: invalid hit doc=%d start=%d end=%d", doc, start, end))
	}
}
