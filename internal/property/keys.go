package property

import (
	"bytes"
	"cmp"
	"context"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
)

// cancelCheckInterval is how many hits are keyed between context checks.
const cancelCheckInterval = 1024

// Keys holds the precomputed sort keys of every hit in one buffer. String
// values are stored as collation keys so comparisons never touch the
// collator.
type Keys struct {
	cols []column
}

type column struct {
	reverse bool
	ints    []int64
	strs    [][]byte
}

// ComputeKeys evaluates p for every hit of buf. coll may be nil, in which
// case strings compare by their bytes.
func ComputeKeys(ctx context.Context, pc Context, buf *hits.Buffer, p Property, coll *Collation) (*Keys, error) {
	ls := leaves(p, false, nil)
	n := buf.Len()
	k := &Keys{cols: make([]column, len(ls))}
	for c, l := range ls {
		col := column{reverse: l.reverse}
		if leafKind(l.prop) == KindInt {
			col.ints = make([]int64, n)
		} else {
			col.strs = make([][]byte, n)
		}
		for i := int64(0); i < n; i++ {
			if i%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, apperrors.Cancelled(err)
				}
			}
			v := l.prop.Value(pc, buf, i)
			switch {
			case col.ints != nil:
				col.ints[i] = v.Int
			case coll != nil:
				col.strs[i] = coll.Key(v.Str)
			default:
				col.strs[i] = []byte(v.Str)
			}
		}
		k.cols[c] = col
	}
	return k, nil
}

func (k *Keys) Len() int64 {
	if len(k.cols) == 0 {
		return 0
	}
	if k.cols[0].ints != nil {
		return int64(len(k.cols[0].ints))
	}
	return int64(len(k.cols[0].strs))
}

// Compare orders hits a and b of the keyed buffer.
func (k *Keys) Compare(a, b int64) int {
	return CompareKeys(k, a, k, b)
}

// CompareKeys orders hit a of ka against hit b of kb. Both must have been
// computed for the same property.
func CompareKeys(ka *Keys, a int64, kb *Keys, b int64) int {
	for c := range ka.cols {
		x, y := &ka.cols[c], &kb.cols[c]
		var r int
		if x.ints != nil {
			r = cmp.Compare(x.ints[a], y.ints[b])
		} else {
			r = bytes.Compare(x.strs[a], y.strs[b])
		}
		if r != 0 {
			if x.reverse {
				return -r
			}
			return r
		}
	}
	return 0
}
