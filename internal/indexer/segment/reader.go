package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/index"
)

// Reader gives read access to one immutable segment. The document table is
// loaded eagerly; postings are decompressed per lookup. Deletions are kept
// as an immutable bitmap that is swapped on every change, so a bitmap handed
// out by Deleted never changes under its holder.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	docs     []index.Document
	byID     map[string]int32

	delMu   sync.Mutex
	deleted atomic.Pointer[roaring.Bitmap]
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := open(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func open(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := unmarshalHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment format version %d", header.Version)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if want := binary.LittleEndian.Uint32(footer[0:4]); crc32.ChecksumIEEE(dictBytes) != want {
		return nil, fmt.Errorf("dictionary checksum mismatch in %s", filepath.Base(path))
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}

	docsBytes := make([]byte, header.DocsSize)
	if _, err := f.ReadAt(docsBytes, header.DocsOffset); err != nil {
		return nil, fmt.Errorf("reading document table: %w", err)
	}
	var docs []index.Document
	if err := decompress(docsBytes, &docs); err != nil {
		return nil, fmt.Errorf("parsing document table: %w", err)
	}
	if len(docs) != int(header.DocCount) {
		return nil, fmt.Errorf("document table has %d entries, header says %d", len(docs), header.DocCount)
	}

	deleted, err := readDeletes(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		docs:     docs,
		byID:     make(map[string]int32, len(docs)),
	}
	for i, d := range docs {
		r.byID[d.ID] = int32(i)
	}
	r.deleted.Store(deleted)
	return r, nil
}

// Search returns the postings of term, including deleted docs. Callers skip
// deletions with the bitmap from Deleted.
func (r *Reader) Search(term string) (index.PostingList, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return nil, nil
	}
	entry := r.dict[idx]
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := decompress(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings for %q: %w", term, err)
	}
	return postings, nil
}

// DocFreq returns the number of documents containing term, deletions
// included.
func (r *Reader) DocFreq(term string) int {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return 0
	}
	return r.dict[idx].DocFreq
}

// Document returns the forward record of local doc.
func (r *Reader) Document(doc int32) index.Document {
	return r.docs[doc]
}

// Lookup returns the local doc of a live document with the given external id.
func (r *Reader) Lookup(id string) (int32, bool) {
	doc, ok := r.byID[id]
	if !ok || r.Deleted().Contains(uint32(doc)) {
		return 0, false
	}
	return doc, true
}

// Deleted returns the current deleted-docs bitmap. It must not be modified.
func (r *Reader) Deleted() *roaring.Bitmap {
	return r.deleted.Load()
}

// Delete marks local doc as deleted and persists the sidecar. It reports
// false when the doc was already deleted.
func (r *Reader) Delete(doc int32) (bool, error) {
	r.delMu.Lock()
	defer r.delMu.Unlock()
	cur := r.deleted.Load()
	if cur.Contains(uint32(doc)) {
		return false, nil
	}
	next := cur.Clone()
	next.Add(uint32(doc))
	if err := writeDeletes(r.filePath, next); err != nil {
		return false, err
	}
	r.deleted.Store(next)
	return true, nil
}

// ReloadDeletes re-reads the sidecar, picking up deletions written by
// another process. It reports whether the bitmap changed.
func (r *Reader) ReloadDeletes() (bool, error) {
	r.delMu.Lock()
	defer r.delMu.Unlock()
	bm, err := readDeletes(r.filePath)
	if err != nil {
		return false, err
	}
	if bm.Equals(r.deleted.Load()) {
		return false, nil
	}
	r.deleted.Store(bm)
	return true, nil
}

func (r *Reader) Name() string {
	return filepath.Base(r.filePath)
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

// DocCount returns the number of docs in the segment, deletions included.
// It is the segment's local doc id space.
func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

// LiveDocs returns the number of docs not deleted.
func (r *Reader) LiveDocs() uint64 {
	return uint64(r.header.DocCount) - r.Deleted().GetCardinality()
}

func (r *Reader) Close() error {
	return r.file.Close()
}
