package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32

	// Extension is the suffix of segment files; DeletesExtension is appended
	// to a segment path to name its deleted-docs sidecar.
	Extension        = ".spdx"
	DeletesExtension = ".del"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
//
//	0:4   magic        4:8   version
//	8:12  term count   12:16 doc count
//	16:24 dict offset  24:32 dict size
//	32:40 post offset  40:48 post size
//	48:56 docs offset  56:64 docs size
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
	DocsOffset int64
	DocsSize   int64
}

func (h SegmentHeader) marshal() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.DocsOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.DocsSize))
	return b
}

func unmarshalHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		TermCount:  binary.LittleEndian.Uint32(b[8:12]),
		DocCount:   binary.LittleEndian.Uint32(b[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(b[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(b[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(b[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(b[40:48])),
		DocsOffset: int64(binary.LittleEndian.Uint64(b[48:56])),
		DocsSize:   int64(binary.LittleEndian.Uint64(b[56:64])),
	}
}

// DictEntry maps a term to its compressed postings block and document
// frequency in the segment file.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// EncodeAll and DecodeAll are safe for concurrent use, so one encoder and one
// decoder serve every segment in the process.
var (
	encoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	decoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
)

func compress(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	enc, err := encoder()
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return enc.EncodeAll(raw, nil), nil
}

func decompress(data []byte, v any) error {
	dec, err := decoder()
	if err != nil {
		return fmt.Errorf("creating zstd decoder: %w", err)
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("decompressing block: %w", err)
	}
	return json.Unmarshal(raw, v)
}

// Writer serialises memory index snapshots into new .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new segment file containing snap. It writes to
// a .tmp file first and renames on success. Docs already deleted in snap are
// written to the segment's .del sidecar before the rename.
func (w *Writer) Write(snap index.Snapshot) (string, error) {
	if len(snap.Docs) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := fmt.Sprintf("seg_%d%s", time.Now().UnixNano(), Extension)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()
	header := SegmentHeader{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		TermCount: uint32(len(snap.Terms)),
		DocCount:  uint32(len(snap.Docs)),
	}
	if _, err := f.Write(header.marshal()); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	offset := int64(HeaderSize)
	header.PostOffset = offset
	dict := make([]DictEntry, 0, len(snap.Terms))
	for _, entry := range snap.Terms {
		block, err := compress(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("encoding postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(block); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset - header.PostOffset,
			PostLen:    len(block),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(block))
	}
	header.PostSize = offset - header.PostOffset

	docsBlock, err := compress(snap.Docs)
	if err != nil {
		return "", fmt.Errorf("encoding document table: %w", err)
	}
	if _, err := f.Write(docsBlock); err != nil {
		return "", fmt.Errorf("writing document table: %w", err)
	}
	header.DocsOffset = offset
	header.DocsSize = int64(len(docsBlock))
	offset += header.DocsSize

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	header.DictOffset = offset
	header.DictSize = int64(len(dictData))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], header.DocCount)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(header.DictOffset))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(header.DictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(header.PostSize))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if _, err := f.WriteAt(header.marshal(), 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if snap.Deleted != nil && !snap.Deleted.IsEmpty() {
		if err := writeDeletes(finalPath, snap.Deleted); err != nil {
			return "", err
		}
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return segmentName, nil
}
