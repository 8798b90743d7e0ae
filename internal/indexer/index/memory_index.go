package index

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/tokenizer"
)

// MemoryIndex accumulates documents until they are flushed into a segment.
// Documents get consecutive local ids in insertion order, so every posting
// list is already sorted by doc.
type MemoryIndex struct {
	mu      sync.RWMutex
	index   map[string]PostingList
	docs    []Document
	byID    map[string]int32
	deleted *roaring.Bitmap
	size    int64
}

// Snapshot is the frozen content of a MemoryIndex, ready to be written.
type Snapshot struct {
	Terms   []TermEntry
	Docs    []Document
	Deleted *roaring.Bitmap
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index:   make(map[string]PostingList),
		byID:    make(map[string]int32),
		deleted: roaring.New(),
	}
}

// AddDocument tokenizes title and body and returns the new local doc id. A
// document with an id already present replaces it; the old copy is marked
// deleted.
func (m *MemoryIndex) AddDocument(docID string, title string, body string) int32 {
	tokens := tokenizer.Tokenize(title + " " + body)

	words := make([]string, len(tokens))
	positions := make(map[string][]int32)
	for _, token := range tokens {
		words[token.Position] = token.Word
		if token.Indexed() {
			positions[token.Term] = append(positions[token.Term], int32(token.Position))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.byID[docID]; exists {
		m.deleted.Add(uint32(old))
	}
	doc := int32(len(m.docs))
	m.docs = append(m.docs, Document{ID: docID, Words: words})
	m.byID[docID] = doc
	for term, pos := range positions {
		m.index[term] = append(m.index[term], Posting{Doc: doc, Positions: pos})
		m.size += int64(len(term) + len(pos)*4 + 32)
	}
	for _, w := range words {
		m.size += int64(len(w) + 16)
	}
	m.size += int64(len(docID) + 64)
	return doc
}

// Delete marks the live copy of docID as deleted.
func (m *MemoryIndex) Delete(docID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, exists := m.byID[docID]
	if !exists {
		return false
	}
	delete(m.byID, docID)
	m.deleted.Add(uint32(doc))
	return true
}

// Search returns a copy of the postings of term, excluding deleted docs.
func (m *MemoryIndex) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	postings := m.index[term]
	if len(postings) == 0 {
		return nil
	}
	result := make(PostingList, 0, len(postings))
	for _, p := range postings {
		if !m.deleted.Contains(uint32(p.Doc)) {
			result = append(result, p)
		}
	}
	return result
}

// Drain returns the current content and resets the index in one step, so a
// document added concurrently lands either in the snapshot or in the fresh
// index.
func (m *MemoryIndex) Drain() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, postings := range m.index {
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	snap := Snapshot{Terms: entries, Docs: m.docs, Deleted: m.deleted}

	m.index = make(map[string]PostingList)
	m.docs = nil
	m.byID = make(map[string]int32)
	m.deleted = roaring.New()
	m.size = 0
	return snap
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// DocCount returns the number of live documents.
func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
