// Package staging implements C3, the ordered in-memory staging buffer.
// Documents live here, keyed by SortKey, from the moment they're
// ingested until the buffer's byte budget is exceeded and the largest
// (newest) key is popped and spilled into the index and store.
package staging

import (
	"sort"
	"sync"

	"github.com/standardbeagle/docstream/internal/types"
)

// Indexer and Storer are the pair of downstream components a spilled
// document is admitted into. Buffer depends on their interfaces rather
// than their concrete types so tests can substitute fakes.
type Indexer interface {
	Admit(key types.DocumentKey, body []byte)
}

type Storer interface {
	Put(key types.DocumentKey, body []byte) error
}

// Buffer is the ordered SortKey -> document body staging area.
type Buffer struct {
	mu sync.RWMutex

	byteBudget int64
	bytes      int64

	docs map[types.SortKey]types.Document
	keys []types.SortKey // kept sorted ascending; largest is spilled first

	nextKey types.DocumentKey

	index Indexer
	store Storer
}

// New creates an empty staging buffer that spills into index and store
// once accumulated body bytes exceed byteBudget.
func New(byteBudget int64, index Indexer, store Storer) *Buffer {
	return &Buffer{
		byteBudget: byteBudget,
		docs:       make(map[types.SortKey]types.Document),
		index:      index,
		store:      store,
		nextKey:    0,
	}
}

// Insert adds body under sortKey, spilling the largest staged key
// (possibly this one, if it is itself the largest) while the buffer
// exceeds its byte budget.
func (b *Buffer) Insert(sortKey types.SortKey, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.docs[sortKey]; !exists {
		b.insertKeyLocked(sortKey)
	}
	b.bytes += int64(len(body)) - int64(len(b.docs[sortKey]))
	b.docs[sortKey] = types.Document(body)

	for b.bytes > b.byteBudget && len(b.keys) > 0 {
		if err := b.spillLargestLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buffer) insertKeyLocked(key types.SortKey) {
	idx := sort.Search(len(b.keys), func(i int) bool { return b.keys[i] >= key })
	b.keys = append(b.keys, "")
	copy(b.keys[idx+1:], b.keys[idx:])
	b.keys[idx] = key
}

// spillLargestLocked pops the lexicographically-largest SortKey,
// assigns it a fresh DocumentKey, admits it into the index, writes it
// to the store, and removes it from the buffer.
func (b *Buffer) spillLargestLocked() error {
	last := len(b.keys) - 1
	key := b.keys[last]
	b.keys = b.keys[:last]

	body := b.docs[key]
	delete(b.docs, key)
	b.bytes -= int64(len(body))

	docKey := b.nextKey
	b.nextKey++

	b.index.Admit(docKey, body)
	return b.store.Put(docKey, body)
}

// ScanDescending calls fn for each staged document in descending
// SortKey order (newest first), stopping early if fn returns false.
func (b *Buffer) ScanDescending(fn func(sortKey types.SortKey, body types.Document) bool) {
	b.mu.RLock()
	keys := append([]types.SortKey(nil), b.keys...)
	b.mu.RUnlock()

	for i := len(keys) - 1; i >= 0; i-- {
		b.mu.RLock()
		body, ok := b.docs[keys[i]]
		b.mu.RUnlock()
		if !ok {
			continue // spilled concurrently between the snapshot and the read
		}
		if !fn(keys[i], body) {
			return
		}
	}
}

// Len reports the number of documents currently staged.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.keys)
}

// Bytes reports the accumulated byte size of staged document bodies.
func (b *Buffer) Bytes() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bytes
}

// NextDocumentKey returns the DocumentKey that will be assigned to the
// next spilled document, for persistence bookkeeping.
func (b *Buffer) NextDocumentKey() types.DocumentKey {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextKey
}

// SetNextDocumentKey restores the key counter after a load, so that
// reloaded state never reissues a DocumentKey.
func (b *Buffer) SetNextDocumentKey(k types.DocumentKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextKey = k
}

// Clear empties the buffer and resets the key counter. Callers are
// responsible for also clearing the index and store.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = make(map[types.SortKey]types.Document)
	b.keys = nil
	b.bytes = 0
	b.nextKey = 0
}

// Snapshot returns a copy of all staged (SortKey, body) pairs in
// ascending key order, for serialisation by the persistence controller.
func (b *Buffer) Snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, len(b.keys))
	for _, k := range b.keys {
		out = append(out, Entry{SortKey: k, Body: append(types.Document(nil), b.docs[k]...)})
	}
	return out
}

// Restore replaces the buffer's contents with entries loaded from a
// persisted snapshot, bypassing spill logic: persisted state is assumed
// to already satisfy the byte budget.
func (b *Buffer) Restore(entries []Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = make(map[types.SortKey]types.Document, len(entries))
	b.keys = make([]types.SortKey, 0, len(entries))
	b.bytes = 0
	for _, e := range entries {
		b.docs[e.SortKey] = e.Body
		b.keys = append(b.keys, e.SortKey)
		b.bytes += int64(len(e.Body))
	}
	sort.Slice(b.keys, func(i, j int) bool { return b.keys[i] < b.keys[j] })
}

// Entry is one staged (SortKey, body) pair.
type Entry struct {
	SortKey types.SortKey
	Body    types.Document
}
