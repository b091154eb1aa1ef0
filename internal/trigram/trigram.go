// Package trigram implements the probabilistic full-text inverted index
// (C1): documents are reduced to lower-cased, deduplicated 3-character
// windows over Unicode scalar values, and each (trigram, key) pair is
// admitted into the corresponding posting list with a probability that
// decays geometrically as the trigram accumulates more documents. Common
// trigrams end up with bounded posting lists; rare trigrams keep full
// recall.
package trigram

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"

	"github.com/standardbeagle/docstream/internal/types"
)

// DefaultAdmissionP is the base geometric-decay probability: an
// admission attempt for a trigram that has already seen c attempts
// succeeds with probability p^c, so the first attempt always succeeds.
const DefaultAdmissionP = 0.6

// fastKey packs an ASCII trigram into a uint32, avoiding a string
// allocation per trigram for the overwhelmingly common case.
type fastKey = uint32

// Index is the in-memory, serialisable probabilistic inverted index.
// It is safe for concurrent use: callers are expected to be the single
// indexer goroutine for writes and arbitrary query goroutines for reads,
// coordinated by an RWMutex.
type Index struct {
	mu sync.RWMutex

	p float64

	// ASCII fast path: 3 bytes packed into a uint32.
	ascii map[fastKey][]types.DocumentKey
	// Unicode slow path: string-keyed, used only when content has
	// non-ASCII runes.
	unicode map[string][]types.DocumentKey

	// Per-trigram admission counters, shared key space with the posting
	// maps above (ascii counters keyed by fastKey, unicode by string).
	asciiCount   map[fastKey]uint32
	unicodeCount map[string]uint32
}

// New creates an empty index with the given base admission probability.
// A p outside (0, 1] falls back to DefaultAdmissionP.
func New(p float64) *Index {
	if p <= 0 || p > 1 {
		p = DefaultAdmissionP
	}
	return &Index{
		p:            p,
		ascii:        make(map[fastKey][]types.DocumentKey),
		unicode:      make(map[string][]types.DocumentKey),
		asciiCount:   make(map[fastKey]uint32),
		unicodeCount: make(map[string]uint32),
	}
}

// Clear empties the index, releasing all posting lists and counters.
// Used by the Clear command (C6) to reset corpus state.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.ascii = make(map[fastKey][]types.DocumentKey)
	idx.unicode = make(map[string][]types.DocumentKey)
	idx.asciiCount = make(map[fastKey]uint32)
	idx.unicodeCount = make(map[string]uint32)
}

// Admit extracts the unique trigrams of body, lower-cased, and
// probabilistically admits (trigram, key) pairs into their posting
// lists. Admission order equals key order since spill assigns keys in
// strictly increasing order, which keeps posting lists sorted ascending
// without an explicit sort step.
func (idx *Index) Admit(key types.DocumentKey, body []byte) {
	lower := toLowerASCIIOrUnicode(body)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if isPureASCII(lower) {
		for fk := range asciiTrigramSet(lower) {
			idx.admitASCII(fk, key)
		}
		return
	}
	for t := range unicodeTrigramSet(lower) {
		idx.admitUnicode(t, key)
	}
}

func (idx *Index) admitASCII(fk fastKey, key types.DocumentKey) {
	c := idx.asciiCount[fk]
	threshold := pow(idx.p, c)
	if rand.Float64() < threshold {
		idx.ascii[fk] = append(idx.ascii[fk], key)
	}
	idx.asciiCount[fk] = c + 1
}

func (idx *Index) admitUnicode(t string, key types.DocumentKey) {
	c := idx.unicodeCount[t]
	threshold := pow(idx.p, c)
	if rand.Float64() < threshold {
		idx.unicode[t] = append(idx.unicode[t], key)
	}
	idx.unicodeCount[t] = c + 1
}

func pow(p float64, n uint32) float64 {
	result := 1.0
	for i := uint32(0); i < n; i++ {
		result *= p
	}
	return result
}

// Search returns the intersection of posting lists for every term in
// query. A term shorter than 3 characters makes the whole term
// universal: the caller (the query executor) is expected to confirm
// candidates with a substring scan, so returning every known key here
// is correct, if coarse. When exact is true the query is treated as a
// single term instead of being split on whitespace.
func (idx *Index) Search(query string, exact bool) []types.DocumentKey {
	terms := queryTerms(query, exact)
	if len(terms) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var result []types.DocumentKey
	for i, term := range terms {
		var candidates []types.DocumentKey
		if len([]rune(term)) < 3 {
			candidates = idx.allKeysLocked()
		} else {
			candidates = idx.postingsForTermLocked(term)
		}
		if i == 0 {
			result = candidates
		} else {
			result = intersectSorted(result, candidates)
		}
		if len(result) == 0 {
			break
		}
	}
	return result
}

// SearchOr returns the union of posting lists for every term in query.
// Used for the negative-term set.
func (idx *Index) SearchOr(query string, exact bool) []types.DocumentKey {
	terms := queryTerms(query, exact)
	if len(terms) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var result []types.DocumentKey
	for _, term := range terms {
		var candidates []types.DocumentKey
		if len([]rune(term)) < 3 {
			candidates = idx.allKeysLocked()
		} else {
			candidates = idx.postingsForTermLocked(term)
		}
		result = unionSorted(result, candidates)
	}
	return result
}

func queryTerms(query string, exact bool) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if exact {
		return []string{query}
	}
	return strings.Fields(query)
}

// postingsForTermLocked intersects the posting lists of every trigram in
// term: a multi-trigram term is itself a conjunction at the character
// level, but at the document level a document containing the term must
// contain every one of its trigrams, so the correct operation here is
// intersection across the term's own trigrams, not a union.
func (idx *Index) postingsForTermLocked(term string) []types.DocumentKey {
	lower := strings.ToLower(term)
	var result []types.DocumentKey
	first := true

	if isPureASCII([]byte(lower)) {
		for fk := range asciiTrigramSet([]byte(lower)) {
			postings := idx.ascii[fk]
			if first {
				result = postings
				first = false
			} else {
				result = intersectSorted(result, postings)
			}
			if len(result) == 0 {
				return nil
			}
		}
		return result
	}

	for t := range unicodeTrigramSet([]byte(lower)) {
		postings := idx.unicode[t]
		if first {
			result = postings
			first = false
		} else {
			result = intersectSorted(result, postings)
		}
		if len(result) == 0 {
			return nil
		}
	}
	return result
}

func (idx *Index) allKeysLocked() []types.DocumentKey {
	seen := make(map[types.DocumentKey]struct{})
	for _, postings := range idx.ascii {
		for _, k := range postings {
			seen[k] = struct{}{}
		}
	}
	for _, postings := range idx.unicode {
		for _, k := range postings {
			seen[k] = struct{}{}
		}
	}
	result := make([]types.DocumentKey, 0, len(seen))
	for k := range seen {
		result = append(result, k)
	}
	sortKeys(result)
	return result
}

func toLowerASCIIOrUnicode(body []byte) []byte {
	return []byte(strings.ToLower(string(body)))
}

func isPureASCII(b []byte) bool {
	for _, c := range b {
		if c > 127 {
			return false
		}
	}
	return true
}

// asciiTrigramSet packs each overlapping 3-byte window of b into a
// uint32 key.
func asciiTrigramSet(b []byte) map[fastKey]struct{} {
	if len(b) < 3 {
		return nil
	}
	set := make(map[fastKey]struct{}, len(b))
	for i := 0; i <= len(b)-3; i++ {
		fk := uint32(b[i])<<16 | uint32(b[i+1])<<8 | uint32(b[i+2])
		set[fk] = struct{}{}
	}
	return set
}

func unicodeTrigramSet(b []byte) map[string]struct{} {
	runes := []rune(string(b))
	if len(runes) < 3 {
		return nil
	}
	set := make(map[string]struct{}, len(runes))
	for i := 0; i <= len(runes)-3; i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

func intersectSorted(a, b []types.DocumentKey) []types.DocumentKey {
	result := make([]types.DocumentKey, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			result = append(result, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return result
}

func unionSorted(a, b []types.DocumentKey) []types.DocumentKey {
	result := make([]types.DocumentKey, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			result = append(result, a[i])
			i++
			j++
		case a[i] < b[j]:
			result = append(result, a[i])
			i++
		default:
			result = append(result, b[j])
			j++
		}
	}
	result = append(result, a[i:]...)
	result = append(result, b[j:]...)
	return result
}

func sortKeys(keys []types.DocumentKey) {
	// Simple insertion sort is fine: allKeysLocked only runs for
	// sub-3-character universal-wildcard terms, never on the hot path.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// magic identifies the binary serialisation format so Deserialize can
// reject a file written by an incompatible version outright rather than
// silently misparsing it.
const magic = uint32(0xd0c57a01)

// Serialize encodes the whole index (admission counters and posting
// lists) to w using a stable binary format.
func (idx *Index) Serialize(w io.Writer) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, magic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, idx.p); err != nil {
		return err
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(idx.ascii))); err != nil {
		return err
	}
	for fk, postings := range idx.ascii {
		if err := binary.Write(bw, binary.LittleEndian, fk); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, idx.asciiCount[fk]); err != nil {
			return err
		}
		if err := writePostings(bw, postings); err != nil {
			return err
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(idx.unicode))); err != nil {
		return err
	}
	for t, postings := range idx.unicode {
		if err := writeString(bw, t); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, idx.unicodeCount[t]); err != nil {
			return err
		}
		if err := writePostings(bw, postings); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func writePostings(w io.Writer, postings []types.DocumentKey) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(postings))); err != nil {
		return err
	}
	for _, k := range postings {
		if err := binary.Write(w, binary.LittleEndian, uint64(k)); err != nil {
			return err
		}
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// Deserialize reads an index previously written by Serialize. On any
// error the caller should discard the partial result and fall back to
// an empty index per C7's "no partial reads" invariant; Deserialize
// itself never returns a half-populated Index.
func Deserialize(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	var gotMagic uint32
	if err := binary.Read(br, binary.LittleEndian, &gotMagic); err != nil {
		return nil, err
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("trigram: bad magic %x", gotMagic)
	}

	var p float64
	if err := binary.Read(br, binary.LittleEndian, &p); err != nil {
		return nil, err
	}

	idx := New(p)

	var asciiLen uint32
	if err := binary.Read(br, binary.LittleEndian, &asciiLen); err != nil {
		return nil, err
	}
	for i := uint32(0); i < asciiLen; i++ {
		var fk fastKey
		var count uint32
		if err := binary.Read(br, binary.LittleEndian, &fk); err != nil {
			return nil, err
		}
		if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
			return nil, err
		}
		postings, err := readPostings(br)
		if err != nil {
			return nil, err
		}
		idx.ascii[fk] = postings
		idx.asciiCount[fk] = count
	}

	var unicodeLen uint32
	if err := binary.Read(br, binary.LittleEndian, &unicodeLen); err != nil {
		return nil, err
	}
	for i := uint32(0); i < unicodeLen; i++ {
		t, err := readString(br)
		if err != nil {
			return nil, err
		}
		var count uint32
		if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
			return nil, err
		}
		postings, err := readPostings(br)
		if err != nil {
			return nil, err
		}
		idx.unicode[t] = postings
		idx.unicodeCount[t] = count
	}

	return idx, nil
}

func readPostings(r io.Reader) ([]types.DocumentKey, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	postings := make([]types.DocumentKey, n)
	for i := range postings {
		var k uint64
		if err := binary.Read(r, binary.LittleEndian, &k); err != nil {
			return nil, err
		}
		postings[i] = types.DocumentKey(k)
	}
	return postings, nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
