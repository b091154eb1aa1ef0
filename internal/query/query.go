// Package query implements C4, the two-phase query executor: a fast
// in-memory scan over the staging buffer followed by, if still short of
// the requested limit, an index-backed scan over the compressed store.
package query

import (
	"strings"
	"time"

	"github.com/standardbeagle/docstream/internal/staging"
	"github.com/standardbeagle/docstream/internal/types"
)

// Index is the subset of the trigram index the executor needs.
type Index interface {
	Search(query string, exact bool) []types.DocumentKey
	SearchOr(query string, exact bool) []types.DocumentKey
}

// Store is the subset of the document store the executor needs.
type Store interface {
	Get(key types.DocumentKey) ([]byte, error)
}

// Request describes one Filter invocation.
type Request struct {
	Query      string
	NegQuery   string
	Exact      bool
	Limit      int
	Deadline   time.Duration
}

// Result is one matched document plus the SortKey it was staged or
// would have been staged under (zero-value for index-backed hits,
// which don't retain their original SortKey).
type Result struct {
	Key  types.DocumentKey
	Body []byte
}

// Response is what Filter hands back via the event sink.
type Response struct {
	Results   []Result
	Truncated bool
}

// Executor runs Filter requests against a staging buffer, index, and
// store triple.
type Executor struct {
	buffer *staging.Buffer
	index  Index
	store  Store
}

// New creates an Executor bound to the given staging buffer, index, and
// store.
func New(buffer *staging.Buffer, index Index, store Store) *Executor {
	return &Executor{buffer: buffer, index: index, store: store}
}

// Find runs both phases of the query per spec §4.4, stopping at
// req.Limit results or when the deadline elapses between documents. A
// zero or negative Deadline ends the index-backed phase before its first
// fetch, so only RAM-phase hits are returned.
func (e *Executor) Find(req Request) Response {
	deadline := time.Now().Add(req.Deadline)

	var results []Result
	truncated := false

	e.buffer.ScanDescending(func(sortKey types.SortKey, body types.Document) bool {
		if match(req.Query, req.Exact, body) && (req.NegQuery == "" || !match(req.NegQuery, req.Exact, body)) {
			results = append(results, Result{Body: append([]byte(nil), body...)})
		}
		return len(results) < req.Limit
	})

	if len(results) >= req.Limit {
		return Response{Results: results, Truncated: false}
	}

	positive := e.index.Search(req.Query, req.Exact)
	negative := e.index.SearchOr(req.NegQuery, req.Exact)

	if req.NegQuery != "" {
		negative = intersect(negative, positive)
		positive = subtract(positive, negative)
	} else {
		negative = nil
	}

	positive = descending(positive)
	negative = descending(negative)

	results, truncated = e.scanKeys(positive, req, results, deadline, func(body []byte) bool {
		return match(req.Query, req.Exact, body)
	})

	if !truncated && len(results) < req.Limit {
		results, truncated = e.scanKeys(negative, req, results, deadline, func(body []byte) bool {
			return !match(req.NegQuery, req.Exact, body) && match(req.Query, req.Exact, body)
		})
	}

	return Response{Results: results, Truncated: truncated}
}

// scanKeys fetches each key from the store in order, keeping it if
// keep(body) holds, until limit is reached or the deadline passes. The
// deadline is only checked between documents, never mid-fetch.
func (e *Executor) scanKeys(keys []types.DocumentKey, req Request, results []Result, deadline time.Time, keep func(body []byte) bool) ([]Result, bool) {
	for _, key := range keys {
		if len(results) >= req.Limit {
			return results, false
		}
		if !time.Now().Before(deadline) {
			return results, true
		}

		body, err := e.store.Get(key)
		if err != nil {
			continue
		}
		if keep(body) {
			results = append(results, Result{Key: key, Body: body})
		}
	}
	return results, false
}

// match reports whether body satisfies query q: an empty query matches
// everything, an exact query is a single lower-cased substring check,
// and a tokenised query requires every whitespace-separated token to
// appear somewhere in body.
func match(q string, exact bool, body []byte) bool {
	if q == "" {
		return true
	}
	lowered := strings.ToLower(string(body))
	if exact {
		return strings.Contains(lowered, strings.ToLower(q))
	}
	for _, tok := range strings.Fields(q) {
		if !strings.Contains(lowered, strings.ToLower(tok)) {
			return false
		}
	}
	return true
}

func intersect(a, b []types.DocumentKey) []types.DocumentKey {
	set := make(map[types.DocumentKey]struct{}, len(b))
	for _, k := range b {
		set[k] = struct{}{}
	}
	var out []types.DocumentKey
	for _, k := range a {
		if _, ok := set[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func subtract(a, b []types.DocumentKey) []types.DocumentKey {
	set := make(map[types.DocumentKey]struct{}, len(b))
	for _, k := range b {
		set[k] = struct{}{}
	}
	var out []types.DocumentKey
	for _, k := range a {
		if _, ok := set[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// descending returns keys reversed into a freshly allocated slice. Search
// and SearchOr may hand back a direct alias to a live posting list (for a
// single-trigram term), so reversing must never mutate the input.
func descending(keys []types.DocumentKey) []types.DocumentKey {
	out := make([]types.DocumentKey, len(keys))
	for i, k := range keys {
		out[len(keys)-1-i] = k
	}
	return out
}
