// Package types holds the small value types shared across the indexing and
// query subsystem so that no package needs to import another just to name an
// identifier.
package types

import "fmt"

// DocumentKey is the monotonically increasing identifier assigned to a
// document the moment it spills from the staging buffer into the
// inverted index and document store. Keys are never reused; Clear resets
// the counter to zero.
type DocumentKey uint64

// Invalid is the zero value of DocumentKey. The staging buffer's key
// counter also starts at zero, so the first document spilled after
// startup or Clear is assigned a key equal to Invalid.
const Invalid DocumentKey = 0

func (k DocumentKey) String() string {
	return fmt.Sprintf("doc:%d", uint64(k))
}

// Valid reports whether k differs from Invalid. It reports false for key
// 0, which the staging buffer does assign.
func (k DocumentKey) Valid() bool {
	return k != Invalid
}

// SortKey determines a document's position inside the staging buffer's
// ordered map. Derived from a configured JSON-pointer into the document
// body, or a random 128-bit identifier when the pointer is empty or fails
// to resolve.
type SortKey string

// Document is an opaque, assumed-UTF8 byte payload. The engine never parses
// it for indexing purposes; JSON parsing happens only to derive a SortKey
// and, at display time, outside this module.
type Document []byte

func (d Document) String() string {
	return string(d)
}
