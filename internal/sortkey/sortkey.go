// Package sortkey derives a staging-buffer SortKey from a document body
// by resolving a configured JSON pointer against it. Resolution failure
// of any kind (empty pointer, invalid JSON, pointer miss) falls back to a
// fresh random identifier so staged entries never collide. A non-scalar
// target (object or array) is used as its JSON encoding.
package sortkey

import (
	"encoding/json"
	"fmt"

	"github.com/go-openapi/jsonpointer"
	"github.com/google/uuid"

	"github.com/standardbeagle/docstream/internal/types"
)

// Derive resolves pointer against body's JSON representation and
// stringifies whatever it finds. An empty pointer, a parse failure, or
// a resolution failure all produce a random key.
func Derive(pointer string, body []byte) types.SortKey {
	if pointer == "" {
		return randomKey()
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return randomKey()
	}

	ptr, err := jsonpointer.New(pointer)
	if err != nil {
		return randomKey()
	}

	value, _, err := ptr.Get(doc)
	if err != nil {
		return randomKey()
	}

	return types.SortKey(stringify(value))
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return string(randomKey())
		}
		return string(b)
	}
}

func randomKey() types.SortKey {
	return types.SortKey(uuid.New().String())
}
