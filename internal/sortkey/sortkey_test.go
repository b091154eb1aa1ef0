package sortkey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveEmptyPointerIsRandom(t *testing.T) {
	a := Derive("", []byte(`{"ts":"2026-01-01"}`))
	b := Derive("", []byte(`{"ts":"2026-01-01"}`))
	require.NotEqual(t, a, b)
}

func TestDeriveResolvesStringField(t *testing.T) {
	k := Derive("/ts", []byte(`{"ts":"2026-01-01T00:00:00Z","msg":"hi"}`))
	require.Equal(t, "2026-01-01T00:00:00Z", string(k))
}

func TestDeriveInvalidJSONFallsBackToRandom(t *testing.T) {
	a := Derive("/ts", []byte(`not json`))
	b := Derive("/ts", []byte(`not json`))
	require.NotEqual(t, a, b)
}

func TestDeriveMissingPointerFallsBackToRandom(t *testing.T) {
	a := Derive("/missing", []byte(`{"ts":"x"}`))
	b := Derive("/missing", []byte(`{"ts":"x"}`))
	require.NotEqual(t, a, b)
}

func TestDeriveNumericFieldStringifies(t *testing.T) {
	k := Derive("/seq", []byte(`{"seq":42}`))
	require.Equal(t, "42", string(k))
}
