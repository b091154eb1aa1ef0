package docstore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/docstream/internal/types"
)

func openTestStore(t *testing.T, threshold int64) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.data")
	s, err := Open(path, threshold)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTripUncompressed(t *testing.T) {
	s := openTestStore(t, 1<<20) // threshold never reached

	body := []byte(`{"msg":"hello world"}`)
	require.NoError(t, s.Put(types.DocumentKey(1), body))

	got, err := s.Get(types.DocumentKey(1))
	require.NoError(t, err)
	require.True(t, bytes.Equal(body, got))
	require.False(t, s.HasDictionary())
}

func TestPutGetRoundTripCompressed(t *testing.T) {
	s := openTestStore(t, 64) // small threshold, trips quickly

	bodies := [][]byte{
		[]byte(`{"service":"auth","level":"info","msg":"login ok"}`),
		[]byte(`{"service":"auth","level":"info","msg":"login ok again"}`),
		[]byte(`{"service":"auth","level":"warn","msg":"retry"}`),
	}
	for i, b := range bodies {
		require.NoError(t, s.Put(types.DocumentKey(i+1), b))
	}
	require.True(t, s.HasDictionary())

	for i, b := range bodies {
		got, err := s.Get(types.DocumentKey(i + 1))
		require.NoError(t, err)
		require.True(t, bytes.Equal(b, got), "doc %d roundtrip mismatch", i+1)
	}
}

func TestGetUnknownKey(t *testing.T) {
	s := openTestStore(t, 1<<20)
	_, err := s.Get(types.DocumentKey(999))
	require.Error(t, err)
}

func TestClearResetsDictionaryAndIndex(t *testing.T) {
	s := openTestStore(t, 8)
	require.NoError(t, s.Put(types.DocumentKey(1), []byte(`{"a":1}`)))
	require.NoError(t, s.Put(types.DocumentKey(2), []byte(`{"a":2}`)))
	require.True(t, s.HasDictionary())

	require.NoError(t, s.Clear())
	require.False(t, s.HasDictionary())
	require.Equal(t, 0, s.Len())

	_, err := s.Get(types.DocumentKey(1))
	require.Error(t, err)
}

func TestLenTracksPuts(t *testing.T) {
	s := openTestStore(t, 1<<20)
	require.Equal(t, 0, s.Len())
	require.NoError(t, s.Put(types.DocumentKey(1), []byte("a")))
	require.NoError(t, s.Put(types.DocumentKey(2), []byte("b")))
	require.Equal(t, 2, s.Len())
}

func TestContentFingerprintDeterministic(t *testing.T) {
	a := ContentFingerprint([]byte("same body"))
	b := ContentFingerprint([]byte("same body"))
	c := ContentFingerprint([]byte("different body"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
