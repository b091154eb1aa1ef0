package metrics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/docstream/internal/bus"
	"github.com/standardbeagle/docstream/internal/docstore"
	"github.com/standardbeagle/docstream/internal/staging"
	"github.com/standardbeagle/docstream/internal/trigram"
)

type fakeSink struct {
	metrics chan bus.Metrics
}

func (f *fakeSink) PostResults(bus.ResultBatch) {}
func (f *fakeSink) PostMetrics(m bus.Metrics)   { f.metrics <- m }

func TestTickerPostsSnapshots(t *testing.T) {
	idx := trigram.New(0.6)
	store, err := docstore.Open(filepath.Join(t.TempDir(), "store.data"), 1<<20)
	require.NoError(t, err)
	defer store.Close()
	buf := staging.New(1<<20, idx, store)
	require.NoError(t, buf.Insert("a", []byte("hello")))

	sink := &fakeSink{metrics: make(chan bus.Metrics, 4)}
	ticker := NewTicker(10*time.Millisecond, Source{Buffer: buf, Store: store}, sink)
	ticker.Start()
	defer ticker.Stop()

	select {
	case m := <-sink.metrics:
		require.Equal(t, 1, m.DocumentCount)
		require.Equal(t, int64(len("hello")), m.IndexedBytes)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for metrics snapshot")
	}
}

func TestTickerStopsCleanly(t *testing.T) {
	idx := trigram.New(0.6)
	store, err := docstore.Open(filepath.Join(t.TempDir(), "store.data"), 1<<20)
	require.NoError(t, err)
	defer store.Close()
	buf := staging.New(1<<20, idx, store)

	sink := &fakeSink{metrics: make(chan bus.Metrics, 4)}
	ticker := NewTicker(5*time.Millisecond, Source{Buffer: buf, Store: store}, sink)
	ticker.Start()
	ticker.Stop()
}
