package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/docstream/internal/bus"
)

func TestStreamSinkEncodesResultsAndMetrics(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamSink(&buf)

	s.PostResults(bus.ResultBatch{Seq: 1, Bodies: [][]byte{[]byte(`{"a":1}`)}, Truncated: true})
	s.PostMetrics(bus.Metrics{DocumentCount: 3, IndexedBytes: 42})

	scanner := bufio.NewScanner(&buf)
	require.True(t, scanner.Scan())
	var first map[string]interface{}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &first))
	require.Equal(t, "results", first["type"])
	require.Equal(t, true, first["truncated"])

	require.True(t, scanner.Scan())
	var second map[string]interface{}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &second))
	require.Equal(t, "metrics", second["type"])
	require.Equal(t, float64(3), second["document_count"])
}

func TestCollectorSinkDeliversOnChannel(t *testing.T) {
	c := NewCollectorSink()
	c.PostResults(bus.ResultBatch{Seq: 7})

	select {
	case b := <-c.Results():
		require.Equal(t, uint64(7), b.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result batch")
	}
}

func TestCollectorSinkIgnoresMetrics(t *testing.T) {
	c := NewCollectorSink()
	c.PostMetrics(bus.Metrics{DocumentCount: 1})
	select {
	case <-c.Results():
		t.Fatal("unexpected result batch")
	case <-time.After(50 * time.Millisecond):
	}
}
