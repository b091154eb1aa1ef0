// Package sink provides bus.Sink implementations. The engine never
// calls back into a UI thread directly — results and metrics are
// posted from the indexer's own goroutine, and it is the sink's job to
// get them to wherever they need to go without blocking the indexer
// for long.
package sink

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/standardbeagle/docstream/internal/bus"
	"github.com/standardbeagle/docstream/internal/logging"
)

var log = logging.For("sink")

// resultLine and metricsLine mirror the wire shape a UI or log
// consumer sees; they exist only for JSON encoding.
type resultLine struct {
	Type      string            `json:"type"`
	Seq       uint64            `json:"seq"`
	Documents []json.RawMessage `json:"documents"`
	Truncated bool              `json:"truncated"`
}

type metricsLine struct {
	Type          string `json:"type"`
	DocumentCount int    `json:"document_count"`
	IndexedBytes  int64  `json:"indexed_bytes"`
	Reindexing    bool   `json:"reindexing"`
}

// StreamSink writes each ResultBatch and Metrics update as a JSON line
// to w, the way a UI process consuming this engine over a pipe would.
type StreamSink struct {
	mu sync.Mutex
	w  io.Writer
	enc *json.Encoder
}

// NewStreamSink creates a Sink that serialises to w.
func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{w: w, enc: json.NewEncoder(w)}
}

func (s *StreamSink) PostResults(b bus.ResultBatch) {
	docs := make([]json.RawMessage, len(b.Bodies))
	for i, body := range b.Bodies {
		docs[i] = json.RawMessage(body)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(resultLine{Type: "results", Seq: b.Seq, Documents: docs, Truncated: b.Truncated}); err != nil {
		log.Printf("failed to write result line: %v", err)
	}
}

func (s *StreamSink) PostMetrics(m bus.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(metricsLine{Type: "metrics", DocumentCount: m.DocumentCount, IndexedBytes: m.IndexedBytes, Reindexing: m.Reindexing}); err != nil {
		log.Printf("failed to write metrics line: %v", err)
	}
}

// CollectorSink holds one ResultBatch in memory for a caller that wants
// to wait for a single answer, such as the `query` CLI subcommand which
// issues one Filter and exits.
type CollectorSink struct {
	results chan bus.ResultBatch
}

// NewCollectorSink creates a Sink that delivers ResultBatches on a
// channel with room for one; a batch posted while it is full is dropped.
// Metrics updates are dropped on the floor.
func NewCollectorSink() *CollectorSink {
	return &CollectorSink{results: make(chan bus.ResultBatch, 1)}
}

func (c *CollectorSink) PostResults(b bus.ResultBatch) {
	select {
	case c.results <- b:
	default:
		// A caller that issues one Filter and waits should always drain
		// fast enough; a full channel here means no one is listening.
	}
}

func (c *CollectorSink) PostMetrics(bus.Metrics) {}

// Results returns the channel ResultBatches arrive on.
func (c *CollectorSink) Results() <-chan bus.ResultBatch {
	return c.results
}
