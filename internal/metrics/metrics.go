// Package metrics runs a ticker that periodically snapshots engine
// counters and posts them to a bus.Sink, giving the UI a steady 10 Hz
// (by default) heartbeat independent of query activity.
package metrics

import (
	"time"

	"github.com/standardbeagle/docstream/internal/bus"
	"github.com/standardbeagle/docstream/internal/docstore"
	"github.com/standardbeagle/docstream/internal/staging"
)

// Source is the state the ticker reads each tick. Reads happen from a
// goroutine outside the indexer task, so every method here must be
// safe to call concurrently with the indexer's own goroutine — which
// staging.Buffer, docstore.Store, and bus.Task.Ongoing already are.
type Source struct {
	Buffer  *staging.Buffer
	Store   *docstore.Store
	Ongoing func() bool
}

// Ticker periodically posts a Metrics snapshot to a Sink.
type Ticker struct {
	interval time.Duration
	source   Source
	sink     bus.Sink

	stop chan struct{}
	done chan struct{}
}

// NewTicker creates a Ticker that will snapshot source every interval
// once Start is called.
func NewTicker(interval time.Duration, source Source, sink bus.Sink) *Ticker {
	return &Ticker{
		interval: interval,
		source:   source,
		sink:     sink,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the ticker loop in a new goroutine.
func (t *Ticker) Start() {
	go t.run()
}

// Stop halts the ticker and waits for its goroutine to exit.
func (t *Ticker) Stop() {
	close(t.stop)
	<-t.done
}

func (t *Ticker) run() {
	defer close(t.done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sink.PostMetrics(t.snapshot())
		case <-t.stop:
			return
		}
	}
}

func (t *Ticker) snapshot() bus.Metrics {
	docCount := t.source.Buffer.Len() + t.source.Store.Len()
	indexedBytes := t.source.Buffer.Bytes()
	reindexing := false
	if t.source.Ongoing != nil {
		reindexing = t.source.Ongoing()
	}
	return bus.Metrics{
		DocumentCount: docCount,
		IndexedBytes:  indexedBytes,
		Reindexing:    reindexing,
	}
}
