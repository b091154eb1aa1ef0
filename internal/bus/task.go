package bus

import (
	"sync/atomic"
	"time"

	"github.com/standardbeagle/docstream/internal/docstore"
	dserrors "github.com/standardbeagle/docstream/internal/errors"
	"github.com/standardbeagle/docstream/internal/logging"
	"github.com/standardbeagle/docstream/internal/query"
	"github.com/standardbeagle/docstream/internal/sortkey"
	"github.com/standardbeagle/docstream/internal/staging"
	"github.com/standardbeagle/docstream/internal/trigram"
)

var log = logging.For("bus")

// Persister is the subset of the persistence controller the indexer
// task calls into on Clear and Quit.
type Persister interface {
	Save(buffer *staging.Buffer, index *trigram.Index, store *docstore.Store) error
	Purge() error
}

// PodTailStarter starts the out-of-scope pod-log tailer, which feeds
// Insert commands back into the task's own command channel.
type PodTailStarter func(path string, commands chan<- Command) (stop func(), err error)

// Task is the single long-lived consumer of Commands. It owns the
// staging buffer, trigram index, and document store exclusively: no
// other goroutine may mutate them.
type Task struct {
	commands chan Command

	buffer   *staging.Buffer
	index    *trigram.Index
	store    *docstore.Store
	executor *query.Executor

	sink        Sink
	persist     Persister
	sortPointer string
	startTail   PodTailStarter
	stopTail    func()

	currentQuerySeq atomic.Uint64
	ongoing         atomic.Bool
}

// New creates an indexer task bound to the given buffer, index, store,
// sink, and persistence controller. commandCapacity bounds the command
// channel, providing the backpressure described in the ingestion spec.
func New(commandCapacity int, buffer *staging.Buffer, index *trigram.Index, store *docstore.Store, sink Sink, persist Persister, sortPointer string, startTail PodTailStarter) *Task {
	return &Task{
		commands:    make(chan Command, commandCapacity),
		buffer:      buffer,
		index:       index,
		store:       store,
		executor:    query.New(buffer, index, store),
		sink:        sink,
		persist:     persist,
		sortPointer: sortPointer,
		startTail:   startTail,
	}
}

// Commands returns the channel producers send Commands on. Sends block
// once the channel is full, which is the mechanism by which a slow
// indexer applies backpressure to fast producers.
func (t *Task) Commands() chan<- Command {
	return t.commands
}

// SetCurrentQuerySeq is called by the ingestion-facing API on every
// keystroke-driven query change. A Filter command enqueued against an
// older sequence number is dropped without being executed.
func (t *Task) SetCurrentQuerySeq(seq uint64) {
	t.currentQuerySeq.Store(seq)
}

// Ongoing reports whether a Filter is currently executing, for the UI
// to render progress.
func (t *Task) Ongoing() bool {
	return t.ongoing.Load()
}

// Run consumes commands until a Quit command is processed or the
// channel is closed. It returns after persisting state on Quit.
func (t *Task) Run() {
	for cmd := range t.commands {
		switch cmd.Kind {
		case Insert:
			t.handleInsert(cmd.InsertBody)
		case Filter:
			t.handleFilter(cmd.Filter)
		case Clear:
			t.handleClear()
		case AttachPodTail:
			t.handleAttachPodTail(cmd.AttachPodTail)
		case Quit:
			t.handleQuit()
			return
		}
	}
}

func (t *Task) handleInsert(body []byte) {
	key := sortkey.Derive(t.sortPointer, body)
	if err := t.buffer.Insert(key, body); err != nil {
		log.Printf("insert failed: %v", dserrors.NewIngestError("insert", err))
	}
}

func (t *Task) handleFilter(params FilterParams) {
	if params.Seq != t.currentQuerySeq.Load() {
		return // stale: a newer keystroke has already superseded this query
	}

	t.ongoing.Store(true)
	defer t.ongoing.Store(false)

	deadline := time.Duration(params.DeadlineMs) * time.Millisecond
	resp := t.executor.Find(query.Request{
		Query:    params.Query,
		NegQuery: params.NegQuery,
		Exact:    params.Exact,
		Limit:    params.Limit,
		Deadline: deadline,
	})

	batch := ResultBatch{Seq: params.Seq, Truncated: resp.Truncated}
	for _, r := range resp.Results {
		batch.Keys = append(batch.Keys, r.Key)
		batch.Bodies = append(batch.Bodies, r.Body)
	}
	t.sink.PostResults(batch)
}

func (t *Task) handleClear() {
	t.buffer.Clear()
	t.index.Clear()
	if err := t.store.Clear(); err != nil {
		log.Printf("clear store failed: %v", err)
	}
	if t.persist != nil {
		if err := t.persist.Purge(); err != nil {
			log.Printf("purge sidecars failed: %v", err)
		}
	}
}

func (t *Task) handleAttachPodTail(params AttachPodTailParams) {
	if t.startTail == nil {
		log.Printf("AttachPodTail requested but no tailer configured")
		return
	}
	if t.stopTail != nil {
		t.stopTail()
	}
	stop, err := t.startTail(params.Path, t.commands)
	if err != nil {
		log.Printf("attach pod tail failed: %v", err)
		return
	}
	t.stopTail = stop
}

func (t *Task) handleQuit() {
	if t.stopTail != nil {
		t.stopTail()
	}
	if t.persist == nil {
		return
	}
	if err := t.persist.Save(t.buffer, t.index, t.store); err != nil {
		log.Printf("persist on quit failed: %v", err)
	}
}
