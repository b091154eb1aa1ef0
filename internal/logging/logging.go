// Package logging provides component-scoped loggers built on the standard
// library's log package, matching the prefixed-logger style used
// throughout the indexer and config loader.
package logging

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu     sync.Mutex
	output io.Writer = os.Stderr
)

// SetOutput redirects all component loggers created after this call (and
// any already created, since they share the underlying writer) to w.
// Passing nil restores os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
}

// For returns a logger prefixed with the given component name, e.g.
// logging.For("ingest") logs lines as "ingest: accepted connection ...".
func For(component string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	return log.New(output, component+": ", log.LstdFlags|log.Lmicroseconds)
}
