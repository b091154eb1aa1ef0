// Package podtail is the bundled reference implementation of the
// out-of-scope Kubernetes pod-log tailer described by the
// specification: it watches a single file for appended lines and wraps
// each one that isn't already a JSON object in a synthetic
// {"pod":...,"log":...} envelope before handing it to the bus as an
// Insert command.
package podtail

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/docstream/internal/bus"
	"github.com/standardbeagle/docstream/internal/logging"
)

var log = logging.For("podtail")

// Start begins tailing path for appended lines, forwarding each as an
// Insert command on commands. The returned stop func closes the
// watcher and waits for the tailing goroutine to exit.
func Start(path string, commands chan<- bus.Command) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		watcher.Close()
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		f.Close()
		watcher.Close()
		return nil, err
	}

	podName := filepath.Base(path)
	reader := bufio.NewReader(f)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer f.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				drainLines(reader, podName, commands)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("watch error on %s: %v", path, werr)
			}
		}
	}()

	stop = func() {
		watcher.Close()
		<-done
	}
	return stop, nil
}

func drainLines(reader *bufio.Reader, podName string, commands chan<- bus.Command) {
	for {
		line, err := reader.ReadString('\n')
		trimmed := trimNewline(line)
		if len(trimmed) > 0 {
			commands <- bus.NewInsert(envelope(podName, trimmed))
		}
		if err != nil {
			return // EOF: caught up until the next Write event
		}
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// envelope wraps a raw log line as {"pod": podName, "log": line}, unless
// line is already a well-formed JSON object, in which case it's passed
// through opaquely.
func envelope(podName, line string) []byte {
	var probe map[string]interface{}
	if json.Unmarshal([]byte(line), &probe) == nil {
		return []byte(line)
	}
	out, err := json.Marshal(map[string]string{"pod": podName, "log": line})
	if err != nil {
		return []byte(fmt.Sprintf(`{"pod":%q,"log":%q}`, podName, line))
	}
	return out
}
