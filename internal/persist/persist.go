// Package persist implements C7: loading index/store/staging sidecar
// files at startup (falling back to empty state on any error) and
// atomically saving them at shutdown via a temp-file-then-rename
// sequence, so a crash mid-write never corrupts the previous state.
package persist

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/docstream/internal/docstore"
	dserrors "github.com/standardbeagle/docstream/internal/errors"
	"github.com/standardbeagle/docstream/internal/logging"
	"github.com/standardbeagle/docstream/internal/staging"
	"github.com/standardbeagle/docstream/internal/trigram"
	"github.com/standardbeagle/docstream/internal/types"
)

var log = logging.For("persist")

const (
	indexFile   = "index.dat"
	keysFile    = "store.dat"
	stagingFile = "state.dat"
)

// Controller loads and saves the engine's persistent state under a
// single directory.
type Controller struct {
	dir string
}

// New creates a Controller rooted at dir. The directory must already
// exist.
func New(dir string) *Controller {
	return &Controller{dir: dir}
}

// LoadIndex deserialises the index sidecar, returning a fresh empty
// index on any error (missing file, truncated write, format mismatch).
func (c *Controller) LoadIndex(admissionP float64) *trigram.Index {
	f, err := os.Open(filepath.Join(c.dir, indexFile))
	if err != nil {
		return trigram.New(admissionP)
	}
	defer f.Close()

	idx, err := trigram.Deserialize(bufio.NewReader(f))
	if err != nil {
		log.Printf("index sidecar unreadable, starting fresh: %v", err)
		return trigram.New(admissionP)
	}
	return idx
}

// LoadStoreIndex restores a previously-opened Store's key map and
// dictionary from the sidecar file. Any error leaves the store in its
// freshly-opened (empty) state.
func (c *Controller) LoadStoreIndex(store *docstore.Store) {
	f, err := os.Open(filepath.Join(c.dir, keysFile))
	if err != nil {
		return
	}
	defer f.Close()

	dictionary, entries, err := readStoreIndex(bufio.NewReader(f))
	if err != nil {
		log.Printf("store key-map sidecar unreadable, starting fresh: %v", err)
		return
	}
	store.RestoreIndex(dictionary, entries)
}

// LoadStaging restores a previously-created Buffer's contents from the
// staging snapshot sidecar. Any error leaves the buffer empty.
func (c *Controller) LoadStaging(buffer *staging.Buffer) {
	f, err := os.Open(filepath.Join(c.dir, stagingFile))
	if err != nil {
		return
	}
	defer f.Close()

	entries, nextKey, err := readStagingSnapshot(bufio.NewReader(f))
	if err != nil {
		log.Printf("staging sidecar unreadable, starting fresh: %v", err)
		return
	}
	buffer.Restore(entries)
	buffer.SetNextDocumentKey(nextKey)
}

// Save atomically persists the index, store key map + dictionary, and
// staging snapshot.
func (c *Controller) Save(buffer *staging.Buffer, index *trigram.Index, store *docstore.Store) error {
	if err := atomicWrite(filepath.Join(c.dir, indexFile), index.Serialize); err != nil {
		return dserrors.NewPersistError("save", indexFile, err)
	}
	if err := atomicWrite(filepath.Join(c.dir, keysFile), func(w io.Writer) error {
		return writeStoreIndex(w, store.Dictionary(), store.Entries())
	}); err != nil {
		return dserrors.NewPersistError("save", keysFile, err)
	}
	if err := atomicWrite(filepath.Join(c.dir, stagingFile), func(w io.Writer) error {
		return writeStagingSnapshot(w, buffer.Snapshot(), buffer.NextDocumentKey())
	}); err != nil {
		return dserrors.NewPersistError("save", stagingFile, err)
	}
	return nil
}

// Purge deletes the three sidecar files plus any abandoned temp-write
// leftover from a crash mid-Save, for a Clear command. It deliberately
// leaves store.data alone: that file is owned and truncated by the
// still-open docstore.Store, and unlinking it out from under that open
// file descriptor would orphan its writes. Missing files are not an
// error.
func (c *Controller) Purge() error {
	names := []string{indexFile, keysFile, stagingFile}

	leftovers, err := doublestar.Glob(os.DirFS(c.dir), "*.tmp-*")
	if err != nil {
		return dserrors.NewPersistError("purge", c.dir, err)
	}
	names = append(names, leftovers...)

	var errs []error
	for _, name := range names {
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return dserrors.NewMultiError(errs)
	}
	return nil
}

// atomicWrite writes via a temp file in the same directory as path,
// fsyncs it, then renames it into place, so a crash never leaves a
// half-written sidecar where a good one used to be.
func atomicWrite(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

const storeIndexMagic uint32 = 0xd0c57b02

func writeStoreIndex(w io.Writer, dictionary []byte, entries map[types.DocumentKey]docstore.StoreEntry) error {
	if err := binary.Write(w, binary.LittleEndian, storeIndexMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(dictionary))); err != nil {
		return err
	}
	if _, err := w.Write(dictionary); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}
	for key, e := range entries {
		if err := binary.Write(w, binary.LittleEndian, uint64(key)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, e.Offset); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, e.Length); err != nil {
			return err
		}
		compressed := uint8(0)
		if e.Compressed {
			compressed = 1
		}
		if err := binary.Write(w, binary.LittleEndian, compressed); err != nil {
			return err
		}
	}
	return nil
}

func readStoreIndex(r io.Reader) ([]byte, map[types.DocumentKey]docstore.StoreEntry, error) {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, nil, err
	}
	if magic != storeIndexMagic {
		return nil, nil, fmt.Errorf("bad store index magic %x", magic)
	}

	var dictLen uint32
	if err := binary.Read(r, binary.LittleEndian, &dictLen); err != nil {
		return nil, nil, err
	}
	dictionary := make([]byte, dictLen)
	if _, err := io.ReadFull(r, dictionary); err != nil {
		return nil, nil, err
	}

	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, nil, err
	}

	entries := make(map[types.DocumentKey]docstore.StoreEntry, count)
	for i := uint64(0); i < count; i++ {
		var key uint64
		if err := binary.Read(r, binary.LittleEndian, &key); err != nil {
			return nil, nil, err
		}
		var e docstore.StoreEntry
		if err := binary.Read(r, binary.LittleEndian, &e.Offset); err != nil {
			return nil, nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &e.Length); err != nil {
			return nil, nil, err
		}
		var compressed uint8
		if err := binary.Read(r, binary.LittleEndian, &compressed); err != nil {
			return nil, nil, err
		}
		e.Compressed = compressed == 1
		entries[types.DocumentKey(key)] = e
	}
	return dictionary, entries, nil
}

const stagingMagic uint32 = 0xd0c57c03

func writeStagingSnapshot(w io.Writer, entries []staging.Entry, nextKey types.DocumentKey) error {
	if err := binary.Write(w, binary.LittleEndian, stagingMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(nextKey)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeLenPrefixed(w, []byte(e.SortKey)); err != nil {
			return err
		}
		if err := writeLenPrefixed(w, e.Body); err != nil {
			return err
		}
	}
	return nil
}

func readStagingSnapshot(r io.Reader) ([]staging.Entry, types.DocumentKey, error) {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, 0, err
	}
	if magic != stagingMagic {
		return nil, 0, fmt.Errorf("bad staging snapshot magic %x", magic)
	}

	var nextKey uint64
	if err := binary.Read(r, binary.LittleEndian, &nextKey); err != nil {
		return nil, 0, err
	}

	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, 0, err
	}

	entries := make([]staging.Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		sortKey, err := readLenPrefixed(r)
		if err != nil {
			return nil, 0, err
		}
		body, err := readLenPrefixed(r)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, staging.Entry{SortKey: types.SortKey(sortKey), Body: body})
	}
	return entries, types.DocumentKey(nextKey), nil
}

func writeLenPrefixed(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
