// Package docstore implements C2, the compressed document store: a single
// append-only data file holding document bodies, indexed in memory by
// DocumentKey -> (offset, length). Once the bytes of the bodies passed to
// Put first reach the dictionary-training threshold, bodies are
// compressed with a zstd dictionary built from the bodies written so far;
// earlier writes stay uncompressed. Bytes still held in the staging
// buffer are not counted toward the threshold. The dictionary, once
// non-empty, is never retrained; only Clear discards it.
package docstore

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	dserrors "github.com/standardbeagle/docstream/internal/errors"
	"github.com/standardbeagle/docstream/internal/types"
)

// entry records where a document's bytes live in the data file and
// whether they were written compressed.
type entry struct {
	offset     int64
	length     int64
	compressed bool
}

// StoreEntry is the exported form of entry, used by the persistence
// controller to serialise the key map sidecar.
type StoreEntry struct {
	Offset     int64
	Length     int64
	Compressed bool
}

// Store is the append-only, dictionary-compressed document store.
type Store struct {
	mu sync.RWMutex

	dataPath string
	data     *os.File

	index map[types.DocumentKey]entry

	dictionary []byte
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder

	dictionaryThreshold int64
	sampleBudget        int64 // bytes of sample data collected toward training
	samples             [][]byte
}

// Open opens (creating if necessary) the data file at dataPath and
// returns an empty Store. Sidecar state (index map, dictionary) is
// restored separately by the persistence controller via Restore.
func Open(dataPath string, dictionaryThresholdBytes int64) (*Store, error) {
	f, err := os.OpenFile(dataPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, dserrors.NewPersistError("open", dataPath, err)
	}
	return &Store{
		dataPath:            dataPath,
		data:                f,
		index:               make(map[types.DocumentKey]entry),
		dictionaryThreshold: dictionaryThresholdBytes,
	}, nil
}

// Close fsyncs and closes the backing data file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.encoder != nil {
		s.encoder.Close()
	}
	if s.decoder != nil {
		s.decoder.Close()
	}
	if err := s.data.Sync(); err != nil {
		return dserrors.NewPersistError("sync", s.dataPath, err)
	}
	return s.data.Close()
}

// HasDictionary reports whether a training dictionary has been
// established. Once true it reverts to false only on Clear: until then
// the DictionaryBlob is a stable compression context for all future
// writes (spec invariant 5).
func (s *Store) HasDictionary() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dictionary) > 0
}

// Put appends body to the data file, compressing it with the trained
// dictionary if one exists. Before training, each body is kept as a
// sample and written uncompressed; once accumulated sample bytes reach
// the configured threshold, a dictionary is built once from those
// samples, and the body whose Put reached it and all later bodies are
// compressed with it. Bodies already on disk stay uncompressed.
func (s *Store) Put(key types.DocumentKey, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.dictionary) == 0 {
		s.samples = append(s.samples, append([]byte(nil), body...))
		s.sampleBudget += int64(len(body))
		if s.sampleBudget >= s.dictionaryThreshold && s.dictionaryThreshold > 0 {
			if err := s.trainDictionaryLocked(); err != nil {
				return err
			}
		}
	}

	payload := body
	compressed := false
	if len(s.dictionary) > 0 {
		enc, err := s.encoderLocked()
		if err != nil {
			return err
		}
		payload = enc.EncodeAll(body, nil)
		compressed = true
	}

	offset, err := s.data.Seek(0, io.SeekEnd)
	if err != nil {
		return dserrors.NewStoreError(key, "put", err)
	}
	if _, err := s.data.Write(payload); err != nil {
		return dserrors.NewStoreError(key, "put", err)
	}

	s.index[key] = entry{offset: offset, length: int64(len(payload)), compressed: compressed}
	return nil
}

// Get fetches and, if necessary, decompresses the body stored for key.
func (s *Store) Get(key types.DocumentKey) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.index[key]
	s.mu.RUnlock()
	if !ok {
		return nil, dserrors.NewStoreError(key, "get", fmt.Errorf("unknown key"))
	}

	buf := make([]byte, e.length)
	if _, err := s.data.ReadAt(buf, e.offset); err != nil {
		return nil, dserrors.NewStoreError(key, "get", err)
	}

	if !e.compressed {
		return buf, nil
	}

	s.mu.Lock()
	dec, err := s.decoderLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, dserrors.NewStoreError(key, "get", err)
	}

	out, err := dec.DecodeAll(buf, nil)
	if err != nil {
		return nil, dserrors.NewStoreError(key, "decompress", err)
	}
	return out, nil
}

// Clear truncates the data file and resets all in-memory state,
// including the trained dictionary: a fresh corpus starts fresh.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.data.Truncate(0); err != nil {
		return dserrors.NewPersistError("truncate", s.dataPath, err)
	}
	if _, err := s.data.Seek(0, io.SeekStart); err != nil {
		return dserrors.NewPersistError("seek", s.dataPath, err)
	}

	s.index = make(map[types.DocumentKey]entry)
	s.dictionary = nil
	s.samples = nil
	s.sampleBudget = 0
	if s.encoder != nil {
		s.encoder.Close()
		s.encoder = nil
	}
	if s.decoder != nil {
		s.decoder.Close()
		s.decoder = nil
	}
	return nil
}

// Len reports the number of documents currently stored on disk.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Entries returns a copy of the key->location map, for the persistence
// controller to serialise as the key-map sidecar.
func (s *Store) Entries() map[types.DocumentKey]StoreEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.DocumentKey]StoreEntry, len(s.index))
	for k, e := range s.index {
		out[k] = StoreEntry{Offset: e.offset, Length: e.length, Compressed: e.compressed}
	}
	return out
}

// Dictionary returns the trained dictionary blob, or nil if none has
// been trained yet.
func (s *Store) Dictionary() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.dictionary...)
}

// RestoreIndex replaces the in-memory key map and dictionary with
// values loaded from the sidecar files. The backing data file is
// assumed to already contain the bytes these offsets describe; callers
// load this only once, immediately after Open.
func (s *Store) RestoreIndex(dictionary []byte, entries map[types.DocumentKey]StoreEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dictionary = append([]byte(nil), dictionary...)
	s.samples = nil
	s.sampleBudget = 0

	s.index = make(map[types.DocumentKey]entry, len(entries))
	for k, e := range entries {
		s.index[k] = entry{offset: e.Offset, length: e.Length, compressed: e.Compressed}
	}
}

// trainDictionaryLocked builds a dictionary from the accumulated
// samples. klauspost/compress implements zstd's dictionary *use* but
// not the ZDICT training algorithm (that lives only in the cgo
// bindings), so the dictionary content here is simply the concatenated
// samples, truncated to a manageable size: zstd's dictionary API
// accepts arbitrary prior content as a "raw content" dictionary, and
// that is sufficient to give repeated JSON-lines shapes a shared
// compression context.
func (s *Store) trainDictionaryLocked() error {
	const maxDictionaryBytes = 112 * 1024

	var buf []byte
	for _, sample := range s.samples {
		buf = append(buf, sample...)
		if int64(len(buf)) >= maxDictionaryBytes {
			break
		}
	}
	if int64(len(buf)) > maxDictionaryBytes {
		buf = buf[:maxDictionaryBytes]
	}

	s.dictionary = buf
	s.samples = nil
	return nil
}

func (s *Store) encoderLocked() (*zstd.Encoder, error) {
	if s.encoder != nil {
		return s.encoder, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderDictRaw(0, s.dictionary))
	if err != nil {
		return nil, dserrors.NewStoreError(0, "new-encoder", err)
	}
	s.encoder = enc
	return enc, nil
}

func (s *Store) decoderLocked() (*zstd.Decoder, error) {
	if s.decoder != nil {
		return s.decoder, nil
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderDictRaw(0, s.dictionary))
	if err != nil {
		return nil, dserrors.NewStoreError(0, "new-decoder", err)
	}
	s.decoder = dec
	return dec, nil
}

// ContentFingerprint returns a fast, non-cryptographic hash of body.
func ContentFingerprint(body []byte) uint64 {
	return xxhash.Sum64(body)
}
