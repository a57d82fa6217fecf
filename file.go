// Single-file persistent substrate.
//
// FileStore keeps every write as an appended JSON line. On open the file is
// replayed once to build an in-memory table from key to the offset of the
// key's latest set record; reads then cost one positioned read. Overwritten
// and removed records stay in the file until Compact rewrites it.
package trove

import (
	"fmt"
	"iter"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileConfig holds FileStore options. The zero value is valid.
type FileConfig struct {
	HashAlgorithm int         // Checksum algorithm for new files (default AlgXXHash3)
	ReadBuffer    int         // Initial scan buffer on open (default 64KB)
	MaxRecordSize int         // Maximum encoded record size (default 16MB)
	CompressAbove int         // Pack values at least this long (default 4KB, <0 disables)
	SyncWrites    bool        // Call fsync after every append
	Logger        *zap.Logger // Defaults to a no-op logger
}

// FileStore is a FlatStore persisted in one file.
type FileStore struct {
	root   *os.Root // Sandboxed access to the file's directory
	name   string   // File name within root
	file   *os.File // Read/write handle
	lock   *fileLock
	header *Header
	config FileConfig
	log    *zap.Logger

	mu     sync.RWMutex
	keys   map[string]int64 // Key to offset of its latest set record
	tail   int64            // Append offset
	stale  int              // Records no longer reachable from keys
	closed bool
}

// OpenFile opens or creates the store at path. A file left dirty by a
// crash is repaired before OpenFile returns. The file stays locked until
// Close; a concurrent opener gets ErrLocked.
func OpenFile(path string, config FileConfig) (*FileStore, error) {
	if config.HashAlgorithm == 0 {
		config.HashAlgorithm = AlgXXHash3
	}
	if !validAlgorithm(config.HashAlgorithm) {
		return nil, fmt.Errorf("open: unknown hash algorithm %d", config.HashAlgorithm)
	}
	if config.ReadBuffer == 0 {
		config.ReadBuffer = 64 * 1024
	}
	if config.MaxRecordSize == 0 {
		config.MaxRecordSize = 16 * 1024 * 1024
	}
	if config.CompressAbove == 0 {
		config.CompressAbove = 4 * 1024
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	dir, name := filepath.Split(path)
	if name == "" {
		return nil, fmt.Errorf("open: %q is a directory", path)
	}
	if dir == "" {
		dir = "."
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}

	fs := &FileStore{
		root:   root,
		name:   name,
		config: config,
		log:    config.Logger.With(zap.String("file", path)),
		keys:   make(map[string]int64),
	}
	if err := fs.open(); err != nil {
		root.Close()
		return nil, err
	}
	return fs, nil
}

// open creates the file if needed, locks it and replays it.
func (fs *FileStore) open() error {
	if _, err := fs.root.Stat(fs.name); os.IsNotExist(err) {
		if err := fs.create(); err != nil {
			return fmt.Errorf("open: create: %w", err)
		}
	}

	file, err := fs.root.OpenFile(fs.name, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	fs.file = file
	fs.lock = &fileLock{f: file}
	if err := fs.lock.Lock(); err != nil {
		file.Close()
		return err
	}

	// A leftover temp file means a compaction died before its rename; the
	// original is still complete.
	if _, err := fs.root.Stat(fs.name + ".tmp"); err == nil {
		fs.root.Remove(fs.name + ".tmp")
	}

	hdr, err := readHeader(file)
	if err != nil {
		fs.lock.Unlock()
		file.Close()
		return err
	}
	fs.header = hdr

	if err := fs.replay(); err != nil {
		fs.lock.Unlock()
		file.Close()
		return err
	}
	return nil
}

// create writes a new file holding only a header.
func (fs *FileStore) create() error {
	file, err := fs.root.OpenFile(fs.name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	hdr := &Header{
		Version:   headerVersion,
		Algorithm: fs.config.HashAlgorithm,
		Timestamp: now(),
		ID:        uuid.NewString(),
	}
	if err := writeHeader(file, hdr); err != nil {
		return err
	}
	return file.Sync()
}

// Close marks the file clean and releases it. Closing twice is a no-op.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return nil
	}
	fs.closed = true

	var errs []error
	if fs.header.Error == 1 {
		fs.header.Error = 0
		if err := writeHeader(fs.file, fs.header); err != nil {
			errs = append(errs, err)
		}
		if err := fs.file.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	fs.lock.Unlock()
	fs.lock.setFile(nil)
	if err := fs.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := fs.root.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Get returns the value stored at key.
func (fs *FileStore) Get(key string) (string, bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.closed {
		return "", false, ErrClosed
	}

	offset, ok := fs.keys[key]
	if !ok {
		return "", false, nil
	}
	r, err := fs.read(offset)
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	v, err := r.value()
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return v, true, nil
}

// read loads and verifies the record at offset.
func (fs *FileStore) read(offset int64) (*record, error) {
	data, err := line(fs.file, offset, fs.tail)
	if err != nil {
		return nil, err
	}
	r, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	if !r.verify(fs.header.Algorithm) {
		return nil, ErrChecksum
	}
	return r, nil
}

// Set stores value at key, replacing any previous value.
func (fs *FileStore) Set(key, value string) error {
	if len(key) > MaxKeySize {
		return ErrKeyTooLong
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return ErrClosed
	}

	r := &record{Op: OpSet, TS: now(), Key: key}
	if fs.shouldPack(value) {
		r.Packed = pack(value)
	} else {
		r.Value = value
	}

	offset, err := fs.append(r)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	if _, ok := fs.keys[key]; ok {
		fs.stale++
	}
	fs.keys[key] = offset
	return nil
}

// shouldPack reports whether value goes in _z. Values that are not valid
// UTF-8 are always packed since _v cannot carry them byte for byte.
func (fs *FileStore) shouldPack(value string) bool {
	if !utf8.ValidString(value) {
		return true
	}
	return fs.config.CompressAbove > 0 && len(value) >= fs.config.CompressAbove
}

// Remove deletes key. Removing a missing key writes nothing.
func (fs *FileStore) Remove(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return ErrClosed
	}

	if _, ok := fs.keys[key]; !ok {
		return nil
	}
	if _, err := fs.append(&record{Op: OpRemove, TS: now(), Key: key}); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	delete(fs.keys, key)
	fs.stale += 2 // the set record and the tombstone
	return nil
}

// Keys yields a sorted snapshot of the live keys.
func (fs *FileStore) Keys() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		fs.mu.RLock()
		if fs.closed {
			fs.mu.RUnlock()
			yield("", ErrClosed)
			return
		}
		keys := slices.Sorted(maps.Keys(fs.keys))
		fs.mu.RUnlock()

		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}

// Len returns the number of live keys.
func (fs *FileStore) Len() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.keys)
}

// Stale returns the number of records Compact would drop.
func (fs *FileStore) Stale() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.stale
}

// ID returns the identifier assigned when the file was created.
func (fs *FileStore) ID() string {
	return fs.header.ID
}
