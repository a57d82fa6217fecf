// Compaction and checksum migration.
//
// Compact writes the live records to <name>.tmp, syncs it, and renames it
// over the original, so the original stays intact until the rename
// succeeds. A crash before the rename leaves a .tmp file that the next
// open deletes. Writers are blocked for the whole rewrite. Rehash is a
// compaction that reseals every record with a different algorithm.
package trove

import (
	"bufio"
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"
)

// Compact rewrites the file without stale records.
func (fs *FileStore) Compact() error {
	return fs.compact(0)
}

// Rehash rewrites the file with every record sealed by alg, dropping stale
// records on the way.
func (fs *FileStore) Rehash(alg int) error {
	if !validAlgorithm(alg) {
		return fmt.Errorf("rehash: unknown hash algorithm %d", alg)
	}
	return fs.compact(alg)
}

// compact rewrites the file sealed with alg; 0 keeps the current one.
func (fs *FileStore) compact(alg int) (err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			metricCompact.Observe(float64(time.Since(start)) / float64(time.Second))
		}
	}()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return ErrClosed
	}
	if alg == 0 {
		alg = fs.header.Algorithm
	}

	tmpName := fs.name + ".tmp"
	keys, err := fs.rewrite(tmpName, alg)
	if err != nil {
		fs.root.Remove(tmpName)
		return fmt.Errorf("compact: %w", err)
	}

	if err := fs.root.Rename(tmpName, fs.name); err != nil {
		fs.root.Remove(tmpName)
		return fmt.Errorf("compact: rename: %w", err)
	}

	// From here the old handle refers to a replaced file. Any failure
	// closes the store so no write can land there.
	file, err := reopen(fs.root, fs.name)
	if err != nil {
		fs.abandon()
		return fmt.Errorf("compact: reopen: %w", err)
	}
	newLock := &fileLock{f: file}
	if err := newLock.Lock(); err != nil {
		file.Close()
		fs.abandon()
		return fmt.Errorf("compact: relock: %w", err)
	}
	tail, err := size(file)
	if err != nil {
		newLock.Unlock()
		file.Close()
		fs.abandon()
		return fmt.Errorf("compact: stat: %w", err)
	}

	// Swap handles; the old fd still refers to the replaced file.
	fs.lock.Unlock()
	fs.lock.setFile(nil)
	fs.file.Close()

	dropped := fs.stale
	fs.file = file
	fs.lock = newLock
	fs.keys = keys
	fs.tail = tail
	fs.stale = 0
	fs.header.Error = 0
	fs.header.Algorithm = alg

	fs.log.Info("compacted",
		zap.Int("keys", len(keys)),
		zap.Int("algorithm", alg),
		zap.Int("dropped", dropped),
		zap.Int64("size", tail),
	)
	return nil
}

// reopen opens the renamed file for compact.
var reopen = func(root *os.Root, name string) (*os.File, error) {
	return root.OpenFile(name, os.O_RDWR, 0o644)
}

// abandon releases the store's handles and marks it closed. The write
// lock must be held.
func (fs *FileStore) abandon() {
	fs.closed = true
	fs.lock.Unlock()
	fs.lock.setFile(nil)
	fs.file.Close()
	fs.root.Close()
	fs.log.Error("store closed after failed compaction; reopen to continue")
}

// rewrite writes every live record, sealed with alg, to name and returns
// the new key table.
func (fs *FileStore) rewrite(name string, alg int) (map[string]int64, error) {
	tmp, err := fs.root.Create(name)
	if err != nil {
		return nil, err
	}
	defer tmp.Close()

	hdr := *fs.header
	hdr.Error = 0
	hdr.Algorithm = alg
	buf, err := hdr.encode()
	if err != nil {
		return nil, err
	}

	w := bufio.NewWriterSize(tmp, fs.config.ReadBuffer)
	if _, err := w.Write(buf); err != nil {
		return nil, err
	}

	keys := make(map[string]int64, len(fs.keys))
	offset := int64(HeaderSize)
	for _, key := range slices.Sorted(maps.Keys(fs.keys)) {
		r, err := fs.read(fs.keys[key])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		r.seal(alg)
		data, err := r.encode()
		if err != nil {
			return nil, err
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		keys[key] = offset
		offset += int64(len(data))
	}

	if err := w.Flush(); err != nil {
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		return nil, err
	}
	return keys, nil
}
