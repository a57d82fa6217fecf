// Replay and crash repair.
//
// Replay walks the record region once, applying each record to the key
// table. It stops at the first line that is incomplete (no trailing
// newline), unparseable, or fails its checksum. Everything before that
// point is a consistent prefix of the write history; everything after is
// the remains of an interrupted append. If anything was left over, or the
// header says the last session did not close cleanly, the file is
// truncated to the prefix and the header rewritten clean.
package trove

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// replay rebuilds fs.keys from the file and repairs a damaged tail.
func (fs *FileStore) replay() error {
	sz, err := size(fs.file)
	if err != nil {
		return fmt.Errorf("open: stat: %w", err)
	}
	if sz < HeaderSize {
		return ErrCorruptHeader
	}

	section := io.NewSectionReader(fs.file, HeaderSize, sz-HeaderSize)
	scanner := bufio.NewScanner(section)
	scanner.Buffer(make([]byte, fs.config.ReadBuffer), fs.config.MaxRecordSize+1)

	end := int64(HeaderSize)
	var reason error
	for scanner.Scan() {
		data := scanner.Bytes()
		n := int64(len(data)) + 1
		if end+n > sz {
			reason = errors.New("incomplete record")
			break
		}
		r, err := decodeRecord(data)
		if err != nil {
			reason = err
			break
		}
		if !r.verify(fs.header.Algorithm) {
			reason = ErrChecksum
			break
		}
		fs.apply(r, end)
		end += n
	}
	if err := scanner.Err(); err != nil {
		// An oversized line is more likely a lowered MaxRecordSize than
		// damage; refuse to open rather than truncate it away.
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("open: record at offset %d: %w", end, ErrTooLarge)
		}
		return fmt.Errorf("open: scan: %w", err)
	}
	fs.tail = end

	if end == sz && fs.header.Error == 0 {
		return nil
	}
	return fs.repair(sz, reason)
}

// apply updates the key table with a record found at offset.
func (fs *FileStore) apply(r *record, offset int64) {
	switch r.Op {
	case OpSet:
		if _, ok := fs.keys[r.Key]; ok {
			fs.stale++
		}
		fs.keys[r.Key] = offset
	case OpRemove:
		if _, ok := fs.keys[r.Key]; ok {
			fs.stale++
		}
		delete(fs.keys, r.Key)
		fs.stale++
	}
}

// repair truncates the file to fs.tail and marks it clean.
func (fs *FileStore) repair(sz int64, reason error) error {
	if dropped := sz - fs.tail; dropped > 0 {
		fs.log.Warn("truncating damaged tail",
			zap.Int64("offset", fs.tail),
			zap.Int64("bytes", dropped),
			zap.Error(reason),
		)
		metricRepairs.Inc()
		if err := fs.file.Truncate(fs.tail); err != nil {
			return fmt.Errorf("repair: truncate: %w", err)
		}
	} else {
		fs.log.Info("recovered after unclean shutdown", zap.Int("keys", len(fs.keys)))
	}

	fs.header.Error = 0
	if err := writeHeader(fs.file, fs.header); err != nil {
		return fmt.Errorf("repair: header: %w", err)
	}
	return fs.file.Sync()
}
