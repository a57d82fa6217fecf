// Write primitives for the append-only file.
//
// Records are appended at fs.tail. The dirty flag is set in the header
// before the first append of a session and cleared by Close, so an unclean
// shutdown is detected on the next open and triggers a repair scan.
package trove

import "fmt"

// append encodes r and writes it at the tail, returning its offset. The
// write lock must be held.
func (fs *FileStore) append(r *record) (int64, error) {
	r.seal(fs.header.Algorithm)
	data, err := r.encode()
	if err != nil {
		return 0, err
	}
	if len(data) > fs.config.MaxRecordSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	if fs.header.Error == 0 {
		fs.header.Error = 1
		if err := writeHeader(fs.file, fs.header); err != nil {
			return 0, err
		}
	}

	offset := fs.tail
	data = append(data, '\n')
	if _, err := fs.file.WriteAt(data, offset); err != nil {
		return 0, err
	}
	fs.tail += int64(len(data))

	if fs.config.SyncWrites {
		if err := fs.file.Sync(); err != nil {
			return 0, err
		}
	}
	return offset, nil
}
