// FileStore header.
//
// The header is exactly HeaderSize bytes: a JSON object padded with spaces
// and terminated by a newline, so the record region always starts at the
// same offset. It is rewritten in place to toggle the dirty flag.
package trove

import (
	"bytes"
	"os"

	json "github.com/goccy/go-json"
)

// HeaderSize is the fixed size of the header in bytes.
const HeaderSize = 128

const headerVersion = 1

// Header holds file-level metadata.
type Header struct {
	Version   int    `json:"_v"`   // Format version
	Error     int    `json:"_e"`   // 0=clean, 1=dirty (not closed cleanly)
	Algorithm int    `json:"_alg"` // Checksum algorithm (AlgXXHash3, AlgFNV1a, AlgBlake2b)
	Timestamp int64  `json:"_ts"`  // Unix milliseconds at creation
	ID        string `json:"_id"`  // Instance identifier, kept across compactions
}

// readHeader reads and parses the header at the start of f.
func readHeader(f *os.File) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, ErrCorruptHeader
	}
	if buf[HeaderSize-1] != '\n' {
		return nil, ErrCorruptHeader
	}

	var hdr Header
	if err := json.Unmarshal(bytes.TrimSpace(buf), &hdr); err != nil {
		return nil, ErrCorruptHeader
	}
	if hdr.Version != headerVersion {
		return nil, ErrCorruptHeader
	}
	return &hdr, nil
}

// writeHeader overwrites the header region of f.
func writeHeader(f *os.File, h *Header) error {
	buf, err := h.encode()
	if err != nil {
		return err
	}
	_, err = f.WriteAt(buf, 0)
	return err
}

// encode serialises the header to exactly HeaderSize bytes.
func (h *Header) encode() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	if len(data) > HeaderSize-1 {
		return nil, ErrCorruptHeader
	}

	buf := bytes.Repeat([]byte{' '}, HeaderSize)
	copy(buf, data)
	buf[HeaderSize-1] = '\n'
	return buf, nil
}
