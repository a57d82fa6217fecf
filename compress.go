// Compression of large values.
//
// Values at or above FileConfig.CompressAbove are stored Zstd-compressed
// and Ascii85-encoded in the record's _z field instead of _v. Ascii85
// keeps the payload printable and newline-free, which the line-delimited
// format needs.
package trove

import (
	"bytes"
	"encoding/ascii85"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Both are safe for concurrent use and expensive to construct.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func pack(value string) string {
	if value == "" {
		return ""
	}

	compressed := zstdEncoder.EncodeAll([]byte(value), nil)

	var encoded bytes.Buffer
	enc := ascii85.NewEncoder(&encoded)
	_, _ = enc.Write(compressed)
	_ = enc.Close()

	return encoded.String()
}

func unpack(packed string) (string, error) {
	if packed == "" {
		return "", nil
	}

	dec := ascii85.NewDecoder(bytes.NewReader([]byte(packed)))
	compressed, err := io.ReadAll(dec)
	if err != nil {
		return "", fmt.Errorf("%w: ascii85: %w", ErrDecompress, err)
	}

	out, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: zstd: %w", ErrDecompress, err)
	}
	return string(out), nil
}
