// Record checksums.
//
// Every record carries a 16 hex character checksum over its operation,
// key and payload. The algorithm is fixed per file by the header.
package trove

import (
	"fmt"
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// Checksum algorithms.
const (
	AlgXXHash3 = 1 // Default, fastest
	AlgFNV1a   = 2 // Standard library only
	AlgBlake2b = 3 // Best distribution
)

// hash returns a 16 hex character digest of data, or "" for an unknown
// algorithm.
func hash(data string, alg int) string {
	switch alg {
	case AlgXXHash3:
		return fmt.Sprintf("%016x", xxh3.HashString(data))
	case AlgFNV1a:
		h := fnv.New64a()
		h.Write([]byte(data))
		return fmt.Sprintf("%016x", h.Sum64())
	case AlgBlake2b:
		h, _ := blake2b.New(8, nil)
		h.Write([]byte(data))
		return fmt.Sprintf("%016x", h.Sum(nil))
	default:
		return ""
	}
}

func validAlgorithm(alg int) bool {
	return alg == AlgXXHash3 || alg == AlgFNV1a || alg == AlgBlake2b
}
