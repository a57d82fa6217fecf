// Package trove stores structured records (application, object,
// property) on top of a flat string-keyed store.
//
// The flat store only understands single keys with string values. trove
// derives one flat key per property and keeps, per object, a metadata
// entry listing the object's live property names. An object exists iff
// its metadata entry exists, even when that entry lists nothing. Deleting
// an object removes every listed property entry before the metadata entry
// itself, so no property entry outlives its object.
//
// Any FlatStore can serve as the substrate. The package ships MemStore and
// FileStore, a single-file append-only log; the subpackages add SQLite,
// bbolt, DynamoDB and S3-compatible substrates.
package trove

import "errors"

// Sentinel errors for programmatic handling. Absence is never reported as
// an error: reads return ok == false instead.
var (
	ErrInvalidName   = errors.New("invalid name")
	ErrCorruptIndex  = errors.New("corrupt property list")
	ErrNoFlatStore   = errors.New("flat store is nil")
	ErrClosed        = errors.New("store is closed")
	ErrLocked        = errors.New("store file is locked by another process")
	ErrKeyTooLong    = errors.New("key exceeds maximum size")
	ErrTooLarge      = errors.New("record exceeds maximum size")
	ErrCorruptHeader = errors.New("corrupt header")
	ErrCorruptRecord = errors.New("corrupt record")
	ErrChecksum      = errors.New("record checksum mismatch")
	ErrDecompress    = errors.New("decompression failed")
)
