// Package boltstore is a trove.FlatStore kept in one bbolt bucket.
//
// bbolt allows a single writer per file and takes an OS lock on open; a
// second process opening the same file waits up to Config.Timeout and
// then fails.
package boltstore

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/jpl-au/trove"
)

// Config holds Store options. The zero value is valid.
type Config struct {
	Bucket  string        // Bucket name (default "trove")
	Timeout time.Duration // Wait for the file lock (default 1s)
	NoSync  bool          // Skip fsync on commit; faster, loses recent writes on power failure
	Logger  *zap.Logger   // Defaults to a no-op logger
}

// Store is a FlatStore backed by a bbolt database.
type Store struct {
	db     *bolt.DB
	bucket []byte
	log    *zap.Logger
}

// Open opens or creates the database at path and its bucket.
func Open(path string, config Config) (*Store, error) {
	if config.Bucket == "" {
		config.Bucket = "trove"
	}
	if config.Timeout == 0 {
		config.Timeout = time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: config.Timeout, NoSync: config.NoSync})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, trove.ErrLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	bucket := []byte(config.Bucket)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create bucket %q: %w", config.Bucket, err)
	}

	return &Store{
		db:     db,
		bucket: bucket,
		log:    config.Logger.With(zap.String("bolt", path)),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(key string) (value string, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		// Seek tells an empty value apart from a missing key.
		k, v := tx.Bucket(s.bucket).Cursor().Seek([]byte(key))
		if k == nil || !bytes.Equal(k, []byte(key)) {
			return nil
		}
		// v is only valid inside the transaction.
		value, ok = string(v), true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("boltstore: get %q: %w", key, translate(err))
	}
	return value, ok, nil
}

func (s *Store) Set(key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("boltstore: set %q: %w", key, translate(err))
	}
	return nil
}

func (s *Store) Remove(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("boltstore: remove %q: %w", key, translate(err))
	}
	return nil
}

// Keys yields the keys in byte order from a snapshot taken when iteration
// starts.
func (s *Store) Keys() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var keys []string
		err := s.db.View(func(tx *bolt.Tx) error {
			return tx.Bucket(s.bucket).ForEach(func(k, _ []byte) error {
				keys = append(keys, string(k))
				return nil
			})
		})
		if err != nil {
			yield("", fmt.Errorf("boltstore: keys: %w", translate(err)))
			return
		}
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}

// Len returns the number of keys.
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(s.bucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("boltstore: len: %w", translate(err))
	}
	return n, nil
}

// Check verifies the database's internal consistency and logs every
// problem found. It returns the number of problems.
func (s *Store) Check() (int, error) {
	var problems int
	err := s.db.View(func(tx *bolt.Tx) error {
		for err := range tx.Check() {
			problems++
			s.log.Warn("bolt consistency problem", zap.Error(err))
		}
		return nil
	})
	return problems, err
}

// translate maps bbolt errors onto trove sentinels where one applies.
func translate(err error) error {
	switch {
	case errors.Is(err, bolt.ErrDatabaseNotOpen):
		return trove.ErrClosed
	case errors.Is(err, bolt.ErrKeyTooLarge):
		return fmt.Errorf("%w: %w", trove.ErrKeyTooLong, err)
	case errors.Is(err, bolt.ErrValueTooLarge):
		return fmt.Errorf("%w: %w", trove.ErrTooLarge, err)
	}
	return err
}
