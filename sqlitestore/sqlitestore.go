// Package sqlitestore is a trove.FlatStore kept in one SQLite table.
//
// It uses the pure Go modernc.org/sqlite driver, so no cgo is needed. The
// database runs in WAL mode over a single connection; SQLite serialises
// writers anyway, and one connection keeps an in-memory database shared.
package sqlitestore

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/jpl-au/trove"
)

// Config holds Store options. The zero value is valid.
type Config struct {
	Table       string        // Table name (default "kv")
	BusyTimeout time.Duration // How long to wait on a locked database (default 5s)
	Logger      *zap.Logger   // Defaults to a no-op logger
}

// Store is a FlatStore backed by SQLite.
type Store struct {
	db  *sql.DB
	log *zap.Logger

	getSQL    string
	setSQL    string
	removeSQL string
	keysSQL   string
	lenSQL    string
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Open opens or creates the database at path. ":memory:" opens a private
// in-memory database.
func Open(path string, config Config) (*Store, error) {
	if config.Table == "" {
		config.Table = "kv"
	}
	if !tableName.MatchString(config.Table) {
		return nil, fmt.Errorf("sqlitestore: table %q: %w", config.Table, trove.ErrInvalidName)
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlitestore: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:        db,
		log:       config.Logger.With(zap.String("sqlite", path)),
		getSQL:    fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, config.Table),
		setSQL:    fmt.Sprintf(`INSERT INTO %s (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, config.Table),
		removeSQL: fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, config.Table),
		keysSQL:   fmt.Sprintf(`SELECT key FROM %s ORDER BY key`, config.Table),
		lenSQL:    fmt.Sprintf(`SELECT COUNT(*) FROM %s`, config.Table),
	}
	if err := s.initialize(config); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(config Config) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", config.BusyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			s.log.Debug("pragma failed", zap.String("pragma", p), zap.Error(err))
		}
	}

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	) WITHOUT ROWID`, config.Table)
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlitestore: create table: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(s.getSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlitestore: get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) Set(key, value string) error {
	if _, err := s.db.Exec(s.setSQL, key, value); err != nil {
		return fmt.Errorf("sqlitestore: set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(key string) error {
	if _, err := s.db.Exec(s.removeSQL, key); err != nil {
		return fmt.Errorf("sqlitestore: remove %q: %w", key, err)
	}
	return nil
}

// Keys yields the keys in byte order. They are read up front so the
// caller may use the store while iterating.
func (s *Store) Keys() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		keys, err := s.keys()
		if err != nil {
			yield("", err)
			return
		}
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}

func (s *Store) keys() ([]string, error) {
	rows, err := s.db.Query(s.keysSQL)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sqlitestore: keys: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: keys: %w", err)
	}
	return keys, nil
}

// Len returns the number of keys.
func (s *Store) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(s.lenSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitestore: len: %w", err)
	}
	return n, nil
}
