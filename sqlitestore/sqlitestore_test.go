package sqlitestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpl-au/trove"
	"github.com/jpl-au/trove/internal/flattest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", Config{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	flattest.Run(t, func(t *testing.T) trove.FlatStore {
		return openTestStore(t)
	})
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "trove.db")
	s, err := Open(path, Config{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("k", "v"))
	assert.FileExists(t, path)
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trove.db")

	s, err := Open(path, Config{})
	require.NoError(t, err)
	store, err := trove.New(s, trove.Config{})
	require.NoError(t, err)
	require.NoError(t, store.SaveProperty("app", "obj", "title", "hello"))
	require.NoError(t, s.Close())

	s, err = Open(path, Config{})
	require.NoError(t, err)
	defer s.Close()
	store, err = trove.New(s, trove.Config{})
	require.NoError(t, err)

	v, ok, err := store.LoadProperty("app", "obj", "title")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	props, ok, err := store.ListProperties("app", "obj")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"title"}, props)
}

func TestCustomTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trove.db")

	a, err := Open(path, Config{Table: "alpha"})
	require.NoError(t, err)
	require.NoError(t, a.Set("k", "a"))
	require.NoError(t, a.Close())

	b, err := Open(path, Config{Table: "beta"})
	require.NoError(t, err)
	defer b.Close()

	_, ok, err := b.Get("k")
	require.NoError(t, err)
	assert.False(t, ok, "tables must not share keys")
}

func TestInvalidTable(t *testing.T) {
	for _, name := range []string{"kv; DROP TABLE x", "1kv", "k-v", "k v"} {
		_, err := Open(":memory:", Config{Table: name})
		assert.ErrorIs(t, err, trove.ErrInvalidName, name)
	}
}

func TestLen(t *testing.T) {
	s := openTestStore(t)
	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.Set("a", "1"))
	require.NoError(t, s.Set("b", "2"))
	require.NoError(t, s.Set("a", "3"))
	n, err = s.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestKeysOrderedAndReentrant(t *testing.T) {
	s := openTestStore(t)
	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, s.Set(k, k))
	}

	var got []string
	for k, err := range s.Keys() {
		require.NoError(t, err)
		got = append(got, k)
		// Reading inside the loop must not deadlock on the single connection.
		_, ok, err := s.Get(k)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestClosed(t *testing.T) {
	s, err := Open(":memory:", Config{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, _, err = s.Get("k")
	assert.Error(t, err)
	assert.Error(t, s.Set("k", "v"))
}
