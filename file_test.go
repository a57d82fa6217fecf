package trove

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func TestOpenFileCreatesNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.trove")
	fs, err := OpenFile(path, FileConfig{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer fs.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("file not created: %v", err)
	}
	if info.Size() != HeaderSize {
		t.Errorf("new file size = %d, want %d", info.Size(), HeaderSize)
	}
	if _, err := uuid.Parse(fs.ID()); err != nil {
		t.Errorf("ID %q is not a UUID: %v", fs.ID(), err)
	}
	if fs.Len() != 0 || fs.Stale() != 0 {
		t.Errorf("new file Len = %d, Stale = %d", fs.Len(), fs.Stale())
	}
}

func TestOpenFileDefaults(t *testing.T) {
	fs := openTestFile(t)
	if fs.config.HashAlgorithm != AlgXXHash3 {
		t.Errorf("HashAlgorithm = %d, want %d", fs.config.HashAlgorithm, AlgXXHash3)
	}
	if fs.config.ReadBuffer != 64*1024 {
		t.Errorf("ReadBuffer = %d", fs.config.ReadBuffer)
	}
	if fs.config.MaxRecordSize != 16*1024*1024 {
		t.Errorf("MaxRecordSize = %d", fs.config.MaxRecordSize)
	}
	if fs.config.CompressAbove != 4*1024 {
		t.Errorf("CompressAbove = %d", fs.config.CompressAbove)
	}
}

func TestOpenFileInvalid(t *testing.T) {
	dir := t.TempDir()
	if _, err := OpenFile(filepath.Join(dir, "x.trove"), FileConfig{HashAlgorithm: 7}); err == nil {
		t.Error("OpenFile accepted an unknown hash algorithm")
	}
	if _, err := OpenFile(dir+string(filepath.Separator), FileConfig{}); err == nil {
		t.Error("OpenFile accepted a directory path")
	}
	if _, err := OpenFile(filepath.Join(dir, "missing", "x.trove"), FileConfig{}); err == nil {
		t.Error("OpenFile accepted a missing parent directory")
	}
}

func TestOpenFileCorruptHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.trove")
	if err := os.WriteFile(path, []byte("this is not a trove file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFile(path, FileConfig{}); !errors.Is(err, ErrCorruptHeader) {
		t.Errorf("OpenFile = %v, want ErrCorruptHeader", err)
	}
}

func TestFileSetGetRemove(t *testing.T) {
	fs := openTestFile(t)

	if _, ok, err := fs.Get("k"); ok || err != nil {
		t.Fatalf("Get of missing key = %v, %v", ok, err)
	}
	if err := fs.Set("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := fs.Set("k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, ok, err := fs.Get("k"); v != "v2" || !ok || err != nil {
		t.Errorf("Get = %q, %v, %v", v, ok, err)
	}
	if err := fs.Remove("k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := fs.Get("k"); ok {
		t.Error("key present after Remove")
	}
	if err := fs.Remove("k"); err != nil {
		t.Errorf("Remove of missing key: %v", err)
	}
}

// TestFileEmptyValue distinguishes a key stored with "" from a missing key.
func TestFileEmptyValue(t *testing.T) {
	fs := openTestFile(t)
	fs.Set("k", "")
	if v, ok, err := fs.Get("k"); v != "" || !ok || err != nil {
		t.Errorf("Get = %q, %v, %v; want \"\", true, nil", v, ok, err)
	}
}

func TestFileSpecialCharacters(t *testing.T) {
	fs := openTestFile(t)
	value := "line1\nline2\t\"quoted\" \\ ünïcode \x00"
	key := "app_obj__$we ird,,$"
	if err := fs.Set(key, value); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := fs.Get(key); v != value {
		t.Errorf("Get = %q, want %q", v, value)
	}
}

// TestFileBinary stores keys and values that are not valid UTF-8 between
// ordinary records and checks all of them survive byte for byte, in the
// same session and after reopening.
func TestFileBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.trove")
	fs, err := OpenFile(path, FileConfig{CompressAbove: -1})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"a":        "ok",
		"bin":      "\xff\xfe",
		"key\xc3(": "raw key",
		"both\x80": "\x00\xffmixed\xc0",
		"z":        "after",
	}
	for _, k := range []string{"a", "bin", "key\xc3(", "both\x80", "z"} {
		if err := fs.Set(k, want[k]); err != nil {
			t.Fatalf("Set(%q): %v", k, err)
		}
	}
	check := func(when string) {
		t.Helper()
		for k, v := range want {
			got, ok, err := fs.Get(k)
			if got != v || !ok || err != nil {
				t.Errorf("%s: Get(%q) = %q, %v, %v; want %q", when, k, got, ok, err, v)
			}
		}
	}
	check("before reopen")
	fs.Remove("key\xc3(")
	delete(want, "key\xc3(")
	fs.Close()

	fs, err = OpenFile(path, FileConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()
	check("after reopen")
	if fs.Len() != len(want) {
		t.Errorf("Len = %d, want %d", fs.Len(), len(want))
	}

	if err := fs.Compact(); err != nil {
		t.Fatal(err)
	}
	check("after compaction")
}

func TestFileStaleCount(t *testing.T) {
	fs := openTestFile(t)
	fs.Set("a", "1")
	fs.Set("a", "2")
	fs.Set("b", "1")
	fs.Remove("b")
	fs.Remove("missing")

	if fs.Len() != 1 {
		t.Errorf("Len = %d, want 1", fs.Len())
	}
	if fs.Stale() != 3 {
		t.Errorf("Stale = %d, want 3", fs.Stale())
	}
}

func TestFileKeys(t *testing.T) {
	fs := openTestFile(t)
	for _, k := range []string{"c", "a", "b"} {
		fs.Set(k, k)
	}
	fs.Remove("b")

	var got []string
	for k, err := range fs.Keys() {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, k)
	}
	if diff := cmp.Diff([]string{"a", "c"}, got); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
}

func TestFileReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.trove")
	fs, err := OpenFile(path, FileConfig{})
	if err != nil {
		t.Fatal(err)
	}
	id := fs.ID()
	fs.Set("keep", "v")
	fs.Set("gone", "v")
	fs.Set("keep", "v2")
	fs.Remove("gone")
	if err := fs.Close(); err != nil {
		t.Fatal(err)
	}

	fs, err = OpenFile(path, FileConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()

	if fs.ID() != id {
		t.Errorf("ID changed across reopen: %q -> %q", id, fs.ID())
	}
	if v, _, _ := fs.Get("keep"); v != "v2" {
		t.Errorf("Get(keep) = %q", v)
	}
	if _, ok, _ := fs.Get("gone"); ok {
		t.Error("removed key reappeared")
	}
	if fs.Stale() != 3 {
		t.Errorf("Stale after replay = %d, want 3", fs.Stale())
	}
}

func TestFileClosed(t *testing.T) {
	fs, err := OpenFile(filepath.Join(t.TempDir(), "test.trove"), FileConfig{})
	if err != nil {
		t.Fatal(err)
	}
	fs.Set("k", "v")
	if err := fs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	if _, _, err := fs.Get("k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get = %v, want ErrClosed", err)
	}
	if err := fs.Set("k", "v"); !errors.Is(err, ErrClosed) {
		t.Errorf("Set = %v, want ErrClosed", err)
	}
	if err := fs.Remove("k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Remove = %v, want ErrClosed", err)
	}
	if err := fs.Compact(); !errors.Is(err, ErrClosed) {
		t.Errorf("Compact = %v, want ErrClosed", err)
	}
	for _, err := range fs.Keys() {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Keys = %v, want ErrClosed", err)
		}
	}
}

func TestFileKeyTooLong(t *testing.T) {
	fs := openTestFile(t)
	if err := fs.Set(strings.Repeat("k", MaxKeySize+1), "v"); !errors.Is(err, ErrKeyTooLong) {
		t.Errorf("Set = %v, want ErrKeyTooLong", err)
	}
	if err := fs.Set(strings.Repeat("k", MaxKeySize), "v"); err != nil {
		t.Errorf("Set at MaxKeySize: %v", err)
	}
}

func TestFileRecordTooLarge(t *testing.T) {
	fs, err := OpenFile(filepath.Join(t.TempDir(), "test.trove"), FileConfig{
		MaxRecordSize: 256,
		CompressAbove: -1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()

	if err := fs.Set("k", strings.Repeat("x", 512)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Set = %v, want ErrTooLarge", err)
	}
	if fs.Len() != 0 {
		t.Error("oversized record was indexed")
	}
}

// TestFileReopenSmallerMaxRecordSize checks that lowering the limit below
// an existing record refuses to open instead of discarding the record.
func TestFileReopenSmallerMaxRecordSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.trove")
	fs, _ := OpenFile(path, FileConfig{CompressAbove: -1})
	fs.Set("k", strings.Repeat("x", 2048))
	fs.Close()
	before, _ := os.Stat(path)

	if _, err := OpenFile(path, FileConfig{MaxRecordSize: 512, ReadBuffer: 256}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("OpenFile = %v, want ErrTooLarge", err)
	}
	after, _ := os.Stat(path)
	if after.Size() != before.Size() {
		t.Errorf("file size changed from %d to %d", before.Size(), after.Size())
	}
}

func TestFileCompression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.trove")
	fs, err := OpenFile(path, FileConfig{})
	if err != nil {
		t.Fatal(err)
	}
	large := strings.Repeat("compressible content ", 1000)
	fs.Set("large", large)
	fs.Set("small", "tiny")
	fs.Close()

	data, _ := os.ReadFile(path)
	if !bytes.Contains(data, []byte(`"_z":`)) {
		t.Error("large value was not packed")
	}
	if int64(len(data)) >= int64(len(large)) {
		t.Errorf("file of %d bytes holds a %d byte value uncompressed", len(data), len(large))
	}

	fs, err = OpenFile(path, FileConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()
	if v, _, err := fs.Get("large"); v != large || err != nil {
		t.Errorf("Get(large) returned %d bytes, %v", len(v), err)
	}
	if v, _, _ := fs.Get("small"); v != "tiny" {
		t.Errorf("Get(small) = %q", v)
	}
}

func TestFileCompressionDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.trove")
	fs, _ := OpenFile(path, FileConfig{CompressAbove: -1})
	fs.Set("large", strings.Repeat("x", 8192))
	fs.Close()

	data, _ := os.ReadFile(path)
	if bytes.Contains(data, []byte(`"_z":`)) {
		t.Error("value packed with compression disabled")
	}
}

// TestFileDirtyFlag checks the header flag an unclean shutdown leaves
// behind: set by the first write, cleared by Close.
func TestFileDirtyFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.trove")
	fs, _ := OpenFile(path, FileConfig{})

	if h := diskHeader(t, path); h.Error != 0 {
		t.Errorf("fresh file Error = %d, want 0", h.Error)
	}
	fs.Set("k", "v")
	if h := diskHeader(t, path); h.Error != 1 {
		t.Errorf("after write Error = %d, want 1", h.Error)
	}
	fs.Close()
	if h := diskHeader(t, path); h.Error != 0 {
		t.Errorf("after Close Error = %d, want 0", h.Error)
	}
}

func TestFileHashAlgorithms(t *testing.T) {
	for _, alg := range algorithms {
		path := filepath.Join(t.TempDir(), "test.trove")
		fs, err := OpenFile(path, FileConfig{HashAlgorithm: alg})
		if err != nil {
			t.Fatal(err)
		}
		fs.Set("k", "v")
		fs.Close()

		// The file keeps its own algorithm whatever the reopening config says.
		other := AlgXXHash3
		if alg == AlgXXHash3 {
			other = AlgBlake2b
		}
		fs, err = OpenFile(path, FileConfig{HashAlgorithm: other})
		if err != nil {
			t.Fatalf("alg %d: reopen: %v", alg, err)
		}
		if v, _, err := fs.Get("k"); v != "v" || err != nil {
			t.Errorf("alg %d: Get = %q, %v", alg, v, err)
		}
		if fs.header.Algorithm != alg {
			t.Errorf("header algorithm = %d, want %d", fs.header.Algorithm, alg)
		}
		fs.Close()
	}
}

// TestFileChecksumOnRead tampers with a value behind the store's back and
// checks the next read reports it instead of returning the altered bytes.
func TestFileChecksumOnRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.trove")
	fs, err := OpenFile(path, FileConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()
	fs.Set("k", "hello")

	tamper(t, path, "hello", "jello")

	if _, _, err := fs.Get("k"); !errors.Is(err, ErrChecksum) {
		t.Errorf("Get = %v, want ErrChecksum", err)
	}
}

func diskHeader(t *testing.T, path string) *Header {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	h, err := readHeader(f)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// tamper replaces the first occurrence of old with repl, which must have
// the same length, directly in the file.
func tamper(t *testing.T, path, old, repl string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	i := bytes.Index(data[HeaderSize:], []byte(old))
	if i < 0 {
		t.Fatalf("%q not found in file", old)
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteAt([]byte(repl), int64(HeaderSize+i)); err != nil {
		t.Fatal(err)
	}
}
