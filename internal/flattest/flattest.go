// Package flattest checks that a FlatStore honours the substrate contract
// and that a trove.Store on top of it behaves the same as on any other
// substrate. Substrate packages call Run from their own tests.
package flattest

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/jpl-au/trove"
)

// Opener returns a fresh, empty substrate. It should register its own
// cleanup with t.Cleanup.
type Opener func(t *testing.T) trove.FlatStore

// Run runs the conformance suite against substrates produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("Flat", func(t *testing.T) { testFlat(t, open(t)) })
	t.Run("EmptyValue", func(t *testing.T) { testEmptyValue(t, open(t)) })
	t.Run("AwkwardKeys", func(t *testing.T) { testAwkwardKeys(t, open(t)) })
	t.Run("Keys", func(t *testing.T) { testKeys(t, open(t)) })
	t.Run("Objects", func(t *testing.T) { testObjects(t, newStore(t, open(t))) })
	t.Run("EmptyObject", func(t *testing.T) { testEmptyObject(t, newStore(t, open(t))) })
	t.Run("Layout", func(t *testing.T) { testLayout(t, open(t)) })
	t.Run("Concurrent", func(t *testing.T) { testConcurrent(t, newStore(t, open(t))) })
}

func newStore(t *testing.T, flat trove.FlatStore) *trove.Store {
	t.Helper()
	s, err := trove.New(flat, trove.Config{Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("trove.New: %v", err)
	}
	return s
}

func get(t *testing.T, flat trove.FlatStore, key string) (string, bool) {
	t.Helper()
	v, ok, err := flat.Get(key)
	if err != nil {
		t.Fatalf("Get(%q): %v", key, err)
	}
	return v, ok
}

func testFlat(t *testing.T, flat trove.FlatStore) {
	if _, ok := get(t, flat, "k"); ok {
		t.Fatal("fresh store has key k")
	}
	if err := flat.Set("k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := flat.Set("k", "v2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok := get(t, flat, "k"); !ok || v != "v2" {
		t.Errorf("Get = %q, %v; want v2, true", v, ok)
	}
	if err := flat.Remove("k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := get(t, flat, "k"); ok {
		t.Error("key present after Remove")
	}
	if err := flat.Remove("k"); err != nil {
		t.Errorf("Remove of missing key: %v", err)
	}
}

// testEmptyValue: the metadata entry of an object with no properties is
// stored as "", which must read back as present.
func testEmptyValue(t *testing.T, flat trove.FlatStore) {
	if err := flat.Set("empty", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok := get(t, flat, "empty"); !ok || v != "" {
		t.Errorf("Get = %q, %v; want \"\", true", v, ok)
	}
}

func testAwkwardKeys(t *testing.T, flat trove.FlatStore) {
	pairs := map[string]string{
		"app_obj__$p$":       "plain",
		"app_obj_proplist_":  "$a$,,$b$",
		"a b/c_d__$ü,x$":     "spaces and slashes",
		"quote\"_o__$'$":     "line1\nline2\t\"q\"",
		"app_big__$_objdat$": strings.Repeat("0123456789", 1000),
	}
	for k, v := range pairs {
		if err := flat.Set(k, v); err != nil {
			t.Fatalf("Set(%q): %v", k, err)
		}
	}
	for k, want := range pairs {
		if v, ok := get(t, flat, k); !ok || v != want {
			t.Errorf("Get(%q) returned %d bytes, ok %v; want %d bytes", k, len(v), ok, len(want))
		}
	}
}

func testKeys(t *testing.T, flat trove.FlatStore) {
	lister, ok := flat.(trove.Lister)
	if !ok {
		t.Skip("substrate does not list keys")
	}
	for _, k := range []string{"b", "a", "c"} {
		if err := flat.Set(k, k); err != nil {
			t.Fatal(err)
		}
	}
	if err := flat.Remove("b"); err != nil {
		t.Fatal(err)
	}

	var got []string
	for k, err := range lister.Keys() {
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		got = append(got, k)
	}
	slices.Sort(got)
	if diff := cmp.Diff([]string{"a", "c"}, got); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
}

func testObjects(t *testing.T, s *trove.Store) {
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.SaveProperty("app", "obj", "p1", "v1"))
	must(s.SaveProperty("app", "obj", "p2", "v2"))
	must(s.SaveProperty("app", "obj", "p1", "v1b"))

	if v, ok, err := s.LoadProperty("app", "obj", "p1"); v != "v1b" || !ok || err != nil {
		t.Errorf("LoadProperty = %q, %v, %v", v, ok, err)
	}
	props, ok, err := s.ListProperties("app", "obj")
	if err != nil || !ok {
		t.Fatalf("ListProperties: %v, %v", ok, err)
	}
	if diff := cmp.Diff([]string{"p1", "p2"}, props); diff != "" {
		t.Errorf("ListProperties mismatch (-want +got):\n%s", diff)
	}

	must(s.DeleteProperty("app", "obj", "p1"))
	if ok, _ := s.PropertyExists("app", "obj", "p1"); ok {
		t.Error("p1 exists after DeleteProperty")
	}
	if ok, _ := s.ObjectExists("app", "obj"); !ok {
		t.Error("object gone after deleting one property")
	}

	must(s.DeleteObject("app", "obj"))
	if ok, _ := s.ObjectExists("app", "obj"); ok {
		t.Error("object exists after DeleteObject")
	}
	if ok, _ := s.PropertyExists("app", "obj", "p2"); ok {
		t.Error("p2 exists after DeleteObject")
	}
	if _, ok, _ := s.ListProperties("app", "obj"); ok {
		t.Error("ListProperties found a deleted object")
	}
}

func testEmptyObject(t *testing.T, s *trove.Store) {
	if err := s.SaveProperty("app", "obj", "only", "v"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteProperty("app", "obj", "only"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.ObjectExists("app", "obj"); !ok {
		t.Error("object gone after deleting its last property")
	}
	props, ok, err := s.ListProperties("app", "obj")
	if err != nil || !ok || len(props) != 0 {
		t.Errorf("ListProperties = %v, %v, %v; want [], true, nil", props, ok, err)
	}
}

// testLayout checks that the keys the object layer writes are readable
// verbatim through the substrate.
func testLayout(t *testing.T, flat trove.FlatStore) {
	s := newStore(t, flat)
	if err := s.SaveProperty("app", "obj", "p1", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveProperty("app", "obj", "", "v2"); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"app_obj__$p1$":      "v1",
		"app_obj__$_objdat$": "v2",
		"app_obj_proplist_":  "$p1$,,$_objdat$",
	}
	for k, w := range want {
		if v, ok := get(t, flat, k); !ok || v != w {
			t.Errorf("Get(%q) = %q, %v; want %q", k, v, ok, w)
		}
	}
}

func testConcurrent(t *testing.T, s *trove.Store) {
	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.SaveProperty("app", "obj", fmt.Sprintf("p%02d", i), "v")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("SaveProperty: %v", err)
		}
	}

	props, _, err := s.ListProperties("app", "obj")
	if err != nil {
		t.Fatal(err)
	}
	if len(props) != n {
		t.Errorf("listed %d properties, want %d", len(props), n)
	}
	if err := s.DeleteObject("app", "obj"); err != nil {
		t.Fatal(err)
	}
}
