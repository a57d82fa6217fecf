// Per-object property index.
//
// Each object has one metadata entry in the flat store holding the escaped
// names of its live properties joined by listSeparator. The entry is read
// into a propSet, mutated, and written back only when it changed. Lookups
// compare whole tokens; "$a$" is never found inside "$ab$".
package trove

import (
	"fmt"
	"strings"
)

// propSet is an insertion-ordered set of property names.
type propSet struct {
	names []string
	pos   map[string]int
}

func newPropSet() *propSet {
	return &propSet{pos: make(map[string]int)}
}

// parsePropSet decodes a stored metadata value. Duplicate tokens keep
// their first position.
func parsePropSet(raw string) (*propSet, error) {
	s := newPropSet()
	if raw == "" {
		return s, nil
	}
	for _, token := range strings.Split(raw, listSeparator) {
		name, err := decodeToken(token)
		if err != nil {
			return nil, fmt.Errorf("%w: token %q", err, token)
		}
		s.add(name)
	}
	return s, nil
}

// salvagePropSet recovers what it can from a metadata value parsePropSet
// rejects. A name that contained the separator was split into fragments
// on write; consecutive fragments are rejoined until they decode.
// Fragments that never decode are skipped.
func salvagePropSet(raw string) *propSet {
	s := newPropSet()
	pending := ""
	for _, frag := range strings.Split(raw, listSeparator) {
		if name, err := decodeToken(frag); err == nil {
			s.add(name)
			pending = ""
			continue
		}
		switch {
		case pending != "":
			pending += listSeparator + frag
		case strings.HasPrefix(frag, marker):
			pending = frag
		default:
			continue
		}
		if name, err := decodeToken(pending); err == nil {
			s.add(name)
			pending = ""
		}
	}
	return s
}

func (s *propSet) has(name string) bool {
	_, ok := s.pos[name]
	return ok
}

// add appends name and reports whether the set changed.
func (s *propSet) add(name string) bool {
	if s.has(name) {
		return false
	}
	s.pos[name] = len(s.names)
	s.names = append(s.names, name)
	return true
}

// delete removes name and reports whether the set changed.
func (s *propSet) delete(name string) bool {
	i, ok := s.pos[name]
	if !ok {
		return false
	}
	s.names = append(s.names[:i], s.names[i+1:]...)
	delete(s.pos, name)
	for j := i; j < len(s.names); j++ {
		s.pos[s.names[j]] = j
	}
	return true
}

func (s *propSet) len() int {
	return len(s.names)
}

// list returns a copy of the names in insertion order.
func (s *propSet) list() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// encode produces the on-disk metadata value.
func (s *propSet) encode() string {
	var b strings.Builder
	for i, name := range s.names {
		if i > 0 {
			b.WriteString(listSeparator)
		}
		b.WriteString(escape(name))
	}
	return b.String()
}

// propertyIndex reads and rewrites metadata entries. It holds no state of
// its own; callers serialise access per object.
type propertyIndex struct {
	flat FlatStore
}

// read loads the metadata entry. ok is false when the object does not exist.
func (ix propertyIndex) read(app, object string) (*propSet, bool, error) {
	raw, ok, err := ix.flat.Get(metadataPath(app, object))
	if err != nil || !ok {
		return nil, false, err
	}
	set, err := parsePropSet(raw)
	if err != nil {
		return nil, true, err
	}
	return set, true, nil
}

func (ix propertyIndex) write(app, object string, set *propSet) error {
	return ix.flat.Set(metadataPath(app, object), set.encode())
}

// list returns the object's property names in insertion order. ok is
// false when the object does not exist; an existing object with no
// properties yields an empty, non-nil slice.
func (ix propertyIndex) list(app, object string) ([]string, bool, error) {
	set, ok, err := ix.read(app, object)
	if err != nil || !ok {
		return nil, ok, err
	}
	return set.list(), true, nil
}

// addIfMissing lists prop, creating the metadata entry when absent.
func (ix propertyIndex) addIfMissing(app, object, prop string) error {
	set, ok, err := ix.read(app, object)
	if err != nil {
		return err
	}
	if !ok {
		set = newPropSet()
	}
	if !set.add(prop) {
		return nil
	}
	return ix.write(app, object, set)
}

// remove unlists prop. A missing metadata entry or an unlisted name is a
// no-op. Removing the last name leaves an empty entry behind.
func (ix propertyIndex) remove(app, object, prop string) error {
	set, ok, err := ix.read(app, object)
	if err != nil || !ok {
		return err
	}
	if !set.delete(prop) {
		return nil
	}
	return ix.write(app, object, set)
}

// drop returns every listed name so the caller can remove the property
// entries. The metadata entry itself is left for the caller to remove.
// A corrupt entry still yields the names salvagePropSet recovers, along
// with the ErrCorruptIndex.
func (ix propertyIndex) drop(app, object string) ([]string, bool, error) {
	raw, ok, err := ix.flat.Get(metadataPath(app, object))
	if err != nil || !ok {
		return nil, false, err
	}
	set, err := parsePropSet(raw)
	if err != nil {
		return salvagePropSet(raw).list(), true, err
	}
	return set.list(), true, nil
}
