// Object store operations.
//
// A save lists the property in the object's metadata entry before writing
// the value, and a delete removes the value before unlisting it. A crash
// between the two steps therefore leaves at most a listed name without a
// value, never a value nobody can enumerate. Loads and existence checks
// read the property entry directly and do not consult the list.
package trove

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config holds store options. The zero value is valid.
type Config struct {
	Logger *zap.Logger // Defaults to a no-op logger
}

// Store implements application/object/property records on a FlatStore.
// It is safe for concurrent use; mutations of one object are serialised.
type Store struct {
	flat  FlatStore
	index propertyIndex
	locks *objectLocks
	log   *zap.Logger
}

// New returns a Store writing to flat.
func New(flat FlatStore, config Config) (*Store, error) {
	if flat == nil {
		return nil, ErrNoFlatStore
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Store{
		flat:  flat,
		index: propertyIndex{flat: flat},
		locks: newObjectLocks(),
		log:   config.Logger,
	}, nil
}

// Flat returns the underlying substrate.
func (s *Store) Flat() FlatStore {
	return s.flat
}

// SaveProperty writes value to the property, creating the object if
// needed and overwriting any previous value. An empty prop is stored as
// DefaultProperty.
func (s *Store) SaveProperty(app, object, prop, value string) (err error) {
	start := time.Now()
	defer func() { observe("save_property", start, err) }()

	prop, err = propertyName(prop)
	if err != nil {
		return fmt.Errorf("save property: %w", err)
	}

	unlock := s.locks.lock(app, object)
	defer unlock()

	if err := s.index.addIfMissing(app, object, prop); err != nil {
		s.corrupt(app, object, err)
		return fmt.Errorf("save property: %w", err)
	}
	if err := s.flat.Set(propertyPath(app, object, escape(prop)), value); err != nil {
		return fmt.Errorf("save property: %w", err)
	}

	s.log.Debug("saved property",
		zap.String("app", app),
		zap.String("object", object),
		zap.String("prop", prop),
		zap.Int("size", len(value)),
	)
	return nil
}

// LoadProperty returns the property's value. ok is false if the property
// or its object does not exist.
func (s *Store) LoadProperty(app, object, prop string) (value string, ok bool, err error) {
	start := time.Now()
	defer func() { observe("load_property", start, err) }()

	prop, err = propertyName(prop)
	if err != nil {
		return "", false, fmt.Errorf("load property: %w", err)
	}
	value, ok, err = s.flat.Get(propertyPath(app, object, escape(prop)))
	if err != nil {
		return "", false, fmt.Errorf("load property: %w", err)
	}
	return value, ok, nil
}

// ReadProperty copies up to len(buf) bytes of the property's value into
// buf and returns the number of bytes copied. A missing property reads
// zero bytes.
func (s *Store) ReadProperty(app, object, prop string, buf []byte) (int, error) {
	value, ok, err := s.LoadProperty(app, object, prop)
	if err != nil || !ok {
		return 0, err
	}
	return copy(buf, value), nil
}

// PropertyExists reports whether the property has a stored value.
func (s *Store) PropertyExists(app, object, prop string) (bool, error) {
	_, ok, err := s.LoadProperty(app, object, prop)
	return ok, err
}

// ObjectExists reports whether the object's metadata entry is present,
// regardless of how many properties it lists.
func (s *Store) ObjectExists(app, object string) (exists bool, err error) {
	start := time.Now()
	defer func() { observe("object_exists", start, err) }()

	_, ok, err := s.flat.Get(metadataPath(app, object))
	if err != nil {
		return false, fmt.Errorf("object exists: %w", err)
	}
	return ok, nil
}

// ListProperties returns the object's property names in the order they
// were first saved. ok is false if the object does not exist; an object
// whose properties were all deleted yields an empty slice and ok == true.
func (s *Store) ListProperties(app, object string) (props []string, ok bool, err error) {
	start := time.Now()
	defer func() { observe("list_properties", start, err) }()

	props, ok, err = s.index.list(app, object)
	if err != nil {
		s.corrupt(app, object, err)
		return nil, false, fmt.Errorf("list properties: %w", err)
	}
	return props, ok, nil
}

// DeleteProperty removes the property's value and its listing. Deleting a
// missing property, or a property of a missing object, is not an error.
// The object keeps existing even when its last property is deleted.
func (s *Store) DeleteProperty(app, object, prop string) (err error) {
	start := time.Now()
	defer func() { observe("delete_property", start, err) }()

	prop, err = propertyName(prop)
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}

	unlock := s.locks.lock(app, object)
	defer unlock()

	if err := s.flat.Remove(propertyPath(app, object, escape(prop))); err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	if err := s.index.remove(app, object, prop); err != nil {
		s.corrupt(app, object, err)
		return fmt.Errorf("delete property: %w", err)
	}

	s.log.Debug("deleted property",
		zap.String("app", app),
		zap.String("object", object),
		zap.String("prop", prop),
	)
	return nil
}

// DeleteObject removes every listed property and then the object itself.
// Deleting a missing object is not an error. A corrupt property list is
// logged and the object removed anyway, along with every property that
// could still be recovered from the list.
func (s *Store) DeleteObject(app, object string) (err error) {
	start := time.Now()
	defer func() { observe("delete_object", start, err) }()

	unlock := s.locks.lock(app, object)
	defer unlock()

	props, ok, err := s.index.drop(app, object)
	switch {
	case errors.Is(err, ErrCorruptIndex):
		s.corrupt(app, object, err)
	case err != nil:
		return fmt.Errorf("delete object: %w", err)
	}
	if !ok {
		return nil
	}
	for _, prop := range props {
		if err := s.flat.Remove(propertyPath(app, object, escape(prop))); err != nil {
			return fmt.Errorf("delete object: property %q: %w", prop, err)
		}
	}
	if err := s.flat.Remove(metadataPath(app, object)); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	s.log.Debug("deleted object",
		zap.String("app", app),
		zap.String("object", object),
		zap.Int("props", len(props)),
	)
	return nil
}

// PropertyPath returns the flat key the property is stored under. The
// property need not exist.
func (s *Store) PropertyPath(app, object, prop string) (string, error) {
	prop, err := propertyName(prop)
	if err != nil {
		return "", err
	}
	return propertyPath(app, object, escape(prop)), nil
}

// MetadataPath returns the flat key holding the object's property list.
func (s *Store) MetadataPath(app, object string) string {
	return metadataPath(app, object)
}

func (s *Store) corrupt(app, object string, err error) {
	if errors.Is(err, ErrCorruptIndex) {
		s.log.Warn("corrupt property list",
			zap.String("app", app),
			zap.String("object", object),
			zap.Error(err),
		)
	}
}
