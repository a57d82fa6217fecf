// Per-object serialisation.
//
// Every mutation of an object is a read-modify-write of its metadata
// entry. Two goroutines saving different properties of the same object
// would otherwise both read the old list and the later write would drop
// the earlier property. objectLocks hands out one mutex per (app, object),
// reference counted so idle objects do not accumulate entries.
//
// This only covers callers sharing one Store. Separate processes writing
// the same substrate can still lose updates unless the substrate itself
// excludes them (FileStore does).
package trove

import "sync"

type objectKey struct {
	app, object string
}

type objectLock struct {
	mu   sync.Mutex
	refs int
}

type objectLocks struct {
	mu    sync.Mutex
	locks map[objectKey]*objectLock
}

func newObjectLocks() *objectLocks {
	return &objectLocks{locks: make(map[objectKey]*objectLock)}
}

// lock blocks until the object's mutex is held and returns its release.
func (l *objectLocks) lock(app, object string) func() {
	k := objectKey{app, object}

	l.mu.Lock()
	ol, ok := l.locks[k]
	if !ok {
		ol = &objectLock{}
		l.locks[k] = ol
	}
	ol.refs++
	l.mu.Unlock()

	ol.mu.Lock()
	return func() {
		ol.mu.Unlock()
		l.mu.Lock()
		ol.refs--
		if ol.refs == 0 {
			delete(l.locks, k)
		}
		l.mu.Unlock()
	}
}

// size returns the number of objects currently locked or waited on.
func (l *objectLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
