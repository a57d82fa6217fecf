// OS-level file locking.
//
// A FileStore holds an exclusive lock on its file for as long as it is
// open. The flat store has no multi-writer protocol, so a second opener
// (in this or another process) fails fast with ErrLocked instead of
// interleaving appends.
//
// The mutex serialises lock syscalls against setFile so that a Close or
// Compact cannot invalidate the fd mid-syscall.
package trove

import (
	"os"
	"sync"
)

type fileLock struct {
	mu sync.Mutex
	f  *os.File
}

// Lock takes the exclusive lock without blocking. It returns ErrLocked if
// another handle holds it.
func (l *fileLock) Lock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.lock()
}

// Unlock releases the lock. It is a no-op once the handle is cleared.
func (l *fileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.unlock()
}

// setFile swaps the locked handle. The caller must already hold the lock
// on f, or pass nil to disable further calls.
func (l *fileLock) setFile(f *os.File) {
	l.mu.Lock()
	l.f = f
	l.mu.Unlock()
}
