//go:build !unix && !windows

package trove

// No advisory locking on this platform; a FileStore must not be opened
// twice.
func (l *fileLock) lock() error   { return nil }
func (l *fileLock) unlock() error { return nil }
