// Package filelock takes an exclusive process-level lock over a
// project's on-disk state, since only one process may safely hold the
// conversation/knowledge logs and embedding index open for writing at a
// time. Built directly on the standard library (see DESIGN.md for why
// no third-party file-locking dependency fit).
package filelock

import (
	"fmt"
	"os"
	"syscall"
)

// Lock holds an exclusive advisory lock on a well-known path under the
// project root for the lifetime of a core instance.
type Lock struct {
	f *os.File
}

// Acquire opens (creating if necessary) the lock file at path and takes a
// non-blocking exclusive flock on it. It returns an error if another
// process already holds the lock, turning a would-be two-writers race
// into a clean startup failure instead.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filelock: open %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("filelock: another process holds %s: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// Release drops the lock and closes the underlying file descriptor.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	if err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("filelock: unlock: %w", err)
	}
	return l.f.Close()
}
