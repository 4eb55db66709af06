//go:build !windows

package atomicfile

import (
	"fmt"
	"os"
	"syscall"
)

// Lock is a held advisory lock on a file. Released by calling Close.
type Lock struct {
	file *os.File
}

// AcquireLock takes an exclusive, non-blocking advisory lock on path,
// creating it if necessary. Returns ErrLocked if another process holds it.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("atomicfile: open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, ErrLocked
	}

	return &Lock{file: f}, nil
}

// Close releases the lock and closes the underlying file handle.
func (l *Lock) Close() error {
	if l.file == nil {
		return nil
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	return l.file.Close()
}
