//go:build windows

package atomicfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
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

	ol := new(windows.Overlapped)
	err = windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, ol)
	if err != nil {
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
	ol := new(windows.Overlapped)
	_ = windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, ol)
	return l.file.Close()
}
