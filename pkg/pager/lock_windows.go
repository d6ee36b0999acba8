//go:build windows

// pkg/pager/lock_windows.go
package pager

import (
	"golang.org/x/sys/windows"
)

// lockFd acquires an exclusive lock on the first byte of the file.
// Returns ErrSwapLocked if another kernel already holds it.
func lockFd(fd uintptr) error {
	var overlapped windows.Overlapped
	err := windows.LockFileEx(
		windows.Handle(fd),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0,
		&overlapped,
	)
	if err != nil {
		if err == windows.ERROR_LOCK_VIOLATION {
			return ErrSwapLocked
		}
		return err
	}
	return nil
}

// unlockFd releases the lock on the file.
func unlockFd(fd uintptr) error {
	var overlapped windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(fd), 0, 1, 0, &overlapped)
}
