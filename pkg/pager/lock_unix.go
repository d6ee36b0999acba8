//go:build !windows

// pkg/pager/lock_unix.go
package pager

import (
	"golang.org/x/sys/unix"
)

// lockFd acquires an exclusive, non-blocking lock on the descriptor.
// Returns ErrSwapLocked if another kernel already holds it.
func lockFd(fd uintptr) error {
	err := unix.Flock(int(fd), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrSwapLocked
		}
		return err
	}
	return nil
}

// unlockFd releases the lock on the descriptor.
func unlockFd(fd uintptr) error {
	return unix.Flock(int(fd), unix.LOCK_UN)
}
