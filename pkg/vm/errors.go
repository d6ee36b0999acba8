// pkg/vm/errors.go
package vm

import (
	"errors"
	"fmt"
)

var (
	// Fatal conditions. The manager panics with these wrapped.
	ErrDoubleFree       = errors.New("frame freed twice")
	ErrInconsistent     = errors.New("inverted table and page table disagree")
	ErrNoEvictableFrame = errors.New("every resident frame is wired")

	// Recoverable conditions.
	ErrMalformedImage     = errors.New("malformed executable image")
	ErrInsufficientMemory = errors.New("insufficient physical memory")
	ErrDuplicateSpace     = errors.New("address space id already in use")
	ErrBadAddress         = errors.New("virtual page out of range")
	ErrReleased           = errors.New("address space released")
	ErrInvalidBuffer      = errors.New("offset and length exceed buffer")
	ErrClosed             = errors.New("memory manager is closed")
)

// LoadError reports an executable page that could not be loaded.
type LoadError struct {
	Space ID
	VPN   int
	Err   error
}

// Error implements the error interface
func (e *LoadError) Error() string {
	if e.VPN < 0 {
		return fmt.Sprintf("address space %d: %v", e.Space, e.Err)
	}
	return fmt.Sprintf("address space %d: load page %d: %v", e.Space, e.VPN, e.Err)
}

// Unwrap returns the underlying error
func (e *LoadError) Unwrap() error {
	return e.Err
}
