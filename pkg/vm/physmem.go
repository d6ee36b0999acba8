// pkg/vm/physmem.go
package vm

import (
	"vmkern/pkg/pager"
)

// PhysicalMemory is the frame-indexed byte store shared by every
// address space.
type PhysicalMemory struct {
	storage  pager.Storage
	pageSize int
	frames   int
}

// NewPhysicalMemory allocates frames frames of pageSize bytes each
func NewPhysicalMemory(pageSize, frames int) (*PhysicalMemory, error) {
	storage, err := pager.NewMemoryStorage(pageSize, frames)
	if err != nil {
		return nil, err
	}
	return &PhysicalMemory{
		storage:  storage,
		pageSize: pageSize,
		frames:   frames,
	}, nil
}

// Frame returns the bytes of frame pfn, or nil if pfn is out of range
func (p *PhysicalMemory) Frame(pfn int) []byte {
	return p.storage.Page(pfn)
}

// PageSize returns the frame size in bytes
func (p *PhysicalMemory) PageSize() int {
	return p.pageSize
}

// Frames returns the number of frames
func (p *PhysicalMemory) Frames() int {
	return p.frames
}

// Close releases the backing storage
func (p *PhysicalMemory) Close() error {
	return p.storage.Close()
}
