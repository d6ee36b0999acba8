// pkg/vm/frames.go
package vm

import "fmt"

// FrameAllocator is the global free-list of physical frames. It makes
// no promise about which free frame is returned.
type FrameAllocator struct {
	free   []int
	isFree []bool
}

// NewFrameAllocator creates an allocator with every frame free
func NewFrameAllocator(frames int) *FrameAllocator {
	fa := &FrameAllocator{
		free:   make([]int, 0, frames),
		isFree: make([]bool, frames),
	}
	for pfn := 0; pfn < frames; pfn++ {
		fa.free = append(fa.free, pfn)
		fa.isFree[pfn] = true
	}
	return fa
}

// TryAlloc removes a frame from the free-list.
// Returns false if no frame is free.
func (fa *FrameAllocator) TryAlloc() (int, bool) {
	if len(fa.free) == 0 {
		return -1, false
	}
	pfn := fa.free[0]
	fa.free = fa.free[1:]
	fa.isFree[pfn] = false
	return pfn, true
}

// Free returns a frame to the free-list. Freeing a free frame panics.
func (fa *FrameAllocator) Free(pfn int) {
	if pfn < 0 || pfn >= len(fa.isFree) {
		panic(fmt.Errorf("vm: free frame %d: out of range", pfn))
	}
	if fa.isFree[pfn] {
		panic(fmt.Errorf("vm: frame %d: %w", pfn, ErrDoubleFree))
	}
	fa.isFree[pfn] = true
	fa.free = append(fa.free, pfn)
}

// IsFree reports whether pfn is on the free-list
func (fa *FrameAllocator) IsFree(pfn int) bool {
	return pfn >= 0 && pfn < len(fa.isFree) && fa.isFree[pfn]
}

// FreeCount returns the number of free frames
func (fa *FrameAllocator) FreeCount() int {
	return len(fa.free)
}

// Total returns the number of frames managed
func (fa *FrameAllocator) Total() int {
	return len(fa.isFree)
}
