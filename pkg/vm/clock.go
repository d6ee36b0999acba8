// pkg/vm/clock.go
package vm

// FrameInspector gives the evictor a view of per-frame state.
type FrameInspector interface {
	// Evictable is false for pinned, wired and unowned frames.
	Evictable(pfn int) bool

	// Referenced reports the frame's reference bit and clears it.
	Referenced(pfn int) bool
}

// ClockEvictor selects victims with the second-chance algorithm. The
// hand persists across calls.
type ClockEvictor struct {
	hand   int
	frames int
}

// NewClockEvictor creates an evictor over frames frames with the hand at 0
func NewClockEvictor(frames int) *ClockEvictor {
	return &ClockEvictor{frames: frames}
}

// Hand returns the frame the next scan starts at
func (c *ClockEvictor) Hand() int {
	return c.hand
}

// Evict advances the hand until it finds an evictable frame whose
// reference bit is clear, clearing set bits on the way. The hand ends
// one past the victim. Returns false if two full sweeps find nothing.
func (c *ClockEvictor) Evict(fi FrameInspector) (int, bool) {
	if c.frames == 0 {
		return -1, false
	}

	// Two sweeps: the first may only clear reference bits.
	for scanned := 0; scanned < 2*c.frames; scanned++ {
		pfn := c.hand
		c.hand = (c.hand + 1) % c.frames

		if !fi.Evictable(pfn) {
			continue
		}
		if fi.Referenced(pfn) {
			continue
		}
		return pfn, true
	}
	return -1, false
}
