// pkg/vm/stats.go
package vm

import "vmkern/pkg/pager"

// Stats holds manager-wide counters
type Stats struct {
	Frames       int
	FreeFrames   int
	PinnedFrames int
	Spaces       int

	Faults     int64
	Evictions  int64
	SwapOuts   int64
	SwapIns    int64
	ImageLoads int64
	ZeroFills  int64

	Swap pager.SwapStats
}

// SpaceStats holds per-address-space counters
type SpaceStats struct {
	Faults   int64
	SwapIns  int64
	SwapOuts int64
	Reads    int64
	Writes   int64
	Resident int
	Swapped  int
}

// FrameInfo describes one physical frame
type FrameInfo struct {
	PFN    int
	Free   bool
	Owner  ID
	VPN    int
	Pinned int
	Wired  bool
	Used   bool
	Dirty  bool
}
