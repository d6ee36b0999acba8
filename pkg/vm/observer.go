// pkg/vm/observer.go
package vm

import "vmkern/pkg/pager"

// FaultSource identifies where a faulted page's content came from
type FaultSource int

const (
	SourceZero FaultSource = iota
	SourceImage
	SourceSwap
)

// String returns the source name
func (s FaultSource) String() string {
	switch s {
	case SourceZero:
		return "zero"
	case SourceImage:
		return "image"
	case SourceSwap:
		return "swap"
	default:
		return "unknown"
	}
}

// FaultEvent describes one resolved page fault
type FaultEvent struct {
	Space  ID
	VPN    int
	PFN    int
	Source FaultSource

	// Set when the frame was taken from another page.
	Evicted     bool
	VictimSpace ID
	VictimVPN   int
	SwappedOut  bool
	VictimSlot  pager.SlotID
}

// Observer receives fault events. It is called with the manager lock
// held and must not call back into the manager.
type Observer interface {
	ObserveFault(ev FaultEvent)
}
