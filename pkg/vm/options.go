// pkg/vm/options.go
package vm

import (
	"io"
	"log/slog"

	"vmkern/pkg/pager"
)

const (
	// DefaultFrames is the size of the physical frame pool.
	DefaultFrames = 32

	// DefaultMaxPages bounds the size of one address space.
	DefaultMaxPages = 1 << 16
)

// Options configures the memory manager
type Options struct {
	PageSize         int          // Page and frame size in bytes (default 1024)
	Frames           int          // Number of physical frames (default 32)
	SwapPath         string       // Swap backing file; empty keeps swap in memory
	SwapInitialSlots int          // Slots created with the swap file (default 100)
	SwapMaxSlots     int          // Upper bound on swap slots; 0 means unbounded
	MaxPages         int          // Largest address space in pages (default 65536)
	Logger           *slog.Logger // Destination for fault and eviction logs
	Observer         Observer     // Receives every resolved fault
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = pager.DefaultPageSize
	}
	if o.Frames <= 0 {
		o.Frames = DefaultFrames
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}
