// pkg/vm/manager.go
// Package vm implements demand-paged virtual memory over a shared pool
// of physical frames. One Manager owns the frame pool, the inverted page
// table, the clock evictor and the swap store; every address space is
// created through it.
package vm

import (
	"fmt"
	"log/slog"
	"sync"

	"vmkern/pkg/pager"
)

// Manager is the kernel-wide memory context. A single lock protects the
// frame pool, the inverted table and the swap free-list, and is held for
// the whole of one fault, swap I/O included.
type Manager struct {
	mu       sync.Mutex
	unpinned *sync.Cond
	opts     Options
	log      *slog.Logger
	observer Observer

	phys     *PhysicalMemory
	frames   *FrameAllocator
	inverted *InvertedPageTable
	clock    *ClockEvictor
	swap     *pager.SwapStore

	pins   []int
	pinned int
	spaces map[ID]*AddressSpace
	closed bool

	faults     int64
	evictions  int64
	swapOuts   int64
	swapIns    int64
	imageLoads int64
	zeroFills  int64
}

// New creates a memory manager. The swap file is not created until the
// first dirty page is evicted.
func New(opts Options) (*Manager, error) {
	opts = opts.withDefaults()

	phys, err := NewPhysicalMemory(opts.PageSize, opts.Frames)
	if err != nil {
		return nil, fmt.Errorf("vm: allocate physical memory: %w", err)
	}

	m := &Manager{
		opts:     opts,
		log:      opts.Logger,
		observer: opts.Observer,
		phys:     phys,
		frames:   NewFrameAllocator(opts.Frames),
		inverted: NewInvertedPageTable(opts.Frames),
		clock:    NewClockEvictor(opts.Frames),
		swap: pager.NewSwapStore(pager.SwapOptions{
			PageSize:     opts.PageSize,
			Path:         opts.SwapPath,
			InitialSlots: opts.SwapInitialSlots,
			MaxSlots:     opts.SwapMaxSlots,
		}),
		pins:   make([]int, opts.Frames),
		spaces: make(map[ID]*AddressSpace),
	}
	m.unpinned = sync.NewCond(&m.mu)

	m.log.Info("memory manager started",
		"page_size", opts.PageSize, "frames", opts.Frames, "swap", opts.SwapPath)
	return m, nil
}

// PageSize returns the page size in bytes
func (m *Manager) PageSize() int {
	return m.opts.PageSize
}

// Frames returns the number of physical frames
func (m *Manager) Frames() int {
	return m.opts.Frames
}

// fatal logs and halts. Used for swap I/O failure, table inconsistency
// and resource exhaustion.
func (m *Manager) fatal(msg string, err error) {
	m.log.Error(msg, "error", err)
	panic(fmt.Errorf("vm: %s: %w", msg, err))
}

// pinLocked protects pfn from eviction.
// Must be called while holding the lock
func (m *Manager) pinLocked(pfn int) {
	m.pins[pfn]++
	m.pinned++
}

// unpinLocked drops one pin on pfn and wakes waiters.
// Must be called while holding the lock
func (m *Manager) unpinLocked(pfn int) {
	if m.pins[pfn] == 0 {
		m.fatal("unpin", fmt.Errorf("frame %d is not pinned: %w", pfn, ErrInconsistent))
	}
	m.pins[pfn]--
	m.pinned--
	m.unpinned.Broadcast()
}

func (m *Manager) unpin(pfn int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unpinLocked(pfn)
}

// Stats returns manager-wide counters
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Frames:       m.frames.Total(),
		FreeFrames:   m.frames.FreeCount(),
		PinnedFrames: m.pinned,
		Spaces:       len(m.spaces),
		Faults:       m.faults,
		Evictions:    m.evictions,
		SwapOuts:     m.swapOuts,
		SwapIns:      m.swapIns,
		ImageLoads:   m.imageLoads,
		ZeroFills:    m.zeroFills,
		Swap:         m.swap.Stats(),
	}
}

// FrameTable returns the state of every physical frame
func (m *Manager) FrameTable() []FrameInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]FrameInfo, m.frames.Total())
	for pfn := range out {
		info := FrameInfo{PFN: pfn, VPN: -1, Free: m.frames.IsFree(pfn), Pinned: m.pins[pfn]}
		if e, ok := m.inverted.Lookup(pfn); ok {
			pte := e.Owner.table.Entry(e.VPN)
			info.Owner = e.Owner.id
			info.VPN = e.VPN
			info.Wired = e.Owner.kind == IdentityMapped
			info.Used = pte.Used
			info.Dirty = pte.Dirty
		}
		out[pfn] = info
	}
	return out
}

// ClockHand returns the frame the next eviction scan starts at
func (m *Manager) ClockHand() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock.Hand()
}

// Space returns the live address space with the given id
func (m *Manager) Space(id ID) (*AddressSpace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	as, ok := m.spaces[id]
	return as, ok
}

// Close releases every address space and the swap store. The manager
// cannot be used afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	live := make([]*AddressSpace, 0, len(m.spaces))
	for _, as := range m.spaces {
		live = append(live, as)
	}
	m.mu.Unlock()

	for _, as := range live {
		as.Release()
	}

	var firstErr error
	if err := m.swap.Close(); err != nil {
		firstErr = err
	}
	if err := m.phys.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	m.log.Info("memory manager stopped")
	return firstErr
}

// frameView adapts the manager's tables for the clock evictor.
// Used with the lock held.
type frameView struct {
	m *Manager
}

func (v frameView) Evictable(pfn int) bool {
	if v.m.pins[pfn] > 0 {
		return false
	}
	e, ok := v.m.inverted.Lookup(pfn)
	if !ok {
		return false
	}
	return e.Owner.kind != IdentityMapped
}

func (v frameView) Referenced(pfn int) bool {
	e, ok := v.m.inverted.Lookup(pfn)
	if !ok {
		return false
	}
	pte := e.Owner.table.Entry(e.VPN)
	if pte.Used {
		pte.Used = false
		return true
	}
	return false
}
