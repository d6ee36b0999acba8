// pkg/vm/pagetable.go
package vm

import (
	"vmkern/pkg/pager"
)

// PageTableEntry translates one virtual page. A non-resident entry with
// no SwapSlot has never been materialized or was discarded clean; it is
// rebuilt from its section or zero-filled on the next fault.
type PageTableEntry struct {
	VPN      int
	PFN      int
	Valid    bool
	ReadOnly bool
	Used     bool
	Dirty    bool
	SwapSlot pager.SlotID
}

// Resident reports whether the page occupies a frame
func (e *PageTableEntry) Resident() bool {
	return e.Valid
}

// Swapped reports whether the page content lives in a swap slot
func (e *PageTableEntry) Swapped() bool {
	return !e.Valid && e.SwapSlot != pager.NoSlot
}

// PageTable is the flat per-process table of entries.
type PageTable struct {
	entries []PageTableEntry
}

// NewPageTable creates numPages invalid entries
func NewPageTable(numPages int) *PageTable {
	entries := make([]PageTableEntry, numPages)
	for vpn := range entries {
		entries[vpn] = PageTableEntry{
			VPN:      vpn,
			PFN:      -1,
			SwapSlot: pager.NoSlot,
		}
	}
	return &PageTable{entries: entries}
}

// Len returns the number of pages
func (pt *PageTable) Len() int {
	return len(pt.entries)
}

// Entry returns the entry for vpn, or nil if vpn is out of range
func (pt *PageTable) Entry(vpn int) *PageTableEntry {
	if vpn < 0 || vpn >= len(pt.entries) {
		return nil
	}
	return &pt.entries[vpn]
}

// Snapshot returns a copy of every entry
func (pt *PageTable) Snapshot() []PageTableEntry {
	out := make([]PageTableEntry, len(pt.entries))
	copy(out, pt.entries)
	return out
}
