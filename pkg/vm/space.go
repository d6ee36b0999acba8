// pkg/vm/space.go
package vm

import (
	"fmt"

	"vmkern/pkg/pager"
)

// ID identifies the process owning an address space. It keys the
// inverted page table.
type ID uint32

// Kind selects how an address space is backed
type Kind int

const (
	// DemandPaged spaces start with every entry invalid and fault pages
	// in on first touch. Their frames may be evicted.
	DemandPaged Kind = iota

	// IdentityMapped spaces receive a frame for every page at creation.
	// Translation is a table lookup that never faults and the frames are
	// wired: the evictor never takes them.
	IdentityMapped
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case DemandPaged:
		return "paged"
	case IdentityMapped:
		return "identity"
	default:
		return "unknown"
	}
}

// ParseKind converts a kind name back to a Kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "paged", "demand-paged", "":
		return DemandPaged, nil
	case "identity", "identity-mapped":
		return IdentityMapped, nil
	default:
		return DemandPaged, fmt.Errorf("unknown address space kind %q", s)
	}
}

// AddressSpace is one process's view of memory. It exclusively owns its
// page table; pfn, valid and swap slot fields change only under the
// manager lock.
type AddressSpace struct {
	id       ID
	kind     Kind
	m        *Manager
	sections []Section
	table    *PageTable
	released bool
	stats    SpaceStats
}

// NewAddressSpace creates an address space of numPages pages whose code
// and data come from img. img may be nil, in which case every page is
// zero-filled on first touch.
func (m *Manager) NewAddressSpace(id ID, kind Kind, img Image, numPages int) (*AddressSpace, error) {
	if numPages <= 0 || numPages > m.opts.MaxPages {
		return nil, &LoadError{Space: id, VPN: -1,
			Err: fmt.Errorf("%w: %d pages, limit %d", ErrMalformedImage, numPages, m.opts.MaxPages)}
	}

	var sections []Section
	if img != nil {
		sections = img.Sections()
	}
	if err := validateSections(sections, numPages); err != nil {
		return nil, &LoadError{Space: id, VPN: -1, Err: err}
	}

	as := &AddressSpace{
		id:       id,
		kind:     kind,
		m:        m,
		sections: sections,
		table:    NewPageTable(numPages),
	}
	for _, s := range sections {
		if !s.ReadOnly() {
			continue
		}
		for vpn := s.FirstVPN(); vpn < s.FirstVPN()+s.Length(); vpn++ {
			as.table.Entry(vpn).ReadOnly = true
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if _, exists := m.spaces[id]; exists {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateSpace, id)
	}

	if kind == IdentityMapped {
		if err := m.wireLocked(as); err != nil {
			return nil, err
		}
	}

	m.spaces[id] = as
	m.log.Debug("address space created", "asid", id, "kind", kind.String(), "pages", numPages)
	return as, nil
}

// wireLocked gives every page of as a frame and its content.
// Must be called while holding the lock
func (m *Manager) wireLocked(as *AddressSpace) error {
	numPages := as.table.Len()
	if m.frames.FreeCount() < numPages {
		return fmt.Errorf("%w: need %d frames, %d free",
			ErrInsufficientMemory, numPages, m.frames.FreeCount())
	}

	for vpn := 0; vpn < numPages; vpn++ {
		pfn, _ := m.frames.TryAlloc()
		if _, err := m.populateLocked(as, vpn, pfn); err != nil {
			m.frames.Free(pfn)
			as.releaseLocked()
			return err
		}
		m.installLocked(as, vpn, pfn)
	}
	return nil
}

// ID returns the owner identity
func (as *AddressSpace) ID() ID {
	return as.id
}

// Kind returns how the space is backed
func (as *AddressSpace) Kind() Kind {
	return as.kind
}

// NumPages returns the number of virtual pages
func (as *AddressSpace) NumPages() int {
	return as.table.Len()
}

// Size returns the address space size in bytes
func (as *AddressSpace) Size() int {
	return as.table.Len() * as.m.opts.PageSize
}

// PageSize returns the page size in bytes
func (as *AddressSpace) PageSize() int {
	return as.m.opts.PageSize
}

// Released reports whether Release has been called
func (as *AddressSpace) Released() bool {
	as.m.mu.Lock()
	defer as.m.mu.Unlock()
	return as.released
}

// Entries returns a copy of the page table
func (as *AddressSpace) Entries() []PageTableEntry {
	as.m.mu.Lock()
	defer as.m.mu.Unlock()
	return as.table.Snapshot()
}

// Stats returns the per-space counters
func (as *AddressSpace) Stats() SpaceStats {
	as.m.mu.Lock()
	defer as.m.mu.Unlock()

	st := as.stats
	for vpn := 0; vpn < as.table.Len(); vpn++ {
		pte := as.table.Entry(vpn)
		if pte.Valid {
			st.Resident++
		} else if pte.SwapSlot != pager.NoSlot {
			st.Swapped++
		}
	}
	return st
}

// Release returns every frame and swap slot held by the space. It waits
// for in-flight copies on the space's frames to finish. Calling it again
// does nothing.
func (as *AddressSpace) Release() {
	m := as.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if as.released {
		return
	}
	// Set first so that new accesses stop before the frames go.
	as.released = true

	for as.pinnedLocked() {
		m.unpinned.Wait()
	}

	frames, slots := as.releaseLocked()
	delete(m.spaces, as.id)

	m.log.Debug("address space released", "asid", as.id, "frames", frames, "slots", slots)
}

// pinnedLocked reports whether any frame of the space is pinned.
// Must be called while holding the lock
func (as *AddressSpace) pinnedLocked() bool {
	for vpn := 0; vpn < as.table.Len(); vpn++ {
		pte := as.table.Entry(vpn)
		if pte.Valid && as.m.pins[pte.PFN] > 0 {
			return true
		}
	}
	return false
}

// releaseLocked frees the frames and slots of every entry.
// Must be called while holding the lock
func (as *AddressSpace) releaseLocked() (frames, slots int) {
	m := as.m
	for vpn := 0; vpn < as.table.Len(); vpn++ {
		pte := as.table.Entry(vpn)
		if pte.Valid {
			m.inverted.Clear(pte.PFN)
			m.frames.Free(pte.PFN)
			pte.Valid = false
			pte.PFN = -1
			frames++
		}
		if pte.SwapSlot != pager.NoSlot {
			if err := m.swap.FreeSlot(pte.SwapSlot); err != nil {
				m.fatal("release swap slot", err)
			}
			pte.SwapSlot = pager.NoSlot
			slots++
		}
		pte.Dirty = false
	}
	return frames, slots
}
