// pkg/vm/verify.go
package vm

import (
	"fmt"

	"vmkern/pkg/pager"
)

// IntegrityError is one violation found by Verify
type IntegrityError struct {
	// Type is the table that is wrong: frame, inverted, page or swap
	Type    string
	PFN     int
	Space   ID
	VPN     int
	Message string
}

// Error implements the error interface
func (e IntegrityError) Error() string {
	return fmt.Sprintf("[%s] pfn=%d asid=%d vpn=%d: %s", e.Type, e.PFN, e.Space, e.VPN, e.Message)
}

// Verify checks that the inverted table and the valid page-table entries
// form a bijection over resident frames, that no free frame is mapped,
// and that every swap slot has exactly one owner.
//
// Returns an empty slice when the tables are consistent.
func (m *Manager) Verify() []IntegrityError {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []IntegrityError

	// inverted -> page table
	for pfn := 0; pfn < m.inverted.Len(); pfn++ {
		e, ok := m.inverted.Lookup(pfn)
		if !ok {
			continue
		}
		if m.frames.IsFree(pfn) {
			errs = append(errs, IntegrityError{Type: "frame", PFN: pfn, Space: e.Owner.id, VPN: e.VPN,
				Message: "frame is on the free-list but mapped"})
		}
		if live, ok := m.spaces[e.Owner.id]; !ok || live != e.Owner {
			errs = append(errs, IntegrityError{Type: "inverted", PFN: pfn, Space: e.Owner.id, VPN: e.VPN,
				Message: "owner is not a live address space"})
			continue
		}
		pte := e.Owner.table.Entry(e.VPN)
		if pte == nil || !pte.Valid || pte.PFN != pfn {
			errs = append(errs, IntegrityError{Type: "inverted", PFN: pfn, Space: e.Owner.id, VPN: e.VPN,
				Message: "page-table entry does not point back at the frame"})
		}
	}

	// page table -> inverted, and swap ownership
	slotOwner := make(map[pager.SlotID]IntegrityError)
	for id, as := range m.spaces {
		for vpn := 0; vpn < as.table.Len(); vpn++ {
			pte := as.table.Entry(vpn)
			if pte.Valid {
				e, ok := m.inverted.Lookup(pte.PFN)
				if !ok || e.Owner != as || e.VPN != vpn {
					errs = append(errs, IntegrityError{Type: "page", PFN: pte.PFN, Space: id, VPN: vpn,
						Message: "valid entry has no matching inverted entry"})
				}
			}
			if pte.SwapSlot == pager.NoSlot {
				continue
			}
			if pte.Valid {
				errs = append(errs, IntegrityError{Type: "swap", PFN: pte.PFN, Space: id, VPN: vpn,
					Message: fmt.Sprintf("resident page still holds slot %d", pte.SwapSlot)})
			}
			if !m.swap.Owned(pte.SwapSlot) {
				errs = append(errs, IntegrityError{Type: "swap", PFN: -1, Space: id, VPN: vpn,
					Message: fmt.Sprintf("slot %d is on the swap free-list", pte.SwapSlot)})
			}
			if prev, dup := slotOwner[pte.SwapSlot]; dup {
				errs = append(errs, IntegrityError{Type: "swap", PFN: -1, Space: id, VPN: vpn,
					Message: fmt.Sprintf("slot %d also held by space %d page %d", pte.SwapSlot, prev.Space, prev.VPN)})
			}
			slotOwner[pte.SwapSlot] = IntegrityError{Space: id, VPN: vpn}
		}
	}

	swap := m.swap.Stats()
	if held := swap.Slots - swap.FreeSlots; held != len(slotOwner) {
		errs = append(errs, IntegrityError{Type: "swap", PFN: -1, VPN: -1,
			Message: fmt.Sprintf("%d slots allocated but %d held by pages", held, len(slotOwner))})
	}

	return errs
}
