// pkg/vm/fault.go
package vm

import (
	"errors"
	"fmt"

	"vmkern/pkg/pager"
)

// errSpaceGone stops a fault whose space was released while the fault
// waited for a frame.
var errSpaceGone = errors.New("address space released during fault")

// handleFaultLocked makes vpn of as resident. A valid entry is not a
// fault and returns at once.
// Must be called while holding the lock
func (m *Manager) handleFaultLocked(as *AddressSpace, vpn int) error {
	pte := as.table.Entry(vpn)
	if pte.Valid {
		return nil
	}

	pfn, ev := m.acquireFrameLocked()

	// The lock may have been dropped while waiting for a frame.
	if as.released {
		m.frames.Free(pfn)
		return errSpaceGone
	}
	if pte.Valid {
		m.frames.Free(pfn)
		return nil
	}

	m.pinLocked(pfn)
	defer m.unpinLocked(pfn)

	source, err := m.populateLocked(as, vpn, pfn)
	if err != nil {
		m.frames.Free(pfn)
		return err
	}
	m.installLocked(as, vpn, pfn)

	m.faults++
	as.stats.Faults++

	ev.Space = as.id
	ev.VPN = vpn
	ev.PFN = pfn
	ev.Source = source
	if m.observer != nil {
		m.observer.ObserveFault(ev)
	}

	m.log.Debug("page fault resolved",
		"asid", as.id, "vpn", vpn, "pfn", pfn, "source", source.String(), "evicted", ev.Evicted)
	return nil
}

// populateLocked fills frame pfn with the content of vpn: from its swap
// slot if it has one, else from its section, else zeros.
// Must be called while holding the lock
func (m *Manager) populateLocked(as *AddressSpace, vpn, pfn int) (FaultSource, error) {
	pte := as.table.Entry(vpn)
	frame := m.phys.Frame(pfn)

	if slot := pte.SwapSlot; slot != pager.NoSlot {
		if err := m.swap.Read(slot, frame); err != nil {
			m.fatal("swap in", err)
		}
		if err := m.swap.FreeSlot(slot); err != nil {
			m.fatal("swap in", err)
		}
		pte.SwapSlot = pager.NoSlot
		// The slot is gone, so the frame holds the only copy.
		pte.Dirty = true
		m.swapIns++
		as.stats.SwapIns++
		return SourceSwap, nil
	}

	if section, index, ok := sectionFor(as.sections, vpn); ok {
		if err := section.LoadPage(index, frame); err != nil {
			return SourceImage, &LoadError{Space: as.id, VPN: vpn, Err: err}
		}
		pte.Dirty = false
		m.imageLoads++
		return SourceImage, nil
	}

	clear(frame)
	pte.Dirty = false
	m.zeroFills++
	return SourceZero, nil
}

// installLocked marks vpn resident in pfn and records the reverse mapping.
// Must be called while holding the lock
func (m *Manager) installLocked(as *AddressSpace, vpn, pfn int) {
	pte := as.table.Entry(vpn)
	pte.PFN = pfn
	pte.Valid = true
	pte.Used = true
	m.inverted.Set(pfn, as, vpn)
}

// acquireFrameLocked returns a free frame, evicting a victim when the
// pool is empty. If every resident frame is pinned it waits for an
// unpin; if they are all wired it halts.
// Must be called while holding the lock
func (m *Manager) acquireFrameLocked() (int, FaultEvent) {
	for {
		if pfn, ok := m.frames.TryAlloc(); ok {
			return pfn, FaultEvent{VictimSlot: pager.NoSlot}
		}

		if pfn, ok := m.clock.Evict(frameView{m}); ok {
			return pfn, m.evictLocked(pfn)
		}

		if m.pinned == 0 {
			m.fatal("acquire frame", ErrNoEvictableFrame)
		}
		m.unpinned.Wait()
	}
}

// evictLocked detaches the page resident in pfn. A dirty page is written
// to a fresh swap slot first; a clean page is discarded and will be
// rebuilt from its section or zero-filled.
// Must be called while holding the lock
func (m *Manager) evictLocked(pfn int) FaultEvent {
	e, ok := m.inverted.Lookup(pfn)
	if !ok {
		m.fatal("evict", fmt.Errorf("frame %d has no owner: %w", pfn, ErrInconsistent))
	}
	victim := e.Owner.table.Entry(e.VPN)
	if !victim.Valid || victim.PFN != pfn || victim.SwapSlot != pager.NoSlot {
		m.fatal("evict", fmt.Errorf("frame %d: space %d page %d: %w", pfn, e.Owner.id, e.VPN, ErrInconsistent))
	}

	ev := FaultEvent{
		Evicted:     true,
		VictimSpace: e.Owner.id,
		VictimVPN:   e.VPN,
		VictimSlot:  pager.NoSlot,
	}

	if victim.Dirty {
		slot, err := m.swap.AllocSlot()
		if err != nil {
			m.fatal("swap out", err)
		}
		if err := m.swap.Write(slot, m.phys.Frame(pfn)); err != nil {
			m.fatal("swap out", err)
		}
		victim.SwapSlot = slot
		victim.Dirty = false
		m.swapOuts++
		e.Owner.stats.SwapOuts++
		ev.SwappedOut = true
		ev.VictimSlot = slot
		m.log.Debug("page swapped out", "asid", e.Owner.id, "vpn", e.VPN, "pfn", pfn, "slot", slot)
	}

	victim.Valid = false
	victim.PFN = -1
	m.inverted.Clear(pfn)
	m.evictions++

	m.log.Debug("page evicted", "asid", e.Owner.id, "vpn", e.VPN, "pfn", pfn, "swapped", ev.SwappedOut)
	return ev
}
