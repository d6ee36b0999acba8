// pkg/vm/access.go
package vm

import (
	"errors"
)

// Direction selects the way bytes move in Copy
type Direction int

const (
	// FromUser copies virtual memory into the buffer.
	FromUser Direction = iota
	// ToUser copies the buffer into virtual memory.
	ToUser
)

// Translate returns the frame holding vpn, faulting it in if needed.
func (as *AddressSpace) Translate(vpn int) (int, error) {
	m := as.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if as.released {
		return -1, ErrReleased
	}
	pte := as.table.Entry(vpn)
	if pte == nil {
		return -1, ErrBadAddress
	}
	if err := m.handleFaultLocked(as, vpn); err != nil {
		if errors.Is(err, errSpaceGone) {
			return -1, ErrReleased
		}
		return -1, err
	}
	pte.Used = true
	return pte.PFN, nil
}

// Read copies virtual memory starting at vaddr into data. It returns the
// number of bytes copied, which is short when the range runs past the
// end of the space.
func (as *AddressSpace) Read(vaddr int, data []byte) (int, error) {
	return as.Copy(FromUser, vaddr, data, 0, len(data))
}

// Write copies data into virtual memory starting at vaddr. It stops
// short at the end of the space or at a read-only page.
func (as *AddressSpace) Write(vaddr int, data []byte) (int, error) {
	return as.Copy(ToUser, vaddr, data, 0, len(data))
}

// Copy moves length bytes between buf[offset:] and virtual memory at
// vaddr, one page at a time, faulting pages in as it goes. A short count
// with a nil error means the transfer reached memory it may not touch;
// the only error from a page that cannot be loaded is a *LoadError.
func (as *AddressSpace) Copy(dir Direction, vaddr int, buf []byte, offset, length int) (int, error) {
	if offset < 0 || length < 0 || offset+length > len(buf) {
		return 0, ErrInvalidBuffer
	}

	pageSize := as.m.opts.PageSize
	if length == 0 || vaddr < 0 || vaddr >= as.Size() {
		return 0, nil
	}

	write := dir == ToUser
	firstVPN := vaddr / pageSize
	lastVPN := (vaddr + length - 1) / pageSize
	n := 0

	for vpn := firstVPN; vpn <= lastVPN; vpn++ {
		if vpn >= as.table.Len() {
			break
		}

		pfn, ok, err := as.pinPage(vpn, write)
		if err != nil {
			return n, err
		}
		if !ok {
			break
		}

		start := 0
		if vpn == firstVPN {
			start = vaddr % pageSize
		}
		end := pageSize
		if vpn == lastVPN {
			end = (vaddr+length-1)%pageSize + 1
		}

		frame := as.m.phys.Frame(pfn)
		if write {
			copy(frame[start:end], buf[offset+n:])
		} else {
			copy(buf[offset+n:], frame[start:end])
		}
		n += end - start

		as.m.unpin(pfn)
	}

	return n, nil
}

// pinPage makes vpn resident, updates its reference and dirty bits and
// pins its frame for the duration of one copy. Returns false when the
// page cannot be serviced.
func (as *AddressSpace) pinPage(vpn int, write bool) (int, bool, error) {
	m := as.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if as.released || m.closed {
		return -1, false, nil
	}

	pte := as.table.Entry(vpn)
	if write && pte.ReadOnly {
		return -1, false, nil
	}

	if err := m.handleFaultLocked(as, vpn); err != nil {
		if errors.Is(err, errSpaceGone) {
			return -1, false, nil
		}
		return -1, false, err
	}

	pte.Used = true
	if write {
		pte.Dirty = true
		as.stats.Writes++
	} else {
		as.stats.Reads++
	}

	m.pinLocked(pte.PFN)
	return pte.PFN, true, nil
}
