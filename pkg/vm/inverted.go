// pkg/vm/inverted.go
package vm

import "fmt"

// InvertedEntry names the page currently occupying a frame. Owner is a
// lookup reference only; the address space owns its page table.
type InvertedEntry struct {
	Owner *AddressSpace
	VPN   int
}

// InvertedPageTable maps each physical frame back to the (owner, vpn)
// resident in it.
type InvertedPageTable struct {
	entries []InvertedEntry
}

// NewInvertedPageTable creates an empty table for frames frames
func NewInvertedPageTable(frames int) *InvertedPageTable {
	return &InvertedPageTable{entries: make([]InvertedEntry, frames)}
}

// Set records that vpn of owner occupies pfn. Setting an occupied frame panics.
func (t *InvertedPageTable) Set(pfn int, owner *AddressSpace, vpn int) {
	if t.entries[pfn].Owner != nil {
		cur := t.entries[pfn]
		panic(fmt.Errorf("vm: frame %d already holds space %d page %d: %w",
			pfn, cur.Owner.id, cur.VPN, ErrInconsistent))
	}
	t.entries[pfn] = InvertedEntry{Owner: owner, VPN: vpn}
}

// Clear removes the entry for pfn. Clearing an empty frame panics.
func (t *InvertedPageTable) Clear(pfn int) {
	if t.entries[pfn].Owner == nil {
		panic(fmt.Errorf("vm: frame %d has no owner: %w", pfn, ErrInconsistent))
	}
	t.entries[pfn] = InvertedEntry{}
}

// Lookup returns the entry for pfn.
// Returns false if the frame holds no page.
func (t *InvertedPageTable) Lookup(pfn int) (InvertedEntry, bool) {
	if pfn < 0 || pfn >= len(t.entries) {
		return InvertedEntry{}, false
	}
	e := t.entries[pfn]
	return e, e.Owner != nil
}

// Len returns the number of frames covered
func (t *InvertedPageTable) Len() int {
	return len(t.entries)
}
