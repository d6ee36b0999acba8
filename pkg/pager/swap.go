// pkg/pager/swap.go
package pager

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

const (
	// DefaultPageSize matches the page size of the simulated processor.
	DefaultPageSize = 1024

	// DefaultInitialSlots is the number of slots created with the swap file.
	DefaultInitialSlots = 100
)

// SlotID indexes a page-sized slot of swap storage.
type SlotID int32

// NoSlot marks a page that holds no swap slot.
const NoSlot SlotID = -1

var (
	ErrSwapLocked       = errors.New("swap file is locked by another kernel")
	ErrSwapExhausted    = errors.New("swap space exhausted")
	ErrSwapClosed       = errors.New("swap store is closed")
	ErrSlotDoubleFree   = errors.New("swap slot freed twice")
	ErrSlotNotAllocated = errors.New("swap slot not allocated")
	ErrBadPageBuffer    = errors.New("buffer length does not match page size")
)

// SwapOptions configures a SwapStore
type SwapOptions struct {
	PageSize     int    // Slot size in bytes (default 1024)
	Path         string // Backing file; empty keeps swap in memory
	InitialSlots int    // Slots created with the backing store (default 100)
	MaxSlots     int    // Upper bound on slots; 0 means unbounded
	KeepFile     bool   // Leave the backing file on disk after Close
}

// SwapStats describes swap usage
type SwapStats struct {
	Slots     int
	FreeSlots int
	Reads     int64
	Writes    int64
	FreeRuns  []SlotRun
}

// SwapStore is page-granular backing storage for evicted pages. The
// backing store is created on first allocation and grows on demand.
type SwapStore struct {
	mu       sync.Mutex
	opts     SwapOptions
	storage  Storage
	file     *MappedFile
	closed   bool
	slots    int
	free     *SlotQueue
	owned    []bool
	checksum []uint32
	reads    int64
	writes   int64
}

// NewSwapStore creates a swap store. Nothing is allocated until the
// first call to AllocSlot.
func NewSwapStore(opts SwapOptions) *SwapStore {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.InitialSlots <= 0 {
		opts.InitialSlots = DefaultInitialSlots
	}
	if opts.MaxSlots > 0 && opts.InitialSlots > opts.MaxSlots {
		opts.InitialSlots = opts.MaxSlots
	}

	return &SwapStore{
		opts: opts,
		free: NewSlotQueue(),
	}
}

// PageSize returns the slot size
func (s *SwapStore) PageSize() int {
	return s.opts.PageSize
}

// open creates the backing store with the initial slot count.
// Must be called while holding the lock
func (s *SwapStore) open() error {
	if s.opts.Path == "" {
		storage, err := NewMemoryStorage(s.opts.PageSize, s.opts.InitialSlots)
		if err != nil {
			return err
		}
		s.storage = storage
	} else {
		// Content left by an earlier run is never read: a slot is
		// written before it is read and checksums live in memory.
		mf, err := OpenMappedFile(s.opts.Path, s.opts.PageSize, s.opts.InitialSlots)
		if err != nil {
			return fmt.Errorf("swap: create %s: %w", s.opts.Path, err)
		}
		s.file = mf
		s.storage = mf
	}

	s.addSlots(s.opts.InitialSlots)
	return nil
}

// addSlots registers count new slots at the end of the store
func (s *SwapStore) addSlots(count int) {
	for i := 0; i < count; i++ {
		slot := SlotID(s.slots)
		s.slots++
		s.owned = append(s.owned, false)
		s.checksum = append(s.checksum, 0)
		s.free.Push(slot)
	}
}

// grow extends the store by at least one slot, following the pager's
// policy of growing by 10% or to the required size.
// Must be called while holding the lock
func (s *SwapStore) grow() error {
	if s.opts.MaxSlots > 0 && s.slots >= s.opts.MaxSlots {
		return fmt.Errorf("%w: %d slots in use", ErrSwapExhausted, s.slots)
	}

	add := s.slots / 10
	if add < 1 {
		add = 1
	}
	if s.opts.MaxSlots > 0 && s.slots+add > s.opts.MaxSlots {
		add = s.opts.MaxSlots - s.slots
	}

	if err := s.storage.Extend(add); err != nil {
		return fmt.Errorf("swap: grow to %d slots: %w", s.slots+add, err)
	}

	s.addSlots(add)
	return nil
}

// AllocSlot hands out the oldest freed slot, extending the store when
// none is free.
func (s *SwapStore) AllocSlot() (SlotID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NoSlot, ErrSwapClosed
	}

	if s.storage == nil {
		if err := s.open(); err != nil {
			return NoSlot, err
		}
	}

	if s.free.Len() == 0 {
		if err := s.grow(); err != nil {
			return NoSlot, err
		}
	}

	slot, ok := s.free.Pop()
	if !ok {
		return NoSlot, ErrSwapExhausted
	}
	s.owned[slot] = true
	return slot, nil
}

// slotData returns the bytes of an owned slot.
// Must be called while holding the lock
func (s *SwapStore) slotData(slot SlotID) ([]byte, error) {
	if s.closed {
		return nil, ErrSwapClosed
	}
	if slot < 0 || int(slot) >= s.slots || !s.owned[slot] {
		return nil, fmt.Errorf("%w: slot %d", ErrSlotNotAllocated, slot)
	}

	data := s.storage.Page(int(slot))
	if data == nil {
		return nil, &CorruptionError{Slot: slot, Message: "slot lies outside the backing store"}
	}
	return data, nil
}

// Write stores one page of content in the slot
func (s *SwapStore) Write(slot SlotID, page []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(page) != s.opts.PageSize {
		return ErrBadPageBuffer
	}

	data, err := s.slotData(slot)
	if err != nil {
		return err
	}

	copy(data, page)
	s.checksum[slot] = PageChecksum(page)
	s.writes++
	return nil
}

// Read copies the slot content into page and verifies it against the
// checksum recorded by Write.
func (s *SwapStore) Read(slot SlotID, page []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(page) != s.opts.PageSize {
		return ErrBadPageBuffer
	}

	data, err := s.slotData(slot)
	if err != nil {
		return err
	}

	copy(page, data)
	s.reads++

	if cerr := VerifyPageChecksum(slot, page, s.checksum[slot]); cerr != nil {
		return cerr
	}
	return nil
}

// FreeSlot returns a slot to the tail of the free-list
func (s *SwapStore) FreeSlot(slot SlotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot < 0 || int(slot) >= s.slots {
		return fmt.Errorf("%w: slot %d", ErrSlotNotAllocated, slot)
	}
	if !s.owned[slot] {
		return fmt.Errorf("%w: slot %d", ErrSlotDoubleFree, slot)
	}

	s.owned[slot] = false
	s.checksum[slot] = 0
	s.free.Push(slot)
	return nil
}

// Owned reports whether the slot is currently allocated
func (s *SwapStore) Owned(slot SlotID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slot >= 0 && int(slot) < s.slots && s.owned[slot]
}

// Stats returns statistics about swap usage
func (s *SwapStore) Stats() SwapStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SwapStats{
		Slots:     s.slots,
		FreeSlots: s.free.Len(),
		Reads:     s.reads,
		Writes:    s.writes,
		FreeRuns:  s.free.Runs(),
	}
}

// Sync flushes the backing store
func (s *SwapStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.storage == nil || s.closed {
		return nil
	}
	return s.storage.Sync()
}

// Close releases the backing store and removes the swap file unless
// KeepFile was set.
func (s *SwapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.storage == nil {
		return nil
	}

	err := s.storage.Close()
	if s.file != nil && !s.opts.KeepFile {
		if rerr := os.Remove(s.opts.Path); err == nil {
			err = rerr
		}
	}

	s.storage = nil
	s.file = nil
	return err
}
