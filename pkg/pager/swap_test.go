// pkg/pager/swap_test.go
package pager

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func fill(pageSize int, b byte) []byte {
	return bytes.Repeat([]byte{b}, pageSize)
}

func TestSwapStore_RoundTrip(t *testing.T) {
	s := NewSwapStore(SwapOptions{PageSize: 256, InitialSlots: 2})
	defer s.Close()

	slot, err := s.AllocSlot()
	if err != nil {
		t.Fatalf("AllocSlot failed: %v", err)
	}

	if err := s.Write(slot, fill(256, 0xAB)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got := make([]byte, 256)
	if err := s.Read(slot, got); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, fill(256, 0xAB)) {
		t.Error("read content differs from written content")
	}
}

func TestSwapStore_LazyCreationAndFileRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swap.bin")

	s := NewSwapStore(SwapOptions{PageSize: 512, Path: path, InitialSlots: 4})

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("swap file should not exist before first allocation")
	}

	slot, err := s.AllocSlot()
	if err != nil {
		t.Fatalf("AllocSlot failed: %v", err)
	}
	if err := s.Write(slot, fill(512, 7)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("swap file should exist after allocation: %v", err)
	}
	if info.Size() != 4*512 {
		t.Errorf("expected file size %d, got %d", 4*512, info.Size())
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("swap file should be removed on Close")
	}
}

func TestSwapStore_ExclusiveLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swap.bin")

	first := NewSwapStore(SwapOptions{PageSize: 512, Path: path})
	defer first.Close()
	if _, err := first.AllocSlot(); err != nil {
		t.Fatalf("AllocSlot failed: %v", err)
	}

	second := NewSwapStore(SwapOptions{PageSize: 512, Path: path, KeepFile: true})
	defer second.Close()
	if _, err := second.AllocSlot(); !errors.Is(err, ErrSwapLocked) {
		t.Fatalf("expected ErrSwapLocked, got %v", err)
	}
}

func TestSwapStore_FIFOReuse(t *testing.T) {
	s := NewSwapStore(SwapOptions{PageSize: 64, InitialSlots: 3})
	defer s.Close()

	a, _ := s.AllocSlot()
	b, _ := s.AllocSlot()
	c, _ := s.AllocSlot()
	if a != 0 || b != 1 || c != 2 {
		t.Fatalf("expected slots 0,1,2 got %d,%d,%d", a, b, c)
	}

	if err := s.FreeSlot(c); err != nil {
		t.Fatal(err)
	}
	if err := s.FreeSlot(a); err != nil {
		t.Fatal(err)
	}

	first, _ := s.AllocSlot()
	second, _ := s.AllocSlot()
	if first != c || second != a {
		t.Errorf("expected reuse order %d,%d got %d,%d", c, a, first, second)
	}
}

func TestSwapStore_GrowsOnDemand(t *testing.T) {
	s := NewSwapStore(SwapOptions{PageSize: 64, InitialSlots: 1})
	defer s.Close()

	for i := 0; i < 5; i++ {
		slot, err := s.AllocSlot()
		if err != nil {
			t.Fatalf("AllocSlot %d failed: %v", i, err)
		}
		if int(slot) != i {
			t.Errorf("expected slot %d, got %d", i, slot)
		}
		if err := s.Write(slot, fill(64, byte(i))); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	// Content written before growth survives it.
	got := make([]byte, 64)
	if err := s.Read(0, got); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, fill(64, 0)) {
		t.Error("slot 0 content lost after growth")
	}

	stats := s.Stats()
	if stats.Slots != 5 || stats.FreeSlots != 0 {
		t.Errorf("expected 5 slots, 0 free, got %+v", stats)
	}
}

func TestSwapStore_MaxSlots(t *testing.T) {
	s := NewSwapStore(SwapOptions{PageSize: 64, InitialSlots: 1, MaxSlots: 2})
	defer s.Close()

	for i := 0; i < 2; i++ {
		if _, err := s.AllocSlot(); err != nil {
			t.Fatalf("AllocSlot %d failed: %v", i, err)
		}
	}
	if _, err := s.AllocSlot(); !errors.Is(err, ErrSwapExhausted) {
		t.Fatalf("expected ErrSwapExhausted, got %v", err)
	}
}

func TestSwapStore_DoubleFree(t *testing.T) {
	s := NewSwapStore(SwapOptions{PageSize: 64})
	defer s.Close()

	slot, _ := s.AllocSlot()
	if err := s.FreeSlot(slot); err != nil {
		t.Fatalf("first FreeSlot failed: %v", err)
	}
	if err := s.FreeSlot(slot); !errors.Is(err, ErrSlotDoubleFree) {
		t.Fatalf("expected ErrSlotDoubleFree, got %v", err)
	}
}

func TestSwapStore_RejectsUnownedSlot(t *testing.T) {
	s := NewSwapStore(SwapOptions{PageSize: 64})
	defer s.Close()

	slot, _ := s.AllocSlot()
	s.FreeSlot(slot)

	if err := s.Write(slot, fill(64, 1)); !errors.Is(err, ErrSlotNotAllocated) {
		t.Errorf("Write to a free slot: expected ErrSlotNotAllocated, got %v", err)
	}
	if err := s.Read(slot, make([]byte, 64)); !errors.Is(err, ErrSlotNotAllocated) {
		t.Errorf("Read of a free slot: expected ErrSlotNotAllocated, got %v", err)
	}
	if err := s.Write(slot, make([]byte, 10)); !errors.Is(err, ErrBadPageBuffer) {
		t.Errorf("short buffer: expected ErrBadPageBuffer, got %v", err)
	}
}

func TestSwapStore_DetectsCorruption(t *testing.T) {
	s := NewSwapStore(SwapOptions{PageSize: 64})
	defer s.Close()

	slot, _ := s.AllocSlot()
	s.Write(slot, fill(64, 9))

	// Damage the backing bytes behind the store's back.
	s.storage.Page(int(slot))[3] = 0

	err := s.Read(slot, make([]byte, 64))
	var cerr *CorruptionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CorruptionError, got %v", err)
	}
	if cerr.Slot != slot {
		t.Errorf("expected slot %d in error, got %d", slot, cerr.Slot)
	}
}

func TestSwapStore_ClosedStore(t *testing.T) {
	s := NewSwapStore(SwapOptions{PageSize: 64})
	s.Close()

	if _, err := s.AllocSlot(); !errors.Is(err, ErrSwapClosed) {
		t.Fatalf("expected ErrSwapClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}
