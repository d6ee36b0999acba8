// pkg/pager/storage_test.go
package pager

import (
	"errors"
	"testing"
)

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*MappedFile)(nil)
)

func TestMemoryStorage_Geometry(t *testing.T) {
	tests := []struct {
		name     string
		pageSize int
		pages    int
		wantErr  bool
	}{
		{"typical", 1024, 32, false},
		{"empty", 64, 0, false},
		{"zero page size", 0, 4, true},
		{"negative pages", 64, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms, err := NewMemoryStorage(tt.pageSize, tt.pages)
			if tt.wantErr {
				if !errors.Is(err, ErrBadGeometry) {
					t.Fatalf("expected ErrBadGeometry, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewMemoryStorage: %v", err)
			}
			if ms.Pages() != tt.pages || ms.PageSize() != tt.pageSize {
				t.Errorf("got %d pages of %d bytes", ms.Pages(), ms.PageSize())
			}
		})
	}
}

func TestMemoryStorage_PagesAreDisjoint(t *testing.T) {
	ms, err := NewMemoryStorage(16, 4)
	if err != nil {
		t.Fatal(err)
	}

	for n := 0; n < 4; n++ {
		p := ms.Page(n)
		if len(p) != 16 || cap(p) != 16 {
			t.Fatalf("page %d: len %d cap %d", n, len(p), cap(p))
		}
		for i := range p {
			p[i] = byte(n + 1)
		}
	}

	// Appending to a page must not spill into its neighbour.
	_ = append(ms.Page(1), 0xFF)

	for n := 0; n < 4; n++ {
		for i, b := range ms.Page(n) {
			if b != byte(n+1) {
				t.Fatalf("page %d byte %d = %d", n, i, b)
			}
		}
	}
}

func TestMemoryStorage_PageOutOfRange(t *testing.T) {
	ms, _ := NewMemoryStorage(16, 2)
	for _, n := range []int{-1, 2, 100} {
		if ms.Page(n) != nil {
			t.Errorf("Page(%d) should be nil", n)
		}
	}
}

func TestMemoryStorage_ExtendKeepsContent(t *testing.T) {
	ms, _ := NewMemoryStorage(8, 2)
	copy(ms.Page(1), "slot-one")

	if err := ms.Extend(3); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if ms.Pages() != 5 {
		t.Fatalf("expected 5 pages, got %d", ms.Pages())
	}
	if string(ms.Page(1)) != "slot-one" {
		t.Errorf("page 1 = %q after extend", ms.Page(1))
	}
	for _, b := range ms.Page(4) {
		if b != 0 {
			t.Fatal("new page is not zeroed")
		}
	}

	if err := ms.Extend(0); err != nil || ms.Pages() != 5 {
		t.Errorf("Extend(0) changed the store: %d pages, err %v", ms.Pages(), err)
	}
}

func TestMemoryStorage_Close(t *testing.T) {
	ms, _ := NewMemoryStorage(8, 2)
	if err := ms.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := ms.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ms.Pages() != 0 || ms.Page(0) != nil {
		t.Error("closed store still exposes pages")
	}
}
