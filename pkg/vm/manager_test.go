// pkg/vm/manager_test.go
package vm

import (
	"errors"
	"testing"
)

type recordingObserver struct {
	events []FaultEvent
}

func (r *recordingObserver) ObserveFault(ev FaultEvent) {
	r.events = append(r.events, ev)
}

func TestManager_FifthCodePageEvictsFirst(t *testing.T) {
	m := newTestManager(t, 64, 4)
	code := &testSection{first: 0, pages: 5, fill: 'A', readOnly: true}
	as := newTestSpace(t, m, 1, DemandPaged, testImage{code}, 5)

	for vpn := 0; vpn < 4; vpn++ {
		touch(t, as, vpn)
	}
	if st := m.Stats(); st.Evictions != 0 || st.FreeFrames != 0 {
		t.Fatalf("after 4 touches: evictions=%d free=%d", st.Evictions, st.FreeFrames)
	}

	touch(t, as, 4)

	st := m.Stats()
	if st.Evictions != 1 {
		t.Fatalf("expected exactly one eviction, got %d", st.Evictions)
	}
	if st.SwapOuts != 0 {
		t.Errorf("clean code page should not be swapped out, got %d swap-outs", st.SwapOuts)
	}

	entries := as.Entries()
	if entries[0].Valid {
		t.Error("first-touched page should have been evicted")
	}
	for vpn := 1; vpn < 5; vpn++ {
		if !entries[vpn].Valid {
			t.Errorf("page %d should still be resident", vpn)
		}
	}
	mustVerify(t, m)
}

func TestManager_CleanVictimReloadsFromImage(t *testing.T) {
	m := newTestManager(t, 64, 2)
	code := &testSection{first: 0, pages: 3, fill: 'a', readOnly: true}
	as := newTestSpace(t, m, 1, DemandPaged, testImage{code}, 3)

	for round := 0; round < 3; round++ {
		for vpn := 0; vpn < 3; vpn++ {
			if got := touch(t, as, vpn); got != 'a'+byte(vpn) {
				t.Fatalf("round %d page %d: expected %q, got %q", round, vpn, 'a'+byte(vpn), got)
			}
		}
	}

	if code.loads <= 3 {
		t.Errorf("evicted code pages should be reloaded, got %d loads", code.loads)
	}
	if st := m.Stats(); st.SwapOuts != 0 || st.Swap.Slots != 0 {
		t.Errorf("clean pages must not reach swap: swap-outs=%d slots=%d", st.SwapOuts, st.Swap.Slots)
	}
}

func TestManager_DirtyPageSurvivesSwap(t *testing.T) {
	m := newTestManager(t, 64, 2)
	as := newTestSpace(t, m, 1, DemandPaged, nil, 6)

	for vpn := 0; vpn < 6; vpn++ {
		data := pattern(64, byte(vpn*16))
		if n, err := as.Write(vpn*64, data); err != nil || n != 64 {
			t.Fatalf("write page %d: n=%d err=%v", vpn, n, err)
		}
	}

	// Twice, so swapped-in pages are evicted again.
	for round := 0; round < 2; round++ {
		for _, vpn := range []int{0, 3, 1, 5, 2, 4} {
			buf := make([]byte, 64)
			if n, err := as.Read(vpn*64, buf); err != nil || n != 64 {
				t.Fatalf("read page %d: n=%d err=%v", vpn, n, err)
			}
			equalBytes(t, "page content", buf, pattern(64, byte(vpn*16)))
		}
	}

	st := m.Stats()
	if st.SwapOuts == 0 || st.SwapIns == 0 {
		t.Errorf("expected swap traffic, got out=%d in=%d", st.SwapOuts, st.SwapIns)
	}
	if held := st.Swap.Slots - st.Swap.FreeSlots; held != as.Stats().Swapped {
		t.Errorf("held slots %d != swapped pages %d", held, as.Stats().Swapped)
	}
	mustVerify(t, m)
}

func TestManager_SwapInFreesSlot(t *testing.T) {
	m := newTestManager(t, 64, 2)
	as := newTestSpace(t, m, 1, DemandPaged, nil, 3)

	as.Write(0, []byte("dirty"))
	touch(t, as, 1)
	touch(t, as, 2)

	entries := as.Entries()
	if !entries[0].Swapped() {
		t.Fatalf("page 0 should be in swap: %+v", entries[0])
	}
	if st := m.Stats(); st.Swap.Slots-st.Swap.FreeSlots != 1 {
		t.Fatalf("expected one held slot, got %d", st.Swap.Slots-st.Swap.FreeSlots)
	}

	buf := make([]byte, 5)
	as.Read(0, buf)
	equalBytes(t, "swapped page", buf, []byte("dirty"))

	entries = as.Entries()
	if !entries[0].Resident() || entries[0].Swapped() {
		t.Errorf("page 0 should be resident without a slot: %+v", entries[0])
	}
	if !entries[0].Dirty {
		t.Error("a swapped-in page holds the only copy and must stay dirty")
	}
	if st := m.Stats(); st.Swap.FreeSlots != st.Swap.Slots {
		t.Errorf("slot should be free after swap-in: %+v", st.Swap)
	}
}

func TestManager_ObserverSeesEvictions(t *testing.T) {
	obs := &recordingObserver{}
	m, err := New(Options{PageSize: 64, Frames: 1, Observer: obs})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer m.Close()

	code := &testSection{first: 0, pages: 1, fill: 'x', readOnly: true}
	as := newTestSpace(t, m, 9, DemandPaged, testImage{code}, 2)

	touch(t, as, 0)
	as.Write(64, []byte{1})
	touch(t, as, 0)
	touch(t, as, 1)

	if len(obs.events) != 4 {
		t.Fatalf("expected 4 fault events, got %d", len(obs.events))
	}
	sources := []FaultSource{SourceImage, SourceZero, SourceImage, SourceSwap}
	for i, ev := range obs.events {
		if ev.Source != sources[i] {
			t.Errorf("event %d: expected source %v, got %v", i, sources[i], ev.Source)
		}
		if ev.Space != 9 || ev.PFN != 0 {
			t.Errorf("event %d: unexpected target %+v", i, ev)
		}
	}
	if obs.events[0].Evicted {
		t.Error("first fault had a free frame")
	}
	if ev := obs.events[2]; !ev.Evicted || ev.VictimVPN != 1 || !ev.SwappedOut {
		t.Errorf("third fault should swap out page 1: %+v", ev)
	}
}

func TestManager_DuplicateSpace(t *testing.T) {
	m := newTestManager(t, 64, 4)
	newTestSpace(t, m, 3, DemandPaged, nil, 1)

	if _, err := m.NewAddressSpace(3, DemandPaged, nil, 1); !errors.Is(err, ErrDuplicateSpace) {
		t.Errorf("expected ErrDuplicateSpace, got %v", err)
	}
}

func TestManager_MalformedImage(t *testing.T) {
	m := newTestManager(t, 64, 4)

	tests := []struct {
		name     string
		sections testImage
		pages    int
	}{
		{"beyond end", testImage{&testSection{first: 2, pages: 2}}, 3},
		{"overlap", testImage{&testSection{first: 0, pages: 2}, &testSection{first: 1, pages: 1}}, 4},
		{"negative start", testImage{&testSection{first: -1, pages: 1}}, 4},
		{"no pages", nil, 0},
		{"past page limit", nil, DefaultMaxPages + 1},
		{"huge bss", testImage{&testSection{first: 0, pages: 1 << 29}}, 1<<29 + 9},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.NewAddressSpace(ID(100+i), DemandPaged, tt.sections, tt.pages)
			var le *LoadError
			if !errors.As(err, &le) || !errors.Is(err, ErrMalformedImage) {
				t.Errorf("expected LoadError wrapping ErrMalformedImage, got %v", err)
			}
		})
	}
}

func TestManager_MaxPagesOption(t *testing.T) {
	m, err := New(Options{PageSize: 64, Frames: 4, MaxPages: 8})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer m.Close()

	if _, err := m.NewAddressSpace(1, DemandPaged, nil, 9); !errors.Is(err, ErrMalformedImage) {
		t.Errorf("9 pages: expected ErrMalformedImage, got %v", err)
	}
	if _, err := m.NewAddressSpace(2, DemandPaged, nil, 8); err != nil {
		t.Errorf("8 pages: %v", err)
	}
	if st := m.Stats(); st.Spaces != 1 {
		t.Errorf("expected 1 live space, got %d", st.Spaces)
	}
}

func TestManager_LoadErrorReturnsFrame(t *testing.T) {
	m := newTestManager(t, 64, 2)
	bad := &testSection{first: 1, pages: 1, fail: true}
	as := newTestSpace(t, m, 1, DemandPaged, testImage{bad}, 2)

	buf := make([]byte, 80)
	n, err := as.Read(0, buf)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoadError, got %v", err)
	}
	if le.VPN != 1 || le.Space != 1 {
		t.Errorf("LoadError names the wrong page: %+v", le)
	}
	if n != 64 {
		t.Errorf("bytes before the failing page should be counted, got %d", n)
	}

	if st := m.Stats(); st.FreeFrames != 1 {
		t.Errorf("failed fault must not leak its frame: free=%d", st.FreeFrames)
	}
	mustVerify(t, m)
}

func TestManager_IdentityMapped(t *testing.T) {
	m := newTestManager(t, 64, 4)
	code := &testSection{first: 0, pages: 2, fill: 'k', readOnly: true}
	id := newTestSpace(t, m, 1, IdentityMapped, testImage{code}, 3)

	if st := m.Stats(); st.FreeFrames != 1 || st.Faults != 0 {
		t.Fatalf("identity space should take all frames up front: %+v", st)
	}

	paged := newTestSpace(t, m, 2, DemandPaged, nil, 4)
	for round := 0; round < 2; round++ {
		for vpn := 0; vpn < 4; vpn++ {
			paged.Write(vpn*64, []byte{byte(vpn)})
		}
	}

	for vpn, pte := range id.Entries() {
		if !pte.Valid {
			t.Errorf("wired page %d was evicted", vpn)
		}
	}
	if got := touch(t, id, 1); got != 'k'+1 {
		t.Errorf("identity page 1: expected %q, got %q", 'k'+1, got)
	}
	if id.Stats().Faults != 0 {
		t.Error("identity-mapped access must not fault")
	}
	for _, info := range m.FrameTable() {
		if info.Owner == 1 && !info.Wired {
			t.Errorf("frame %d of the identity space is not wired", info.PFN)
		}
	}
	mustVerify(t, m)

	if _, err := m.NewAddressSpace(3, IdentityMapped, nil, 2); !errors.Is(err, ErrInsufficientMemory) {
		t.Errorf("expected ErrInsufficientMemory, got %v", err)
	}
}

func TestManager_AllWiredIsFatal(t *testing.T) {
	m := newTestManager(t, 64, 2)
	newTestSpace(t, m, 1, IdentityMapped, nil, 2)
	paged := newTestSpace(t, m, 2, DemandPaged, nil, 1)

	expectPanic(t, ErrNoEvictableFrame, func() {
		paged.Read(0, make([]byte, 1))
	})
}

func TestManager_CloseReleasesEverything(t *testing.T) {
	m, err := New(Options{PageSize: 64, Frames: 2})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	as := newTestSpace(t, m, 1, DemandPaged, nil, 3)
	as.Write(0, pattern(192, 1))

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if !as.Released() {
		t.Error("Close should release live spaces")
	}
	if _, err := m.NewAddressSpace(2, DemandPaged, nil, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
