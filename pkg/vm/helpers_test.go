// pkg/vm/helpers_test.go
package vm

import (
	"bytes"
	"errors"
	"testing"
)

// testSection is an in-memory section whose page i is filled with fill+i.
type testSection struct {
	first    int
	pages    int
	fill     byte
	readOnly bool
	fail     bool
	loads    int
}

func (s *testSection) FirstVPN() int  { return s.first }
func (s *testSection) Length() int    { return s.pages }
func (s *testSection) ReadOnly() bool { return s.readOnly }

func (s *testSection) LoadPage(index int, frame []byte) error {
	if s.fail {
		return errors.New("section data truncated")
	}
	s.loads++
	for i := range frame {
		frame[i] = s.fill + byte(index)
	}
	return nil
}

type testImage []Section

func (img testImage) Sections() []Section { return img }

func newTestManager(t *testing.T, pageSize, frames int) *Manager {
	t.Helper()
	m, err := New(Options{PageSize: pageSize, Frames: frames, SwapInitialSlots: 4})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func newTestSpace(t *testing.T, m *Manager, id ID, kind Kind, img Image, pages int) *AddressSpace {
	t.Helper()
	as, err := m.NewAddressSpace(id, kind, img, pages)
	if err != nil {
		t.Fatalf("NewAddressSpace(%d) failed: %v", id, err)
	}
	return as
}

func mustVerify(t *testing.T, m *Manager) {
	t.Helper()
	for _, e := range m.Verify() {
		t.Errorf("integrity: %v", e)
	}
}

func touch(t *testing.T, as *AddressSpace, vpn int) byte {
	t.Helper()
	buf := make([]byte, 1)
	n, err := as.Read(vpn*as.PageSize(), buf)
	if err != nil || n != 1 {
		t.Fatalf("touch page %d: n=%d err=%v", vpn, n, err)
	}
	return buf[0]
}

func pattern(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i*7)
	}
	return out
}

func expectPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic wrapping %v", target)
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, target) {
			t.Fatalf("expected panic wrapping %v, got %v", target, r)
		}
	}()
	fn()
}

func equalBytes(t *testing.T, what string, got, want []byte) {
	t.Helper()
	if !bytes.Equal(got, want) {
		t.Errorf("%s: content mismatch\n got  %v\n want %v", what, got, want)
	}
}
