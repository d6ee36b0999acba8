// pkg/proc/process.go
// Package proc runs executable images on top of the memory manager. A
// Process is the same type whether its memory is demand-paged or
// identity-mapped; only the AddressSpace behind it differs.
package proc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"vmkern/pkg/vm"
)

// AddressSpace is the memory capability a process runs on.
type AddressSpace interface {
	ID() vm.ID
	Kind() vm.Kind
	PageSize() int
	NumPages() int
	Read(vaddr int, data []byte) (int, error)
	Write(vaddr int, data []byte) (int, error)
	Stats() vm.SpaceStats
	Release()
}

var _ AddressSpace = (*vm.AddressSpace)(nil)

// Executable is an image that can be spawned
type Executable interface {
	vm.Image
	PageSize() int
	EntryPoint() uint32
}

// Options configures Spawn
type Options struct {
	Kind       vm.Kind
	StackPages int // Stack pages (default 8)
}

// Process is a loaded program and its memory.
type Process struct {
	name   string
	args   []string
	space  AddressSpace
	layout Layout
	entry  uint32
}

// Spawn lays out img, creates its address space under pid and writes
// args into the argument page.
func Spawn(m *vm.Manager, pid vm.ID, name string, img Executable, args []string, opts Options) (*Process, error) {
	if img.PageSize() != m.PageSize() {
		return nil, fmt.Errorf("%s: %w: image %d, kernel %d", name, ErrPageSizeMismatch, img.PageSize(), m.PageSize())
	}

	layout, err := PlanLayout(img.Sections(), m.PageSize(), opts.StackPages, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	space, err := m.NewAddressSpace(pid, opts.Kind, img, layout.NumPages)
	if err != nil {
		return nil, err
	}

	p := &Process{
		name:   name,
		args:   append([]string(nil), args...),
		space:  space,
		layout: layout,
		entry:  img.EntryPoint(),
	}
	if err := p.writeArgs(); err != nil {
		space.Release()
		return nil, err
	}
	return p, nil
}

func (p *Process) writeArgs() error {
	if len(p.args) == 0 {
		return nil
	}
	page := encodeArgs(p.layout.ArgvAddr, p.args, p.layout.ArgsSize)
	n, err := p.space.Write(p.layout.ArgvAddr, page)
	if err != nil {
		return err
	}
	if n != len(page) {
		return fmt.Errorf("%s: argument page accepted %d of %d bytes", p.name, n, len(page))
	}
	return nil
}

// PID returns the process id
func (p *Process) PID() vm.ID { return p.space.ID() }

// Name returns the executable name
func (p *Process) Name() string { return p.name }

// Space returns the address space
func (p *Process) Space() AddressSpace { return p.space }

// Layout returns the memory plan
func (p *Process) Layout() Layout { return p.layout }

// EntryPoint returns the initial program counter
func (p *Process) EntryPoint() uint32 { return p.entry }

// InitialSP returns the initial stack pointer: the top of the stack
func (p *Process) InitialSP() int { return p.layout.InitialSP }

// Argv returns argc and the address of the argv array
func (p *Process) Argv() (int, int) { return len(p.args), p.layout.ArgvAddr }

// ReadMemory copies from virtual memory into data
func (p *Process) ReadMemory(vaddr int, data []byte) (int, error) {
	return p.space.Read(vaddr, data)
}

// WriteMemory copies data into virtual memory
func (p *Process) WriteMemory(vaddr int, data []byte) (int, error) {
	return p.space.Write(vaddr, data)
}

// ReadString reads a NUL-terminated string of at most maxLen bytes at
// vaddr. Returns false if no terminator is found within maxLen+1 bytes.
func (p *Process) ReadString(vaddr, maxLen int) (string, bool) {
	if maxLen < 0 {
		return "", false
	}
	buf := make([]byte, maxLen+1)
	n, err := p.space.Read(vaddr, buf)
	if err != nil {
		return "", false
	}
	if i := bytes.IndexByte(buf[:n], 0); i >= 0 {
		return string(buf[:i]), true
	}
	return "", false
}

// Args reads argv back out of the process's memory
func (p *Process) Args(maxLen int) ([]string, error) {
	argc, argv := p.Argv()
	if argc == 0 {
		return nil, nil
	}

	ptrs := make([]byte, argc*argPointerSize)
	if n, err := p.space.Read(argv, ptrs); err != nil {
		return nil, err
	} else if n != len(ptrs) {
		return nil, fmt.Errorf("argv: read %d of %d bytes", n, len(ptrs))
	}

	out := make([]string, argc)
	for i := range out {
		addr := int(binary.LittleEndian.Uint32(ptrs[i*argPointerSize:]))
		s, ok := p.ReadString(addr, maxLen)
		if !ok {
			return nil, fmt.Errorf("argv[%d] at %#x: unterminated", i, addr)
		}
		out[i] = s
	}
	return out, nil
}

// Exit releases the process's memory
func (p *Process) Exit() {
	p.space.Release()
}
