//go:build windows

// pkg/pager/mmap_windows.go
package pager

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

const invalidFd = uintptr(windows.InvalidHandle)

func (m *MappedFile) mapFile(size int) error {
	h, err := windows.CreateFileMapping(windows.Handle(m.file.Fd()), nil,
		windows.PAGE_READWRITE, uint32(uint64(size)>>32), uint32(size), nil)
	if err != nil {
		return err
	}

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE,
		0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return err
	}

	m.handle = uintptr(h)
	m.buf = unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return nil
}

func (m *MappedFile) base() uintptr {
	return uintptr(unsafe.Pointer(&m.buf[0]))
}

func (m *MappedFile) flush() error {
	return windows.FlushViewOfFile(m.base(), uintptr(len(m.buf)))
}

// unmap closes the view and then the mapping object; the file can only
// be resized once both are gone.
func (m *MappedFile) unmap() error {
	var err error
	if len(m.buf) > 0 {
		if err := m.flush(); err != nil {
			return err
		}
		err = windows.UnmapViewOfFile(m.base())
		m.buf = nil
	}
	if m.handle != 0 {
		if cerr := windows.CloseHandle(windows.Handle(m.handle)); err == nil {
			err = cerr
		}
		m.handle = 0
	}
	return err
}
