//go:build !windows

// pkg/pager/mmap_unix.go
package pager

import "golang.org/x/sys/unix"

const invalidFd = ^uintptr(0)

func (m *MappedFile) mapFile(size int) error {
	buf, err := unix.Mmap(int(m.file.Fd()), 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	m.buf = buf
	return nil
}

// MAP_SHARED writes reach the file only after msync.
func (m *MappedFile) flush() error {
	return unix.Msync(m.buf, unix.MS_SYNC)
}

func (m *MappedFile) unmap() error {
	if m.buf == nil {
		return nil
	}
	if err := m.flush(); err != nil {
		return err
	}
	err := unix.Munmap(m.buf)
	m.buf = nil
	return err
}
