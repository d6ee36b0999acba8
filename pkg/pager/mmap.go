// pkg/pager/mmap.go
package pager

import (
	"fmt"
	"os"
)

// MappedFile is a Storage backed by a shared memory mapping of a file.
// The platform files supply mapFile, flush and unmap.
type MappedFile struct {
	pageArray
	path   string
	file   *os.File
	handle uintptr // file-mapping object; windows only
}

// OpenMappedFile locks path exclusively, sizes it to hold pages pages
// and maps it read-write. Whatever the file held before is discarded.
// Returns ErrSwapLocked if another process holds the lock.
func OpenMappedFile(path string, pageSize, pages int) (*MappedFile, error) {
	if err := checkGeometry(pageSize, pages); err != nil {
		return nil, err
	}
	if pages == 0 {
		return nil, fmt.Errorf("%w: cannot map an empty file", ErrBadGeometry)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lockFd(f.Fd()); err != nil {
		f.Close()
		return nil, err
	}

	m := &MappedFile{
		pageArray: pageArray{pageSize: pageSize},
		path:      path,
		file:      f,
	}
	if err := m.mapPages(pages); err != nil {
		unlockFd(f.Fd())
		f.Close()
		return nil, err
	}
	return m, nil
}

// mapPages sizes the file to exactly pages pages and maps all of it.
// The file must not be mapped.
func (m *MappedFile) mapPages(pages int) error {
	size := int64(pages) * int64(m.pageSize)
	if err := m.file.Truncate(size); err != nil {
		return fmt.Errorf("pager: resize %s: %w", m.path, err)
	}
	if err := m.mapFile(int(size)); err != nil {
		return fmt.Errorf("pager: map %s: %w", m.path, err)
	}
	return nil
}

// Path returns the mapped file's path
func (m *MappedFile) Path() string {
	return m.path
}

// Fd returns the descriptor used for advisory locking
func (m *MappedFile) Fd() uintptr {
	if m.file == nil {
		return invalidFd
	}
	return m.file.Fd()
}

// Extend flushes and unmaps the file, grows it and maps it again.
func (m *MappedFile) Extend(pages int) error {
	if pages <= 0 {
		return nil
	}
	total := m.Pages() + pages
	if err := m.unmap(); err != nil {
		return err
	}
	return m.mapPages(total)
}

// Sync writes dirty mapped pages back to the file
func (m *MappedFile) Sync() error {
	if len(m.buf) == 0 {
		return nil
	}
	return m.flush()
}

// Close flushes and unmaps the file, then drops the lock and closes it.
// It is safe to call twice.
func (m *MappedFile) Close() error {
	if m.file == nil {
		return nil
	}
	err := m.unmap()
	if uerr := unlockFd(m.file.Fd()); err == nil {
		err = uerr
	}
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	m.file = nil
	return err
}
