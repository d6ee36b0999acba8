// pkg/pager/storage.go
package pager

import (
	"errors"
	"fmt"
)

// ErrBadGeometry is returned when a store is asked for a non-positive
// page size or a negative page count.
var ErrBadGeometry = errors.New("invalid storage geometry")

// Storage is a resizable array of equally sized pages. Physical memory
// lives in a MemoryStorage; swap lives in a MappedFile or a MemoryStorage.
type Storage interface {
	PageSize() int
	Pages() int

	// Page returns page n, or nil if n is out of range. The slice aliases
	// the store and is invalidated by Extend and Close.
	Page(n int) []byte

	// Extend appends pages zeroed pages.
	Extend(pages int) error

	Sync() error
	Close() error
}

// pageArray indexes a flat byte region in pageSize units.
type pageArray struct {
	buf      []byte
	pageSize int
}

// PageSize returns the page size in bytes
func (a *pageArray) PageSize() int {
	return a.pageSize
}

// Pages returns the number of whole pages in the region
func (a *pageArray) Pages() int {
	if a.pageSize <= 0 {
		return 0
	}
	return len(a.buf) / a.pageSize
}

// Page returns page n with its capacity clipped to the page.
func (a *pageArray) Page(n int) []byte {
	if n < 0 || n >= a.Pages() {
		return nil
	}
	lo := n * a.pageSize
	hi := lo + a.pageSize
	return a.buf[lo:hi:hi]
}

func checkGeometry(pageSize, pages int) error {
	if pageSize <= 0 || pages < 0 {
		return fmt.Errorf("%w: %d pages of %d bytes", ErrBadGeometry, pages, pageSize)
	}
	return nil
}

// MemoryStorage keeps its pages on the Go heap.
type MemoryStorage struct {
	pageArray
}

// NewMemoryStorage allocates pages zeroed pages of pageSize bytes.
func NewMemoryStorage(pageSize, pages int) (*MemoryStorage, error) {
	if err := checkGeometry(pageSize, pages); err != nil {
		return nil, err
	}
	return &MemoryStorage{pageArray{
		buf:      make([]byte, pages*pageSize),
		pageSize: pageSize,
	}}, nil
}

// Extend reallocates the region with room for pages more pages
func (m *MemoryStorage) Extend(pages int) error {
	if pages <= 0 {
		return nil
	}
	buf := make([]byte, len(m.buf)+pages*m.pageSize)
	copy(buf, m.buf)
	m.buf = buf
	return nil
}

// Sync does nothing; heap pages have no backing file.
func (m *MemoryStorage) Sync() error {
	return nil
}

// Close drops the region. Pages returns 0 afterwards.
func (m *MemoryStorage) Close() error {
	m.buf = nil
	return nil
}
