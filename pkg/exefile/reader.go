// pkg/exefile/reader.go
package exefile

import (
	"fmt"
	"io"
	"os"

	"vmkern/internal/encoding"
	"vmkern/pkg/vm"
)

// Section is one section table entry. It loads pages straight from the
// image file.
type Section struct {
	r        io.ReaderAt
	pageSize int
	name     string
	firstVPN int
	pages    int
	offset   int64
	size     int64
	flags    uint8
	cache    *PageCache
}

var _ vm.Section = (*Section)(nil)

// Name returns the section name
func (s *Section) Name() string { return s.name }

// FirstVPN returns the page the section is mapped at
func (s *Section) FirstVPN() int { return s.firstVPN }

// Length returns the number of pages
func (s *Section) Length() int { return s.pages }

// ReadOnly reports whether writes to the section are refused
func (s *Section) ReadOnly() bool { return s.flags&FlagReadOnly != 0 }

// Executable reports whether the section holds code
func (s *Section) Executable() bool { return s.flags&FlagExecutable != 0 }

// Size returns the number of file bytes backing the section; the rest of
// its last page is zero.
func (s *Section) Size() int64 { return s.size }

// LoadPage fills frame with page index of the section.
func (s *Section) LoadPage(index int, frame []byte) error {
	if index < 0 || index >= s.pages {
		return fmt.Errorf("section %s: page %d out of range", s.name, index)
	}
	if len(frame) != s.pageSize {
		return fmt.Errorf("section %s: frame is %d bytes, image pages are %d", s.name, len(frame), s.pageSize)
	}

	start := int64(index) * int64(s.pageSize)
	if start >= s.size {
		clear(frame)
		return nil
	}

	key := pageKey{s, index}
	if s.cache != nil && s.cache.get(key, frame) {
		return nil
	}

	clear(frame)
	n := min(int64(s.pageSize), s.size-start)
	if _, err := s.r.ReadAt(frame[:n], s.offset+start); err != nil {
		return fmt.Errorf("section %s: read page %d: %w", s.name, index, err)
	}
	if s.cache != nil {
		s.cache.put(key, frame)
	}
	return nil
}

// Reader is an opened executable image. It implements vm.Image.
type Reader struct {
	name     string
	header   *Header
	sections []*Section
	closer   io.Closer
}

var _ vm.Image = (*Reader)(nil)

// Open opens the image at path. The file stays open until Close.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	r, err := NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("exefile: %s: %w", path, err)
	}
	r.name = path
	r.closer = f
	return r, nil
}

// NewReader parses an image held in r. size is the image length.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	buf := make([]byte, HeaderSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		if err == io.EOF {
			return nil, ErrHeaderTooShort
		}
		return nil, err
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if int64(HeaderSize)+int64(h.TableSize) > size {
		return nil, fmt.Errorf("%w: table runs past end of file", ErrBadSection)
	}

	table := make([]byte, h.TableSize)
	if len(table) > 0 {
		if _, err := r.ReadAt(table, HeaderSize); err != nil {
			return nil, err
		}
	}

	d := encoding.NewDecoder(table)
	sections := make([]*Section, 0, h.SectionCount)
	for i := 0; i < int(h.SectionCount); i++ {
		s := &Section{
			r:        r,
			pageSize: int(h.PageSize),
			name:     string(d.Bytes(MaxNameLen)),
			firstVPN: d.Int(MaxImagePages),
			pages:    d.Int(MaxImagePages),
			offset:   int64(d.Uint()),
			size:     int64(d.Uint()),
			flags:    uint8(d.Int(0xff)),
		}
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("%w %d: %v", ErrBadSection, i, err)
		}
		if s.firstVPN+s.pages > MaxImagePages {
			return nil, fmt.Errorf("%w %d (%s): pages %d..%d exceed %d", ErrBadSection, i, s.name, s.firstVPN, s.firstVPN+s.pages, MaxImagePages)
		}
		if s.size > int64(s.pages)*int64(s.pageSize) {
			return nil, fmt.Errorf("%w %d (%s): %d bytes do not fit in %d pages", ErrBadSection, i, s.name, s.size, s.pages)
		}
		if s.offset < 0 || s.size < 0 || s.offset > size-s.size {
			return nil, fmt.Errorf("%w %d (%s): data runs past end of file", ErrBadSection, i, s.name)
		}
		sections = append(sections, s)
	}

	return &Reader{header: h, sections: sections}, nil
}

// SetCache routes page loads through pc. Pass nil to read the file
// every time.
func (r *Reader) SetCache(pc *PageCache) {
	for _, s := range r.sections {
		s.cache = pc
	}
}

// Name returns the path the image was opened from
func (r *Reader) Name() string { return r.name }

// PageSize returns the page size the image was built for
func (r *Reader) PageSize() int { return int(r.header.PageSize) }

// EntryPoint returns the initial program counter
func (r *Reader) EntryPoint() uint32 { return r.header.EntryPoint }

// Sections returns the sections in table order.
func (r *Reader) Sections() []vm.Section {
	out := make([]vm.Section, len(r.sections))
	for i, s := range r.sections {
		out[i] = s
	}
	return out
}

// SectionTable returns the concrete section entries
func (r *Reader) SectionTable() []*Section {
	return r.sections
}

// Close releases the underlying file. Sections must not be loaded after
// Close.
func (r *Reader) Close() error {
	if len(r.sections) > 0 && r.sections[0].cache != nil {
		r.sections[0].cache.forget(r.sections)
	}
	r.SetCache(nil)
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
