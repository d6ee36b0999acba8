// pkg/exefile/builder.go
package exefile

import (
	"fmt"
	"os"

	"vmkern/internal/encoding"
)

type builderSection struct {
	name     string
	firstVPN int
	pages    int
	data     []byte
	flags    uint8
}

// Builder assembles an image in memory.
type Builder struct {
	pageSize int
	entry    uint32
	nextVPN  int
	sections []builderSection
}

// NewBuilder creates a builder for pageSize-byte pages
func NewBuilder(pageSize int, entry uint32) *Builder {
	return &Builder{pageSize: pageSize, entry: entry}
}

// AddSection appends a section right after the previous one, sized to
// hold data.
func (b *Builder) AddSection(name string, data []byte, flags uint8) *Builder {
	pages := (len(data) + b.pageSize - 1) / b.pageSize
	if pages == 0 {
		pages = 1
	}
	return b.AddSectionAt(name, b.nextVPN, pages, data, flags)
}

// AddSectionAt places a section at an explicit page. Images with gaps
// can be built but will not load.
func (b *Builder) AddSectionAt(name string, firstVPN, pages int, data []byte, flags uint8) *Builder {
	b.sections = append(b.sections, builderSection{
		name:     name,
		firstVPN: firstVPN,
		pages:    pages,
		data:     data,
		flags:    flags,
	})
	if end := firstVPN + pages; end > b.nextVPN {
		b.nextVPN = end
	}
	return b
}

// Bytes encodes the image. Section data follows the table, each section
// starting on a page boundary of the file.
func (b *Builder) Bytes() ([]byte, error) {
	if b.pageSize <= 0 || b.pageSize&(b.pageSize-1) != 0 {
		return nil, ErrInvalidPageSize
	}
	if len(b.sections) > MaxSections {
		return nil, fmt.Errorf("%w: %d sections", ErrBadSection, len(b.sections))
	}

	// Offsets depend on the table size, which depends on the offsets.
	// Iterate until stable.
	offsets := make([]int64, len(b.sections))
	var table []byte
	for {
		table = table[:0]
		for i, s := range b.sections {
			if len(s.name) > MaxNameLen {
				return nil, fmt.Errorf("%w: name %q too long", ErrBadSection, s.name)
			}
			if len(s.data) > s.pages*b.pageSize {
				return nil, fmt.Errorf("%w: %s holds %d bytes in %d pages", ErrBadSection, s.name, len(s.data), s.pages)
			}
			table = encoding.AppendBytes(table, []byte(s.name))
			table = encoding.AppendVarint(table, uint64(s.firstVPN))
			table = encoding.AppendVarint(table, uint64(s.pages))
			table = encoding.AppendVarint(table, uint64(offsets[i]))
			table = encoding.AppendVarint(table, uint64(len(s.data)))
			table = encoding.AppendVarint(table, uint64(s.flags))
		}

		changed := false
		off := b.align(int64(HeaderSize + len(table)))
		for i, s := range b.sections {
			if offsets[i] != off {
				offsets[i] = off
				changed = true
			}
			off = b.align(off + int64(len(s.data)))
		}
		if !changed {
			break
		}
	}

	h := Header{
		PageSize:     uint32(b.pageSize),
		EntryPoint:   b.entry,
		SectionCount: uint32(len(b.sections)),
		TableSize:    uint32(len(table)),
	}

	out := append(h.Encode(), table...)
	for i, s := range b.sections {
		if pad := offsets[i] - int64(len(out)); pad > 0 {
			out = append(out, make([]byte, pad)...)
		}
		out = append(out, s.data...)
	}
	return out, nil
}

// WriteFile encodes the image to path
func (b *Builder) WriteFile(path string) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (b *Builder) align(off int64) int64 {
	ps := int64(b.pageSize)
	return (off + ps - 1) / ps * ps
}
