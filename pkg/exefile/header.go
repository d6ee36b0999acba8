// pkg/exefile/header.go
// Package exefile implements the executable image format loaded into
// address spaces: a fixed header, a section table and page-aligned
// section data.
package exefile

import (
	"encoding/binary"
	"errors"
)

const (
	// HeaderSize is the size of the fixed file header in bytes.
	HeaderSize = 24

	// MagicString identifies an executable image. It must be exactly 8 bytes.
	MagicString = "VMKEXE\x00\x01"

	// MaxNameLen bounds section names.
	MaxNameLen = 64

	// MaxSections bounds the section table.
	MaxSections = 1024

	// MaxImagePages bounds the virtual pages a section table may cover.
	MaxImagePages = 1 << 16
)

// Header field offsets
const (
	offsetMagic        = 0  // 8 bytes: magic string
	offsetPageSize     = 8  // 4 bytes: page size the image was built for
	offsetEntryPoint   = 12 // 4 bytes: initial program counter
	offsetSectionCount = 16 // 4 bytes: number of section table entries
	offsetTableSize    = 20 // 4 bytes: section table size in bytes
)

// Section flags
const (
	FlagReadOnly   uint8 = 1 << 0
	FlagExecutable uint8 = 1 << 1
)

// Errors
var (
	ErrInvalidMagic    = errors.New("invalid magic string: not an executable image")
	ErrHeaderTooShort  = errors.New("header data too short")
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrBadSection      = errors.New("bad section table entry")
)

// Header is the fixed part of an image file.
type Header struct {
	PageSize     uint32 // Page size in bytes (power of 2)
	EntryPoint   uint32 // Virtual address execution starts at
	SectionCount uint32 // Number of section table entries
	TableSize    uint32 // Encoded section table length
}

// Encode serializes the header to HeaderSize bytes.
func (h *Header) Encode() []byte {
	data := make([]byte, HeaderSize)
	copy(data[offsetMagic:], MagicString)
	binary.LittleEndian.PutUint32(data[offsetPageSize:], h.PageSize)
	binary.LittleEndian.PutUint32(data[offsetEntryPoint:], h.EntryPoint)
	binary.LittleEndian.PutUint32(data[offsetSectionCount:], h.SectionCount)
	binary.LittleEndian.PutUint32(data[offsetTableSize:], h.TableSize)
	return data
}

// DecodeHeader parses and validates a header.
func DecodeHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrHeaderTooShort
	}
	if string(data[offsetMagic:offsetMagic+len(MagicString)]) != MagicString {
		return nil, ErrInvalidMagic
	}

	h := &Header{
		PageSize:     binary.LittleEndian.Uint32(data[offsetPageSize:]),
		EntryPoint:   binary.LittleEndian.Uint32(data[offsetEntryPoint:]),
		SectionCount: binary.LittleEndian.Uint32(data[offsetSectionCount:]),
		TableSize:    binary.LittleEndian.Uint32(data[offsetTableSize:]),
	}
	if h.PageSize == 0 || h.PageSize&(h.PageSize-1) != 0 {
		return nil, ErrInvalidPageSize
	}
	if h.SectionCount > MaxSections {
		return nil, ErrBadSection
	}
	return h, nil
}
