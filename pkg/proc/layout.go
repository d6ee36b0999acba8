// pkg/proc/layout.go
package proc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"vmkern/pkg/vm"
)

// DefaultStackPages is the stack size given to a process
const DefaultStackPages = 8

// argPointerSize is the width of one argv entry
const argPointerSize = 4

var (
	ErrFragmentedImage  = errors.New("executable sections are not contiguous from page 0")
	ErrArgsTooLong      = errors.New("arguments do not fit in one page")
	ErrPageSizeMismatch = errors.New("executable built for a different page size")
)

// Layout is the virtual memory plan for one process: sections from page
// 0, then the stack, then a single argument page.
type Layout struct {
	SectionPages int
	StackPages   int
	NumPages     int
	InitialSP    int
	ArgvAddr     int
	ArgsSize     int
}

// PlanLayout checks that sections are contiguous from page 0 and that
// args fit in one page, and returns the resulting layout.
func PlanLayout(sections []vm.Section, pageSize, stackPages int, args []string) (Layout, error) {
	if stackPages <= 0 {
		stackPages = DefaultStackPages
	}

	sectionPages := 0
	for _, s := range sections {
		if s.FirstVPN() != sectionPages {
			return Layout{}, fmt.Errorf("%w: section at page %d, expected %d",
				ErrFragmentedImage, s.FirstVPN(), sectionPages)
		}
		sectionPages += s.Length()
	}

	argsSize := 0
	for _, a := range args {
		argsSize += argPointerSize + len(a) + 1
	}
	if argsSize > pageSize {
		return Layout{}, fmt.Errorf("%w: %d bytes, page is %d", ErrArgsTooLong, argsSize, pageSize)
	}

	numPages := sectionPages + stackPages + 1
	return Layout{
		SectionPages: sectionPages,
		StackPages:   stackPages,
		NumPages:     numPages,
		InitialSP:    (sectionPages + stackPages) * pageSize,
		ArgvAddr:     (numPages - 1) * pageSize,
		ArgsSize:     argsSize,
	}, nil
}

// encodeArgs lays out argv as it appears in the argument page at base:
// one little-endian pointer per argument followed by the NUL-terminated
// strings they point at.
func encodeArgs(base int, args []string, size int) []byte {
	page := make([]byte, size)
	ptr := 0
	str := len(args) * argPointerSize
	for _, a := range args {
		binary.LittleEndian.PutUint32(page[ptr:], uint32(base+str))
		ptr += argPointerSize
		str += copy(page[str:], a)
		page[str] = 0
		str++
	}
	return page
}
