// pkg/vm/image.go
package vm

// Section is one loadable region of an executable image.
type Section interface {
	// FirstVPN is the virtual page the section starts at.
	FirstVPN() int

	// Length is the number of pages in the section.
	Length() int

	// ReadOnly reports whether user writes to the section are refused.
	ReadOnly() bool

	// LoadPage fills frame with page index of the section.
	LoadPage(index int, frame []byte) error
}

// Image is an executable whose sections back the code and data pages of
// an address space. Pages not covered by a section are zero-filled.
type Image interface {
	Sections() []Section
}

// sectionFor returns the section covering vpn and the page index within it.
func sectionFor(sections []Section, vpn int) (Section, int, bool) {
	for _, s := range sections {
		first := s.FirstVPN()
		if vpn >= first && vpn < first+s.Length() {
			return s, vpn - first, true
		}
	}
	return nil, 0, false
}

// validateSections checks that every section fits within numPages and
// that no two sections overlap.
func validateSections(sections []Section, numPages int) error {
	covered := make([]bool, numPages)
	for _, s := range sections {
		first, length := s.FirstVPN(), s.Length()
		if first < 0 || length < 0 || first+length > numPages {
			return ErrMalformedImage
		}
		for vpn := first; vpn < first+length; vpn++ {
			if covered[vpn] {
				return ErrMalformedImage
			}
			covered[vpn] = true
		}
	}
	return nil
}
