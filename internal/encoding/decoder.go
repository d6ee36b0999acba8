// internal/encoding/decoder.go
package encoding

import "fmt"

// Decoder reads a sequence of varint and byte-string fields. The first
// error sticks and later reads return zero values.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder creates a decoder over buf
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Uint reads one varint
func (d *Decoder) Uint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := Varint(d.buf[d.off:])
	if err != nil {
		d.err = fmt.Errorf("offset %d: %w", d.off, err)
		return 0
	}
	d.off += n
	return v
}

// Int reads one varint that must fit in max
func (d *Decoder) Int(max int) int {
	v := d.Uint()
	if d.err == nil && v > uint64(max) {
		d.err = fmt.Errorf("offset %d: value %d exceeds %d", d.off, v, max)
		return 0
	}
	return int(v)
}

// Bytes reads a length-prefixed byte string of at most max bytes. The
// result aliases the input.
func (d *Decoder) Bytes(max int) []byte {
	n := d.Int(max)
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.buf) {
		d.err = fmt.Errorf("offset %d: %w", d.off, ErrTruncated)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

// Offset returns the number of bytes consumed
func (d *Decoder) Offset() int {
	return d.off
}

// Err returns the first error encountered
func (d *Decoder) Err() error {
	return d.err
}

// AppendBytes appends b with a varint length prefix
func AppendBytes(dst, b []byte) []byte {
	dst = AppendVarint(dst, uint64(len(b)))
	return append(dst, b...)
}
