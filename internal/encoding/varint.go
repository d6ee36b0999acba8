// internal/encoding/varint.go
// Package encoding holds the compact integer codec used by the
// executable image section table.
package encoding

import "errors"

// MaxVarintLen is the longest encoding of a uint64
const MaxVarintLen = 10

// ErrTruncated is returned when input ends inside a value
var ErrTruncated = errors.New("encoding: truncated varint")

// ErrOverflow is returned when a value does not fit in 64 bits
var ErrOverflow = errors.New("encoding: varint overflows uint64")

// VarintLen returns the number of bytes AppendVarint writes for v
func VarintLen(v uint64) int {
	n := 1
	for v >>= 7; v > 0; v >>= 7 {
		n++
	}
	return n
}

// AppendVarint appends v as 7-bit groups, most significant first, with
// the high bit set on every byte but the last.
func AppendVarint(dst []byte, v uint64) []byte {
	n := VarintLen(v)
	for i := n - 1; i >= 0; i-- {
		b := byte(v>>(uint(i)*7)) & 0x7f
		if i > 0 {
			b |= 0x80
		}
		dst = append(dst, b)
	}
	return dst
}

// Varint decodes one value from the front of buf and returns it with
// the number of bytes consumed.
func Varint(buf []byte) (uint64, int, error) {
	var v uint64
	for n := 0; n < len(buf); n++ {
		if n == MaxVarintLen || v>>57 != 0 {
			return 0, 0, ErrOverflow
		}
		b := buf[n]
		v = v<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return v, n + 1, nil
		}
	}
	return 0, 0, ErrTruncated
}
