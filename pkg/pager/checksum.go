// pkg/pager/checksum.go
package pager

import (
	"fmt"
	"hash/crc32"
)

// CorruptionError reports swap content that no longer matches the checksum
// recorded when it was written.
type CorruptionError struct {
	Slot        SlotID
	ExpectedCRC uint32
	ActualCRC   uint32
	Message     string
}

// Error implements the error interface
func (e *CorruptionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("swap slot %d corruption: %s", e.Slot, e.Message)
	}
	return fmt.Sprintf("swap slot %d corruption: expected CRC %08x, got %08x",
		e.Slot, e.ExpectedCRC, e.ActualCRC)
}

// PageChecksum calculates a CRC32 checksum over a whole page
func PageChecksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// VerifyPageChecksum compares page data against an expected checksum
func VerifyPageChecksum(slot SlotID, data []byte, expected uint32) *CorruptionError {
	actual := PageChecksum(data)
	if actual != expected {
		return &CorruptionError{
			Slot:        slot,
			ExpectedCRC: expected,
			ActualCRC:   actual,
		}
	}
	return nil
}
