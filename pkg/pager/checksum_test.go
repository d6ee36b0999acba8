// pkg/pager/checksum_test.go
package pager

import (
	"strings"
	"testing"
)

func TestVerifyPageChecksum(t *testing.T) {
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	sum := PageChecksum(data)

	if err := VerifyPageChecksum(1, data, sum); err != nil {
		t.Fatalf("unexpected corruption: %v", err)
	}

	data[500] ^= 0xFF
	err := VerifyPageChecksum(1, data, sum)
	if err == nil {
		t.Fatal("expected corruption after flipping a byte")
	}
	if err.ExpectedCRC != sum {
		t.Errorf("ExpectedCRC: expected %08x, got %08x", sum, err.ExpectedCRC)
	}
	if !strings.Contains(err.Error(), "swap slot 1") {
		t.Errorf("error should name the slot, got %q", err.Error())
	}
}
