package securedfinance

import (
	"bytes"
	"fmt"
)

// StringToBytes32 encodes a currency symbol the way the protocol stores it:
// left-aligned and zero padded.
func StringToBytes32(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) > len(out) {
		return out, fmt.Errorf("securedfinance: %q longer than 32 bytes", s)
	}
	copy(out[:], s)
	return out, nil
}

// Bytes32ToString decodes a zero padded currency symbol.
func Bytes32ToString(b [32]byte) string {
	return string(bytes.TrimRight(b[:], "\x00"))
}
