package helpers

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// TxIDHexLen is the length of a hex-encoded transaction id.
const TxIDHexLen = 64

// IsTxID reports whether s looks like a hex-encoded 32-byte transaction id.
func IsTxID(s string) bool {
	if len(s) != TxIDHexLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// HexToBytes converts a hex string (with or without 0x prefix) to bytes.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

// Zero overwrites a byte slice with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
