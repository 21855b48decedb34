// Package types holds the address types shared across the consolidator.
package types

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Address HRP (human-readable part) constants for bech32 encoding.
const (
	MainnetHRP = "addr"
	TestnetHRP = "addr_test"
)

// SourceAddress is a derived wallet address that can donate its solutions.
type SourceAddress struct {
	Index  int    `json:"index"`
	Bech32 string `json:"bech32"`
}

func (s SourceAddress) String() string {
	return fmt.Sprintf("#%d %s", s.Index, s.Bech32)
}

// EncodeAddress encodes payload bytes as a bech32 address with the given HRP.
func EncodeAddress(hrp string, payload []byte) (string, error) {
	conv, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert bits: %w", err)
	}
	s, err := bech32.Encode(hrp, conv)
	if err != nil {
		return "", fmt.Errorf("bech32 encode: %w", err)
	}
	return s, nil
}

// ParseAddress validates a bech32 address and returns its HRP and payload.
// Payment addresses exceed the BIP-173 90 character limit, so the length
// check is skipped.
func ParseAddress(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil, fmt.Errorf("empty address")
	}
	hrp, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return "", nil, fmt.Errorf("invalid bech32 address: %w", err)
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("invalid address payload: %w", err)
	}
	return hrp, payload, nil
}

// ValidAddress reports whether s parses as a bech32 address.
func ValidAddress(s string) bool {
	_, _, err := ParseAddress(s)
	return err == nil
}

// Preview shortens long values (addresses, signatures) for logs.
// Values up to n characters are returned unchanged.
func Preview(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
