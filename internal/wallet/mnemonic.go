// Package wallet implements the HD wallet that signs donation messages.
package wallet

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// MnemonicEntropyBits is the entropy size for 24-word mnemonics.
const MnemonicEntropyBits = 256

// validWordCounts are the BIP-39 mnemonic lengths accepted on import.
var validWordCounts = map[int]bool{12: true, 15: true, 18: true, 21: true, 24: true}

// GenerateMnemonic creates a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// NormalizeMnemonic collapses whitespace so pasted phrases compare equal.
func NormalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(mnemonic), " ")
}

// CheckMnemonic validates word count, words and checksum, returning a
// descriptive error for the first problem found.
func CheckMnemonic(mnemonic string) error {
	words := strings.Fields(mnemonic)
	if !validWordCounts[len(words)] {
		return fmt.Errorf("seed phrase must be 12, 15, 18, 21, or 24 words, got %d", len(words))
	}
	if !bip39.IsMnemonicValid(NormalizeMnemonic(mnemonic)) {
		return fmt.Errorf("invalid mnemonic checksum or word")
	}
	return nil
}

// ValidateMnemonic reports whether mnemonic passes CheckMnemonic.
func ValidateMnemonic(mnemonic string) bool {
	return CheckMnemonic(mnemonic) == nil
}
