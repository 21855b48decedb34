package wallet

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// SeedSize is the length of a derived seed in bytes (512 bits).
const SeedSize = 64

// SeedFromMnemonic derives the BIP-39 seed (PBKDF2-SHA512) for a mnemonic.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if err := CheckMnemonic(mnemonic); err != nil {
		return nil, err
	}
	seed, err := bip39.NewSeedWithErrorChecking(NormalizeMnemonic(mnemonic), passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}
