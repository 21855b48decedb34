package wallet

import (
	"fmt"

	"github.com/Klingon-tech/night-consolidator/pkg/crypto"
	"github.com/Klingon-tech/night-consolidator/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// Derivation path constants.
// Full path: m/1852'/1815'/account'/role/index
const (
	PurposeShelley = bip32.FirstHardenedChild + 1852
	CoinTypeNight  = bip32.FirstHardenedChild + 1815

	// RoleExternal is the payment chain that reward addresses live on.
	RoleExternal = 0
)

// AddressPayloadSize is the number of key-hash bytes in an address payload.
const AddressPayloadSize = 28

// HDKey represents a hierarchical deterministic key (BIP-32).
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master HD key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// DerivePath derives a key along a sequence of indices.
// For hardened steps add bip32.FirstHardenedChild to the index.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k.key
	for _, idx := range indices {
		child, err := current.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
		current = child
	}
	return &HDKey{key: current}, nil
}

// DeriveIndex derives the reward key for address index on account 0.
func (k *HDKey) DeriveIndex(index int) (*HDKey, error) {
	if index < 0 {
		return nil, fmt.Errorf("negative address index %d", index)
	}
	return k.DerivePath(
		PurposeShelley,
		CoinTypeNight,
		bip32.FirstHardenedChild,
		RoleExternal,
		uint32(index),
	)
}

// PrivateKey returns the secp256k1 signing key. Fails for public-only keys.
func (k *HDKey) PrivateKey() (*crypto.PrivateKey, error) {
	if !k.key.IsPrivate {
		return nil, fmt.Errorf("cannot sign with a public key")
	}
	// bip32 stores private keys with a leading 0x00 pad byte.
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return crypto.PrivateKeyFromBytes(raw)
}

// PublicKeyBytes returns the compressed 33-byte public key.
func (k *HDKey) PublicKeyBytes() []byte {
	return k.key.PublicKey().Key
}

// Address encodes this key as a bech32 address under hrp.
// Payload = first 28 bytes of BLAKE3(compressed_pubkey).
func (k *HDKey) Address(hrp string) (string, error) {
	return types.EncodeAddress(hrp, crypto.KeyHash(k.PublicKeyBytes(), AddressPayloadSize))
}
