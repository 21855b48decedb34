package wallet

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/night-consolidator/internal/log"
)

// DonationMessage is the text each source address signs to assign its
// accumulated rewards to destination.
func DonationMessage(destination string) string {
	return "Assign accumulated Scavenger rights to: " + destination
}

// Signer signs donation messages with keys from one keystore wallet.
type Signer struct {
	ks   *Keystore
	name string
}

// NewSigner returns a signer for the named wallet.
func NewSigner(ks *Keystore, name string) *Signer {
	return &Signer{ks: ks, name: name}
}

// Addresses lists the wallet's derived addresses.
func (s *Signer) Addresses() ([]AddressEntry, error) {
	return s.ks.Addresses(s.name)
}

// BatchSign unlocks the wallet once and signs DonationMessage(destination)
// with the key of every index. It fails fast: a wrong password returns
// ErrAuthentication and any derivation or signing error aborts the batch.
func (s *Signer) BatchSign(ctx context.Context, password string, indices []int, destination string) (map[int]string, error) {
	defer log.Benchmark("wallet.batch_sign")()

	mnemonic, err := s.ks.Load(s.name, []byte(password))
	if err != nil {
		return nil, err
	}
	master, err := masterFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("restore wallet keys: %w", err)
	}

	msg := []byte(DonationMessage(destination))
	sigs := make(map[int]string, len(indices))
	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := sigs[idx]; ok {
			continue
		}
		key, err := master.DeriveIndex(idx)
		if err != nil {
			return nil, fmt.Errorf("derive index %d: %w", idx, err)
		}
		priv, err := key.PrivateKey()
		if err != nil {
			return nil, fmt.Errorf("key for index %d: %w", idx, err)
		}
		sig, err := priv.SignMessageHex(msg)
		priv.Zero()
		if err != nil {
			return nil, fmt.Errorf("sign index %d: %w", idx, err)
		}
		sigs[idx] = sig
	}

	log.Wallet.Debug().Str("wallet", s.name).Int("signatures", len(sigs)).Msg("Signed donation messages")
	return sigs, nil
}
