package wallet

import (
	"fmt"
	"time"

	"github.com/Klingon-tech/night-consolidator/pkg/types"
)

// AddressEntry is a derived address recorded in the wallet file so it can be
// listed without the password.
type AddressEntry struct {
	Index     int       `json:"index"`
	Bech32    string    `json:"bech32"`
	PublicKey string    `json:"public_key"` // hex, compressed
	CreatedAt time.Time `json:"created_at"`
}

// Source converts the entry to the address type used by consolidation runs.
func (a AddressEntry) Source() types.SourceAddress {
	return types.SourceAddress{Index: a.Index, Bech32: a.Bech32}
}

// deriveEntries derives addresses [from, from+count) from the master key.
func deriveEntries(master *HDKey, hrp string, from, count int) ([]AddressEntry, error) {
	now := time.Now().UTC()
	out := make([]AddressEntry, 0, count)
	for i := from; i < from+count; i++ {
		key, err := master.DeriveIndex(i)
		if err != nil {
			return nil, err
		}
		addr, err := key.Address(hrp)
		if err != nil {
			return nil, fmt.Errorf("encode address %d: %w", i, err)
		}
		out = append(out, AddressEntry{
			Index:     i,
			Bech32:    addr,
			PublicKey: fmt.Sprintf("%x", key.PublicKeyBytes()),
			CreatedAt: now,
		})
	}
	return out, nil
}
