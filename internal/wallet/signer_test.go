package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/Klingon-tech/night-consolidator/pkg/crypto"
)

func testSigner(t *testing.T) (*Signer, []AddressEntry) {
	t.Helper()
	ks := testKeystore(t)
	entries, err := ks.Create("main", testMnemonic12, []byte("pw"), 4, fastParams())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return NewSigner(ks, "main"), entries
}

func TestDonationMessage(t *testing.T) {
	got := DonationMessage("addr1xyz")
	if got != "Assign accumulated Scavenger rights to: addr1xyz" {
		t.Errorf("DonationMessage() = %q", got)
	}
}

func TestSigner_BatchSign(t *testing.T) {
	s, entries := testSigner(t)
	dest := "addr1destination"

	sigs, err := s.BatchSign(context.Background(), "pw", []int{0, 2, 3}, dest)
	if err != nil {
		t.Fatalf("BatchSign() error: %v", err)
	}
	if len(sigs) != 3 {
		t.Fatalf("signatures = %d, want 3", len(sigs))
	}
	if _, ok := sigs[1]; ok {
		t.Error("index 1 was not requested")
	}

	msg := []byte(DonationMessage(dest))
	for _, idx := range []int{0, 2, 3} {
		pub, err := hex.DecodeString(entries[idx].PublicKey)
		if err != nil {
			t.Fatalf("decode public key: %v", err)
		}
		if !crypto.VerifyMessageHex(msg, sigs[idx], pub) {
			t.Errorf("signature for index %d does not verify", idx)
		}
	}
}

func TestSigner_BatchSign_BoundToDestination(t *testing.T) {
	s, entries := testSigner(t)
	sigs, err := s.BatchSign(context.Background(), "pw", []int{0}, "addr1one")
	if err != nil {
		t.Fatalf("BatchSign() error: %v", err)
	}
	pub, _ := hex.DecodeString(entries[0].PublicKey)
	if crypto.VerifyMessageHex([]byte(DonationMessage("addr1two")), sigs[0], pub) {
		t.Error("signature must not verify for a different destination")
	}
}

func TestSigner_BatchSign_WrongPassword(t *testing.T) {
	s, _ := testSigner(t)
	sigs, err := s.BatchSign(context.Background(), "nope", []int{0}, "addr1dest")
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("BatchSign() error = %v, want ErrAuthentication", err)
	}
	if sigs != nil {
		t.Error("no signatures expected on failure")
	}
}

func TestSigner_BatchSign_Cancelled(t *testing.T) {
	s, _ := testSigner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.BatchSign(ctx, "pw", []int{0, 1}, "addr1dest"); !errors.Is(err, context.Canceled) {
		t.Errorf("BatchSign() error = %v, want context.Canceled", err)
	}
}

func TestSigner_Addresses(t *testing.T) {
	s, entries := testSigner(t)
	got, err := s.Addresses()
	if err != nil {
		t.Fatalf("Addresses() error: %v", err)
	}
	if len(got) != len(entries) || got[3].Source().Index != 3 {
		t.Errorf("Addresses() = %+v", got)
	}
}
