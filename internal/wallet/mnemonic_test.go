package wallet

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

const (
	testMnemonic12 = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testMnemonic24 = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"
)

func TestGenerateMnemonic(t *testing.T) {
	m1, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}
	m2, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}

	if n := len(strings.Fields(m1)); n != 24 {
		t.Errorf("word count = %d, want 24", n)
	}
	if !ValidateMnemonic(m1) {
		t.Error("generated mnemonic should validate")
	}
	if m1 == m2 {
		t.Error("two generated mnemonics should not be identical")
	}
}

func TestCheckMnemonic(t *testing.T) {
	tests := []struct {
		name      string
		mnemonic  string
		valid     bool
		wantInErr string
	}{
		{name: "valid 24 words", mnemonic: testMnemonic24, valid: true},
		{name: "valid 12 words", mnemonic: testMnemonic12, valid: true},
		{name: "extra whitespace", mnemonic: "  " + strings.ReplaceAll(testMnemonic12, " ", "   ") + "\n", valid: true},
		{name: "empty", mnemonic: "", wantInErr: "got 0"},
		{name: "13 words", mnemonic: testMnemonic12 + " abandon", wantInErr: "got 13"},
		{name: "bad checksum", mnemonic: strings.Repeat("abandon ", 11) + "abandon", wantInErr: "checksum"},
		{name: "unknown word", mnemonic: strings.Repeat("abandon ", 11) + "zzzzzz", wantInErr: "checksum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckMnemonic(tt.mnemonic)
			if tt.valid {
				if err != nil {
					t.Fatalf("CheckMnemonic() error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("CheckMnemonic() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantInErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantInErr)
			}
		})
	}
}

func TestSeedFromMnemonic_KnownVector(t *testing.T) {
	seed, err := SeedFromMnemonic(testMnemonic12, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}

	want, _ := hex.DecodeString("c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04")
	if !bytes.Equal(seed, want) {
		t.Errorf("seed = %x, want %x", seed, want)
	}
}

func TestSeedFromMnemonic_NormalizesWhitespace(t *testing.T) {
	a, err := SeedFromMnemonic(testMnemonic12, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	b, err := SeedFromMnemonic(" "+strings.ReplaceAll(testMnemonic12, " ", "\t")+" ", "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("whitespace should not change the seed")
	}
}

func TestSeedFromMnemonic_Invalid(t *testing.T) {
	if _, err := SeedFromMnemonic("not a mnemonic", ""); err == nil {
		t.Error("expected error for invalid mnemonic")
	}
}
