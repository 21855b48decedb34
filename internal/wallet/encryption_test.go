package wallet

import (
	"bytes"
	"errors"
	"testing"
)

// fastParams returns low-cost Argon2 params for fast tests.
func fastParams() EncryptionParams {
	return EncryptionParams{
		Memory:      64, // 64 KiB (minimal)
		Iterations:  1,
		Parallelism: 1,
	}
}

func TestSealOpen_Roundtrip(t *testing.T) {
	plaintext := []byte(testMnemonic24)
	password := []byte("strong-password-123")

	sealed, err := Seal(plaintext, password, fastParams())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if bytes.Contains(sealed.Ciphertext, []byte("abandon")) {
		t.Error("ciphertext leaks plaintext")
	}

	opened, err := sealed.Open(password)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("opened = %q, want %q", opened, plaintext)
	}
}

func TestSeal_FreshSaltAndNonce(t *testing.T) {
	a, err := Seal([]byte("data"), []byte("pass"), fastParams())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	b, err := Seal([]byte("data"), []byte("pass"), fastParams())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if bytes.Equal(a.Salt, b.Salt) || bytes.Equal(a.Nonce, b.Nonce) {
		t.Error("salt and nonce must differ between seals")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Error("ciphertexts should differ")
	}
}

func TestOpen_WrongPassword(t *testing.T) {
	sealed, err := Seal([]byte("secret"), []byte("correct"), fastParams())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	_, err = sealed.Open([]byte("wrong"))
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("Open() error = %v, want ErrAuthentication", err)
	}
}

func TestOpen_Tampered(t *testing.T) {
	sealed, err := Seal([]byte("secret"), []byte("pass"), fastParams())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	sealed.Ciphertext[0] ^= 0xff

	if _, err := sealed.Open([]byte("pass")); !errors.Is(err, ErrAuthentication) {
		t.Errorf("Open() error = %v, want ErrAuthentication", err)
	}
}

func TestOpen_Malformed(t *testing.T) {
	good, err := Seal([]byte("secret"), []byte("pass"), fastParams())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	cases := map[string]*Sealed{
		"short salt":  {Salt: good.Salt[:4], Params: good.Params, Nonce: good.Nonce, Ciphertext: good.Ciphertext},
		"short nonce": {Salt: good.Salt, Params: good.Params, Nonce: good.Nonce[:8], Ciphertext: good.Ciphertext},
		"short ct":    {Salt: good.Salt, Params: good.Params, Nonce: good.Nonce, Ciphertext: []byte{1, 2}},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Open([]byte("pass"))
			if err == nil {
				t.Fatal("Open() should fail")
			}
			if errors.Is(err, ErrAuthentication) {
				t.Error("malformed envelope should not look like a wrong password")
			}
		})
	}
}
