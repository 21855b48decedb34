package wallet

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// SaltSize is the Argon2id salt length in bytes.
const SaltSize = 32

// EncryptionParams holds Argon2id parameters.
type EncryptionParams struct {
	Memory      uint32 `json:"memory"` // KiB
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultParams returns recommended Argon2id parameters.
func DefaultParams() EncryptionParams {
	return EncryptionParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

// Sealed is a password-encrypted secret (Argon2id + XChaCha20-Poly1305).
// The KDF parameters travel with the ciphertext so they can change between
// wallets without breaking older files.
type Sealed struct {
	Salt       []byte           `json:"salt"`
	Params     EncryptionParams `json:"params"`
	Nonce      []byte           `json:"nonce"`
	Ciphertext []byte           `json:"ciphertext"`
}

func deriveKey(password, salt []byte, params EncryptionParams) []byte {
	return argon2.IDKey(password, salt, params.Iterations, params.Memory, params.Parallelism, chacha20poly1305.KeySize)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Seal encrypts plaintext under password.
func Seal(plaintext, password []byte, params EncryptionParams) (*Sealed, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(password, salt, params)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return &Sealed{
		Salt:       salt,
		Params:     params,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Open decrypts the secret. A wrong password surfaces as ErrAuthentication.
func (s *Sealed) Open(password []byte) ([]byte, error) {
	if len(s.Salt) != SaltSize {
		return nil, fmt.Errorf("invalid salt length %d", len(s.Salt))
	}
	if len(s.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("invalid nonce length %d", len(s.Nonce))
	}
	if len(s.Ciphertext) < chacha20poly1305.Overhead {
		return nil, fmt.Errorf("ciphertext too short: %d bytes", len(s.Ciphertext))
	}

	key := deriveKey(password, s.Salt, s.Params)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, s.Nonce, s.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
