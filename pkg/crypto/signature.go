package crypto

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// MessageSigner signs arbitrary messages.
type MessageSigner interface {
	// SignMessage signs the digest of msg.
	SignMessage(msg []byte) ([]byte, error)
	// PublicKey returns the compressed 33-byte public key.
	PublicKey() []byte
}

// PrivateKey wraps a secp256k1 private key for Schnorr signing.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// SignMessage produces a Schnorr signature over Digest(msg).
func (pk *PrivateKey) SignMessage(msg []byte) ([]byte, error) {
	d := Digest(msg)
	sig, err := schnorr.Sign(pk.key, d[:])
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// SignMessageHex is SignMessage with a lowercase hex result, the form the
// donation endpoint accepts in its URL path.
func (pk *PrivateKey) SignMessageHex(msg []byte) (string, error) {
	sig, err := pk.SignMessage(msg)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Zero clears the private key from memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// VerifyMessage checks a Schnorr signature over Digest(msg) against a
// compressed public key. Returns false on any parse error.
func VerifyMessage(msg, signature, publicKey []byte) bool {
	pub, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return false
	}
	d := Digest(msg)
	return sig.Verify(d[:], pub)
}

// VerifyMessageHex is VerifyMessage for a hex-encoded signature.
func VerifyMessageHex(msg []byte, signatureHex string, publicKey []byte) bool {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return VerifyMessage(msg, sig, publicKey)
}
