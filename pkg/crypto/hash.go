// Package crypto provides the signing primitives used for donation messages.
package crypto

import "github.com/zeebo/blake3"

// DigestSize is the length of a message digest in bytes.
const DigestSize = 32

// Digest computes the BLAKE3-256 digest of data.
func Digest(data []byte) [DigestSize]byte {
	return blake3.Sum256(data)
}

// KeyHash returns the first n bytes of the BLAKE3 digest of a public key.
// Address payloads are built from it.
func KeyHash(pubKey []byte, n int) []byte {
	if n <= 0 || n > DigestSize {
		n = DigestSize
	}
	d := Digest(pubKey)
	out := make([]byte, n)
	copy(out, d[:n])
	return out
}
