package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestDigest(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "empty input",
			input: []byte{},
			want:  "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262",
		},
		{
			name:  "hello",
			input: []byte("hello"),
			want:  "ea8f163db38682925e4491c5e58d4bb3506ef8c14eb78a86e908c5624a67200f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Digest(tt.input)
			if hex.EncodeToString(got[:]) != tt.want {
				t.Errorf("Digest(%q) = %x, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestDigest_DifferentInputs(t *testing.T) {
	if Digest([]byte("input A")) == Digest([]byte("input B")) {
		t.Error("different inputs produced the same digest")
	}
}

func TestKeyHash_Prefix(t *testing.T) {
	pub := []byte("compressed public key bytes")
	full := Digest(pub)

	got := KeyHash(pub, 28)
	if len(got) != 28 {
		t.Fatalf("KeyHash length = %d, want 28", len(got))
	}
	if !bytes.Equal(got, full[:28]) {
		t.Errorf("KeyHash = %x, want prefix %x", got, full[:28])
	}
}

func TestKeyHash_OutOfRange(t *testing.T) {
	pub := []byte("key")
	for _, n := range []int{0, -1, 64} {
		if got := KeyHash(pub, n); len(got) != DigestSize {
			t.Errorf("KeyHash(n=%d) length = %d, want %d", n, len(got), DigestSize)
		}
	}
}
