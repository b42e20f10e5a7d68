package secretstore

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

func curve25519ScalarBaseMult(dst, scalar *[KeySize]byte) {
	out, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		// X25519 over the well-known basepoint with a 32-byte scalar
		// cannot fail; a failure here means golang.org/x/crypto's
		// contract changed underneath us.
		panic(fmt.Sprintf("secretstore: derive public key: %v", err))
	}
	copy(dst[:], out)
}

func encodeKey(k [KeySize]byte) string {
	return hex.EncodeToString(k[:])
}

// EncodeKey hex-encodes a recipient/identity public key for the wire,
// the inverse of DecodeKey. Exposed so callers outside this package
// (the agent's ephemeral per-request recipient) can speak the same
// encoding without duplicating it.
func EncodeKey(k [KeySize]byte) string {
	return encodeKey(k)
}

// DecodeKey parses a hex-encoded recipient/identity public key, as
// returned by Recipient() or carried on the wire in a /secret request.
func DecodeKey(s string) ([KeySize]byte, error) {
	var out [KeySize]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("secretstore: decode key: %w", err)
	}
	if len(b) != KeySize {
		return out, fmt.Errorf("secretstore: key must be %d bytes, got %d", KeySize, len(b))
	}
	copy(out[:], b)
	return out, nil
}
