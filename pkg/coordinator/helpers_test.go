package coordinator_test

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"
)

func decodeB64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func decodeHex(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func encodeHex(k [32]byte) string {
	return hex.EncodeToString(k[:])
}

func boxKeypair(t *testing.T) ([32]byte, [32]byte) {
	t.Helper()
	pub, priv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return *pub, *priv
}

func sealFor(t *testing.T, recipient [32]byte, plaintext []byte) []byte {
	t.Helper()
	ciphertext, err := box.SealAnonymous(nil, plaintext, &recipient, rand.Reader)
	require.NoError(t, err)
	return ciphertext
}

func openFor(t *testing.T, ciphertextB64 string, pub, priv [32]byte) []byte {
	t.Helper()
	ciphertext, err := decodeB64(ciphertextB64)
	require.NoError(t, err)
	plaintext, ok := box.OpenAnonymous(nil, ciphertext, &pub, &priv)
	require.True(t, ok, "failed to open ciphertext")
	return plaintext
}
