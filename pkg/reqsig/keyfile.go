package reqsig

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// LoadOrGenerateKey reads a raw Ed25519 private key from path. If the
// file doesn't exist, a fresh key is generated and persisted there
// (mode 0600) so restarts reuse the same host identity. Accepts either
// a bare 32-byte seed (expanded via ed25519.NewKeyFromSeed) or the full
// 64-byte private key, mirroring how host key files are produced by
// whatever bootstrapped the host.
func LoadOrGenerateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return parsePrivateKey(data)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reqsig: read key file %s: %w", path, err)
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("reqsig: generate key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("reqsig: write key file %s: %w", path, err)
	}
	return key, nil
}

func parsePrivateKey(data []byte) (ed25519.PrivateKey, error) {
	switch len(data) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(data), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(data), nil
	}
	return nil, fmt.Errorf("reqsig: key file has %d bytes, want %d (seed) or %d (full key)",
		len(data), ed25519.SeedSize, ed25519.PrivateKeySize)
}

// ResolvePublicKeyHex accepts either a hex-encoded public key directly,
// or a path to a key file (raw seed, full private key, or raw public
// key bytes) and returns the hex-encoded public key in either case.
// Used for admin bootstrap, where the operator may hand over just a
// public key instead of a path into the filesystem.
func ResolvePublicKeyHex(value string) (string, error) {
	if pub, err := hex.DecodeString(strings.TrimSpace(value)); err == nil && len(pub) == ed25519.PublicKeySize {
		return hex.EncodeToString(pub), nil
	}

	data, err := os.ReadFile(value)
	if err != nil {
		return "", fmt.Errorf("reqsig: resolve public key %q: %w", value, err)
	}
	switch len(data) {
	case ed25519.PublicKeySize:
		return hex.EncodeToString(data), nil
	case ed25519.SeedSize:
		pub := ed25519.NewKeyFromSeed(data).Public().(ed25519.PublicKey)
		return hex.EncodeToString(pub), nil
	case ed25519.PrivateKeySize:
		pub := ed25519.PrivateKey(data).Public().(ed25519.PublicKey)
		return hex.EncodeToString(pub), nil
	default:
		return "", fmt.Errorf("reqsig: key file %s has %d bytes, not a recognized key size", value, len(data))
	}
}
