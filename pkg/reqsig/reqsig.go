// Package reqsig signs and verifies HTTP requests for the yeet control
// plane. Each request carries a signature over a canonical byte string
// built from the HTTP method, request path, a SHA-256 digest of the
// body, and a timestamp, bound to the caller's Ed25519 key.
package reqsig

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Header names carried on every signed request.
const (
	HeaderSignature      = "Signature"
	HeaderSignatureInput = "Signature-Input"
	HeaderContentDigest  = "Content-Digest"
)

// DefaultSkew bounds how far a request timestamp may drift from the
// verifier's clock before it is rejected as stale.
const DefaultSkew = 5 * time.Minute

// Errors returned by Verify. Compare with errors.Is.
var (
	ErrMissingHeaders     = errors.New("reqsig: missing signature headers")
	ErrBadSignature       = errors.New("reqsig: signature does not verify")
	ErrStaleTimestamp     = errors.New("reqsig: timestamp outside allowed skew")
	ErrBodyDigestMismatch = errors.New("reqsig: body digest mismatch")
)

// Signer holds an Ed25519 secret key used to sign outgoing requests.
type Signer struct {
	key ed25519.PrivateKey
}

// NewSigner wraps a raw Ed25519 private key.
func NewSigner(key ed25519.PrivateKey) *Signer {
	return &Signer{key: key}
}

// PublicKeyHex returns the signer's public key, hex-encoded — the same
// encoding used for Host.Key and on the wire.
func (s *Signer) PublicKeyHex() string {
	pub := s.key.Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub)
}

// Sign computes the signature headers for req at the given instant.
// Idempotent for a fixed clock reading: calling it twice with the same
// `at` produces byte-identical headers.
func (s *Signer) Sign(req *http.Request, at time.Time) (http.Header, error) {
	body, err := readAndRestoreBody(req)
	if err != nil {
		return nil, fmt.Errorf("reqsig: read body: %w", err)
	}
	digest := sha256.Sum256(body)
	ts := strconv.FormatInt(at.Unix(), 10)

	payload := canonicalString(req.Method, req.URL.Path, digest[:], ts)
	sig := ed25519.Sign(s.key, payload)

	h := http.Header{}
	h.Set(HeaderSignature, hex.EncodeToString(sig))
	h.Set(HeaderSignatureInput, s.PublicKeyHex()+":"+ts)
	h.Set(HeaderContentDigest, "sha-256=:"+hex.EncodeToString(digest[:])+":")
	return h, nil
}

// ApplyTo signs req and sets the resulting headers on it directly.
func (s *Signer) ApplyTo(req *http.Request, at time.Time) error {
	h, err := s.Sign(req, at)
	if err != nil {
		return err
	}
	for k, vs := range h {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	return nil
}

// Verify reconstructs the canonical byte string for req and checks the
// signature against the public key embedded in Signature-Input. On
// success it returns the caller's public key (hex), which is the
// identity used for authorization. The body digest is recomputed
// before the caller parses the body, so parsed values cannot be
// trusted until Verify succeeds.
func Verify(req *http.Request, now time.Time, skew time.Duration) (string, error) {
	sigHex := req.Header.Get(HeaderSignature)
	sigInput := req.Header.Get(HeaderSignatureInput)
	contentDigest := req.Header.Get(HeaderContentDigest)
	if sigHex == "" || sigInput == "" || contentDigest == "" {
		return "", ErrMissingHeaders
	}

	pubHex, tsStr, ok := splitSignatureInput(sigInput)
	if !ok {
		return "", ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return "", ErrMissingHeaders
	}
	when := time.Unix(ts, 0)
	if skew <= 0 {
		skew = DefaultSkew
	}
	if diff := now.Sub(when); diff > skew || diff < -skew {
		return "", ErrStaleTimestamp
	}

	body, err := readAndRestoreBody(req)
	if err != nil {
		return "", fmt.Errorf("reqsig: read body: %w", err)
	}
	digest := sha256.Sum256(body)
	wantDigest := "sha-256=:" + hex.EncodeToString(digest[:]) + ":"
	if contentDigest != wantDigest {
		return "", ErrBodyDigestMismatch
	}

	pubBytes, err := hex.DecodeString(pubHex)
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		return "", ErrMissingHeaders
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", ErrMissingHeaders
	}

	payload := canonicalString(req.Method, req.URL.Path, digest[:], tsStr)
	if !ed25519.Verify(ed25519.PublicKey(pubBytes), payload, sigBytes) {
		return "", ErrBadSignature
	}
	return pubHex, nil
}

func canonicalString(method, path string, bodyDigest []byte, ts string) []byte {
	var buf bytes.Buffer
	buf.WriteString(method)
	buf.WriteByte('\n')
	buf.WriteString(path)
	buf.WriteByte('\n')
	buf.WriteString(hex.EncodeToString(bodyDigest))
	buf.WriteByte('\n')
	buf.WriteString(ts)
	return buf.Bytes()
}

func splitSignatureInput(v string) (pubHex, ts string, ok bool) {
	idx := bytes.LastIndexByte([]byte(v), ':')
	if idx < 0 {
		return "", "", false
	}
	return v[:idx], v[idx+1:], true
}

// readAndRestoreBody drains req.Body and replaces it so downstream
// handlers (or the signer, if called again) can still read it.
func readAndRestoreBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}
