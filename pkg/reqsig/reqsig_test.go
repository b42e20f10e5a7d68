package reqsig_test

import (
	"bytes"
	"crypto/ed25519"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeet-sh/yeet/pkg/reqsig"
)

func newSignedRequest(t *testing.T, signer *reqsig.Signer, method, path string, body []byte, at time.Time) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, "http://coordinator"+path, bytes.NewReader(body))
	require.NoError(t, err)
	require.NoError(t, signer.ApplyTo(req, at))
	return req
}

func TestSignVerifyRoundTrip(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer := reqsig.NewSigner(priv)

	now := time.Now()
	req := newSignedRequest(t, signer, http.MethodPost, "/system/check", []byte(`{"store_path":"/nix/store/aaaa-sys"}`), now)

	pub, err := reqsig.Verify(req, now, reqsig.DefaultSkew)
	require.NoError(t, err)
	assert.Equal(t, signer.PublicKeyHex(), pub)
}

func TestVerifyRejectsTamperedMethod(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer := reqsig.NewSigner(priv)
	now := time.Now()
	req := newSignedRequest(t, signer, http.MethodPost, "/system/check", []byte(`{}`), now)

	req.Method = http.MethodGet
	_, err = reqsig.Verify(req, now, reqsig.DefaultSkew)
	assert.ErrorIs(t, err, reqsig.ErrBadSignature)
}

func TestVerifyRejectsTamperedPath(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer := reqsig.NewSigner(priv)
	now := time.Now()
	req := newSignedRequest(t, signer, http.MethodPost, "/system/check", []byte(`{}`), now)

	req.URL.Path = "/system/update"
	_, err = reqsig.Verify(req, now, reqsig.DefaultSkew)
	assert.ErrorIs(t, err, reqsig.ErrBadSignature)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer := reqsig.NewSigner(priv)
	now := time.Now()
	req := newSignedRequest(t, signer, http.MethodPost, "/system/check", []byte(`{"a":1}`), now)

	req.Body = http.NoBody
	req.ContentLength = 0
	_, err = reqsig.Verify(req, now, reqsig.DefaultSkew)
	assert.ErrorIs(t, err, reqsig.ErrBodyDigestMismatch)
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer := reqsig.NewSigner(priv)
	stale := time.Now().Add(-time.Hour)
	req := newSignedRequest(t, signer, http.MethodPost, "/system/check", []byte(`{}`), stale)

	_, err = reqsig.Verify(req, time.Now(), reqsig.DefaultSkew)
	assert.ErrorIs(t, err, reqsig.ErrStaleTimestamp)
}

func TestVerifyRejectsMissingHeaders(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://coordinator/system/verify", nil)
	require.NoError(t, err)
	_, err = reqsig.Verify(req, time.Now(), reqsig.DefaultSkew)
	assert.ErrorIs(t, err, reqsig.ErrMissingHeaders)
}
