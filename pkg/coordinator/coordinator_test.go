package coordinator_test

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeet-sh/yeet/pkg/contracts"
	"github.com/yeet-sh/yeet/pkg/coordinator"
	"github.com/yeet-sh/yeet/pkg/reqsig"
)

func newSignedRequest(t *testing.T, signer *reqsig.Signer, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(buf.Bytes()))
	require.NoError(t, signer.ApplyTo(req, time.Now()))
	return req
}

func newTestServer(t *testing.T) (*coordinator.Server, *coordinator.AppState, *reqsig.Signer) {
	t.Helper()
	state, err := coordinator.NewAppState()
	require.NoError(t, err)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer := reqsig.NewSigner(priv)
	state.AddAdminKey(signer.PublicKeyHex())
	_ = pub

	return coordinator.NewServer(state), state, signer
}

func TestSystemCheckRejectsUnenrolledKey(t *testing.T) {
	srv, _, _ := newTestServer(t)
	_, unenrolledPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	unenrolled := reqsig.NewSigner(unenrolledPriv)

	req := newSignedRequest(t, unenrolled, http.MethodPost, "/system/check", map[string]string{"store_path": "/nix/store/a"})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEnrollApproveAndCheckNothing(t *testing.T) {
	srv, _, admin := newTestServer(t)

	_, hostPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	hostSigner := reqsig.NewSigner(hostPriv)

	attempt := contracts.VerificationAttempt{
		Key:       hostSigner.PublicKeyHex(),
		StorePath: "/nix/store/aaaa-sys",
	}
	body, err := json.Marshal(attempt)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/system/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var codeResp map[string]uint32
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &codeResp))

	accept := newSignedRequest(t, admin, http.MethodPost, "/system/verify/accept", map[string]any{
		"code":     codeResp["code"],
		"hostname": "alpha",
	})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, accept)
	require.Equal(t, http.StatusOK, rec.Code)

	verify := newSignedRequest(t, hostSigner, http.MethodGet, "/system/verify", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, verify)
	assert.Equal(t, http.StatusOK, rec.Code)

	check := newSignedRequest(t, hostSigner, http.MethodPost, "/system/check", map[string]string{"store_path": "/nix/store/aaaa-sys"})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, check)
	require.Equal(t, http.StatusOK, rec.Code)

	var action contracts.AgentAction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &action))
	assert.Equal(t, contracts.ActionNothing, action.Kind)
}

func TestSecretRoundTripAndACLDenial(t *testing.T) {
	srv, _, admin := newTestServer(t)

	_, hostPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	hostSigner := reqsig.NewSigner(hostPriv)

	attempt := contracts.VerificationAttempt{Key: hostSigner.PublicKeyHex(), StorePath: "/nix/store/a"}
	body, err := json.Marshal(attempt)
	require.NoError(t, err)
	verifyReq := httptest.NewRequest(http.MethodPost, "/system/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, verifyReq)
	require.Equal(t, http.StatusOK, rec.Code)
	var codeResp map[string]uint32
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &codeResp))

	accept := newSignedRequest(t, admin, http.MethodPost, "/system/verify/accept", map[string]any{
		"code":     codeResp["code"],
		"hostname": "alpha",
	})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, accept)
	require.Equal(t, http.StatusOK, rec.Code)

	// Fetch the server recipient, seal "hunter2" to it, add the secret, grant alpha.
	keyReq := newSignedRequest(t, admin, http.MethodGet, "/secret/server_key", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, keyReq)
	require.Equal(t, http.StatusOK, rec.Code)
	var keyResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keyResp))

	serverPub, err := decodeHex(keyResp["recipient"])
	require.NoError(t, err)
	ciphertext := sealFor(t, serverPub, []byte("hunter2"))

	addReq := newSignedRequest(t, admin, http.MethodPost, "/secret/add", map[string]any{
		"name":       "db",
		"ciphertext": ciphertext,
	})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, addReq)
	require.Equal(t, http.StatusOK, rec.Code)

	hostPub, hostPriv32 := boxKeypair(t)
	getReq := newSignedRequest(t, hostSigner, http.MethodPost, "/secret", map[string]any{
		"secret":    "db",
		"recipient": encodeHex(hostPub),
	})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, getReq)
	require.Equal(t, http.StatusOK, rec.Code)

	var denied any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &denied))
	assert.Nil(t, denied, "expected null before grant")

	aclReq := newSignedRequest(t, admin, http.MethodPost, "/secret/acl", map[string]any{
		"name":  "db",
		"hosts": []string{"alpha"},
	})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, aclReq)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, newSignedRequest(t, hostSigner, http.MethodPost, "/secret", map[string]any{
		"secret":    "db",
		"recipient": encodeHex(hostPub),
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var granted string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &granted))
	plaintext := openFor(t, granted, hostPub, hostPriv32)
	assert.Equal(t, "hunter2", string(plaintext))
}

func enrollHost(t *testing.T, srv *coordinator.Server, admin *reqsig.Signer, hostname string) *reqsig.Signer {
	t.Helper()
	_, hostPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	hostSigner := reqsig.NewSigner(hostPriv)

	attempt := contracts.VerificationAttempt{Key: hostSigner.PublicKeyHex(), StorePath: "/nix/store/a"}
	body, err := json.Marshal(attempt)
	require.NoError(t, err)
	verifyReq := httptest.NewRequest(http.MethodPost, "/system/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, verifyReq)
	require.Equal(t, http.StatusOK, rec.Code)
	var codeResp map[string]uint32
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &codeResp))

	accept := newSignedRequest(t, admin, http.MethodPost, "/system/verify/accept", map[string]any{
		"code":     codeResp["code"],
		"hostname": hostname,
	})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, accept)
	require.Equal(t, http.StatusOK, rec.Code)
	return hostSigner
}

func TestSelfDetachRequiresOwnPermission(t *testing.T) {
	srv, _, admin := newTestServer(t)
	host := enrollHost(t, srv, admin, "alpha")

	req := newSignedRequest(t, host, http.MethodPost, "/system/detach", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	grant := newSignedRequest(t, admin, http.MethodPost, "/detach/permission", map[string]any{
		"hostname": "alpha",
		"allowed":  true,
	})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, grant)
	require.Equal(t, http.StatusOK, rec.Code)

	req = newSignedRequest(t, host, http.MethodPost, "/system/detach", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDetachOnBehalfOfAnotherHostRequiresHostAttach(t *testing.T) {
	srv, state, admin := newTestServer(t)
	enrollHost(t, srv, admin, "alpha")

	_, operatorPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	operator := reqsig.NewSigner(operatorPriv)

	require.NoError(t, state.SetDetached("alpha", true))

	req := newSignedRequest(t, operator, http.MethodPost, "/system/detach", map[string]any{"hostname": "alpha"})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Holding Host.Attach (here, via admin bypass) authorizes detaching
	// a different named host, not just the caller's own.
	req = newSignedRequest(t, admin, http.MethodPost, "/system/detach", map[string]any{"hostname": "alpha"})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSettingsDetachGlobalFlipsFleetDefault(t *testing.T) {
	srv, _, admin := newTestServer(t)
	host := enrollHost(t, srv, admin, "alpha")

	before := newSignedRequest(t, host, http.MethodGet, "/system/detach/permission", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, before)
	require.Equal(t, http.StatusOK, rec.Code)
	var beforeResp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &beforeResp))
	assert.False(t, beforeResp["allowed"])

	global := newSignedRequest(t, admin, http.MethodPost, "/detach/permission", map[string]any{"allowed": true})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, global)
	require.Equal(t, http.StatusOK, rec.Code)

	after := newSignedRequest(t, host, http.MethodGet, "/system/detach/permission", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, after)
	require.Equal(t, http.StatusOK, rec.Code)
	var afterResp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &afterResp))
	assert.True(t, afterResp["allowed"])

	req := newSignedRequest(t, host, http.MethodPost, "/system/detach", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
