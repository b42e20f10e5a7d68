package coordinator

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yeet-sh/yeet/pkg/httpx"
	"github.com/yeet-sh/yeet/pkg/secretstore"
)

type secretAddRequest struct {
	Name       string `json:"name"`
	Ciphertext []byte `json:"ciphertext"` // base64 via encoding/json []byte
}

// handleSecretAdd stores ciphertext that must already be sealed to the
// server recipient (GET /secret/server_key); Add itself proves that by
// attempting to decrypt it before accepting the write.
func (srv *Server) handleSecretAdd(w http.ResponseWriter, r *http.Request) {
	var req secretAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := srv.state.Secrets().Add(req.Name, req.Ciphertext); err != nil {
		if errors.Is(err, secretstore.ErrNotEncryptedForServer) {
			httpx.WriteBadRequest(w, "ciphertext is not encrypted for the server recipient")
			return
		}
		httpx.WriteInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type secretRenameRequest struct {
	CurrentName string `json:"current_name"`
	NewName     string `json:"new_name"`
}

func (srv *Server) handleSecretRename(w http.ResponseWriter, r *http.Request) {
	var req secretRenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}
	srv.state.Secrets().RenameSecret(req.CurrentName, req.NewName)
	w.WriteHeader(http.StatusOK)
}

type secretRemoveRequest struct {
	Name string `json:"name"`
}

func (srv *Server) handleSecretRemove(w http.ResponseWriter, r *http.Request) {
	var req secretRemoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}
	srv.state.Secrets().RemoveSecret(req.Name)
	w.WriteHeader(http.StatusOK)
}

type secretSetACLRequest struct {
	Name  string   `json:"name"`
	Hosts []string `json:"hosts"`
}

func (srv *Server) handleSecretSetACL(w http.ResponseWriter, r *http.Request) {
	var req secretSetACLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}
	srv.state.Secrets().SetACL(req.Name, req.Hosts)
	w.WriteHeader(http.StatusOK)
}

// handleSecretGetAllACL is deliberately gated behind Secret.ACL, same
// as the setter: no one without that grant should be able to view who
// can read what.
func (srv *Server) handleSecretGetAllACL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, srv.state.Secrets().GetAllACL())
}

func (srv *Server) handleSecretList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, srv.state.Secrets().ListSecrets())
}

// handleSecretServerKey returns the coordinator's recipient string.
// Any signed caller may read it — it is needed before a caller can
// encrypt anything for /secret/add.
func (srv *Server) handleSecretServerKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"recipient": srv.state.Secrets().Identity().Recipient()})
}

type secretGetRequest struct {
	Secret    string `json:"secret"`
	Recipient string `json:"recipient"` // hex X25519 public key
}

// handleSecretGet returns ciphertext re-encrypted for the caller's
// recipient, or null if the secret is missing or the calling host
// isn't in its ACL — the two cases are indistinguishable by design.
// The recipient is trusted only because it arrives on a request
// already verified as belonging to an enrolled host's signing key.
func (srv *Server) handleSecretGet(w http.ResponseWriter, r *http.Request) {
	var req secretGetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}
	host, ok := srv.state.HostByKey(identityFrom(r))
	if !ok {
		httpx.WriteUnauthorized(w, "key is not an enrolled host")
		return
	}
	recipient, err := secretstore.DecodeKey(req.Recipient)
	if err != nil {
		httpx.WriteBadRequest(w, "invalid recipient key")
		return
	}

	ciphertext, err := srv.state.Secrets().GetFor(req.Secret, host.Name, recipient)
	if err != nil {
		httpx.WriteInternal(w, err)
		return
	}
	if ciphertext == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, base64.StdEncoding.EncodeToString(ciphertext))
}
