package coordinator

import (
	"encoding/json"
	"net/http"

	"github.com/yeet-sh/yeet/pkg/httpx"
)

type keyRequest struct {
	Key string `json:"key"` // hex Ed25519 public key
}

// handleKeyAdd registers an additional admin key. Supplements the
// original's YEET_INIT_KEY-only bootstrap path with an in-band way to
// add further admins once at least one already exists.
func (srv *Server) handleKeyAdd(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.Key == "" {
		httpx.WriteBadRequest(w, "key is required")
		return
	}
	srv.state.AddAdminKey(req.Key)
	w.WriteHeader(http.StatusOK)
}

func (srv *Server) handleKeyRemove(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}
	srv.state.Policy().RemoveAdminKey(req.Key)
	w.WriteHeader(http.StatusOK)
}
