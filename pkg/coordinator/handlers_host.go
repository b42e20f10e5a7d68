package coordinator

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yeet-sh/yeet/pkg/httpx"
)

type hostRemoveRequest struct {
	Hostname string `json:"hostname"`
}

func (srv *Server) handleHostRemove(w http.ResponseWriter, r *http.Request) {
	var req hostRemoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := srv.state.RemoveHost(req.Hostname); err != nil {
		if errors.Is(err, ErrHostNotFound) {
			httpx.WriteNotFound(w, "unknown host "+req.Hostname)
			return
		}
		httpx.WriteInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type hostRenameRequest struct {
	CurrentName string `json:"current_name"`
	NewName     string `json:"new_name"`
}

func (srv *Server) handleHostRename(w http.ResponseWriter, r *http.Request) {
	var req hostRenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := srv.state.RenameHost(req.CurrentName, req.NewName); err != nil {
		switch {
		case errors.Is(err, ErrHostNotFound):
			httpx.WriteNotFound(w, "unknown host "+req.CurrentName)
		case errors.Is(err, ErrHostExists):
			httpx.WriteError(w, http.StatusConflict, "Conflict", "a host named "+req.NewName+" already exists")
		default:
			httpx.WriteInternal(w, err)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}
