package coordinator

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/yeet-sh/yeet/pkg/contracts"
	"github.com/yeet-sh/yeet/pkg/httpx"
)

type systemCheckRequest struct {
	StorePath contracts.StorePath `json:"store_path"`
}

// handleSystemCheck implements the AgentAction decision rule: 401 if
// the caller's key is not an enrolled host; Detach if the host is
// detached; Nothing if the desired version already matches; otherwise
// SwitchTo the host's desired remote.
func (srv *Server) handleSystemCheck(w http.ResponseWriter, r *http.Request) {
	var req systemCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}

	host, ok := srv.state.HostByKey(identityFrom(r))
	if !ok {
		httpx.WriteUnauthorized(w, "key is not an enrolled host")
		return
	}

	var action contracts.AgentAction
	switch {
	case host.DetachAllowed || srv.state.DetachGlobalAllowed():
		action = contracts.Detach()
	case host.CurrentVersion == req.StorePath:
		action = contracts.Nothing()
	default:
		remote, err := srv.remoteFor(host)
		if err != nil {
			httpx.WriteInternal(w, err)
			return
		}
		action = contracts.SwitchTo(remote)
	}

	writeJSON(w, http.StatusOK, action)
}

// remoteFor looks up the RemoteStorePath (store path, substitutor and
// public key) most recently published for host via /system/update.
// Remotes are tracked per host; a host with no published remote yields
// an error.
func (srv *Server) remoteFor(host contracts.Host) (contracts.RemoteStorePath, error) {
	remote, ok := srv.state.RemoteFor(host.Name)
	if !ok {
		return contracts.RemoteStorePath{}, errors.New("coordinator: no published remote for host")
	}
	return remote, nil
}

type systemUpdateRequest struct {
	Hosts       map[string]contracts.StorePath `json:"hosts"`
	PublicKey   string                         `json:"public_key"`
	Substitutor string                         `json:"substitutor"`
}

// handleSystemUpdate publishes a desired version for each named host,
// along with the substitutor/public-key pair agents will use to fetch
// it.
func (srv *Server) handleSystemUpdate(w http.ResponseWriter, r *http.Request) {
	var req systemUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}

	for name, version := range req.Hosts {
		if err := srv.state.SetDesiredVersion(name, version); err != nil {
			if errors.Is(err, ErrHostNotFound) {
				httpx.WriteNotFound(w, "unknown host "+name)
				return
			}
			httpx.WriteInternal(w, err)
			return
		}
		srv.state.SetRemote(name, contracts.RemoteStorePath{
			StorePath:   version,
			Substitutor: req.Substitutor,
			PublicKey:   req.PublicKey,
		})
	}
	w.WriteHeader(http.StatusOK)
}

// handleAddVerificationAttempt is the unauthenticated bootstrapping
// endpoint an unenrolled agent posts to start enrollment.
func (srv *Server) handleAddVerificationAttempt(w http.ResponseWriter, r *http.Request) {
	if !srv.enrollLimit.Allow() {
		httpx.WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "enrollment attempts are rate limited")
		return
	}

	var attempt contracts.VerificationAttempt
	if err := json.NewDecoder(r.Body).Decode(&attempt); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}
	attempt.CreatedAt = time.Now()

	code, err := srv.state.AddVerificationAttempt(attempt)
	if err != nil {
		if errors.Is(err, ErrAttemptInFlight) {
			httpx.WriteError(w, http.StatusConflict, "Conflict", "a verification attempt is already pending for this key")
			return
		}
		httpx.WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"code": code})
}

// handleIsHostVerified is the self-check an agent polls while waiting
// for admin approval: 200 once its key is an active host, 404 until
// then.
func (srv *Server) handleIsHostVerified(w http.ResponseWriter, r *http.Request) {
	if _, ok := srv.state.HostByKey(identityFrom(r)); !ok {
		httpx.WriteNotFound(w, "host not yet verified")
		return
	}
	w.WriteHeader(http.StatusOK)
}

type verifyAcceptRequest struct {
	Code     uint32 `json:"code"`
	Hostname string `json:"hostname"`
}

// handleVerifyAccept promotes a pending attempt into an enrolled host.
func (srv *Server) handleVerifyAccept(w http.ResponseWriter, r *http.Request) {
	var req verifyAcceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}

	artifacts, err := srv.state.AcceptVerificationAttempt(req.Code, req.Hostname)
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound), errors.Is(err, ErrAttemptExpired):
			httpx.WriteNotFound(w, "no pending attempt for that code")
		case errors.Is(err, ErrHostExists):
			httpx.WriteError(w, http.StatusConflict, "Conflict", "a host with that name already exists")
		default:
			httpx.WriteInternal(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, artifacts)
}

type selfDetachRequest struct {
	Hostname string `json:"hostname,omitempty"`
}

// handleSelfDetach marks a host's detach_allowed flag. With no body
// (or an empty hostname) the caller detaches itself, which requires
// that the caller's key be an enrolled host — no policy-store grant.
// A caller may instead name a different host to detach on its behalf,
// which requires Host.Attach: the permission an admin holds to act as
// a host's attachment point, and does not itself require the caller to
// be an enrolled host. In both cases the target host must already have
// detach_allowed set, or the fleet-wide default must allow detaching;
// otherwise the request is forbidden.
func (srv *Server) handleSelfDetach(w http.ResponseWriter, r *http.Request) {
	var req selfDetachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}

	identity := identityFrom(r)
	caller, callerIsHost := srv.state.HostByKey(identity)

	var target contracts.Host
	switch {
	case req.Hostname == "" || (callerIsHost && req.Hostname == caller.Name):
		if !callerIsHost {
			httpx.WriteUnauthorized(w, "key is not an enrolled host")
			return
		}
		target = caller
	default:
		other, ok := srv.state.Host(req.Hostname)
		if !ok {
			httpx.WriteNotFound(w, "unknown host "+req.Hostname)
			return
		}
		action := contracts.FromHost(contracts.HostAttach)
		if !srv.state.Policy().Check(identity, action, noTags(r)) {
			httpx.WriteForbidden(w)
			return
		}
		target = other
	}

	if !target.DetachAllowed && !srv.state.DetachGlobalAllowed() {
		httpx.WriteForbidden(w)
		return
	}
	if err := srv.state.SetDetached(target.Name, true); err != nil {
		httpx.WriteInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleIsDetachAllowed reports whether the calling host itself may
// detach, folding in the fleet-wide default alongside its own flag.
func (srv *Server) handleIsDetachAllowed(w http.ResponseWriter, r *http.Request) {
	host, ok := srv.state.HostByKey(identityFrom(r))
	if !ok {
		httpx.WriteUnauthorized(w, "key is not an enrolled host")
		return
	}
	allowed := host.DetachAllowed || srv.state.DetachGlobalAllowed()
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

type setDetachPermissionRequest struct {
	Hostname string `json:"hostname,omitempty"`
	Allowed  bool   `json:"allowed"`
}

// handleSetDetachPermission sets detach_allowed for a named host
// (Host.DetachPermission), or, when hostname is empty, flips the
// fleet-wide default (Settings.DetachGlobal).
func (srv *Server) handleSetDetachPermission(w http.ResponseWriter, r *http.Request) {
	var req setDetachPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "invalid request body")
		return
	}

	identity := identityFrom(r)
	if req.Hostname == "" {
		action := contracts.FromSettings(contracts.SettingsDetachGlobal)
		if !srv.state.Policy().Check(identity, action, noTags(r)) {
			httpx.WriteForbidden(w)
			return
		}
		srv.state.SetDetachGlobalAllowed(req.Allowed)
		w.WriteHeader(http.StatusOK)
		return
	}

	action := contracts.FromHost(contracts.HostDetachPermission)
	if !srv.state.Policy().Check(identity, action, noTags(r)) {
		httpx.WriteForbidden(w)
		return
	}
	if err := srv.state.SetDetached(req.Hostname, req.Allowed); err != nil {
		if errors.Is(err, ErrHostNotFound) {
			httpx.WriteNotFound(w, "unknown host "+req.Hostname)
			return
		}
		httpx.WriteInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleIsDetachGlobalAllowed reports the fleet-wide detach default.
func (srv *Server) handleIsDetachGlobalAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": srv.state.DetachGlobalAllowed()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
