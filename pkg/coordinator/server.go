package coordinator

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/yeet-sh/yeet/pkg/contracts"
)

// Server wires AppState to the coordinator's HTTP surface.
type Server struct {
	state       *AppState
	enrollLimit *rate.Limiter
}

// NewServer returns a Server bound to state. Enrollment attempts
// (POST /system/verify, unauthenticated bootstrapping) are rate
// limited to guard against code-space exhaustion by a flood of bogus
// attempts.
func NewServer(state *AppState) *Server {
	return &Server{
		state:       state,
		enrollLimit: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Handler returns the complete routed http.Handler.
func (srv *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /system/check", requireSignature(srv.handleSystemCheck))
	mux.HandleFunc("POST /system/update", srv.requireAction(contracts.FromHost(contracts.HostUpdate), noTags, srv.handleSystemUpdate))
	mux.HandleFunc("POST /system/verify", srv.handleAddVerificationAttempt)
	mux.HandleFunc("GET /system/verify", requireSignature(srv.handleIsHostVerified))
	mux.HandleFunc("POST /system/verify/accept", srv.requireAction(contracts.FromHost(contracts.HostAccept), noTags, srv.handleVerifyAccept))

	mux.HandleFunc("POST /host/remove", srv.requireAction(contracts.FromHost(contracts.HostRemove), noTags, srv.handleHostRemove))
	mux.HandleFunc("POST /host/rename", srv.requireAction(contracts.FromHost(contracts.HostRename), noTags, srv.handleHostRename))

	mux.HandleFunc("POST /system/detach", requireSignature(srv.handleSelfDetach))
	mux.HandleFunc("GET /system/detach/permission", requireSignature(srv.handleIsDetachAllowed))
	mux.HandleFunc("POST /detach/permission", requireSignature(srv.handleSetDetachPermission))
	mux.HandleFunc("GET /detach/permission", requireSignature(srv.handleIsDetachGlobalAllowed))

	mux.HandleFunc("POST /secret/add", srv.requireAction(contracts.FromSecret(contracts.SecretCreateOrUpdate), noTags, srv.handleSecretAdd))
	mux.HandleFunc("POST /secret/rename", srv.requireAction(contracts.FromSecret(contracts.SecretRename), noTags, srv.handleSecretRename))
	mux.HandleFunc("POST /secret/remove", srv.requireAction(contracts.FromSecret(contracts.SecretRemove), noTags, srv.handleSecretRemove))
	mux.HandleFunc("POST /secret/acl", srv.requireAction(contracts.FromSecret(contracts.SecretACL), noTags, srv.handleSecretSetACL))
	mux.HandleFunc("GET /secret/acl/all", srv.requireAction(contracts.FromSecret(contracts.SecretACL), noTags, srv.handleSecretGetAllACL))
	mux.HandleFunc("GET /secret/list", srv.requireAction(contracts.FromSecret(contracts.SecretListSecrets), noTags, srv.handleSecretList))
	mux.HandleFunc("GET /secret/server_key", requireSignature(srv.handleSecretServerKey))
	mux.HandleFunc("POST /secret", requireSignature(srv.handleSecretGet))

	mux.HandleFunc("POST /key/add", srv.requireAction(contracts.FromHost(contracts.HostAccept), noTags, srv.handleKeyAdd))
	mux.HandleFunc("POST /key/remove", srv.requireAction(contracts.FromHost(contracts.HostRemove), noTags, srv.handleKeyRemove))

	mux.HandleFunc("GET /status", srv.requireAction(contracts.FromStatus(contracts.StatusListHosts), noTags, srv.handleStatus))
	mux.HandleFunc("GET /status/host_by_key", srv.requireAction(contracts.FromStatus(contracts.StatusListHostnameByKey), noTags, srv.handleStatusHostByKey))

	return mux
}
