package coordinator

import "net/http"

// handleStatus lists every enrolled host (Status.ListHosts).
func (srv *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, srv.state.ListHosts())
}

// handleStatusHostByKey resolves a host's name from its key
// (Status.ListHostnameByKey).
func (srv *Server) handleStatusHostByKey(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	host, ok := srv.state.HostByKey(key)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hostname": host.Name})
}
