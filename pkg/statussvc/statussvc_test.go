package statussvc_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeet-sh/yeet/pkg/statussvc"
)

type fakeSource struct{ status statussvc.Status }

func (f fakeSource) Status() statussvc.Status { return f.status }

func TestServerServesStatusOverUnixSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "agent.sock")
	src := fakeSource{status: statussvc.Status{CoordinatorURL: "https://yeet.example", StorePath: "/nix/store/a", Verified: true}}
	srv := statussvc.New(socketPath, src)

	ln, err := srv.Listen()
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	defer ln.Close()

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}

	resp, err := client.Get("http://unix/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status statussvc.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "https://yeet.example", status.CoordinatorURL)
	assert.True(t, status.Verified)
}
