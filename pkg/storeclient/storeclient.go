// Package storeclient shells out to the local content-addressed store
// tool to realize a StorePath from a substitutor, using a union of
// locally-configured and version-provided trusted public keys and an
// optional netrc credential for authenticated substituters.
package storeclient

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/yeet-sh/yeet/pkg/contracts"
)

// DefaultTrustedPublicKeysPath is where the locally-configured trust
// line lives, matching the original agent's /etc/nix/nix.conf read.
const DefaultTrustedPublicKeysPath = "/etc/nix/nix.conf"

// fallbackTrustedKey is used when no local config line is found.
const fallbackTrustedKey = "cache.nixos.org-1:6NCHdD59X431o0gWypbMrAURkbJ16ZPMQFGspcDShjY="

// TrustedKeys reads the "trusted-public-keys" line from path (typically
// DefaultTrustedPublicKeysPath). A missing or unreadable file yields
// the well-known fallback rather than an error — the union step below
// still folds in the version-provided key either way.
func TrustedKeys(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{fallbackTrustedKey}
	}
	for _, line := range splitLines(data) {
		fields := splitFields(line)
		if len(fields) >= 3 && fields[0] == "trusted-public-keys" {
			return fields[2:]
		}
	}
	return []string{fallbackTrustedKey}
}

func splitLines(data []byte) []string {
	var lines []string
	for _, l := range bytes.Split(data, []byte("\n")) {
		lines = append(lines, string(l))
	}
	return lines
}

func splitFields(line string) []string {
	fields := bytes.Fields([]byte(line))
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

// Client wraps the external store binary (e.g. nix-store).
type Client struct {
	// Command is the store binary, overridable in tests.
	Command string
	// TrustedKeysPath is where local trust config is read from.
	TrustedKeysPath string
}

// NewClient returns a client using the real store tool.
func NewClient() *Client {
	return &Client{Command: "nix-store", TrustedKeysPath: DefaultTrustedPublicKeysPath}
}

// Download realizes remote.StorePath, fetching it through
// remote.Substitutor and trusting the union of the local config's keys
// and remote.PublicKey. netrcPath, if non-empty, is passed through as
// an additional authentication option for the substituter.
func (c *Client) Download(ctx context.Context, remote contracts.RemoteStorePath, netrcPath string) error {
	keys := unionKeys(TrustedKeys(c.TrustedKeysPath), remote.PublicKey)

	args := []string{
		"--realise", string(remote.StorePath),
		"--option", "extra-substituters", remote.Substitutor,
		"--option", "trusted-public-keys", joinSpace(keys),
		"--option", "narinfo-cache-negative-ttl", "0",
	}
	if netrcPath != "" {
		args = append(args, "--option", "netrc-file", netrcPath)
	}

	cmd := exec.CommandContext(ctx, c.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("storeclient: realise %s: %w: %s", remote.StorePath, err, stderr.String())
	}
	return nil
}

func unionKeys(local []string, extra string) []string {
	set := make(map[string]struct{}, len(local)+1)
	for _, k := range local {
		set[k] = struct{}{}
	}
	set[extra] = struct{}{}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinSpace(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += k
	}
	return out
}
