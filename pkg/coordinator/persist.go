package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/yeet-sh/yeet/pkg/contracts"
	"github.com/yeet-sh/yeet/pkg/policy"
	"github.com/yeet-sh/yeet/pkg/secretstore"
)

// snapshot is the on-disk serialization of AppState.
type snapshot struct {
	Hosts               map[string]contracts.Host                `json:"hosts"`
	Attempts            map[string]contracts.VerificationAttempt `json:"verification_attempts"`
	Remotes             map[string]contracts.RemoteStorePath     `json:"remotes"`
	SecretStore         secretstore.Snapshot                     `json:"secret_store"`
	PolicyStore         policy.Snapshot                          `json:"policy_store"`
	DetachGlobalAllowed bool                                     `json:"detach_global_allowed"`
}

// Snapshot serializes the current state under a shared guard.
func (s *AppState) Snapshot() snapshot {
	s.mu.RLock()
	hosts := make(map[string]contracts.Host, len(s.hosts))
	for k, v := range s.hosts {
		hosts[k] = v
	}
	attempts := make(map[string]contracts.VerificationAttempt, len(s.attempts))
	for k, v := range s.attempts {
		attempts[k] = v
	}
	remotes := make(map[string]contracts.RemoteStorePath, len(s.remotes))
	for k, v := range s.remotes {
		remotes[k] = v
	}
	s.mu.RUnlock()

	return snapshot{
		Hosts:               hosts,
		Attempts:            attempts,
		Remotes:             remotes,
		SecretStore:         s.secretStore.Snapshot(),
		PolicyStore:         s.policyStore.Snapshot(),
		DetachGlobalAllowed: s.DetachGlobalAllowed(),
	}
}

// LoadAppState reads a persisted snapshot from path. A missing file
// yields a fresh, empty AppState rather than an error — the caller
// decides whether that counts as first-run bootstrap.
func LoadAppState(path string) (*AppState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewAppState()
		}
		return nil, fmt.Errorf("coordinator: read state file %s: %w", path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("coordinator: parse state file %s: %w", path, err)
	}

	secrets, err := secretstore.Restore(snap.SecretStore)
	if err != nil {
		return nil, fmt.Errorf("coordinator: restore secret store: %w", err)
	}

	hosts := snap.Hosts
	if hosts == nil {
		hosts = make(map[string]contracts.Host)
	}
	attempts := snap.Attempts
	if attempts == nil {
		attempts = make(map[string]contracts.VerificationAttempt)
	}
	remotes := snap.Remotes
	if remotes == nil {
		remotes = make(map[string]contracts.RemoteStorePath)
	}

	return &AppState{
		hosts:               hosts,
		attempts:            attempts,
		remotes:             remotes,
		secretStore:         secrets,
		policyStore:         policy.Restore(snap.PolicyStore),
		detachGlobalAllowed: snap.DetachGlobalAllowed,
	}, nil
}

// RunPersistenceLoop ticks every 500ms, serializes AppState under a
// read guard, and writes the result to path only when its content hash
// has changed since the last write. Writes go through a temp file and
// rename so a crash mid-write never leaves a truncated state file —
// the original source's truncate-then-write-in-place left a window
// where a shorter-lived write could leave stale trailing bytes.
func RunPersistenceLoop(ctx context.Context, state *AppState, path string) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastHash uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, err := json.MarshalIndent(state.Snapshot(), "", "  ")
			if err != nil {
				slog.Error("coordinator: serialize state", "error", err)
				continue
			}
			h := hashBytes(data)
			if h == lastHash {
				continue
			}
			if err := writeAtomic(path, data); err != nil {
				slog.Error("coordinator: persist state", "error", err)
				continue
			}
			lastHash = h
		}
	}
}

func hashBytes(data []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return h.Sum64()
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp state file: %w", err)
	}
	return nil
}
