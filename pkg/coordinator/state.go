// Package coordinator holds the authoritative fleet state — hosts,
// pending verification attempts, the secret store, the policy store —
// behind a single reader/writer lock, and serves the signed HTTP API
// agents and administrators call against it.
package coordinator

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/yeet-sh/yeet/pkg/contracts"
	"github.com/yeet-sh/yeet/pkg/policy"
	"github.com/yeet-sh/yeet/pkg/secretstore"
)

// AttemptTTL bounds how long an unapproved verification attempt stays
// valid before it is treated as expired.
const AttemptTTL = 15 * time.Minute

var (
	ErrHostNotFound      = errors.New("coordinator: host not found")
	ErrHostExists        = errors.New("coordinator: host already exists")
	ErrAttemptNotFound   = errors.New("coordinator: verification attempt not found")
	ErrAttemptExpired    = errors.New("coordinator: verification attempt expired")
	ErrAttemptInFlight   = errors.New("coordinator: verification attempt already pending for this key")
)

// AppState is the coordinator's entire authoritative state: host
// registry, pending enrollments, the encrypted secret store and its
// ACLs, and the tag-based policy store. The host, attempt, remote and
// detach fields are reachable only through the exclusive or shared
// guard acquired in the methods below; the secret and policy stores
// carry their own locks and are reached through Secrets and Policy.
type AppState struct {
	mu sync.RWMutex

	hosts       map[string]contracts.Host // keyed by host name
	attempts    map[string]contracts.VerificationAttempt // keyed by hex pubkey
	remotes     map[string]contracts.RemoteStorePath // keyed by host name; last published via /system/update
	secretStore *secretstore.Store
	policyStore *policy.Store

	detachGlobalAllowed bool // fleet-wide Settings.DetachGlobal default, ORed with each host's own flag
}

// NewAppState returns an empty AppState bound to a fresh secret-store
// identity. Use LoadAppState to resurrect persisted state instead.
func NewAppState() (*AppState, error) {
	id, err := secretstore.GenerateIdentity()
	if err != nil {
		return nil, fmt.Errorf("coordinator: generate server identity: %w", err)
	}
	return &AppState{
		hosts:       make(map[string]contracts.Host),
		attempts:    make(map[string]contracts.VerificationAttempt),
		remotes:     make(map[string]contracts.RemoteStorePath),
		secretStore: secretstore.New(id),
		policyStore: policy.New(),
	}, nil
}

// RemoteFor returns the substitutor/public-key pairing last published
// for host via /system/update, if any.
func (s *AppState) RemoteFor(name string) (contracts.RemoteStorePath, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.remotes[name]
	return r, ok
}

// SetRemote records the substitutor/public-key pairing most recently
// published for host.
func (s *AppState) SetRemote(name string, remote contracts.RemoteStorePath) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remotes[name] = remote
}

// HasAdminCredential reports whether at least one admin key is
// registered. The server bootstraps one from YEET_INIT_KEY when false.
func (s *AppState) HasAdminCredential() bool {
	return s.policyStore.AdminCount() > 0
}

// AddAdminKey registers identity (hex Ed25519 public key) as an admin.
func (s *AppState) AddAdminKey(identity string) {
	s.policyStore.AddAdminKey(identity)
}

// Policy exposes the underlying policy store for authorization checks.
func (s *AppState) Policy() *policy.Store { return s.policyStore }

// Secrets exposes the underlying secret store.
func (s *AppState) Secrets() *secretstore.Store { return s.secretStore }

// HostByKey returns the enrolled host whose key matches identity.
func (s *AppState) HostByKey(identity string) (contracts.Host, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.hosts {
		if h.Key == identity {
			return h, true
		}
	}
	return contracts.Host{}, false
}

// Host returns the enrolled host by name.
func (s *AppState) Host(name string) (contracts.Host, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hosts[name]
	return h, ok
}

// ListHosts returns a snapshot of every enrolled host.
func (s *AppState) ListHosts() []contracts.Host {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.Host, 0, len(s.hosts))
	for _, h := range s.hosts {
		out = append(out, h)
	}
	return out
}

// SetDesiredVersion updates a host's current_version field directly,
// as used by /system/update (the desired/published version).
func (s *AppState) SetDesiredVersion(name string, version contracts.StorePath) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hosts[name]
	if !ok {
		return ErrHostNotFound
	}
	h.CurrentVersion = version
	s.hosts[name] = h
	return nil
}

// RemoveHost deletes a host and purges every ACL entry referencing it.
func (s *AppState) RemoveHost(name string) error {
	s.mu.Lock()
	if _, ok := s.hosts[name]; !ok {
		s.mu.Unlock()
		return ErrHostNotFound
	}
	delete(s.hosts, name)
	s.mu.Unlock()

	s.secretStore.RemoveHost(name)
	return nil
}

// RenameHost renames a host and propagates the rename into secret
// ACLs, which reference hosts by name.
func (s *AppState) RenameHost(current, next string) error {
	s.mu.Lock()
	h, ok := s.hosts[current]
	if !ok {
		s.mu.Unlock()
		return ErrHostNotFound
	}
	if _, exists := s.hosts[next]; exists {
		s.mu.Unlock()
		return ErrHostExists
	}
	delete(s.hosts, current)
	h.Name = next
	s.hosts[next] = h
	s.mu.Unlock()

	s.secretStore.RenameHost(current, next)
	return nil
}

// SetDetached flips a host's detach_allowed flag.
func (s *AppState) SetDetached(name string, detached bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hosts[name]
	if !ok {
		return ErrHostNotFound
	}
	h.DetachAllowed = detached
	s.hosts[name] = h
	return nil
}

// DetachGlobalAllowed reports the fleet-wide Settings.DetachGlobal
// default. A host may detach if either this or its own DetachAllowed
// flag is set.
func (s *AppState) DetachGlobalAllowed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detachGlobalAllowed
}

// SetDetachGlobalAllowed flips the fleet-wide detach default.
func (s *AppState) SetDetachGlobalAllowed(allowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachGlobalAllowed = allowed
}

// AddVerificationAttempt stores a fresh attempt keyed by its key,
// rejecting a second concurrent attempt for the same key (an existing
// unexpired attempt must be resolved or allowed to expire first).
func (s *AppState) AddVerificationAttempt(attempt contracts.VerificationAttempt) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.attempts[attempt.Key]; ok && time.Since(existing.CreatedAt) < AttemptTTL {
		return 0, ErrAttemptInFlight
	}

	code, err := randomCode()
	if err != nil {
		return 0, err
	}
	attempt.Code = code
	s.attempts[attempt.Key] = attempt
	return code, nil
}

// AcceptVerificationAttempt promotes the pending attempt for code into
// a Host named hostname, returning its collected artifacts.
func (s *AppState) AcceptVerificationAttempt(code uint32, hostname string) (contracts.VerificationArtifacts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key string
	var attempt contracts.VerificationAttempt
	found := false
	for k, a := range s.attempts {
		if a.Code == code {
			key, attempt, found = k, a, true
			break
		}
	}
	if !found {
		return contracts.VerificationArtifacts{}, ErrAttemptNotFound
	}
	if time.Since(attempt.CreatedAt) >= AttemptTTL {
		delete(s.attempts, key)
		return contracts.VerificationArtifacts{}, ErrAttemptExpired
	}
	if _, exists := s.hosts[hostname]; exists {
		return contracts.VerificationArtifacts{}, ErrHostExists
	}

	delete(s.attempts, key)
	s.hosts[hostname] = contracts.Host{
		Name:           hostname,
		Key:            key,
		CurrentVersion: attempt.StorePath,
	}
	return attempt.Artifacts, nil
}

func randomCode() (uint32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return 0, fmt.Errorf("coordinator: generate verification code: %w", err)
	}
	return uint32(n.Int64()), nil
}
