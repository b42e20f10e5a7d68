// Package secretstore holds encrypted-at-rest secrets behind a
// per-secret host ACL. Secrets are encrypted under a single
// coordinator X25519 identity; reads decrypt centrally and re-encrypt
// for the requesting host's ephemeral recipient key, so plaintext
// never touches disk and a secret is never handed back in the
// coordinator's own encryption.
package secretstore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/nacl/box"
)

// KeySize is the X25519 key size used throughout this package.
const KeySize = 32

// Identity is the coordinator's long-lived decryption keypair.
type Identity struct {
	Public  [KeySize]byte
	private [KeySize]byte
}

// GenerateIdentity creates a fresh coordinator identity.
func GenerateIdentity() (*Identity, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("secretstore: generate identity: %w", err)
	}
	return &Identity{Public: *pub, private: *priv}, nil
}

// IdentityFromBytes reconstructs an Identity from a persisted private
// key, deriving the public half.
func IdentityFromBytes(priv [KeySize]byte) *Identity {
	var pub [KeySize]byte
	curve25519ScalarBaseMult(&pub, &priv)
	return &Identity{Public: pub, private: priv}
}

// PrivateBytes exposes the private key for persistence.
func (id *Identity) PrivateBytes() [KeySize]byte { return id.private }

// Recipient returns the string form of id's public key, as returned by
// GET /secret/server_key.
func (id *Identity) Recipient() string {
	return encodeKey(id.Public)
}

// ErrNotEncryptedForServer is returned by Add when the ciphertext does
// not open under the server identity. ErrEncrypt wraps a failure to
// re-encrypt in GetFor; like a decrypt failure there, it is a crypto
// invariant violation (the ciphertext was validated at ingress), not a
// normal failure mode.
var (
	ErrNotEncryptedForServer = errors.New("secretstore: ciphertext does not decrypt under the server identity")
	ErrEncrypt               = errors.New("secretstore: encryption failed")
)

// Store is the encrypted secret blob store with per-secret ACLs.
type Store struct {
	mu      sync.RWMutex
	secrets map[string][]byte  // name -> ciphertext (anonymous box, sealed to identity.Public)
	acl     map[string]map[string]struct{} // name -> set of host names
	id      *Identity
}

// New creates an empty store bound to the coordinator identity id.
func New(id *Identity) *Store {
	return &Store{
		secrets: make(map[string][]byte),
		acl:     make(map[string]map[string]struct{}),
		id:      id,
	}
}

// Identity returns the store's coordinator identity.
func (s *Store) Identity() *Identity { return s.id }

// Add stores ciphertext under name, overwriting any prior value.
// ciphertext must already be sealed to the server recipient returned
// by Identity().Recipient() (see GET /secret/server_key) — Add proves
// well-formedness by decrypting it, rather than accepting arbitrary
// bytes under a secret name.
func (s *Store) Add(name string, ciphertext []byte) error {
	pub := s.idPublicCopy()
	if _, err := open(ciphertext, &pub, s.idPrivateCopy()); err != nil {
		return ErrNotEncryptedForServer
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[name] = ciphertext
	return nil
}

func (s *Store) idPublicCopy() [KeySize]byte  { return s.id.Public }
func (s *Store) idPrivateCopy() [KeySize]byte { return s.id.private }

// GetFor returns ciphertext for `name` re-encrypted for `recipient`, or
// nil if the secret does not exist OR host is not in its ACL. Both
// cases return (nil, nil) indistinguishably —
// callers must not be able to tell "missing" from "denied" by timing
// or response shape.
//
// Security note (enforced by the caller): recipient
// must be bound to host's authenticated identity via the signature
// layer. GetFor itself has no way to check that binding — presenting
// someone else's recipient here would exfiltrate a secret that host is
// legitimately allowed to read by name.
func (s *Store) GetFor(name, host string, recipient [KeySize]byte) ([]byte, error) {
	s.mu.RLock()
	allowed := s.hostAllowed(name, host)
	ciphertext, exists := s.secrets[name]
	s.mu.RUnlock()

	if !allowed || !exists {
		return nil, nil
	}

	plaintext, err := open(ciphertext, &s.id.Public, s.id.private)
	if err != nil {
		// The secret was validated at ingress (Add); failing to decrypt
		// it now is an invariant violation, not a normal error path.
		return nil, fmt.Errorf("secretstore: decrypt invariant violated for %q: %w", name, err)
	}

	sealed, err := seal(plaintext, recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	return sealed, nil
}

func (s *Store) hostAllowed(name, host string) bool {
	hosts, ok := s.acl[name]
	if !ok {
		return false
	}
	_, ok = hosts[host]
	return ok
}

// Grant adds host to name's ACL.
func (s *Store) Grant(name, host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acl[name] == nil {
		s.acl[name] = make(map[string]struct{})
	}
	s.acl[name][host] = struct{}{}
}

// Revoke removes host from name's ACL.
func (s *Store) Revoke(name, host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.acl[name], host)
}

// SetACL overwrites the full ACL for name.
func (s *Store) SetACL(name string, hosts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		set[h] = struct{}{}
	}
	s.acl[name] = set
}

// RenameSecret moves a secret (and its ACL) from current to next.
func (s *Store) RenameSecret(current, next string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.secrets[current]; ok {
		delete(s.secrets, current)
		s.secrets[next] = v
	}
	if v, ok := s.acl[current]; ok {
		delete(s.acl, current)
		s.acl[next] = v
	}
}

// RemoveSecret deletes a secret and its ACL entirely.
func (s *Store) RemoveSecret(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, name)
	delete(s.acl, name)
}

// RenameHost rewrites every ACL entry referencing oldName to newName.
func (s *Store) RenameHost(oldName, newName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, hosts := range s.acl {
		if _, ok := hosts[oldName]; ok {
			delete(hosts, oldName)
			hosts[newName] = struct{}{}
		}
	}
}

// RemoveHost purges every ACL entry referencing host.
// ACLs may reference a host name that no longer exists — such entries
// are otherwise left alone until an explicit removal like this one.
func (s *Store) RemoveHost(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, hosts := range s.acl {
		delete(hosts, host)
	}
}

// ListSecrets returns every known secret name.
func (s *Store) ListSecrets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.secrets))
	for n := range s.secrets {
		names = append(names, n)
	}
	return names
}

// GetAllACL returns the full secret -> hosts mapping.
func (s *Store) GetAllACL() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.acl))
	for name, hosts := range s.acl {
		list := make([]string, 0, len(hosts))
		for h := range hosts {
			list = append(list, h)
		}
		out[name] = list
	}
	return out
}

func seal(plaintext []byte, recipient [KeySize]byte) ([]byte, error) {
	return box.SealAnonymous(nil, plaintext, &recipient, rand.Reader)
}

func open(ciphertext []byte, pub *[KeySize]byte, priv [KeySize]byte) ([]byte, error) {
	plaintext, ok := box.OpenAnonymous(nil, ciphertext, pub, &priv)
	if !ok {
		return nil, errors.New("secretstore: open failed")
	}
	return plaintext, nil
}
