// Package contracts holds the wire and domain types shared between the
// coordinator and the agent: store paths, hosts, verification attempts,
// secret definitions, and the authorization action union.
package contracts

import (
	"time"

	"github.com/google/uuid"
)

// StorePath is an opaque identifier of an immutable, content-addressed
// artifact in a local object store. Treated as a value; never mutated.
type StorePath string

// Tag is an opaque identifier attached to resources and policies.
type Tag = uuid.UUID

// RemoteStorePath carries the trust info needed to fetch a StorePath
// from a substitutor.
type RemoteStorePath struct {
	StorePath   StorePath `json:"store_path"`
	Substitutor string    `json:"substitutor"`
	PublicKey   string    `json:"public_key"`
}

// Host is an enrolled fleet member.
type Host struct {
	Name           string `json:"name"`
	Key            string `json:"key"` // hex-encoded Ed25519 public key
	Tags           []Tag  `json:"tags"`
	CurrentVersion StorePath `json:"current_version,omitempty"`
	DetachAllowed  bool   `json:"detach_allowed"`
}

// VerificationArtifacts carries optional facts collected during
// enrollment (e.g. nixos-facter output).
type VerificationArtifacts struct {
	Facter *string `json:"facter,omitempty"`
}

// VerificationAttempt is a transient, pending enrollment request.
type VerificationAttempt struct {
	Code      uint32                `json:"code"`
	Key       string                `json:"key"`
	StorePath StorePath             `json:"store_path"`
	Artifacts VerificationArtifacts `json:"artifacts"`
	CreatedAt time.Time             `json:"created_at"`
}

// SecretDefinition describes how a secret should be materialized on
// disk, as declared in a version's yeet-secrets.json manifest.
type SecretDefinition struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Mode    string `json:"mode"` // octal string, e.g. "0400"
	Owner   string `json:"owner"`
	Group   string `json:"group"`
	Symlink bool   `json:"symlink"`
}

// AgentActionKind tags the variant of AgentAction.
type AgentActionKind string

const (
	ActionNothing  AgentActionKind = "Nothing"
	ActionDetach   AgentActionKind = "Detach"
	ActionSwitchTo AgentActionKind = "SwitchTo"
)

// AgentAction is the decision the coordinator hands back from
// POST /system/check.
type AgentAction struct {
	Kind   AgentActionKind  `json:"kind"`
	Remote *RemoteStorePath `json:"remote,omitempty"`
}

func Nothing() AgentAction { return AgentAction{Kind: ActionNothing} }
func Detach() AgentAction  { return AgentAction{Kind: ActionDetach} }
func SwitchTo(r RemoteStorePath) AgentAction {
	return AgentAction{Kind: ActionSwitchTo, Remote: &r}
}
