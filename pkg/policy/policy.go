// Package policy implements tag-based ABAC: a policy grants an
// (identity, action) pair a set of resource tags, and a check passes
// when the resource's tag set intersects the policy's tag set.
package policy

import (
	"sync"

	"github.com/google/uuid"
	"github.com/yeet-sh/yeet/pkg/contracts"
)

// Tag is an opaque identifier attached to resources and policies.
type Tag = contracts.Tag

// TagSet is a set of Tags.
type TagSet map[Tag]struct{}

// NewTagSet builds a TagSet from individual tags.
func NewTagSet(tags ...Tag) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

func (s TagSet) intersects(other TagSet) bool {
	small, big := s, other
	if len(big) < len(small) {
		small, big = big, small
	}
	for t := range small {
		if _, ok := big[t]; ok {
			return true
		}
	}
	return false
}

type policyKey struct {
	identity string
	action   contracts.Action
}

// Store is the tag-based policy engine. The zero value is not usable;
// construct with New.
type Store struct {
	mu        sync.RWMutex
	tags      TagSet
	policies  map[policyKey]TagSet
	adminKeys map[string]struct{}
}

// New returns an empty policy store.
func New() *Store {
	return &Store{
		tags:      make(TagSet),
		policies:  make(map[policyKey]TagSet),
		adminKeys: make(map[string]struct{}),
	}
}

// CreateTag returns a fresh, previously unused tag.
func (s *Store) CreateTag() Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := uuid.New()
	s.tags[t] = struct{}{}
	return t
}

// DeleteTag removes t from every policy and from the known-tags set.
// Silent if t was never known.
func (s *Store) DeleteTag(t Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tags, t)
	for _, tags := range s.policies {
		delete(tags, t)
	}
}

// SetPolicy overwrites any prior policy for (identity, action).
func (s *Store) SetPolicy(identity string, action contracts.Action, tags TagSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(TagSet, len(tags))
	for t := range tags {
		cp[t] = struct{}{}
	}
	s.policies[policyKey{identity, action}] = cp
}

// DeletePolicy removes the policy for (identity, action), if any. It
// does not delete the tags themselves; use DeleteTag for that.
func (s *Store) DeletePolicy(identity string, action contracts.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, policyKey{identity, action})
}

// GetTags returns the tags granted to (identity, action), or an empty
// set if there is no policy.
func (s *Store) GetTags(identity string, action contracts.Action) TagSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tags, ok := s.policies[policyKey{identity, action}]
	if !ok {
		return TagSet{}
	}
	cp := make(TagSet, len(tags))
	for t := range tags {
		cp[t] = struct{}{}
	}
	return cp
}

// AddAdminKey marks identity as an administrator: Check always
// succeeds for admin identities, regardless of policy.
func (s *Store) AddAdminKey(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminKeys[identity] = struct{}{}
}

// RemoveAdminKey revokes admin status from identity.
func (s *Store) RemoveAdminKey(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.adminKeys, identity)
}

// IsAdmin reports whether identity currently holds admin bypass.
func (s *Store) IsAdmin(identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.adminKeys[identity]
	return ok
}

// AdminCount reports how many admin keys are currently registered —
// used at startup to decide whether bootstrapping is required.
func (s *Store) AdminCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.adminKeys)
}

// Check reports whether identity may perform action on a resource
// carrying resourceTags. Pure; no side effects. Admins always pass.
func (s *Store) Check(identity string, action contracts.Action, resourceTags TagSet) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.adminKeys[identity]; ok {
		return true
	}
	granted, ok := s.policies[policyKey{identity, action}]
	if !ok {
		return false
	}
	return granted.intersects(resourceTags)
}
