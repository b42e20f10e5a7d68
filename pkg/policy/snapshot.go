package policy

import (
	"sort"

	"github.com/yeet-sh/yeet/pkg/contracts"
)

// Snapshot is the serializable form of a Store, used by the
// coordinator's persistence layer.
type Snapshot struct {
	Tags      []Tag                        `json:"tags"`
	Policies  []PolicyEntry                `json:"policies"`
	AdminKeys []string                     `json:"admin_keys"`
}

// PolicyEntry is one (identity, action) -> tags row.
type PolicyEntry struct {
	Identity string            `json:"identity"`
	Action   contracts.Action  `json:"action"`
	Tags     []Tag             `json:"tags"`
}

// Snapshot serializes the current store state. Map iteration order is
// non-deterministic, so tags, policy entries (by identity, then action)
// and admin keys are sorted to keep the serialized form byte-stable.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Tags:      make([]Tag, 0, len(s.tags)),
		Policies:  make([]PolicyEntry, 0, len(s.policies)),
		AdminKeys: make([]string, 0, len(s.adminKeys)),
	}
	for t := range s.tags {
		snap.Tags = append(snap.Tags, t)
	}
	for k, tags := range s.policies {
		entry := PolicyEntry{Identity: k.identity, Action: k.action}
		for t := range tags {
			entry.Tags = append(entry.Tags, t)
		}
		sort.Slice(entry.Tags, func(i, j int) bool { return entry.Tags[i].String() < entry.Tags[j].String() })
		snap.Policies = append(snap.Policies, entry)
	}
	for k := range s.adminKeys {
		snap.AdminKeys = append(snap.AdminKeys, k)
	}
	sort.Slice(snap.Tags, func(i, j int) bool { return snap.Tags[i].String() < snap.Tags[j].String() })
	sort.Slice(snap.Policies, func(i, j int) bool {
		a, b := snap.Policies[i], snap.Policies[j]
		if a.Identity != b.Identity {
			return a.Identity < b.Identity
		}
		return a.Action < b.Action
	})
	sort.Strings(snap.AdminKeys)
	return snap
}

// Restore replaces the store's contents with snap. Used when loading a
// persisted AppState at startup.
func Restore(snap Snapshot) *Store {
	s := New()
	for _, t := range snap.Tags {
		s.tags[t] = struct{}{}
	}
	for _, entry := range snap.Policies {
		tags := make(TagSet, len(entry.Tags))
		for _, t := range entry.Tags {
			tags[t] = struct{}{}
		}
		s.policies[policyKey{entry.Identity, entry.Action}] = tags
	}
	for _, k := range snap.AdminKeys {
		s.adminKeys[k] = struct{}{}
	}
	return s
}
