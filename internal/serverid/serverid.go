// Package serverid validates server identities reported by agents.
package serverid

import (
	"github.com/cespare/xxhash/v2"
)

// MaxLength is the exclusive upper bound for a server id length.
const MaxLength = 50

// Unknown is the placeholder id used when a document carries no valid id.
const Unknown = "unknown"

// reserved ids collide with response envelope keys and are never accepted.
var reserved = NewSet([]string{"timestamp", "status", "error", "path", "message", "info"})

// Valid reports whether id is non-empty, shorter than MaxLength and not reserved.
func Valid(id string) bool {
	return id != "" && len(id) < MaxLength && !reserved.Contains(id)
}

// Set is a string set keyed by xxhash, used for reserved and allowed id lists.
type Set map[uint64]struct{}

// NewSet builds a set from a list of ids.
func NewSet(ids []string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[xxhash.Sum64String(id)] = struct{}{}
	}

	return s
}

// Contains reports whether id is in the set.
func (s Set) Contains(id string) bool {
	_, ok := s[xxhash.Sum64String(id)]
	return ok
}

// Allows reports whether id passes an allow-list; an empty set allows everything.
func (s Set) Allows(id string) bool {
	return len(s) == 0 || s.Contains(id)
}
