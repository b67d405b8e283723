// Package botfilter splits player rosters into real players and bots by name prefix.
package botfilter

import "strings"

// Filter classifies player names. A name is a bot iff it starts with any configured prefix.
// The zero value and a nil *Filter classify every name as a real player.
type Filter struct {
	prefixes []string
}

// New creates a filter from a prefix list. Empty prefixes are ignored,
// otherwise every name would be classified as a bot.
func New(prefixes []string) *Filter {
	f := &Filter{prefixes: make([]string, 0, len(prefixes))}
	for _, p := range prefixes {
		if p != "" {
			f.prefixes = append(f.prefixes, p)
		}
	}

	return f
}

// Prefixes returns a copy of the configured prefixes.
func (f *Filter) Prefixes() []string {
	if f == nil {
		return []string{}
	}

	out := make([]string, len(f.prefixes))
	copy(out, f.prefixes)
	return out
}

// IsBot reports whether the name starts with a bot prefix (case sensitive).
func (f *Filter) IsBot(name string) bool {
	if f == nil {
		return false
	}

	for _, p := range f.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}

	return false
}

// Split partitions names into real players and bots, preserving input order.
// Both results are non-nil.
func (f *Filter) Split(names []string) (humans, bots []string) {
	humans = make([]string, 0, len(names))
	bots = make([]string, 0)

	for _, name := range names {
		if f.IsBot(name) {
			bots = append(bots, name)
		} else {
			humans = append(humans, name)
		}
	}

	return humans, bots
}

// Real returns only the real players from names.
func (f *Filter) Real(names []string) []string {
	humans, _ := f.Split(names)
	return humans
}
