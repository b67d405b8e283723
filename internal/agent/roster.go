package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// RosterSource yields the names of everyone currently on the game server, bots included.
type RosterSource interface {
	Roster(ctx context.Context) ([]string, error)
}

// FileRoster reads a roster file maintained by the game server: one name per line,
// blank lines and lines starting with '#' are ignored. A missing file is an empty roster.
type FileRoster struct {
	path string
}

// NewFileRoster creates a roster source reading path.
func NewFileRoster(path string) *FileRoster {
	return &FileRoster{path: path}
}

// Path returns the roster file path.
func (r *FileRoster) Path() string {
	return r.path
}

// Roster reads the file, keeping the first occurrence of every name.
func (r *FileRoster) Roster(_ context.Context) ([]string, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer func() { _ = f.Close() }()

	seen := make(map[string]struct{})
	names := []string{}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	return names, nil
}

// StaticRoster is a fixed roster.
type StaticRoster []string

// Roster returns a copy of the list.
func (r StaticRoster) Roster(context.Context) ([]string, error) {
	out := make([]string, len(r))
	copy(out, r)
	return out, nil
}

// diff returns the names only in cur (joined) and only in prev (left), both sorted.
func diff(prev, cur []string) (joined, left []string) {
	before := make(map[string]struct{}, len(prev))
	for _, n := range prev {
		before[n] = struct{}{}
	}
	after := make(map[string]struct{}, len(cur))
	for _, n := range cur {
		after[n] = struct{}{}
		if _, ok := before[n]; !ok {
			joined = append(joined, n)
		}
	}
	for _, n := range prev {
		if _, ok := after[n]; !ok {
			left = append(left, n)
		}
	}

	sort.Strings(joined)
	sort.Strings(left)

	return joined, left
}
