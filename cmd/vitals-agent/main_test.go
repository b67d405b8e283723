package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/woozymasta/vitals/internal/anchor"
	"github.com/woozymasta/vitals/internal/config"
)

func TestStatusLeavesAnchorUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchor.json")

	// Owned by a pid that is not this process.
	stored := anchor.New(path).Resolve(os.Getpid() + 1)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Agent{Status: true}
	cfg.Instance.AnchorPath = path

	_, start := resolveStart(context.Background(), cfg)
	if !start.Equal(stored) {
		t.Errorf("start = %v, want stored %v", start, stored)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Errorf("anchor rewritten by status:\n%s\n%s", before, after)
	}
}

func TestResolveStartWritesAnchor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchor.json")

	cfg := &config.Agent{}
	cfg.Instance.AnchorPath = path

	pid, _ := resolveStart(context.Background(), cfg)
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want own pid %d", pid, os.Getpid())
	}

	rec, err := anchor.New(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.OwnerPID != pid {
		t.Errorf("OwnerPID = %d, want %d", rec.OwnerPID, pid)
	}
}
