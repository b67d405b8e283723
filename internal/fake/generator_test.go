package fake

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/woozymasta/vitals/internal/collector"
	"github.com/woozymasta/vitals/internal/storage"
)

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.New(filepath.Join(t.TempDir(), "fake.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := Generate(ctx, repo, 50, rand.New(rand.NewSource(1)), now); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	rows, err := repo.Stats(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	var sessions int64
	for _, r := range rows {
		sessions += r.TotalSessions
		if r.LastPlayTime == nil || r.LastPlayTime.After(now) {
			t.Errorf("last play time out of range: %+v", r)
		}
	}
	if sessions != 50 {
		t.Errorf("closed sessions = %d, want 50", sessions)
	}

	docs, err := repo.LoadSnapshots(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 50/20+2 {
		t.Errorf("snapshots = %d, want %d", len(docs), 50/20+2)
	}

	c := collector.New(collector.Options{Store: repo, Now: func() time.Time { return now }})
	views, err := c.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for id, v := range views {
		if v.ServerID != id || v.ServerName == "" {
			t.Errorf("snapshot %q = %+v", id, v)
		}
	}
}
