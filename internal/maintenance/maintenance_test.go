package maintenance

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/woozymasta/vitals/internal/config"
	"github.com/woozymasta/vitals/internal/models"
)

type pruner struct {
	ages []time.Duration
	err  error
}

func (p *pruner) Prune(_ context.Context, maxAge time.Duration) (int, error) {
	p.ages = append(p.ages, maxAge)
	return 3, p.err
}

type closer struct {
	ages []time.Duration
}

func (c *closer) CloseStale(_ context.Context, maxAge time.Duration) ([]models.PlayerSession, error) {
	c.ages = append(c.ages, maxAge)
	return []models.PlayerSession{{ServerID: "eu-1", PlayerName: "Alice"}}, nil
}

func TestRun(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.Storage
		ran        bool
		pruneAges  []time.Duration
		closedAges []time.Duration
	}{
		{"nothing requested", config.Storage{}, false, nil, nil},
		{"prune invalid", config.Storage{PruneInvalid: true}, true, []time.Duration{0}, nil},
		{"prune offline", config.Storage{PruneOffline: time.Hour, PruneInvalid: true}, true, []time.Duration{time.Hour}, nil},
		{"close stale", config.Storage{CloseStale: 12 * time.Hour}, true, nil, []time.Duration{12 * time.Hour}},
		{"all", config.Storage{PruneOffline: time.Hour, CloseStale: time.Hour}, true, []time.Duration{time.Hour}, []time.Duration{time.Hour}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, c := &pruner{}, &closer{}

			if ran := Run(context.Background(), tt.cfg, p, c); ran != tt.ran {
				t.Errorf("Run = %v, want %v", ran, tt.ran)
			}
			if !slices.Equal(p.ages, tt.pruneAges) {
				t.Errorf("prune ages = %v, want %v", p.ages, tt.pruneAges)
			}
			if !slices.Equal(c.ages, tt.closedAges) {
				t.Errorf("close ages = %v, want %v", c.ages, tt.closedAges)
			}
		})
	}
}

func TestRunContinuesAfterFailure(t *testing.T) {
	p, c := &pruner{err: errors.New("disk full")}, &closer{}

	if !Run(context.Background(), config.Storage{PruneInvalid: true, CloseStale: time.Hour}, p, c) {
		t.Fatal("Run = false")
	}
	if len(c.ages) != 1 {
		t.Error("close stale skipped after prune failure")
	}
}
