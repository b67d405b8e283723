// Package maintenance provides one-shot tasks that clean the snapshot store and the session ledger.
package maintenance

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/vitals/internal/config"
	"github.com/woozymasta/vitals/internal/models"
)

// SnapshotPruner removes invalid and outdated server snapshots.
type SnapshotPruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (int, error)
}

// SessionCloser closes sessions left open for too long.
type SessionCloser interface {
	CloseStale(ctx context.Context, maxAge time.Duration) ([]models.PlayerSession, error)
}

// Run checks if any maintenance flags are set and executes the corresponding tasks.
// Returns true if a maintenance task was executed (indicating the program should exit).
// Task failures are logged; the remaining tasks still run.
func Run(ctx context.Context, cfg config.Storage, snapshots SnapshotPruner, sessions SessionCloser) bool {
	if !cfg.Maintenance() {
		return false
	}

	// Prune offline implies prune invalid
	switch {
	case cfg.PruneOffline > 0:
		pruneSnapshots(ctx, snapshots, cfg.PruneOffline)
	case cfg.PruneInvalid:
		pruneSnapshots(ctx, snapshots, 0)
	}

	if cfg.CloseStale > 0 {
		closeStale(ctx, sessions, cfg.CloseStale)
	}

	log.Info().Msg("Maintenance task completed")
	return true
}

func pruneSnapshots(ctx context.Context, snapshots SnapshotPruner, maxAge time.Duration) {
	log.Info().Dur("max_age", maxAge).Msg("Pruning server snapshots...")

	removed, err := snapshots.Prune(ctx, maxAge)
	if err != nil {
		log.Error().Err(err).Int("deleted", removed).Msg("Failed to prune server snapshots")
		return
	}

	log.Info().Int("deleted", removed).Msg("Prune finished")
}

func closeStale(ctx context.Context, sessions SessionCloser, maxAge time.Duration) {
	log.Info().Dur("max_age", maxAge).Msg("Closing stale sessions...")

	closed, err := sessions.CloseStale(ctx, maxAge)
	if err != nil {
		log.Error().Err(err).Msg("Failed to close stale sessions")
		return
	}

	for _, s := range closed {
		log.Debug().
			Str("server_id", s.ServerID).
			Str("player", s.PlayerName).
			Time("join_time", s.JoinTime).
			Msg("Stale session closed")
	}
	log.Info().Int("closed", len(closed)).Msg("Stale sessions closed")
}
