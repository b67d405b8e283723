// Package leaderboard answers read-only ranking and player queries over the session ledger.
package leaderboard

import (
	"context"
	"sort"
	"time"

	"github.com/woozymasta/vitals/internal/apierr"
	"github.com/woozymasta/vitals/internal/botfilter"
	"github.com/woozymasta/vitals/internal/models"
	"github.com/woozymasta/vitals/internal/serverid"
	"github.com/woozymasta/vitals/internal/storage"
)

// Ranking windows.
const (
	Weekly  = 7 * 24 * time.Hour
	Monthly = 30 * 24 * time.Hour
)

// Limits applied to rankings and player details.
const (
	DefaultLimit      = 10
	MaxLimit          = 100
	MaxDetailSessions = 100
)

// Leaderboard kinds.
const (
	KindIdle    = "idle"
	KindWeekly  = "weekly"
	KindMonthly = "monthly"
)

// Store is the ledger read model used by the engine.
type Store interface {
	OpenSessions(ctx context.Context, serverID string) ([]models.PlayerSession, error)
	Stats(ctx context.Context, serverID string) ([]models.PlayerStatsView, error)
	PlayerStats(ctx context.Context, player string) ([]models.PlayerStats, error)
	PlayerSessions(ctx context.Context, player string, limit int) ([]models.PlayerSession, error)
	PlayerOnline(ctx context.Context, player string) (bool, error)
	IdleRanking(ctx context.Context, serverID string, excludePrefixes []string, limit int) ([]models.PlayerStats, error)
	WindowedRanking(ctx context.Context, since time.Time, limit int) ([]storage.WindowedRow, error)
}

// Engine runs leaderboard queries.
type Engine struct {
	store Store
	bots  *botfilter.Filter
	now   func() time.Time
}

// New creates an Engine. now may be nil.
func New(store Store, bots *botfilter.Filter, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}

	return &Engine{store: store, bots: bots, now: now}
}

// CurrentRealPlayers returns the distinct non-bot players with an open session,
// on one server or on all servers when serverID is empty, sorted by name.
func (e *Engine) CurrentRealPlayers(ctx context.Context, serverID string) ([]string, error) {
	if err := validScope(serverID); err != nil {
		return nil, err
	}

	open, err := e.store.OpenSessions(ctx, serverID)
	if err != nil {
		return nil, apierr.Storage(err, "failed to load open sessions")
	}

	seen := make(map[string]struct{}, len(open))
	names := make([]string, 0, len(open))
	for _, s := range open {
		if e.bots.IsBot(s.PlayerName) {
			continue
		}
		if _, ok := seen[s.PlayerName]; ok {
			continue
		}
		seen[s.PlayerName] = struct{}{}
		names = append(names, s.PlayerName)
	}
	sort.Strings(names)

	return names, nil
}

// IdleRanking lists the longest idle players first, optionally for one server
// and without bots.
func (e *Engine) IdleRanking(ctx context.Context, serverID string, excludeBots bool, limit int) (models.Leaderboard, error) {
	if err := validScope(serverID); err != nil {
		return models.Leaderboard{}, err
	}

	var exclude []string
	if excludeBots {
		exclude = e.bots.Prefixes()
	}

	rows, err := e.store.IdleRanking(ctx, serverID, exclude, clampLimit(limit))
	if err != nil {
		return models.Leaderboard{}, apierr.Storage(err, "failed to load idle ranking")
	}

	now := e.now()
	entries := make([]models.IdleEntry, 0, len(rows))
	for i, row := range rows {
		entry := models.IdleEntry{PlayerStats: row, Rank: i + 1}
		if row.LastPlayTime != nil {
			if idle := int64(now.Sub(*row.LastPlayTime) / time.Second); idle > 0 {
				entry.IdleSeconds = idle
			}
		}
		entries = append(entries, entry)
	}

	end := now.UTC()
	return models.Leaderboard{
		Kind:      KindIdle,
		ServerID:  serverID,
		PeriodEnd: &end,
		Entries:   entries,
	}, nil
}

// WindowedRanking ranks players by play time in sessions that started within window.
func (e *Engine) WindowedRanking(ctx context.Context, window time.Duration, limit int) (models.Leaderboard, error) {
	now := e.now().UTC()
	since := now.Add(-window)

	rows, err := e.store.WindowedRanking(ctx, since, clampLimit(limit))
	if err != nil {
		return models.Leaderboard{}, apierr.Storage(err, "failed to load ranking")
	}

	entries := make([]models.WindowedEntry, 0, len(rows))
	for i, row := range rows {
		status := models.StatusOffline
		if row.Online {
			status = models.StatusOnline
		}
		entries = append(entries, models.WindowedEntry{
			Rank:          i + 1,
			PlayerName:    row.PlayerName,
			WindowedTotal: row.WindowedTotal,
			LifetimeTotal: row.LifetimeTotal,
			LastPlayTime:  row.LastPlayTime,
			Status:        status,
		})
	}

	return models.Leaderboard{
		Kind:        windowKind(window),
		PeriodStart: &since,
		PeriodEnd:   &now,
		Entries:     entries,
	}, nil
}

// Weekly is WindowedRanking over the last 7 days.
func (e *Engine) Weekly(ctx context.Context, limit int) (models.Leaderboard, error) {
	return e.WindowedRanking(ctx, Weekly, limit)
}

// Monthly is WindowedRanking over the last 30 days.
func (e *Engine) Monthly(ctx context.Context, limit int) (models.Leaderboard, error) {
	return e.WindowedRanking(ctx, Monthly, limit)
}

// Players returns stats rows with current status for one server or all servers.
func (e *Engine) Players(ctx context.Context, serverID string) ([]models.PlayerStatsView, error) {
	if err := validScope(serverID); err != nil {
		return nil, err
	}

	rows, err := e.store.Stats(ctx, serverID)
	if err != nil {
		return nil, apierr.Storage(err, "failed to load player stats")
	}

	return rows, nil
}

// PlayerDetail returns a player's stats on every server and the most recent closed sessions.
func (e *Engine) PlayerDetail(ctx context.Context, player string) (models.PlayerDetail, error) {
	if player == "" {
		return models.PlayerDetail{}, apierr.Validation(apierr.CodeInvalidPayload, "player name is required")
	}

	servers, err := e.store.PlayerStats(ctx, player)
	if err != nil {
		return models.PlayerDetail{}, apierr.Storage(err, "failed to load player stats")
	}
	sessions, err := e.store.PlayerSessions(ctx, player, MaxDetailSessions)
	if err != nil {
		return models.PlayerDetail{}, apierr.Storage(err, "failed to load player sessions")
	}
	online, err := e.store.PlayerOnline(ctx, player)
	if err != nil {
		return models.PlayerDetail{}, apierr.Storage(err, "failed to load player status")
	}

	if len(servers) == 0 && len(sessions) == 0 && !online {
		return models.PlayerDetail{}, apierr.NotFound("player %q not found", player)
	}

	detail := models.PlayerDetail{
		PlayerName:    player,
		CurrentStatus: models.StatusOffline,
		Servers:       servers,
		Sessions:      sessions,
	}
	if online {
		detail.CurrentStatus = models.StatusOnline
	}
	for _, s := range servers {
		detail.TotalPlayTime += s.TotalPlayTime
		detail.TotalSessions += s.TotalSessions
	}

	return detail, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func windowKind(window time.Duration) string {
	switch window {
	case Weekly:
		return KindWeekly
	case Monthly:
		return KindMonthly
	default:
		return window.String()
	}
}

func validScope(serverID string) error {
	if serverID != "" && !serverid.Valid(serverID) {
		return apierr.Validation(apierr.CodeInvalidServerID, "invalid server_id: %q", serverID)
	}

	return nil
}
