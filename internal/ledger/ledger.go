// Package ledger records player join and leave events as sessions and keeps
// the per server, per player lifetime stats in step with closed sessions.
package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/woozymasta/vitals/internal/apierr"
	"github.com/woozymasta/vitals/internal/logger"
	"github.com/woozymasta/vitals/internal/models"
	"github.com/woozymasta/vitals/internal/serverid"
	"github.com/woozymasta/vitals/internal/storage"
)

// ErrNoOpenSession is returned by OnLeave when the player has no open session.
// It is informational: nothing was changed.
var ErrNoOpenSession = storage.ErrNoOpenSession

// Event kinds passed to the OnEvent hook.
const (
	EventJoin  = "join"
	EventLeave = "leave"
)

// Event is a ledger change, used for the live feed.
type Event struct {
	Session models.PlayerSession `json:"session"`
	Type    string               `json:"type"`
}

// Store is the session persistence used by the ledger.
type Store interface {
	OpenSession(ctx context.Context, serverID, serverName, player string, at time.Time) (models.PlayerSession, *models.PlayerSession, error)
	CloseSession(ctx context.Context, serverID, player string, at time.Time) (models.PlayerSession, error)
	CloseServerSessions(ctx context.Context, serverID string, at time.Time) ([]models.PlayerSession, error)
	CloseSessionsOpenedBefore(ctx context.Context, cutoff, at time.Time) ([]models.PlayerSession, error)
}

// Options configures a Ledger.
type Options struct {
	Store   Store
	Now     func() time.Time
	OnEvent func(Event)
}

// Ledger serializes join and leave handling with a single mutex, which keeps
// at most one open session per server and player.
type Ledger struct {
	store   Store
	now     func() time.Time
	onEvent func(Event)
	log     zerolog.Logger
	mu      sync.Mutex
}

// New creates a Ledger.
func New(opts Options) *Ledger {
	l := &Ledger{
		store:   opts.Store,
		now:     opts.Now,
		onEvent: opts.OnEvent,
		log:     logger.Component("ledger"),
	}
	if l.now == nil {
		l.now = time.Now
	}

	return l
}

// OnJoin opens a session for the player. An open session of the same player on the
// same server is closed at this join time first and counted in the stats.
func (l *Ledger) OnJoin(ctx context.Context, serverID, serverName, player string) (models.PlayerSession, error) {
	if err := validate(serverID, player); err != nil {
		return models.PlayerSession{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	opened, replaced, err := l.store.OpenSession(ctx, serverID, serverName, player, l.now())
	if err != nil {
		return models.PlayerSession{}, apierr.Storage(err, "failed to record join")
	}

	if replaced != nil {
		l.log.Warn().
			Str("server_id", serverID).
			Str("player", player).
			Int64("duration", *replaced.Duration).
			Msg("Join while a session was open, previous session closed")
		l.emit(EventLeave, *replaced)
	}

	l.log.Debug().Str("server_id", serverID).Str("player", player).Msg("Player joined")
	l.emit(EventJoin, opened)

	return opened, nil
}

// OnLeave closes the player's open session and updates the stats.
// Returns ErrNoOpenSession, with no changes, when there is nothing to close.
func (l *Ledger) OnLeave(ctx context.Context, serverID, player string) (*models.PlayerSession, error) {
	if err := validate(serverID, player); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	closed, err := l.store.CloseSession(ctx, serverID, player, l.now())
	if errors.Is(err, storage.ErrNoOpenSession) {
		l.log.Debug().Str("server_id", serverID).Str("player", player).Msg("Leave without open session ignored")
		return nil, ErrNoOpenSession
	}
	if err != nil {
		return nil, apierr.Storage(err, "failed to record leave")
	}

	l.log.Debug().
		Str("server_id", serverID).
		Str("player", player).
		Int64("duration", *closed.Duration).
		Msg("Player left")
	l.emit(EventLeave, closed)

	return &closed, nil
}

// CloseServer closes every open session of a server, e.g. when its agent shuts down.
func (l *Ledger) CloseServer(ctx context.Context, serverID string) ([]models.PlayerSession, error) {
	if !serverid.Valid(serverID) {
		return nil, apierr.Validation(apierr.CodeInvalidServerID, "invalid server_id: %q", serverID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	closed, err := l.store.CloseServerSessions(ctx, serverID, l.now())
	if err != nil {
		return nil, apierr.Storage(err, "failed to close sessions of %q", serverID)
	}
	for _, s := range closed {
		l.emit(EventLeave, s)
	}

	l.log.Info().Str("server_id", serverID).Int("sessions", len(closed)).Msg("Server sessions closed")

	return closed, nil
}

// CloseStale closes sessions that have been open for longer than maxAge.
// Sessions never expire on their own, this is an explicit operator action.
func (l *Ledger) CloseStale(ctx context.Context, maxAge time.Duration) ([]models.PlayerSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	closed, err := l.store.CloseSessionsOpenedBefore(ctx, now.Add(-maxAge), now)
	if err != nil {
		return nil, apierr.Storage(err, "failed to close stale sessions")
	}

	return closed, nil
}

func (l *Ledger) emit(kind string, s models.PlayerSession) {
	if l.onEvent != nil {
		l.onEvent(Event{Type: kind, Session: s})
	}
}

func validate(serverID, player string) error {
	if !serverid.Valid(serverID) {
		return apierr.Validation(apierr.CodeInvalidServerID, "invalid server_id: %q", serverID)
	}
	if strings.TrimSpace(player) == "" {
		return apierr.Validation(apierr.CodeInvalidPayload, "player_name is required")
	}

	return nil
}
