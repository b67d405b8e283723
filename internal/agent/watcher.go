package agent

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/woozymasta/vitals/internal/logger"
	"github.com/woozymasta/vitals/internal/models"
)

// DefaultResync is how often the roster is re-read even without file events.
const DefaultResync = 30 * time.Second

// WatcherOptions configures a roster Watcher.
type WatcherOptions struct {
	Roster     *FileRoster
	Events     EventSender
	ServerID   string
	ServerName string
	Resync     time.Duration
	// NoNotify disables fsnotify, the roster is then only polled every Resync.
	NoNotify bool
}

// Watcher turns roster file changes into join and leave events.
// The first read announces everyone listed as joined, stopping announces
// everyone still listed as left. Events that could not be delivered are
// retried on the next sync.
type Watcher struct {
	roster     *FileRoster
	events     EventSender
	log        zerolog.Logger
	known      map[string]struct{}
	serverID   string
	serverName string
	resync     time.Duration
	noNotify   bool
}

// NewWatcher creates a Watcher.
func NewWatcher(opts WatcherOptions) *Watcher {
	w := &Watcher{
		roster:     opts.Roster,
		events:     opts.Events,
		serverID:   opts.ServerID,
		serverName: opts.ServerName,
		resync:     opts.Resync,
		noNotify:   opts.NoNotify,
		known:      make(map[string]struct{}),
		log:        logger.Component("roster").With().Str("path", opts.Roster.Path()).Logger(),
	}
	if w.resync <= 0 {
		w.resync = DefaultResync
	}

	return w
}

// Run syncs the roster until ctx is done, then announces leaves for everyone still known.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)

	if !w.noNotify {
		fsw, err := w.watch()
		if err != nil {
			w.log.Warn().Err(err).Dur("resync", w.resync).Msg("Roster notifications unavailable, polling")
		} else {
			defer func() { _ = fsw.Close() }()
			events, errs = fsw.Events, fsw.Errors
		}
	}

	w.Sync(ctx)

	ticker := time.NewTicker(w.resync)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.leaveAll()
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.roster.Path()) || ev.Has(fsnotify.Chmod) {
				continue
			}
			w.log.Trace().Str("op", ev.Op.String()).Msg("Roster file changed")
			w.Sync(ctx)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Warn().Err(err).Msg("Roster watch error")

		case <-ticker.C:
			w.Sync(ctx)
		}
	}
}

// watch subscribes to the roster directory, so atomic replaces of the file are seen.
func (w *Watcher) watch() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(filepath.Dir(w.roster.Path())); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return fsw, nil
}

// Sync reads the roster and sends join and leave events for the differences
// with the last delivered state.
func (w *Watcher) Sync(ctx context.Context) {
	names, err := w.roster.Roster(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("Roster read failed")
		return
	}

	joined, left := diff(w.knownNames(), names)

	for _, name := range joined {
		if err := w.send(ctx, w.events.Join, name); err != nil {
			w.log.Warn().Err(err).Str("player", name).Msg("Join not delivered")
			continue
		}
		w.known[name] = struct{}{}
	}

	for _, name := range left {
		if err := w.send(ctx, w.events.Leave, name); err != nil {
			w.log.Warn().Err(err).Str("player", name).Msg("Leave not delivered")
			continue
		}
		delete(w.known, name)
	}
}

func (w *Watcher) leaveAll() {
	ctx, cancel := context.WithTimeout(context.Background(), SendTimeout)
	defer cancel()

	for _, name := range w.knownNames() {
		if err := w.send(ctx, w.events.Leave, name); err != nil {
			w.log.Warn().Err(err).Str("player", name).Msg("Leave not delivered on shutdown")
			if errors.Is(err, context.DeadlineExceeded) {
				return
			}
			continue
		}
		delete(w.known, name)
	}
}

func (w *Watcher) send(ctx context.Context, fn func(context.Context, models.SessionEvent) error, player string) error {
	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	return fn(ctx, models.SessionEvent{
		ServerID:   w.serverID,
		ServerName: w.serverName,
		PlayerName: player,
	})
}

func (w *Watcher) knownNames() []string {
	names := make([]string, 0, len(w.known))
	for n := range w.known {
		names = append(names, n)
	}

	return names
}
