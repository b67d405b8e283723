// Package agent runs beside a game server, samples its vital signs and reports
// them to the collector as periodic heartbeats.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/woozymasta/vitals/internal/anchor"
	"github.com/woozymasta/vitals/internal/botfilter"
	"github.com/woozymasta/vitals/internal/game"
	"github.com/woozymasta/vitals/internal/logger"
	"github.com/woozymasta/vitals/internal/models"
)

// Defaults for the heartbeat loop.
const (
	DefaultInterval = 120 * time.Second
	SendTimeout     = 10 * time.Second
)

// Options configures an Agent.
type Options struct {
	Start      time.Time
	Roster     RosterSource
	Sender     Sender
	Bots       *botfilter.Filter
	Now        func() time.Time
	Memory     func(ctx context.Context) (float64, error)
	Query      func(opts game.Options) (game.Info, error)
	ServerID   string
	ServerName string
	A2S        game.Options
	Interval   time.Duration
}

// Agent samples the local game server and sends heartbeats.
type Agent struct {
	start      time.Time
	roster     RosterSource
	sender     Sender
	bots       *botfilter.Filter
	now        func() time.Time
	memory     func(ctx context.Context) (float64, error)
	query      func(opts game.Options) (game.Info, error)
	log        zerolog.Logger
	serverID   string
	serverName string
	a2s        game.Options
	interval   time.Duration
}

// New creates an Agent. Start is the uptime anchor, normally from anchor.Resolve.
func New(opts Options) *Agent {
	a := &Agent{
		start:      opts.Start,
		roster:     opts.Roster,
		sender:     opts.Sender,
		bots:       opts.Bots,
		now:        opts.Now,
		memory:     opts.Memory,
		query:      opts.Query,
		serverID:   opts.ServerID,
		serverName: opts.ServerName,
		a2s:        opts.A2S,
		interval:   opts.Interval,
		log:        logger.Component("agent").With().Str("server_id", opts.ServerID).Logger(),
	}

	if a.now == nil {
		a.now = time.Now
	}
	if a.start.IsZero() {
		a.start = a.now()
	}
	if a.memory == nil {
		a.memory = MemoryUsage
	}
	if a.query == nil {
		a.query = game.Query
	}
	if a.roster == nil {
		a.roster = StaticRoster(nil)
	}
	if a.interval <= 0 {
		a.interval = DefaultInterval
	}

	return a
}

// Sample collects one heartbeat. It never fails: unavailable readings are left at zero.
func (a *Agent) Sample(ctx context.Context) models.Heartbeat {
	hb := models.Heartbeat{
		ServerID:   a.serverID,
		ServerName: a.serverName,
		Uptime:     anchor.Uptime(a.start, a.now()).Seconds(),
	}

	if usage, err := a.memory(ctx); err != nil {
		a.log.Debug().Err(err).Msg("Memory usage unavailable")
	} else {
		hb.MemoryUsage = usage
	}

	names, err := a.roster.Roster(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("Roster unavailable")
	}
	hb.Players, hb.Bots = a.bots.Split(names)
	hb.PlayerCount = len(hb.Players)
	hb.BotCount = len(hb.Bots)

	if a.a2s.Enabled() {
		a.enrich(&hb)
	}

	return hb
}

func (a *Agent) enrich(hb *models.Heartbeat) {
	info, err := a.query(a.a2s)
	if err != nil {
		a.log.Debug().Err(err).Msg("A2S query failed")
		return
	}

	hb.Map = info.Map
	hb.Game = info.Game
	hb.MaxPlayers = info.MaxPlayers
	if hb.ServerName == "" {
		hb.ServerName = info.Name
	}
}

// Run sends a heartbeat immediately and then once per interval until ctx is done.
// Send failures are logged and the loop continues with the next tick.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info().Dur("interval", a.interval).Msg("Heartbeat loop started")

	a.tick(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info().Msg("Heartbeat loop stopped")
			return nil
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Agent) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	hb := a.Sample(ctx)
	if err := a.sender.Send(ctx, hb); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		a.log.Warn().Err(err).Msg("Heartbeat not delivered")
		return
	}

	a.log.Debug().
		Int("players", hb.PlayerCount).
		Int("bots", hb.BotCount).
		Float64("memory", hb.MemoryUsage).
		Msg("Heartbeat sent")
}
