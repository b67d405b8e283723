// main is the entry point of the Vitals agent.
// It resolves the uptime anchor of the local game server, then reports heartbeats
// and player joins and leaves to the collector until stopped.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/vitals/internal/agent"
	"github.com/woozymasta/vitals/internal/anchor"
	"github.com/woozymasta/vitals/internal/botfilter"
	"github.com/woozymasta/vitals/internal/bus"
	"github.com/woozymasta/vitals/internal/config"
	"github.com/woozymasta/vitals/internal/logger"
	"github.com/woozymasta/vitals/internal/vars"
)

// transport delivers heartbeats and session events.
type transport interface {
	agent.Sender
	agent.EventSender
}

func main() {
	cfg := config.ParseAgent()

	logger.Setup(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pid, start := resolveStart(ctx, cfg)

	var (
		roster     agent.RosterSource = agent.StaticRoster(nil)
		fileRoster *agent.FileRoster
	)
	if cfg.Roster.Path != "" {
		fileRoster = agent.NewFileRoster(cfg.Roster.Path)
		roster = fileRoster
	}

	opts := agent.Options{
		Start:      start,
		Roster:     roster,
		Bots:       botfilter.New(cfg.Instance.BotPrefixes),
		ServerID:   cfg.Instance.ServerID,
		ServerName: cfg.Instance.ServerName,
		A2S:        cfg.A2S.Options(),
		Interval:   cfg.Instance.Interval,
	}

	// One-shot status
	if cfg.Status {
		fmt.Print(agent.FormatStatus(agent.New(opts).Status(ctx)))
		return
	}

	log.Info().
		Str("version", vars.Version).
		Str("server_id", cfg.Instance.ServerID).
		Int("pid", pid).
		Time("start", start).
		Msg("Starting vitals agent...")

	tr, closeTransport, err := openTransport(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transport")
	}
	defer closeTransport()

	opts.Sender = tr
	a := agent.New(opts)

	var wg sync.WaitGroup

	if fileRoster != nil && !cfg.Roster.NoWatch {
		w := agent.NewWatcher(agent.WatcherOptions{
			Roster:     fileRoster,
			Events:     tr,
			ServerID:   cfg.Instance.ServerID,
			ServerName: cfg.Instance.ServerName,
			Resync:     cfg.Roster.Resync,
			NoNotify:   cfg.Roster.Poll,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Roster watcher stopped")
			}
		}()
	}

	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Heartbeat loop stopped")
	}

	wg.Wait()
	log.Info().Msg("Agent exited")
}

// resolveStart returns the game server pid and start time.
// The status command only reads the anchor and reports pid 0.
func resolveStart(ctx context.Context, cfg *config.Agent) (int, time.Time) {
	anc := anchor.New(cfg.Instance.AnchorPath)
	if cfg.Status {
		return 0, anc.Peek()
	}

	pid := agent.ResolvePID(ctx, cfg.Instance.PIDFile)
	return pid, anc.Resolve(pid)
}

// openTransport connects the configured transport and returns its close function.
func openTransport(cfg *config.Agent) (transport, func(), error) {
	if cfg.Collector.Transport != config.TransportNATS {
		log.Info().Str("url", cfg.Collector.URL).Msg("Reporting over HTTP")
		return agent.NewHTTPClient(cfg.Collector.URL, cfg.Collector.Token, cfg.Collector.Timeout), func() {}, nil
	}

	conn, err := bus.Connect(cfg.NATS.Bus("vitals-agent " + cfg.Instance.ServerID))
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("url", conn.ConnectedUrl()).Msg("Reporting over NATS")

	closeFn := func() {
		if err := conn.Drain(); err != nil {
			log.Error().Err(err).Msg("Error draining NATS connection")
		}
	}

	return bus.NewPublisher(conn, cfg.NATS.Prefix), closeFn, nil
}
