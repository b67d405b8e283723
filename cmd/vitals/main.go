// main is the entry point of the Vitals collector.
// It initializes the configuration, logger, database, GeoIP provider, optional
// NATS transport, and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/vitals/internal/botfilter"
	"github.com/woozymasta/vitals/internal/bus"
	"github.com/woozymasta/vitals/internal/collector"
	"github.com/woozymasta/vitals/internal/config"
	"github.com/woozymasta/vitals/internal/fake"
	"github.com/woozymasta/vitals/internal/geoip"
	"github.com/woozymasta/vitals/internal/leaderboard"
	"github.com/woozymasta/vitals/internal/ledger"
	"github.com/woozymasta/vitals/internal/logger"
	"github.com/woozymasta/vitals/internal/maintenance"
	"github.com/woozymasta/vitals/internal/server"
	"github.com/woozymasta/vitals/internal/storage"
	"github.com/woozymasta/vitals/internal/vars"
)

func main() {
	cfg := config.ParseCollector()

	logger.Setup(cfg.Logger)
	log.Info().Str("version", vars.Version).Msg("Starting vitals collector...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	geo := openGeoIP(ctx, cfg.GeoIP)
	defer func() {
		if err := geo.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing GeoIP provider")
		}
	}()

	// Database
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	var snapshots collector.Store = store
	if cfg.Snapshots.Store == config.StoreFile {
		snapshots = collector.NewFileStore(cfg.Snapshots.Path)
		log.Info().Str("path", cfg.Snapshots.Path).Msg("Using JSON file snapshot store")
	}

	hub := server.NewHub()
	bots := botfilter.New(cfg.Server.BotPrefixes)

	coll := collector.New(collector.Options{
		Store:          snapshots,
		Geo:            geo,
		Bots:           bots,
		OnSnapshot:     hub.PublishSnapshot,
		AllowedServers: cfg.Server.AllowedServers,
		StaleTimeout:   cfg.Server.StaleTimeout,
	})
	led := ledger.New(ledger.Options{Store: store, OnEvent: hub.PublishSession})
	board := leaderboard.New(store, bots, nil)

	// data generation or database maintenance
	if cfg.Storage.GenerateCount > 0 {
		fake.GenerateData(ctx, store, cfg.Storage.GenerateCount)
		return
	} else if maintenance.Run(ctx, cfg.Storage, coll, led) {
		return
	}

	// Optional bus transport
	if cfg.NATS.Enabled() {
		conn, err := bus.Connect(cfg.NATS.Bus("vitals"))
		if err != nil {
			log.Error().Err(err).Msg("NATS unavailable, bus transport disabled")
		} else {
			sub := bus.NewSubscriber(conn, cfg.NATS.Prefix, coll, led)
			if err := sub.Start(); err != nil {
				log.Error().Err(err).Msg("NATS subscription failed")
			}
			defer func() {
				sub.Stop()
				if err := conn.Drain(); err != nil {
					log.Error().Err(err).Msg("Error draining NATS connection")
				}
			}()
		}
	}

	srv := server.New(server.Services{
		Collector:   coll,
		Ledger:      led,
		Leaderboard: board,
		Hub:         hub,
		DB:          store,
	}, cfg)
	srv.Start()

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Disconnect live feed clients
	srv.Stop()

	log.Info().Msg("Server exited")
}

// openGeoIP refreshes and opens the country database; nil disables country detection.
func openGeoIP(ctx context.Context, cfg config.GeoIP) *geoip.Provider {
	if cfg.Disabled {
		return nil
	}

	log.Info().Msg("Checking GeoIP database...")
	if err := geoip.EnsureDB(ctx, cfg.Path, cfg.URL, cfg.Interval); err != nil {
		log.Error().Err(err).Msg("Failed to download GeoIP database")
	}

	provider, err := geoip.Open(cfg.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
		return nil
	}

	return provider
}
