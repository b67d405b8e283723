// Package server implements the HTTP API, middleware, and live feed of the collector.
package server

import (
	"net/http"

	"github.com/woozymasta/vitals/internal/config"
)

// New creates a Server over the given services and configuration.
func New(svc Services, cfg *config.Collector) *Server {
	return &Server{
		collector:  svc.Collector,
		ledger:     svc.Ledger,
		board:      svc.Leaderboard,
		hub:        svc.Hub,
		db:         svc.DB,
		authToken:  cfg.Server.AuthToken,
		maxBody:    cfg.Server.MaxBodySize,
		trustProxy: cfg.Server.TrustProxy,
		rateCount:  cfg.RateLimit.Count,
		rateWindow: cfg.RateLimit.Window,

		sessionRateCount: cfg.RateLimit.SessionCount,

		shutdown: make(chan struct{}),
	}
}

// Start launches the websocket hub.
func (s *Server) Start() {
	if s.hub == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.shutdown)
	}()
}

// Stop terminates background goroutines and waits for them.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.shutdown) })
	s.wg.Wait()
}

// Handler configures the HTTP routes and returns the main handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	sessionLimit := s.rateLimiter(s.sessionRateCount)

	mux.Handle("POST /api/server_status", s.RateLimitMiddleware(http.HandlerFunc(s.handleServerStatus)))
	mux.Handle("POST /api/sessions/join", sessionLimit(http.HandlerFunc(s.handleSessionJoin)))
	mux.Handle("POST /api/sessions/leave", sessionLimit(http.HandlerFunc(s.handleSessionLeave)))

	mux.HandleFunc("GET /api/servers", s.handleServers)
	mux.HandleFunc("GET /api/servers/{id}", s.handleServer)
	mux.Handle("DELETE /api/servers/{id}", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleDeleteServer)))
	mux.HandleFunc("GET /api/servers/{id}/players", s.handleServerPlayers)
	mux.HandleFunc("GET /api/servers/{id}/bots", s.handleBots)
	mux.HandleFunc("GET /api/bots", s.handleBots)

	mux.HandleFunc("GET /api/players", s.handlePlayers)
	mux.HandleFunc("GET /api/players/{name}", s.handlePlayer)
	mux.HandleFunc("GET /api/online", s.handleOnline)

	mux.HandleFunc("GET /api/leaderboard/idle", s.handleIdle)
	mux.HandleFunc("GET /api/leaderboard/weekly", s.handleWeekly)
	mux.HandleFunc("GET /api/leaderboard/monthly", s.handleMonthly)

	mux.HandleFunc("GET /api/test", s.handleTest)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.HandleFunc("GET /api/version", s.handleVersion)

	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}

	mux.HandleFunc("/", handleNotFound)

	return RequestIDMiddleware(s.LoggingMiddleware(RecoverMiddleware(mux)))
}
