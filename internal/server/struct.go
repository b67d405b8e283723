package server

import (
	"context"
	"sync"
	"time"

	"github.com/woozymasta/vitals/internal/collector"
	"github.com/woozymasta/vitals/internal/leaderboard"
	"github.com/woozymasta/vitals/internal/ledger"
)

// Server holds the services, configuration, and runtime state required
// to handle HTTP requests of the collector.
type Server struct {
	// collector ingests heartbeats and answers server status queries.
	collector *collector.Collector

	// ledger records player join and leave events.
	ledger *ledger.Ledger

	// board answers leaderboard and player queries.
	board *leaderboard.Engine

	// hub fans accepted heartbeats and session events out to websocket clients.
	// It can be nil, the /ws endpoint is then not registered.
	hub *Hub

	// db is pinged by the readiness endpoint. It can be nil.
	db Pinger

	// shutdown is closed on Stop to terminate background goroutines.
	shutdown chan struct{}

	// authToken is the Bearer token required by administrative endpoints.
	// Administrative endpoints reject every request when it is empty.
	authToken string

	// wg waits for background goroutines on Stop.
	wg sync.WaitGroup

	// stopOnce guards the shutdown channel.
	stopOnce sync.Once

	// maxBody is the maximum accepted request body size in bytes.
	maxBody int64

	// rateCount is the number of ingress requests allowed per IP within rateWindow.
	rateCount int

	// sessionRateCount is the number of join and leave requests allowed per IP
	// within rateWindow. Joins and leaves share one bucket.
	sessionRateCount int

	// rateWindow is the time window of the per IP rate limiter.
	rateWindow time.Duration

	// trustProxy makes the server read the client address from CF-Connecting-IP
	// or X-Forwarded-For.
	trustProxy bool
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the domain services served over HTTP.
type Services struct {
	Collector   *collector.Collector
	Ledger      *ledger.Ledger
	Leaderboard *leaderboard.Engine
	Hub         *Hub
	DB          Pinger
}
