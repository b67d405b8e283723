// Package config handles the parsing and validation of the collector and agent
// configuration from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/vitals/internal/bus"
	"github.com/woozymasta/vitals/internal/logger"
	"github.com/woozymasta/vitals/internal/serverid"
	"github.com/woozymasta/vitals/internal/vars"
)

// Snapshot store kinds.
const (
	StoreFile = "file"
	StoreDB   = "db"
)

// Collector represents the complete flags configuration of the collector service.
type Collector struct {
	// betteralign:ignore

	Server    Server        `group:"Server Options" env-namespace:"VITALS"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"VITALS_DB"`
	Snapshots Snapshots     `group:"Snapshot Options" namespace:"snapshot" env-namespace:"VITALS_SNAPSHOT"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"VITALS_GEOIP"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"VITALS_RATE_LIMIT"`
	NATS      NATS          `group:"NATS Options" namespace:"nats" env-namespace:"VITALS_NATS"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"VITALS_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address        string        `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	AuthToken      string        `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token, admin endpoints are disabled when empty"`
	AllowedServers []string      `short:"a" long:"allowed-server" env:"ALLOWED_SERVERS" description:"Accept heartbeats only from these server ids (all when empty)" env-delim:","`
	BotPrefixes    []string      `short:"b" long:"bot-prefix" env:"BOT_PREFIXES" description:"Player name prefixes that mark bots" default:"bot_" env-delim:","`
	MaxBodySize    int64         `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"65536"`
	StaleTimeout   time.Duration `long:"stale-timeout" env:"STALE_TIMEOUT" description:"Server is offline when no heartbeat was received within this duration" default:"180s"`
	TrustProxy     bool          `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
}

// Storage holds database configuration and one-shot maintenance tasks.
type Storage struct {
	// betteralign:ignore

	Path          string        `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"vitals.db"`
	PruneOffline  time.Duration `long:"prune-offline" description:"Delete server snapshots not updated within duration and exit"`
	PruneInvalid  bool          `long:"prune-invalid" description:"Delete server snapshots with invalid ids and exit"`
	CloseStale    time.Duration `long:"close-stale" description:"Close player sessions open for longer than duration and exit"`
	GenerateCount int           `long:"gen-fake-data" hidden:"true"`
}

// Snapshots selects where the latest server snapshots are kept.
type Snapshots struct {
	// betteralign:ignore

	Store string `long:"store" env:"STORE" description:"Snapshot store" choice:"file" choice:"db" default:"db"`
	Path  string `long:"path" env:"PATH" description:"Path to JSON snapshot file for the file store" default:"server_data.json"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"vitals.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB, only the local file is used when empty" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
	Disabled bool          `long:"disable" env:"DISABLE" description:"Disable country detection"`
}

// RateLimit holds API rate limiting configuration for ingress endpoints.
type RateLimit struct {
	// betteralign:ignore

	Count        int           `long:"count" env:"COUNT" description:"Heartbeats allowed per IP within window" default:"30"`
	SessionCount int           `long:"session-count" env:"SESSION_COUNT" description:"Session joins and leaves allowed per IP within window" default:"600"`
	Window       time.Duration `long:"window" env:"WINDOW" description:"Rate limit window duration" default:"1m"`
}

// NATS holds the optional message bus transport configuration.
type NATS struct {
	// betteralign:ignore

	URL            string        `long:"url" env:"URL" description:"NATS server URL, the bus transport is disabled when empty"`
	Prefix         string        `long:"prefix" env:"PREFIX" description:"Subject prefix" default:"vitals"`
	ConnectTimeout time.Duration `long:"connect-timeout" env:"CONNECT_TIMEOUT" description:"Connect timeout" default:"5s"`
	ReconnectWait  time.Duration `long:"reconnect-wait" env:"RECONNECT_WAIT" description:"Delay between reconnect attempts" default:"2s"`
	MaxReconnects  int           `long:"max-reconnects" env:"MAX_RECONNECTS" description:"Reconnect attempts, -1 for unlimited" default:"-1"`
}

// Enabled reports whether a NATS URL is configured.
func (n NATS) Enabled() bool {
	return n.URL != ""
}

// Bus converts the options to a bus connection config.
func (n NATS) Bus(name string) bus.Config {
	return bus.Config{
		URL:            n.URL,
		Name:           name,
		Prefix:         n.Prefix,
		ConnectTimeout: n.ConnectTimeout,
		ReconnectWait:  n.ReconnectWait,
		MaxReconnects:  n.MaxReconnects,
	}
}

// Maintenance reports whether a one-shot maintenance task was requested.
func (s Storage) Maintenance() bool {
	return s.PruneOffline > 0 || s.PruneInvalid || s.CloseStale > 0
}

// ParseCollector reads the collector configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func ParseCollector() *Collector {
	cfg, err := parseCollector(os.Args[1:])
	exitOnError(err)

	if cfg.Version {
		vars.Print("vitals")
		os.Exit(0)
	}

	return cfg
}

func parseCollector(args []string) (*Collector, error) {
	var cfg Collector
	if err := parse(&cfg, args); err != nil {
		return nil, err
	}
	if cfg.Version {
		return &cfg, nil
	}

	return &cfg, cfg.validate()
}

func (c *Collector) validate() error {
	for _, id := range c.Server.AllowedServers {
		if !serverid.Valid(id) {
			return fmt.Errorf("invalid allowed server id %q", id)
		}
	}
	if c.Server.StaleTimeout <= 0 {
		return errors.New("stale timeout must be positive")
	}
	if c.Server.MaxBodySize <= 0 {
		return errors.New("max body size must be positive")
	}
	if c.RateLimit.Count <= 0 || c.RateLimit.SessionCount <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit counts and window must be positive")
	}

	return nil
}

func parse(data any, args []string) error {
	parser := flags.NewParser(data, flags.Default)
	parser.NamespaceDelimiter = "-"

	_, err := parser.ParseArgs(args)
	return err
}

func exitOnError(err error) {
	if err == nil {
		return
	}

	var flagsErr *flags.Error
	if errors.As(err, &flagsErr) {
		if flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		// Already printed by the parser
		os.Exit(1)
	}

	fmt.Fprintln(os.Stderr, "Invalid configuration:", err)
	os.Exit(1)
}
