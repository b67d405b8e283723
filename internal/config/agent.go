package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/woozymasta/vitals/internal/bus"
	"github.com/woozymasta/vitals/internal/game"
	"github.com/woozymasta/vitals/internal/logger"
	"github.com/woozymasta/vitals/internal/serverid"
	"github.com/woozymasta/vitals/internal/vars"
)

// Agent transports.
const (
	TransportHTTP = "http"
	TransportNATS = "nats"
)

// Agent represents the complete flags configuration of the heartbeat agent.
type Agent struct {
	// betteralign:ignore

	Instance  Instance      `group:"Instance Options" env-namespace:"VITALS_AGENT"`
	Collector Upstream      `group:"Collector Options" namespace:"collector" env-namespace:"VITALS_AGENT_COLLECTOR"`
	Roster    Roster        `group:"Roster Options" namespace:"roster" env-namespace:"VITALS_AGENT_ROSTER"`
	A2S       A2S           `group:"A2S Options" namespace:"a2s" env-namespace:"VITALS_AGENT_A2S"`
	NATS      NATS          `group:"NATS Options" namespace:"nats" env-namespace:"VITALS_AGENT_NATS"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"VITALS_AGENT_LOG"`

	Status  bool `long:"status" description:"Print the current vital signs and exit"`
	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Instance describes the game server the agent runs beside.
type Instance struct {
	// betteralign:ignore

	ServerID    string        `short:"s" long:"server-id" env:"SERVER_ID" description:"Unique server id reported to the collector"`
	ServerName  string        `short:"n" long:"server-name" env:"SERVER_NAME" description:"Human readable server name"`
	BotPrefixes []string      `short:"b" long:"bot-prefix" env:"BOT_PREFIXES" description:"Player name prefixes that mark bots" default:"bot_" env-delim:","`
	Interval    time.Duration `short:"i" long:"interval" env:"INTERVAL" description:"Heartbeat interval" default:"120s"`
	AnchorPath  string        `long:"anchor" env:"ANCHOR" description:"Path to the uptime anchor file" default:"vitals-anchor.json"`
	PIDFile     string        `long:"pid-file" env:"PID_FILE" description:"Game server pid file, the agent's own pid is used when empty"`
}

// Upstream holds the collector endpoint configuration.
type Upstream struct {
	// betteralign:ignore

	URL       string        `short:"c" long:"url" env:"URL" description:"Collector base URL" default:"http://127.0.0.1:8080"`
	Token     string        `long:"token" env:"TOKEN" description:"Bearer token sent to the collector"`
	Transport string        `long:"transport" env:"TRANSPORT" description:"Heartbeat transport" choice:"http" choice:"nats" default:"http"`
	Timeout   time.Duration `long:"timeout" env:"TIMEOUT" description:"Send timeout" default:"10s"`
}

// Roster holds the online player roster source configuration.
type Roster struct {
	// betteralign:ignore

	Path    string        `short:"r" long:"path" env:"PATH" description:"Roster file written by the game server, one player name per line"`
	NoWatch bool          `long:"no-watch" env:"NO_WATCH" description:"Do not report player joins and leaves"`
	Poll    bool          `long:"poll" env:"POLL" description:"Poll the roster file instead of using file notifications"`
	Resync  time.Duration `long:"resync" env:"RESYNC" description:"Roster re-read interval" default:"30s"`
}

// A2S holds Source Query protocol configuration for the local game server.
type A2S struct {
	// betteralign:ignore

	Host       string        `long:"host" env:"HOST" description:"Game server query host" default:"127.0.0.1"`
	Port       int           `long:"port" env:"PORT" description:"Game server query port, enrichment is disabled when 0"`
	Timeout    time.Duration `long:"timeout" env:"TIMEOUT" description:"Query timeout" default:"3s"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Response body buffer size" default:"1400"`
}

// Options converts the flags to query options.
func (a A2S) Options() game.Options {
	return game.Options{
		Host:       a.Host,
		Port:       a.Port,
		Timeout:    a.Timeout,
		BufferSize: a.BufferSize,
	}
}

// ParseAgent reads the agent configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func ParseAgent() *Agent {
	cfg, err := parseAgent(os.Args[1:])
	exitOnError(err)

	if cfg.Version {
		vars.Print("vitals-agent")
		os.Exit(0)
	}

	return cfg
}

func parseAgent(args []string) (*Agent, error) {
	var cfg Agent
	if err := parse(&cfg, args); err != nil {
		return nil, err
	}
	if cfg.Version {
		return &cfg, nil
	}

	return &cfg, cfg.validate()
}

func (a *Agent) validate() error {
	if a.Instance.ServerID == "" {
		return errors.New("required flag `-s, --server-id' or environment variable `VITALS_AGENT_SERVER_ID` was not specified")
	}
	if !serverid.Valid(a.Instance.ServerID) {
		return fmt.Errorf("invalid server id %q", a.Instance.ServerID)
	}
	if a.Instance.Interval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if a.A2S.Port < 0 || a.A2S.Port > 65535 {
		return fmt.Errorf("invalid A2S port %d", a.A2S.Port)
	}

	switch a.Collector.Transport {
	case TransportNATS:
		if !a.NATS.Enabled() {
			return errors.New("nats transport requires --nats-url")
		}
		if !bus.ValidSubjectID(a.Instance.ServerID) {
			return fmt.Errorf("server id %q cannot be used as a NATS subject", a.Instance.ServerID)
		}
	default:
		if a.Collector.URL == "" {
			return errors.New("http transport requires --collector-url")
		}
	}

	return nil
}
