// Package game queries the local game server with the Source Engine Query (A2S) protocol.
package game

import (
	"fmt"
	"time"

	"github.com/woozymasta/a2s/pkg/a2s"
)

// Options configures an A2S_INFO query.
type Options struct {
	Host       string
	Port       int
	Timeout    time.Duration
	BufferSize uint16
}

// Enabled reports whether a query target is configured.
func (o Options) Enabled() bool {
	return o.Host != "" && o.Port > 0
}

// Info is the subset of A2S_INFO added to heartbeats.
type Info struct {
	Name       string
	Map        string
	Game       string
	Version    string
	OS         string
	Players    int
	MaxPlayers int
}

// Query connects to the game server via UDP and requests A2S_INFO.
func Query(opts Options) (Info, error) {
	client, err := a2s.New(opts.Host, opts.Port)
	if err != nil {
		return Info{}, fmt.Errorf("a2s client %s:%d: %w", opts.Host, opts.Port, err)
	}
	defer func() { _ = client.Close() }()

	if opts.BufferSize > 0 {
		client.BufferSize = opts.BufferSize
	}
	if opts.Timeout > 0 {
		client.Timeout = opts.Timeout
	}

	info, err := client.GetInfo()
	if err != nil {
		return Info{}, fmt.Errorf("a2s info %s:%d: %w", opts.Host, opts.Port, err)
	}

	return Info{
		Name:       info.Name,
		Map:        info.Map,
		Game:       info.Game,
		Version:    info.Version,
		OS:         info.Environment.String(),
		Players:    int(info.Players),
		MaxPlayers: int(info.MaxPlayers),
	}, nil
}
