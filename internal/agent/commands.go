package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/woozymasta/vitals/internal/models"
)

// Status returns the current vital signs without sending them.
func (a *Agent) Status(ctx context.Context) models.Heartbeat {
	return a.Sample(ctx)
}

// Bots returns the bot names currently on the server.
func (a *Agent) Bots(ctx context.Context) []string {
	return a.Sample(ctx).Bots
}

// RealPlayers returns the real player names currently on the server.
func (a *Agent) RealPlayers(ctx context.Context) []string {
	return a.Sample(ctx).Players
}

// FormatStatus renders a heartbeat as plain text for console output.
func FormatStatus(hb models.Heartbeat) string {
	var b strings.Builder

	name := hb.ServerName
	if name == "" {
		name = hb.ServerID
	}
	uptime := time.Duration(hb.Uptime * float64(time.Second)).Round(time.Second)

	fmt.Fprintf(&b, "Server:  %s (%s)\n", name, hb.ServerID)
	if hb.Map != "" {
		fmt.Fprintf(&b, "Map:     %s\n", hb.Map)
	}
	fmt.Fprintf(&b, "Uptime:  %s\n", uptime)
	fmt.Fprintf(&b, "Memory:  %.1f%%\n", hb.MemoryUsage)
	fmt.Fprintf(&b, "Players: %d %s\n", hb.PlayerCount, joinNames(hb.Players))
	fmt.Fprintf(&b, "Bots:    %d %s\n", hb.BotCount, joinNames(hb.Bots))

	return b.String()
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return "[" + strings.Join(names, ", ") + "]"
}
