// Package models defines the data structures used for API requests and database persistence.
package models

import (
	"encoding/json"
	"time"
)

// Server status values derived at read time.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Document is a loosely typed JSON object as received from an agent or loaded from a store.
type Document = map[string]any

// Heartbeat is the payload an agent sends to the collector on every tick.
type Heartbeat struct {
	ServerID    string   `json:"server_id"`
	ServerName  string   `json:"server_name"`
	Map         string   `json:"map,omitempty"`
	Game        string   `json:"game,omitempty"`
	Players     []string `json:"players"`
	Bots        []string `json:"bots"`
	Uptime      float64  `json:"uptime"`
	MemoryUsage float64  `json:"memory_usage"`
	PlayerCount int      `json:"player_count"`
	BotCount    int      `json:"bot_count"`
	MaxPlayers  int      `json:"max_players,omitempty"`
}

// Snapshot is the sanitized, latest known status of one server.
// Extra holds fields the collector does not know about; they are kept as received.
type Snapshot struct {
	Extra       map[string]any
	ServerID    string
	ServerName  string
	LastUpdate  string
	Players     []string
	Bots        []string
	Uptime      float64
	MemoryUsage float64
	PlayerCount int
	BotCount    int
}

// Document flattens the snapshot into a single JSON object, extra fields included.
func (s Snapshot) Document() Document {
	doc := make(Document, len(s.Extra)+9)
	for k, v := range s.Extra {
		doc[k] = v
	}

	doc["server_id"] = s.ServerID
	doc["server_name"] = s.ServerName
	doc["uptime"] = s.Uptime
	doc["memory_usage"] = s.MemoryUsage
	doc["players"] = s.Players
	doc["bots"] = s.Bots
	doc["player_count"] = s.PlayerCount
	doc["bot_count"] = s.BotCount
	if s.LastUpdate != "" {
		doc["last_update"] = s.LastUpdate
	}

	return doc
}

// MarshalJSON encodes the flattened document.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Document())
}

// SnapshotView is a snapshot with its derived status.
type SnapshotView struct {
	Status string
	Snapshot
}

// MarshalJSON encodes the flattened document with a "status" field.
func (v SnapshotView) MarshalJSON() ([]byte, error) {
	doc := v.Document()
	doc["status"] = v.Status
	return json.Marshal(doc)
}

// SessionEvent is a join or leave signal for the session ledger.
type SessionEvent struct {
	ServerID   string `json:"server_id"`
	ServerName string `json:"server_name,omitempty"`
	PlayerName string `json:"player_name"`
}

// PlayerSession is one stay of a player on a server. LeaveTime and Duration are nil while open.
type PlayerSession struct {
	JoinTime   time.Time  `json:"join_time"`
	LeaveTime  *time.Time `json:"leave_time,omitempty"`
	Duration   *int64     `json:"duration,omitempty"`
	ServerID   string     `json:"server_id"`
	ServerName string     `json:"server_name"`
	PlayerName string     `json:"player_name"`
	ID         int64      `json:"id"`
}

// Open reports whether the session has no leave time yet.
func (s PlayerSession) Open() bool {
	return s.LeaveTime == nil
}

// PlayerStats is the lifetime aggregate of closed sessions for one (server, player) pair.
type PlayerStats struct {
	LastPlayTime  *time.Time `json:"last_play_time"`
	ServerID      string     `json:"server_id"`
	PlayerName    string     `json:"player_name"`
	TotalPlayTime int64      `json:"total_play_time"`
	TotalSessions int64      `json:"total_sessions"`
}

// PlayerStatsView is a PlayerStats row with the player's current status on that server.
type PlayerStatsView struct {
	CurrentStatus string `json:"current_status"`
	PlayerStats
}

// IdleEntry is a row of the idle leaderboard.
type IdleEntry struct {
	PlayerStats
	Rank        int   `json:"rank"`
	IdleSeconds int64 `json:"idle_seconds"`
}

// WindowedEntry is a row of a weekly or monthly leaderboard.
type WindowedEntry struct {
	LastPlayTime  *time.Time `json:"last_play_time"`
	PlayerName    string     `json:"player_name"`
	Status        string     `json:"status"`
	Rank          int        `json:"rank"`
	WindowedTotal int64      `json:"windowed_total"`
	LifetimeTotal int64      `json:"lifetime_total"`
}

// Leaderboard is the API response for a ranking.
type Leaderboard struct {
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	Entries     any        `json:"entries"`
	Kind        string     `json:"kind"`
	ServerID    string     `json:"server_id,omitempty"`
}

// PlayerDetail is the per-player view: stats per server plus recent closed sessions.
type PlayerDetail struct {
	PlayerName    string          `json:"player_name"`
	CurrentStatus string          `json:"current_status"`
	Servers       []PlayerStats   `json:"servers"`
	Sessions      []PlayerSession `json:"sessions"`
	TotalPlayTime int64           `json:"total_play_time"`
	TotalSessions int64           `json:"total_sessions"`
}
