package collector

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/woozymasta/vitals/internal/models"
)

func TestSanitizeCoercion(t *testing.T) {
	doc := models.Document{
		"server_id":    "s1",
		"server_name":  "Survival",
		"uptime":       "3600.5",
		"memory_usage": 42.5,
		"player_count": "2",
		"bot_count":    1.9,
		"players":      []any{"Alice", nil, "Bob", 7.0},
		"bots":         "bot_1",
		"map":          "world",
	}

	s := Sanitize(doc)

	if s.ServerID != "s1" || s.ServerName != "Survival" {
		t.Errorf("identity = %q/%q", s.ServerID, s.ServerName)
	}
	if s.Uptime != 3600.5 {
		t.Errorf("Uptime = %v, want 3600.5", s.Uptime)
	}
	if s.MemoryUsage != 42.5 {
		t.Errorf("MemoryUsage = %v, want 42.5", s.MemoryUsage)
	}
	if s.PlayerCount != 2 {
		t.Errorf("PlayerCount = %d, want 2", s.PlayerCount)
	}
	if s.BotCount != 1 {
		t.Errorf("BotCount = %d, want 1 (truncated)", s.BotCount)
	}
	if !reflect.DeepEqual(s.Players, []string{"Alice", "Bob", "7"}) {
		t.Errorf("Players = %v", s.Players)
	}
	if len(s.Bots) != 0 || s.Bots == nil {
		t.Errorf("Bots = %#v, want empty list for non-list input", s.Bots)
	}
	if s.Extra["map"] != "world" {
		t.Errorf("Extra[map] = %v, want pass-through", s.Extra["map"])
	}
}

func TestSanitizeFallbacks(t *testing.T) {
	tests := []struct {
		name string
		doc  models.Document
	}{
		{"empty", models.Document{}},
		{"nulls", models.Document{"uptime": nil, "memory_usage": nil, "player_count": nil, "players": nil}},
		{"garbage", models.Document{"uptime": "abc", "memory_usage": []any{1}, "player_count": "1.5", "players": map[string]any{"a": 1}}},
		{"booleans", models.Document{"uptime": true, "player_count": false}},
		{"negative", models.Document{"uptime": -5.0, "player_count": -3.0}},
		{"non finite", models.Document{"uptime": "NaN", "memory_usage": "+Inf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Sanitize(tt.doc)
			if s.Uptime != 0 || s.MemoryUsage != 0 || s.PlayerCount != 0 {
				t.Errorf("numbers = %v/%v/%d, want zeros", s.Uptime, s.MemoryUsage, s.PlayerCount)
			}
			if s.Players == nil || len(s.Players) != 0 {
				t.Errorf("Players = %#v, want empty list", s.Players)
			}
			if s.ServerID != "unknown" {
				t.Errorf("ServerID = %q, want unknown", s.ServerID)
			}
		})
	}
}

func TestSanitizeClampsMemory(t *testing.T) {
	if got := Sanitize(models.Document{"memory_usage": 250.0}).MemoryUsage; got != 100 {
		t.Errorf("MemoryUsage = %v, want 100", got)
	}
}

func TestSanitizeReservedID(t *testing.T) {
	for _, id := range []any{"", "status", "timestamp", strings.Repeat("a", 50), []any{"s1"}, nil} {
		if got := Sanitize(models.Document{"server_id": id}).ServerID; got != "unknown" {
			t.Errorf("Sanitize(server_id=%v).ServerID = %q, want unknown", id, got)
		}
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	var fromJSON models.Document
	raw := `{"server_id":"s1","uptime":"12","players":["a",null,{"x":1},3],"bots":null,
		"player_count":"x","bot_count":2.7,"last_update":"2026-01-01T00:00:00Z","extra":{"nested":[1,2]}}`
	if err := json.Unmarshal([]byte(raw), &fromJSON); err != nil {
		t.Fatal(err)
	}

	inputs := []models.Document{
		{},
		{"server_id": "status", "memory_usage": "99.9", "players": []string{"a", "b"}},
		{"uptime": -1, "bot_count": "3", "bots": []any{nil, nil}, "custom": true},
		{"server_name": 5.0, "memory_usage": 400.0, "player_count": 1e12},
		fromJSON,
	}

	for i, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once.Document())
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("input %d: Sanitize not idempotent:\n once  = %#v\n twice = %#v", i, once, twice)
		}
	}
}

func TestSanitizeSurvivesJSONRoundTrip(t *testing.T) {
	once := Sanitize(models.Document{"server_id": "s1", "uptime": 10.0, "players": []any{"a"}, "map": "world"})

	data, err := json.Marshal(once)
	if err != nil {
		t.Fatal(err)
	}
	var back models.Document
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}

	if again := Sanitize(back); !reflect.DeepEqual(once, again) {
		t.Errorf("round trip changed snapshot:\n %#v\n %#v", once, again)
	}
}
