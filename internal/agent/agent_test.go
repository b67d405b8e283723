package agent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/woozymasta/vitals/internal/botfilter"
	"github.com/woozymasta/vitals/internal/game"
	"github.com/woozymasta/vitals/internal/models"
)

type recordingSender struct {
	err  error
	sent []models.Heartbeat
	mu   sync.Mutex
}

func (s *recordingSender) Send(_ context.Context, hb models.Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, hb)
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sent)
}

func fixedMemory(v float64) func(context.Context) (float64, error) {
	return func(context.Context) (float64, error) { return v, nil }
}

func TestSample(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	a := New(Options{
		ServerID:   "s1",
		ServerName: "Alpha",
		Start:      start,
		Now:        func() time.Time { return start.Add(90 * time.Minute) },
		Roster:     StaticRoster{"Alice", "bot_1", "Bob"},
		Bots:       botfilter.New([]string{"bot_"}),
		Memory:     fixedMemory(37.5),
		Sender:     &recordingSender{},
	})

	hb := a.Sample(context.Background())

	if hb.Uptime != 5400 {
		t.Errorf("Uptime = %v, want 5400", hb.Uptime)
	}
	if hb.MemoryUsage != 37.5 {
		t.Errorf("MemoryUsage = %v, want 37.5", hb.MemoryUsage)
	}
	if !reflect.DeepEqual(hb.Players, []string{"Alice", "Bob"}) || hb.PlayerCount != 2 {
		t.Errorf("Players = %v (%d)", hb.Players, hb.PlayerCount)
	}
	if !reflect.DeepEqual(hb.Bots, []string{"bot_1"}) || hb.BotCount != 1 {
		t.Errorf("Bots = %v (%d)", hb.Bots, hb.BotCount)
	}
}

func TestSampleDegradesGracefully(t *testing.T) {
	a := New(Options{
		ServerID: "s1",
		Memory:   func(context.Context) (float64, error) { return 0, errors.New("no procfs") },
		Roster:   failingRoster{},
		Sender:   &recordingSender{},
	})

	hb := a.Sample(context.Background())
	if hb.MemoryUsage != 0 || hb.PlayerCount != 0 || hb.Players == nil || hb.Bots == nil {
		t.Errorf("heartbeat = %+v, want zero readings with empty lists", hb)
	}
}

type failingRoster struct{}

func (failingRoster) Roster(context.Context) ([]string, error) { return nil, errors.New("gone") }

func TestSampleA2SEnrichment(t *testing.T) {
	opts := Options{
		ServerID: "s1",
		A2S:      game.Options{Host: "127.0.0.1", Port: 27016},
		Memory:   fixedMemory(1),
		Sender:   &recordingSender{},
		Query: func(game.Options) (game.Info, error) {
			return game.Info{Name: "From A2S", Map: "chernarusplus", Game: "DayZ", MaxPlayers: 60}, nil
		},
	}

	hb := New(opts).Sample(context.Background())
	if hb.ServerName != "From A2S" || hb.Map != "chernarusplus" || hb.MaxPlayers != 60 {
		t.Errorf("heartbeat = %+v", hb)
	}

	opts.ServerName = "Configured"
	if hb := New(opts).Sample(context.Background()); hb.ServerName != "Configured" {
		t.Errorf("ServerName = %q, configured name must win", hb.ServerName)
	}

	opts.Query = func(game.Options) (game.Info, error) { return game.Info{}, errors.New("timeout") }
	if hb := New(opts).Sample(context.Background()); hb.Map != "" {
		t.Errorf("Map = %q after failed query", hb.Map)
	}
}

func TestRunSendsImmediatelyAndStops(t *testing.T) {
	sender := &recordingSender{}
	a := New(Options{ServerID: "s1", Sender: sender, Memory: fixedMemory(0), Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for sender.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no immediate heartbeat")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop within 1s of cancellation")
	}
}

func TestRunSurvivesSendFailures(t *testing.T) {
	sender := &recordingSender{err: errors.New("connection refused")}
	a := New(Options{ServerID: "s1", Sender: sender, Memory: fixedMemory(0), Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if n := sender.count(); n < 3 {
		t.Errorf("sent %d heartbeats, want the loop to keep ticking after failures", n)
	}
}

func TestCommandSurface(t *testing.T) {
	a := New(Options{
		ServerID: "s1",
		Roster:   StaticRoster{"bot_a", "Zoe"},
		Bots:     botfilter.New([]string{"bot_"}),
		Memory:   fixedMemory(12.34),
		Sender:   &recordingSender{},
	})
	ctx := context.Background()

	if got := a.RealPlayers(ctx); !reflect.DeepEqual(got, []string{"Zoe"}) {
		t.Errorf("RealPlayers = %v", got)
	}
	if got := a.Bots(ctx); !reflect.DeepEqual(got, []string{"bot_a"}) {
		t.Errorf("Bots = %v", got)
	}

	text := FormatStatus(a.Status(ctx))
	for _, want := range []string{"Server:  s1 (s1)", "Memory:  12.3%", "Players: 1 [Zoe]", "Bots:    1 [bot_a]"} {
		if !strings.Contains(text, want) {
			t.Errorf("FormatStatus missing %q in:\n%s", want, text)
		}
	}
}
