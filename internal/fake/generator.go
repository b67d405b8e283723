// Package fake provides utilities for generating random fleet data for testing and development purposes.
package fake

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/vitals/internal/botfilter"
	"github.com/woozymasta/vitals/internal/collector"
	"github.com/woozymasta/vitals/internal/models"
)

// Store receives the generated snapshots and sessions.
type Store interface {
	PutSnapshot(ctx context.Context, id string, doc models.Document) error
	OpenSession(ctx context.Context, serverID, serverName, player string, at time.Time) (models.PlayerSession, *models.PlayerSession, error)
	CloseSession(ctx context.Context, serverID, player string, at time.Time) (models.PlayerSession, error)
}

var botPrefix = botfilter.New([]string{"bot_"})

var (
	regions = []string{"eu", "us", "asia", "ru", "br"}
	maps    = []string{"chernarusplus", "livonia", "namalsk", "takistan", "enoch", "sakhal", "deerisle"}
	first   = []string{"Alex", "Sam", "Mira", "Oleg", "Yuki", "Ivan", "Lena", "Jack", "Nora", "Pavel", "Zoe", "Kai"}
	suffix  = []string{"", "_pro", "42", "TheGreat", "_ru", "007", "x"}
)

// GenerateData populates the store with count closed sessions spread over the last 30 days,
// a handful of servers with recent or stale snapshots, and a few currently open sessions.
func GenerateData(ctx context.Context, store Store, count int) {
	if err := Generate(ctx, store, count, rand.New(rand.NewSource(time.Now().UnixNano())), time.Now()); err != nil {
		log.Error().Err(err).Msg("Fake data generation failed")
		return
	}

	log.Info().Int("sessions", count).Msg("Fake data generated")
}

// Generate is GenerateData with an explicit random source and clock.
func Generate(ctx context.Context, store Store, count int, rng *rand.Rand, now time.Time) error {
	servers := make([]string, 0, count/20+2)
	for i := 0; i < cap(servers); i++ {
		servers = append(servers, fmt.Sprintf("%s-%d", regions[rng.Intn(len(regions))], i+1))
	}

	names := make(map[string]string, len(servers))
	for _, id := range servers {
		names[id] = fmt.Sprintf("DayZ Server %s [PvE]", id)
	}

	for i := 0; i < count; i++ {
		id := servers[rng.Intn(len(servers))]
		player := randomPlayer(rng)
		join := now.Add(-time.Duration(rng.Int63n(int64(30 * 24 * time.Hour))))
		stay := time.Minute + time.Duration(rng.Int63n(int64(4*time.Hour)))
		if leave := join.Add(stay); leave.After(now) {
			join = now.Add(-stay)
		}

		if _, _, err := store.OpenSession(ctx, id, names[id], player, join); err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		if _, err := store.CloseSession(ctx, id, player, join.Add(stay)); err != nil {
			return fmt.Errorf("close session: %w", err)
		}
	}

	for _, id := range servers {
		// 20% of servers stopped reporting an hour ago
		last := now.Add(-time.Duration(rng.Intn(60)) * time.Second)
		online := rng.Float32() >= 0.2
		if !online {
			last = now.Add(-time.Hour)
		}

		var roster []string
		if online {
			for n := rng.Intn(4); n > 0; n-- {
				player := randomPlayer(rng)
				if slices.Contains(roster, player) {
					continue
				}
				if _, _, err := store.OpenSession(ctx, id, names[id], player, now.Add(-time.Duration(rng.Intn(7200))*time.Second)); err != nil {
					return fmt.Errorf("open session: %w", err)
				}
				roster = append(roster, player)
			}
		}

		if err := store.PutSnapshot(ctx, id, snapshot(rng, id, names[id], roster, last)); err != nil {
			return fmt.Errorf("put snapshot: %w", err)
		}
	}

	return nil
}

func snapshot(rng *rand.Rand, id, name string, roster []string, last time.Time) models.Document {
	humans, bots := botPrefix.Split(roster)

	snap := models.Snapshot{
		ServerID:    id,
		ServerName:  name,
		LastUpdate:  last.Format(collector.TimeLayout),
		Uptime:      float64(rng.Intn(72 * 3600)),
		MemoryUsage: 20 + rng.Float64()*70,
		Players:     humans,
		Bots:        bots,
		PlayerCount: len(humans),
		BotCount:    len(bots),
		Extra: map[string]any{
			"map":         maps[rng.Intn(len(maps))],
			"max_players": 60,
		},
	}

	return snap.Document()
}

func randomPlayer(rng *rand.Rand) string {
	// 10% chance for a bot
	if rng.Float32() < 0.1 {
		return fmt.Sprintf("bot_%d", rng.Intn(20))
	}

	return first[rng.Intn(len(first))] + suffix[rng.Intn(len(suffix))]
}
