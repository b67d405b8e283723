// Package anchor keeps the uptime anchor of a game server instance on disk.
//
// The anchor is the start time of the game server process together with the pid that
// owned it. When the agent starts again and finds its own game server pid in the record,
// the game server kept running (the agent or plugin was only reloaded) and the stored
// start time is kept. Any other pid means the game server was restarted.
package anchor

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/vitals/internal/atomicfile"
)

// Record is the persisted anchor.
type Record struct {
	StartTimestamp time.Time `json:"start_timestamp"`
	InstanceID     string    `json:"instance_id"`
	OwnerPID       int       `json:"owner_process_id"`
}

// Anchor resolves and stores the uptime anchor at a file path.
type Anchor struct {
	now  func() time.Time
	path string
}

// New creates an anchor stored at path.
func New(path string) *Anchor {
	return &Anchor{path: path, now: time.Now}
}

// WithClock replaces the time source, used by tests.
func (a *Anchor) WithClock(now func() time.Time) *Anchor {
	a.now = now
	return a
}

// Resolve returns the start timestamp for the process pid.
// It never fails: unreadable or corrupted records are treated as absent,
// and a failed write still yields the fresh timestamp.
func (a *Anchor) Resolve(pid int) time.Time {
	rec, err := a.Load()
	switch {
	case err == nil && rec.OwnerPID == pid && !rec.StartTimestamp.IsZero():
		log.Debug().
			Int("pid", pid).
			Time("start", rec.StartTimestamp).
			Msg("Uptime anchor kept, process was reloaded")
		return rec.StartTimestamp

	case err == nil:
		log.Info().
			Int("pid", pid).
			Int("previous_pid", rec.OwnerPID).
			Msg("Uptime anchor reset, process was restarted")

	case os.IsNotExist(err):
		log.Info().Int("pid", pid).Msg("Uptime anchor created")

	default:
		log.Warn().Err(err).Str("path", a.path).Msg("Uptime anchor unreadable, creating a new one")
	}

	fresh := Record{
		StartTimestamp: a.now().UTC(),
		OwnerPID:       pid,
		InstanceID:     uuid.NewString(),
	}
	if err := atomicfile.WriteJSON(a.path, fresh, 0o644); err != nil {
		log.Error().Err(err).Str("path", a.path).Msg("Failed to persist uptime anchor")
	}

	return fresh.StartTimestamp
}

// Peek returns the stored start timestamp without writing the record.
// Without a usable record it returns the current time.
func (a *Anchor) Peek() time.Time {
	rec, err := a.Load()
	if err != nil || rec.StartTimestamp.IsZero() {
		return a.now().UTC()
	}

	return rec.StartTimestamp
}

// Load reads the stored record.
func (a *Anchor) Load() (Record, error) {
	var rec Record
	err := atomicfile.ReadJSON(a.path, &rec)
	return rec, err
}

// Uptime returns the elapsed time since start, never negative.
func Uptime(start, now time.Time) time.Duration {
	if d := now.Sub(start); d > 0 {
		return d
	}

	return 0
}
