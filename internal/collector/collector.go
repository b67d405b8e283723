// Package collector validates, sanitizes and merges agent heartbeats into a snapshot
// store keyed by server id, and derives online/offline status at read time.
package collector

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/vitals/internal/apierr"
	"github.com/woozymasta/vitals/internal/botfilter"
	"github.com/woozymasta/vitals/internal/models"
	"github.com/woozymasta/vitals/internal/serverid"
)

// DefaultStaleTimeout is the staleness timeout, larger than the default agent interval (120s).
const DefaultStaleTimeout = 180 * time.Second

// Store persists snapshot documents keyed by server id. Put replaces the whole document.
type Store interface {
	LoadSnapshots(ctx context.Context) (map[string]models.Document, error)
	PutSnapshot(ctx context.Context, id string, doc models.Document) error
	DeleteSnapshot(ctx context.Context, id string) error
}

// CountryResolver maps a reporter address to an ISO country code.
type CountryResolver interface {
	GetCountryCode(ip string) string
}

// Meta describes how a heartbeat reached the collector.
type Meta struct {
	RemoteAddr string
	Transport  string
}

// Options configures a Collector.
type Options struct {
	Store          Store
	Geo            CountryResolver
	Bots           *botfilter.Filter
	OnSnapshot     func(models.SnapshotView)
	Now            func() time.Time
	AllowedServers []string
	StaleTimeout   time.Duration
}

// Collector is the heartbeat ingestion and server status service.
type Collector struct {
	store      Store
	geo        CountryResolver
	bots       *botfilter.Filter
	onSnapshot func(models.SnapshotView)
	now        func() time.Time
	allowed    serverid.Set
	timeout    time.Duration
}

// New creates a Collector.
func New(opts Options) *Collector {
	c := &Collector{
		store:      opts.Store,
		geo:        opts.Geo,
		bots:       opts.Bots,
		onSnapshot: opts.OnSnapshot,
		now:        opts.Now,
		allowed:    serverid.NewSet(opts.AllowedServers),
		timeout:    opts.StaleTimeout,
	}

	if c.now == nil {
		c.now = time.Now
	}
	if c.timeout <= 0 {
		c.timeout = DefaultStaleTimeout
	}

	return c
}

// Receive validates and stores one heartbeat, replacing any previous snapshot of the server.
// Invalid ids are rejected before any mutation. The sender's notion of time is ignored.
func (c *Collector) Receive(ctx context.Context, doc models.Document, meta Meta) (models.SnapshotView, error) {
	if doc == nil {
		return models.SnapshotView{}, apierr.Validation(apierr.CodeInvalidPayload, "invalid JSON payload")
	}

	id, _ := doc["server_id"].(string)
	if !serverid.Valid(id) {
		return models.SnapshotView{}, apierr.Validation(apierr.CodeInvalidServerID, "invalid server_id: %q", id)
	}
	if !c.allowed.Allows(id) {
		return models.SnapshotView{}, apierr.New(http.StatusForbidden, apierr.CodeServerForbidden, "server_id %q is not allowed", id)
	}

	snap := Sanitize(doc)
	snap.ServerID = id
	snap.LastUpdate = c.now().Format(TimeLayout)

	if meta.RemoteAddr != "" {
		snap.Extra["remote_addr"] = meta.RemoteAddr
		if c.geo != nil {
			if code := c.geo.GetCountryCode(meta.RemoteAddr); code != "" {
				snap.Extra["country_code"] = code
			}
		}
	}

	if err := c.store.PutSnapshot(ctx, id, snap.Document()); err != nil {
		return models.SnapshotView{}, apierr.Storage(err, "failed to save server status")
	}

	view := models.SnapshotView{Snapshot: snap, Status: models.StatusOnline}

	log.Debug().
		Str("server_id", id).
		Str("transport", meta.Transport).
		Int("players", snap.PlayerCount).
		Int("bots", snap.BotCount).
		Msg("Server status saved")

	if c.onSnapshot != nil {
		c.onSnapshot(view)
	}

	return view, nil
}

// List returns every valid stored snapshot with its derived status. It never mutates the store.
func (c *Collector) List(ctx context.Context) (map[string]models.SnapshotView, error) {
	docs, err := c.store.LoadSnapshots(ctx)
	if err != nil {
		return nil, apierr.Storage(err, "failed to load server data")
	}

	now := c.now()
	out := make(map[string]models.SnapshotView, len(docs))
	for id, doc := range docs {
		if !serverid.Valid(id) {
			log.Trace().Str("server_id", id).Msg("Skipping invalid stored server id")
			continue
		}
		out[id] = c.view(id, doc, now)
	}

	return out, nil
}

// Get returns one server snapshot.
func (c *Collector) Get(ctx context.Context, id string) (models.SnapshotView, error) {
	if !serverid.Valid(id) {
		return models.SnapshotView{}, apierr.Validation(apierr.CodeInvalidServerID, "invalid server_id: %q", id)
	}

	docs, err := c.store.LoadSnapshots(ctx)
	if err != nil {
		return models.SnapshotView{}, apierr.Storage(err, "failed to load server data")
	}

	doc, ok := docs[id]
	if !ok {
		return models.SnapshotView{}, apierr.NotFound("server %q not found", id)
	}

	return c.view(id, doc, c.now()), nil
}

// Delete removes one server snapshot.
func (c *Collector) Delete(ctx context.Context, id string) error {
	if _, err := c.Get(ctx, id); err != nil {
		return err
	}

	if err := c.store.DeleteSnapshot(ctx, id); err != nil {
		return apierr.Storage(err, "failed to delete server %q", id)
	}

	return nil
}

// Prune removes snapshots that are invalid or whose last receipt is older than maxAge.
// A zero maxAge only removes invalid entries. Returns the number of removed snapshots.
func (c *Collector) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	docs, err := c.store.LoadSnapshots(ctx)
	if err != nil {
		return 0, err
	}

	now := c.now()
	removed := 0
	for id, doc := range docs {
		drop := !serverid.Valid(id)
		if !drop && maxAge > 0 {
			t, ok := ParseLastUpdate(Sanitize(doc).LastUpdate)
			drop = !ok || now.Sub(t) > maxAge
		}
		if !drop {
			continue
		}

		if err := c.store.DeleteSnapshot(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}

// RealPlayers returns the real players reported by one server, or by all online servers when id is empty.
func (c *Collector) RealPlayers(ctx context.Context, id string) ([]string, error) {
	return c.collectNames(ctx, id, func(s models.SnapshotView) []string {
		return c.bots.Real(s.Players)
	})
}

// Bots returns the bots reported by one server, or by all online servers when id is empty.
func (c *Collector) Bots(ctx context.Context, id string) ([]string, error) {
	return c.collectNames(ctx, id, func(s models.SnapshotView) []string {
		return s.Bots
	})
}

func (c *Collector) collectNames(ctx context.Context, id string, pick func(models.SnapshotView) []string) ([]string, error) {
	if id != "" {
		view, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return uniqueSorted(pick(view)), nil
	}

	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, view := range all {
		if view.Status == models.StatusOnline {
			names = append(names, pick(view)...)
		}
	}

	return uniqueSorted(names), nil
}

func (c *Collector) view(id string, doc models.Document, now time.Time) models.SnapshotView {
	snap := Sanitize(doc)
	snap.ServerID = id

	return models.SnapshotView{
		Snapshot: snap,
		Status:   StatusAt(snap.LastUpdate, now, c.timeout),
	}
}

func uniqueSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)

	return out
}
