package collector

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/woozymasta/vitals/internal/apierr"
	"github.com/woozymasta/vitals/internal/botfilter"
	"github.com/woozymasta/vitals/internal/models"
)

type memStore struct {
	docs    map[string]models.Document
	putErr  error
	mu      sync.Mutex
	putCall int
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]models.Document)}
}

func (m *memStore) LoadSnapshots(context.Context) (map[string]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]models.Document, len(m.docs))
	for k, v := range m.docs {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) PutSnapshot(_ context.Context, id string, doc models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.putCall++
	if m.putErr != nil {
		return m.putErr
	}
	m.docs[id] = doc
	return nil
}

func (m *memStore) DeleteSnapshot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.docs, id)
	return nil
}

type clock struct {
	t time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type geoStub string

func (g geoStub) GetCountryCode(string) string { return string(g) }

func newTestCollector(store Store, clk *clock) *Collector {
	return New(Options{
		Store: store,
		Bots:  botfilter.New([]string{"bot_"}),
		Now:   clk.Now,
	})
}

func TestReceiveAndStaleness(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := newTestCollector(newMemStore(), clk)

	_, err := c.Receive(ctx, models.Document{
		"server_id":    "s1",
		"server_name":  "Alpha",
		"players":      []any{"Alice", "Bob"},
		"player_count": 2.0,
		"last_update":  "1999-01-01T00:00:00Z",
	}, Meta{})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	clk.Advance(10 * time.Second)
	view, err := c.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.Status != models.StatusOnline {
		t.Errorf("Status after 10s = %q, want online", view.Status)
	}
	if view.LastUpdate == "1999-01-01T00:00:00Z" {
		t.Error("sender last_update must be overwritten by receipt time")
	}

	humans, err := c.RealPlayers(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(humans) != 2 {
		t.Errorf("RealPlayers = %v, want 2 names", humans)
	}

	clk.Advance(171 * time.Second)
	view, err = c.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if view.Status != models.StatusOffline {
		t.Errorf("Status after 181s = %q, want offline", view.Status)
	}
	if view.PlayerCount != 2 || view.ServerName != "Alpha" {
		t.Errorf("stale snapshot fields changed: %+v", view.Snapshot)
	}
}

func TestStatusBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	timeout := DefaultStaleTimeout

	tests := []struct {
		name       string
		lastUpdate string
		want       string
	}{
		{"fresh", now.Add(-10 * time.Second).Format(TimeLayout), models.StatusOnline},
		{"exactly timeout", now.Add(-timeout).Format(TimeLayout), models.StatusOnline},
		{"stale", now.Add(-200 * time.Second).Format(TimeLayout), models.StatusOffline},
		{"empty", "", models.StatusOffline},
		{"garbage", "yesterday", models.StatusOffline},
		{"legacy naive", now.Add(-5 * time.Second).In(time.Local).Format("2006-01-02T15:04:05.000000"), models.StatusOnline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusAt(tt.lastUpdate, now, timeout); got != tt.want {
				t.Errorf("StatusAt(%q) = %q, want %q", tt.lastUpdate, got, tt.want)
			}
		})
	}
}

func TestReceiveRejectsInvalidIDs(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.docs["s1"] = models.Document{"server_id": "s1"}
	c := newTestCollector(store, newClock())

	tests := []struct {
		name string
		doc  models.Document
	}{
		{"missing", models.Document{"players": []any{}}},
		{"empty", models.Document{"server_id": ""}},
		{"reserved", models.Document{"server_id": "status"}},
		{"too long", models.Document{"server_id": "0123456789012345678901234567890123456789012345678901"}},
		{"not a string", models.Document{"server_id": 42.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Receive(ctx, tt.doc, Meta{})
			if !apierr.Is(err, apierr.CodeInvalidServerID) {
				t.Fatalf("Receive error = %v, want %s", err, apierr.CodeInvalidServerID)
			}
			if got := apierr.As(err).Status; got != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", got)
			}
		})
	}

	if store.putCall != 0 {
		t.Errorf("store written %d times, want 0", store.putCall)
	}
	if len(store.docs) != 1 {
		t.Errorf("store size = %d, want 1", len(store.docs))
	}
}

func TestReceiveAllowList(t *testing.T) {
	c := New(Options{Store: newMemStore(), AllowedServers: []string{"s1"}})

	if _, err := c.Receive(context.Background(), models.Document{"server_id": "s1"}, Meta{}); err != nil {
		t.Fatalf("allowed server rejected: %v", err)
	}
	_, err := c.Receive(context.Background(), models.Document{"server_id": "s2"}, Meta{})
	if !apierr.Is(err, apierr.CodeServerForbidden) {
		t.Errorf("error = %v, want %s", err, apierr.CodeServerForbidden)
	}
}

func TestReceiveStorageError(t *testing.T) {
	store := newMemStore()
	store.putErr = errors.New("disk full")
	c := newTestCollector(store, newClock())

	_, err := c.Receive(context.Background(), models.Document{"server_id": "s1"}, Meta{})
	if !apierr.Is(err, apierr.CodeStorage) {
		t.Fatalf("error = %v, want %s", err, apierr.CodeStorage)
	}
	if !errors.Is(err, store.putErr) {
		t.Error("storage error must wrap the cause")
	}
}

func TestReceiveEnrichment(t *testing.T) {
	var seen models.SnapshotView
	c := New(Options{
		Store:      newMemStore(),
		Geo:        geoStub("DE"),
		OnSnapshot: func(v models.SnapshotView) { seen = v },
	})

	_, err := c.Receive(context.Background(), models.Document{"server_id": "s1", "map": "chernarus"}, Meta{RemoteAddr: "203.0.113.7"})
	if err != nil {
		t.Fatal(err)
	}

	if seen.ServerID != "s1" {
		t.Fatalf("OnSnapshot not called, got %+v", seen)
	}
	if seen.Extra["country_code"] != "DE" || seen.Extra["remote_addr"] != "203.0.113.7" {
		t.Errorf("Extra = %v", seen.Extra)
	}
	if seen.Extra["map"] != "chernarus" {
		t.Errorf("unknown field dropped: %v", seen.Extra)
	}
}

func TestListFiltersInvalidKeys(t *testing.T) {
	clk := newClock()
	store := newMemStore()
	store.docs["s1"] = models.Document{"server_id": "s1", "last_update": clk.Now().Format(TimeLayout)}
	store.docs["status"] = models.Document{"server_id": "status"}
	store.docs[""] = models.Document{}
	store.docs["s2"] = models.Document{"server_id": "s2", "last_update": "not a time"}

	c := newTestCollector(store, clk)
	all, err := c.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(all) != 2 {
		t.Fatalf("List size = %d, want 2: %v", len(all), all)
	}
	if all["s1"].Status != models.StatusOnline {
		t.Errorf("s1 status = %q, want online", all["s1"].Status)
	}
	if all["s2"].Status != models.StatusOffline {
		t.Errorf("s2 status = %q, want offline", all["s2"].Status)
	}
	if len(store.docs) != 4 {
		t.Errorf("List mutated the store: %d entries", len(store.docs))
	}
}

func TestGetAndDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCollector(newMemStore(), newClock())

	if _, err := c.Get(ctx, "missing"); !apierr.Is(err, apierr.CodeNotFound) {
		t.Errorf("Get(missing) = %v, want NOT_FOUND", err)
	}
	if _, err := c.Receive(ctx, models.Document{"server_id": "s1"}, Meta{}); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "s1"); !apierr.Is(err, apierr.CodeNotFound) {
		t.Errorf("Get after Delete = %v, want NOT_FOUND", err)
	}
}

func TestPrune(t *testing.T) {
	clk := newClock()
	store := newMemStore()
	store.docs["fresh"] = models.Document{"server_id": "fresh", "last_update": clk.Now().Add(-time.Minute).Format(TimeLayout)}
	store.docs["old"] = models.Document{"server_id": "old", "last_update": clk.Now().Add(-48 * time.Hour).Format(TimeLayout)}
	store.docs["status"] = models.Document{}

	c := newTestCollector(store, clk)

	removed, err := c.Prune(context.Background(), 0)
	if err != nil || removed != 1 {
		t.Fatalf("Prune(0) = %d, %v; want 1 invalid entry", removed, err)
	}

	removed, err = c.Prune(context.Background(), 24*time.Hour)
	if err != nil || removed != 1 {
		t.Fatalf("Prune(24h) = %d, %v; want 1", removed, err)
	}
	if _, ok := store.docs["fresh"]; !ok || len(store.docs) != 1 {
		t.Errorf("store after prune = %v", store.docs)
	}
}

func TestNamesAcrossOnlineServers(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := newTestCollector(newMemStore(), clk)

	receive := func(id string, players, bots []any) {
		t.Helper()
		if _, err := c.Receive(ctx, models.Document{"server_id": id, "players": players, "bots": bots}, Meta{}); err != nil {
			t.Fatal(err)
		}
	}

	receive("old", []any{"Zed"}, []any{"bot_old"})
	clk.Advance(time.Hour)
	receive("s1", []any{"Bob", "bot_1", "Alice"}, []any{"bot_1"})
	receive("s2", []any{"Alice", "Carol"}, []any{"bot_2"})

	humans, err := c.RealPlayers(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Alice", "Bob", "Carol"}; !reflect.DeepEqual(humans, want) {
		t.Errorf("RealPlayers = %v, want %v", humans, want)
	}

	bots, err := c.Bots(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"bot_1", "bot_2"}; !reflect.DeepEqual(bots, want) {
		t.Errorf("Bots = %v, want %v", bots, want)
	}
}
