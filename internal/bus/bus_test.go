package bus

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/woozymasta/vitals/internal/collector"
	"github.com/woozymasta/vitals/internal/ledger"
	"github.com/woozymasta/vitals/internal/models"
)

type fakeCollector struct {
	docs []models.Document
	meta []collector.Meta
	mu   sync.Mutex
}

func (f *fakeCollector) Receive(_ context.Context, doc models.Document, meta collector.Meta) (models.SnapshotView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.docs = append(f.docs, doc)
	f.meta = append(f.meta, meta)
	return models.SnapshotView{}, nil
}

func (f *fakeCollector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

type fakeLedger struct {
	joins  []string
	leaves []string
	mu     sync.Mutex
}

func (f *fakeLedger) OnJoin(_ context.Context, serverID, _, player string) (models.PlayerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, serverID+"/"+player)
	return models.PlayerSession{}, nil
}

func (f *fakeLedger) OnLeave(_ context.Context, serverID, player string) (*models.PlayerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, serverID+"/"+player)
	return nil, ledger.ErrNoOpenSession
}

func TestSubjects(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "vitals.heartbeat.s1"},
		{"fleet.eu.", "fleet.eu.heartbeat.s1"},
	}

	for _, tt := range tests {
		s := NewSubjects(tt.prefix)
		if got := s.Heartbeat("s1"); got != tt.want {
			t.Errorf("Heartbeat = %q, want %q", got, tt.want)
		}
		if got := s.serverFromSubject(tt.want); got != "s1" {
			t.Errorf("serverFromSubject(%q) = %q", tt.want, got)
		}
	}

	s := NewSubjects("")
	if got := s.serverFromSubject(s.Heartbeat("eu.west")); got != "eu.west" {
		t.Errorf("dotted id = %q, want eu.west", got)
	}
	if got := s.HeartbeatWildcard(); got != "vitals.heartbeat.>" {
		t.Errorf("HeartbeatWildcard = %q", got)
	}

	if got := NewSubjects("").Join(); got != "vitals.session.join" {
		t.Errorf("Join = %q", got)
	}
}

func TestValidSubjectID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"eu-1", true},
		{"eu.west", true},
		{"", false},
		{"eu west", false},
		{"eu*", false},
		{"eu>", false},
		{".eu", false},
		{"eu.", false},
		{"eu..west", false},
	}

	for _, tt := range tests {
		if got := ValidSubjectID(tt.id); got != tt.want {
			t.Errorf("ValidSubjectID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestHandleHeartbeatDottedID(t *testing.T) {
	c := &fakeCollector{}
	s := NewSubscriber(nil, "", c, nil)

	s.handleHeartbeat(&nats.Msg{Subject: "vitals.heartbeat.eu.west", Data: []byte(`{"server_id":"eu.west"}`)})

	if c.count() != 1 {
		t.Fatalf("received %d heartbeats, want 1", c.count())
	}
}

func TestHandleHeartbeat(t *testing.T) {
	c := &fakeCollector{}
	s := NewSubscriber(nil, "", c, nil)

	s.handleHeartbeat(&nats.Msg{Subject: "vitals.heartbeat.s1", Data: []byte(`{"server_id":"s1","uptime":5}`)})
	s.handleHeartbeat(&nats.Msg{Subject: "vitals.heartbeat.s1", Data: []byte(`{"server_id":"s2"}`)})
	s.handleHeartbeat(&nats.Msg{Subject: "vitals.heartbeat.s1", Data: []byte(`not json`)})

	if c.count() != 1 {
		t.Fatalf("received %d heartbeats, want only the matching one", c.count())
	}
	if c.meta[0].Transport != TransportNATS {
		t.Errorf("Transport = %q", c.meta[0].Transport)
	}
}

func TestHandleSessionEvents(t *testing.T) {
	l := &fakeLedger{}
	s := NewSubscriber(nil, "", &fakeCollector{}, l)

	s.handleJoin(&nats.Msg{Subject: "vitals.session.join", Data: []byte(`{"server_id":"s1","player_name":"Alice"}`)})
	s.handleLeave(&nats.Msg{Subject: "vitals.session.leave", Data: []byte(`{"server_id":"s1","player_name":"Alice"}`)})
	s.handleJoin(&nats.Msg{Subject: "vitals.session.join", Data: []byte(`[]`)})

	if len(l.joins) != 1 || l.joins[0] != "s1/Alice" {
		t.Errorf("joins = %v", l.joins)
	}
	if len(l.leaves) != 1 {
		t.Errorf("leaves = %v", l.leaves)
	}
}

// natsConn connects to a reachable NATS server for integration tests, or skips.
func natsConn(t *testing.T) *nats.Conn {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping NATS test in short mode")
	}

	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := Connect(Config{URL: url, ConnectTimeout: 2 * time.Second})
	if err != nil {
		t.Skipf("skipping: NATS not available at %s: %v", url, err)
	}
	t.Cleanup(conn.Close)

	return conn
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	conn := natsConn(t)
	prefix := "vitals-test-" + time.Now().Format("150405.000000")

	c := &fakeCollector{}
	sub := NewSubscriber(conn, prefix, c, &fakeLedger{})
	if err := sub.Start(); err != nil {
		t.Fatal(err)
	}
	defer sub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pub := NewPublisher(conn, prefix)
	if err := pub.Send(ctx, models.Heartbeat{ServerID: "s1", Players: []string{"Alice"}, PlayerCount: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := pub.Send(ctx, models.Heartbeat{ServerID: "eu.west"}); err != nil {
		t.Fatalf("Send dotted: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.count() != 2 {
		t.Fatalf("collector got %d heartbeats, want 2", c.count())
	}

	data, _ := json.Marshal(models.SessionEvent{ServerID: "s1", PlayerName: "Alice"})
	msg, err := conn.RequestWithContext(ctx, NewSubjects(prefix).Join(), data)
	if err != nil {
		t.Fatalf("join request: %v", err)
	}
	if string(msg.Data) != `{"status":"success"}` {
		t.Errorf("join reply = %s", msg.Data)
	}
}
