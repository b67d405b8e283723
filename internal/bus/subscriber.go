package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/woozymasta/vitals/internal/apierr"
	"github.com/woozymasta/vitals/internal/collector"
	"github.com/woozymasta/vitals/internal/ledger"
	"github.com/woozymasta/vitals/internal/logger"
	"github.com/woozymasta/vitals/internal/models"
)

// TransportNATS tags heartbeats received over the bus.
const TransportNATS = "nats"

const handleTimeout = 10 * time.Second

// HeartbeatReceiver accepts heartbeat documents.
type HeartbeatReceiver interface {
	Receive(ctx context.Context, doc models.Document, meta collector.Meta) (models.SnapshotView, error)
}

// SessionRecorder accepts join and leave events.
type SessionRecorder interface {
	OnJoin(ctx context.Context, serverID, serverName, player string) (models.PlayerSession, error)
	OnLeave(ctx context.Context, serverID, player string) (*models.PlayerSession, error)
}

// Subscriber feeds bus traffic into the collector and the session ledger.
// Requests with a reply subject get a JSON acknowledgement.
type Subscriber struct {
	conn      *nats.Conn
	collector HeartbeatReceiver
	ledger    SessionRecorder
	log       zerolog.Logger
	subjects  Subjects
	subs      []*nats.Subscription
}

// NewSubscriber creates a Subscriber. ledger may be nil to ignore session events.
func NewSubscriber(conn *nats.Conn, prefix string, c HeartbeatReceiver, l SessionRecorder) *Subscriber {
	return &Subscriber{
		conn:      conn,
		collector: c,
		ledger:    l,
		subjects:  NewSubjects(prefix),
		log:       logger.Component("bus"),
	}
}

// Start subscribes to heartbeat and session subjects.
func (s *Subscriber) Start() error {
	handlers := map[string]nats.MsgHandler{
		s.subjects.HeartbeatWildcard(): s.handleHeartbeat,
	}
	if s.ledger != nil {
		handlers[s.subjects.Join()] = s.handleJoin
		handlers[s.subjects.Leave()] = s.handleLeave
	}

	for subject, h := range handlers {
		sub, err := s.conn.Subscribe(subject, h)
		if err != nil {
			s.Stop()
			return fmt.Errorf("nats subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
		s.log.Info().Str("subject", subject).Msg("Subscribed")
	}

	return nil
}

// Stop removes all subscriptions.
func (s *Subscriber) Stop() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Subscriber) handleHeartbeat(m *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	var doc models.Document
	if err := json.Unmarshal(m.Data, &doc); err != nil {
		s.reply(m, apierr.Validation(apierr.CodeInvalidPayload, "invalid JSON payload"))
		return
	}

	if id, _ := doc["server_id"].(string); id != s.subjects.serverFromSubject(m.Subject) {
		s.reply(m, apierr.Validation(apierr.CodeInvalidServerID, "server_id %q does not match subject %s", id, m.Subject))
		return
	}

	_, err := s.collector.Receive(ctx, doc, collector.Meta{Transport: TransportNATS})
	s.reply(m, err)
}

func (s *Subscriber) handleJoin(m *nats.Msg) {
	ev, err := decodeEvent(m.Data)
	if err != nil {
		s.reply(m, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	_, err = s.ledger.OnJoin(ctx, ev.ServerID, ev.ServerName, ev.PlayerName)
	s.reply(m, err)
}

func (s *Subscriber) handleLeave(m *nats.Msg) {
	ev, err := decodeEvent(m.Data)
	if err != nil {
		s.reply(m, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	_, err = s.ledger.OnLeave(ctx, ev.ServerID, ev.PlayerName)
	if errors.Is(err, ledger.ErrNoOpenSession) {
		err = nil
	}
	s.reply(m, err)
}

// reply logs failures and answers request-style messages.
func (s *Subscriber) reply(m *nats.Msg, err error) {
	var body any = map[string]string{"status": "success"}
	if err != nil {
		apiErr := apierr.As(err)
		s.log.Warn().Err(err).Str("subject", m.Subject).Str("code", string(apiErr.Code)).Msg("Bus message rejected")
		body = apiErr
	}

	if m.Reply == "" || s.conn == nil {
		return
	}

	data, _ := json.Marshal(body)
	if err := s.conn.Publish(m.Reply, data); err != nil {
		s.log.Debug().Err(err).Msg("Bus reply failed")
	}
}

func decodeEvent(data []byte) (models.SessionEvent, error) {
	var ev models.SessionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, apierr.Validation(apierr.CodeInvalidPayload, "invalid JSON payload")
	}

	return ev, nil
}
