package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/woozymasta/vitals/internal/models"
)

// Publisher sends agent traffic over NATS. It satisfies the agent Sender and EventSender.
type Publisher struct {
	conn     *nats.Conn
	subjects Subjects
}

// NewPublisher creates a Publisher on an open connection.
func NewPublisher(conn *nats.Conn, prefix string) *Publisher {
	return &Publisher{conn: conn, subjects: NewSubjects(prefix)}
}

// Send publishes a heartbeat on the server's heartbeat subject.
func (p *Publisher) Send(ctx context.Context, hb models.Heartbeat) error {
	return p.publish(ctx, p.subjects.Heartbeat(hb.ServerID), hb)
}

// Join publishes a join event.
func (p *Publisher) Join(ctx context.Context, ev models.SessionEvent) error {
	return p.publish(ctx, p.subjects.Join(), ev)
}

// Leave publishes a leave event.
func (p *Publisher) Leave(ctx context.Context, ev models.SessionEvent) error {
	return p.publish(ctx, p.subjects.Leave(), ev)
}

// publish sends and flushes, so a dead connection surfaces as an error within ctx.
func (p *Publisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}

	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush %s: %w", subject, err)
	}

	return nil
}
