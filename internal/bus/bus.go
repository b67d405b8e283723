// Package bus carries heartbeats and session events over NATS as an alternative
// to the collector HTTP API. Message bodies are the same JSON documents.
package bus

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultPrefix is the subject namespace.
const DefaultPrefix = "vitals"

// Config holds NATS connection settings.
type Config struct {
	URL            string
	Name           string
	Prefix         string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// Connect opens a NATS connection that keeps reconnecting in the background.
func Connect(cfg Config) (*nats.Conn, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	opts := []nats.Option{
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}

	return conn, nil
}

// Subjects builds subject names under a prefix.
type Subjects struct {
	prefix string
}

// NewSubjects returns the subject set for prefix, DefaultPrefix when empty.
func NewSubjects(prefix string) Subjects {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return Subjects{prefix: prefix}
}

// Heartbeat is the subject a server publishes its heartbeats on.
func (s Subjects) Heartbeat(serverID string) string {
	return s.prefix + ".heartbeat." + serverID
}

// HeartbeatWildcard matches every server heartbeat subject, dotted ids included.
func (s Subjects) HeartbeatWildcard() string {
	return s.prefix + ".heartbeat.>"
}

// Join is the session join subject.
func (s Subjects) Join() string {
	return s.prefix + ".session.join"
}

// Leave is the session leave subject.
func (s Subjects) Leave() string {
	return s.prefix + ".session.leave"
}

// ValidSubjectID reports whether a server id can be carried as a subject suffix:
// no whitespace or wildcards, and no empty dot-separated tokens.
func ValidSubjectID(id string) bool {
	if id == "" || strings.ContainsAny(id, " \t\r\n*>") {
		return false
	}
	for _, token := range strings.Split(id, ".") {
		if token == "" {
			return false
		}
	}

	return true
}

// serverFromSubject returns the server id token of a heartbeat subject.
func (s Subjects) serverFromSubject(subject string) string {
	return strings.TrimPrefix(subject, s.prefix+".heartbeat.")
}
