package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"tether/internal/crypto"
	"tether/internal/protocol"
)

// EventKind names a session lifecycle transition.
type EventKind string

const (
	EventSessionJoined  EventKind = "session_joined"
	EventSessionLeft    EventKind = "session_left"
	EventClientReplaced EventKind = "client_replaced"
	EventSessionExpired EventKind = "session_expired"
)

// Event is a lifecycle notification. It identifies the session only by a
// fingerprint of its id and never carries payload bytes.
type Event struct {
	Kind    EventKind     `json:"event"`
	Session string        `json:"session"`
	Role    protocol.Role `json:"role,omitempty"`
	Conn    string        `json:"conn,omitempty"`
	At      time.Time     `json:"at"`
}

func newEvent(kind EventKind, sessionID string, role protocol.Role, connID string) Event {
	return Event{
		Kind:    kind,
		Session: crypto.FingerprintString(sessionID),
		Role:    role,
		Conn:    connID,
		At:      time.Now().UTC(),
	}
}

// EventPublisher receives lifecycle events. Publish must not block.
type EventPublisher interface {
	Publish(ev Event)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// LogPublisher writes events to the process logger.
type LogPublisher struct{}

func (LogPublisher) Publish(ev Event) {
	e := log.Info()
	if ev.Kind == EventSessionExpired || ev.Kind == EventClientReplaced {
		e = log.Warn()
	}
	e.Str("event", string(ev.Kind)).
		Str("session", ev.Session).
		Str("role", ev.Role.String()).
		Str("conn", ev.Conn).
		Msg("Session lifecycle")
}

// MultiPublisher fans an event out to several publishers.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ev Event) {
	for _, p := range m {
		p.Publish(ev)
	}
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// NATSPublisher publishes events as JSON to "<prefix>.<event>".
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to NATS.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	name := cfg.Name
	if name == "" {
		name = "tether-relay"
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info().Msg("NATS connection closed")
		}),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject an event of kind is published on.
func (p *NATSPublisher) Subject(kind EventKind) string {
	return p.prefix + "." + string(kind)
}

// Publish is asynchronous; the NATS client buffers while reconnecting.
func (p *NATSPublisher) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode lifecycle event")
		return
	}
	if err := p.conn.Publish(p.Subject(ev.Kind), data); err != nil {
		log.Warn().Err(err).Str("event", string(ev.Kind)).Msg("Failed to publish lifecycle event")
	}
}

// IsConnected reports the NATS connection state.
func (p *NATSPublisher) IsConnected() bool { return p.conn.IsConnected() }

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
