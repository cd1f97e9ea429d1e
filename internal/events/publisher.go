// Package events publishes conversation domain events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"carmatch/internal/logger"
	"carmatch/internal/metrics"
)

// Event subjects, relative to the configured prefix.
const (
	SubjectRecommendation = "recommendations"
	SubjectHandoff        = "handoff"
	SubjectSessionClosed  = "sessions.closed"
)

// Event is the envelope of every published message.
type Event struct {
	Type           string      `json:"type"`
	SessionID      string      `json:"session_id"`
	ConversationID string      `json:"conversation_id"`
	OccurredAt     time.Time   `json:"occurred_at"`
	Data           interface{} `json:"data,omitempty"`
}

// Publisher sends domain events.
type Publisher interface {
	Publish(ctx context.Context, subject string, evt Event) error
}

// Config holds NATS connection configuration.
type Config struct {
	URL           string
	Token         string
	SubjectPrefix string
}

// NATSPublisher publishes events as JSON on core NATS subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *logger.Logger
}

// Connect establishes a connection to the NATS server.
func Connect(cfg Config, log *logger.Logger) (*NATSPublisher, error) {
	log = log.Named("events")
	opts := []nats.Option{
		nats.Name("carmatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: nc, prefix: cfg.SubjectPrefix, logger: log}, nil
}

// Publish marshals and sends one event.
func (p *NATSPublisher) Publish(_ context.Context, subject string, evt Event) error {
	full := subject
	if p.prefix != "" {
		full = p.prefix + "." + subject
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.conn.Publish(full, data); err != nil {
		metrics.EventsPublished.WithLabelValues(subject, "error").Inc()
		return fmt.Errorf("failed to publish %s: %w", full, err)
	}
	metrics.EventsPublished.WithLabelValues(subject, "ok").Inc()
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, Event) error { return nil }

// Recorder keeps published events in memory. Used by tests.
type Recorder struct {
	mu     sync.Mutex
	Events map[string][]Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{Events: make(map[string][]Event)}
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, subject string, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events[subject] = append(r.Events[subject], evt)
	return nil
}

// Count returns how many events were published on subject.
func (r *Recorder) Count(subject string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Events[subject])
}
