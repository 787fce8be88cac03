// Package stream forwards persisted security events to Kafka for
// downstream SIEM consumers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"edgeguard/internal/audit"
	"edgeguard/internal/platform/kafka/producer"
	"edgeguard/internal/security/models"
)

// DefaultTopic receives one record per security event, keyed by client key.
const DefaultTopic = "edgeguard.security-events"

// Publisher delivers messages in the background and reports the outcome
// through done.
type Publisher interface {
	ProduceAsync(msg *producer.Message, done func(error))
}

// Store decorates an audit.Store. Events are published only after the
// wrapped store accepted them. Publishing is best-effort: failures are
// logged and counted, never returned.
type Store struct {
	audit.Store
	publisher Publisher
	topic     string
	logger    *slog.Logger
	metrics   *audit.Metrics
}

type Option func(*Store)

func WithTopic(topic string) Option {
	return func(s *Store) {
		if topic != "" {
			s.topic = topic
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithMetrics(m *audit.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func New(next audit.Store, publisher Publisher, opts ...Option) *Store {
	s := &Store{
		Store:     next,
		publisher: publisher,
		topic:     DefaultTopic,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendEvents persists events through the wrapped store, then forwards them.
func (s *Store) AppendEvents(ctx context.Context, events []models.SecurityEvent) error {
	err := s.Store.AppendEvents(ctx, events)
	var rejected *audit.RejectedError
	if err != nil && !errors.As(err, &rejected) {
		return err
	}
	for i := range events {
		if rejected != nil && rejected.Rejected(i) {
			continue
		}
		s.publish(ctx, events[i])
	}
	return err
}

func (s *Store) publish(ctx context.Context, event models.SecurityEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		s.metrics.IncStreamed("failed")
		s.logger.ErrorContext(ctx, "failed to encode security event for stream",
			"event_id", event.ID,
			"error", err,
		)
		return
	}
	msg := &producer.Message{
		Topic: s.topic,
		Key:   []byte(event.ClientKey),
		Value: value,
		Headers: map[string]string{
			"event_type": string(event.Type),
			"severity":   string(event.Severity),
		},
	}
	s.publisher.ProduceAsync(msg, func(err error) {
		if err != nil {
			s.metrics.IncStreamed("failed")
			s.logger.Warn("security event not streamed",
				"event_id", event.ID,
				"event_type", event.Type,
				"error", err,
			)
			return
		}
		s.metrics.IncStreamed("delivered")
	})
}
