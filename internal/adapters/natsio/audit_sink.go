package natsio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// AuditSink publishes lifecycle events to a JetStream stream. Event ids are
// used as message ids so JetStream drops duplicates inside its window.
type AuditSink struct {
	js            jetstream.JetStream
	subjectPrefix string
	logger        zerolog.Logger
}

type AuditSinkParams struct {
	Conn          *nats.Conn
	Stream        string
	SubjectPrefix string
	MaxAge        time.Duration
	Logger        zerolog.Logger
}

// NewAuditSink creates the JetStream context and makes sure the stream exists
func NewAuditSink(ctx context.Context, params AuditSinkParams) (*AuditSink, error) {
	js, err := jetstream.New(params.Conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream := params.Stream
	if stream == "" {
		stream = "LOT_EVENTS"
	}
	prefix := params.SubjectPrefix
	if prefix == "" {
		prefix = "lot.events"
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = 365 * 24 * time.Hour
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Lot auction and settlement lifecycle events",
		Subjects:    []string{prefix + ".*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      maxAge,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	logger := params.Logger.With().Str("component", "nats_audit_sink").Logger()
	logger.Info().Str("stream", stream).Str("subjects", prefix+".*").Msg("JetStream stream ready")

	return &AuditSink{js: js, subjectPrefix: prefix, logger: logger}, nil
}

// Publish implements outbound.EventSink
func (s *AuditSink) Publish(ctx context.Context, lotID uuid.UUID, event outbound.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", s.subjectPrefix, lotID)
	ack, err := s.js.Publish(ctx, subject, body, jetstream.WithMsgID(event.ID.String()))
	if err != nil {
		s.logger.Error().Err(err).Str("subject", subject).Msg("Failed to publish audit event")
		return fmt.Errorf("failed to publish audit event: %w", err)
	}

	s.logger.Debug().
		Str("subject", subject).
		Str("event_type", string(event.Type)).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("Audit event published")
	return nil
}
