package broadcaster

import (
	"context"
	"errors"

	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FanOut delivers every event to each configured sink
type FanOut struct {
	sinks []outbound.EventSink
}

func NewFanOut(sinks ...outbound.EventSink) *FanOut {
	return &FanOut{sinks: sinks}
}

// Publish tries every sink and joins their errors
func (f *FanOut) Publish(ctx context.Context, lotID uuid.UUID, event outbound.Event) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, lotID, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes lifecycle events to the structured log, for single-node
// deployments without an audit stream.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit_log").Logger()}
}

func (s *LogSink) Publish(ctx context.Context, lotID uuid.UUID, event outbound.Event) error {
	s.logger.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Str("lot_id", lotID.String()).
		Int("cycle", event.Cycle).
		Interface("data", event.Data).
		Msg("Lifecycle event")
	return nil
}
