package natsio

import (
	"context"
	"encoding/json"
	"testing"

	"lot-auction-service/internal/domain/lot"
	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/inbound"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSettlements captures the signals and the caller they arrive with
type recordingSettlements struct {
	inbound.SettlementService
	signals []inbound.PaymentSignal
	actors  []shared.Actor
}

func (s *recordingSettlements) RecordPaymentConfirmation(ctx context.Context, req inbound.PaymentSignal) (*lot.Lot, error) {
	actor, _ := shared.ActorFromContext(ctx)
	s.signals = append(s.signals, req)
	s.actors = append(s.actors, actor)
	return nil, nil
}

func TestHandleMessageRunsAsSystem(t *testing.T) {
	settlements := &recordingSettlements{}
	consumer := NewPaymentConsumer(PaymentConsumerParams{Settlements: settlements, Logger: zerolog.Nop()})

	sig := inbound.PaymentSignal{LotID: uuid.New(), BidID: uuid.New()}
	body, err := json.Marshal(sig)
	require.NoError(t, err)

	handle := func(ctx context.Context, s inbound.PaymentSignal) error {
		_, err := settlements.RecordPaymentConfirmation(ctx, s)
		return err
	}
	consumer.handleMessage(context.Background(), SubjectPaymentConfirmed, &nats.Msg{Subject: SubjectPaymentConfirmed, Data: body}, handle)

	require.Len(t, settlements.signals, 1)
	assert.Equal(t, sig, settlements.signals[0])
	assert.Equal(t, shared.RoleSystem, settlements.actors[0].Role)
}

func TestHandleMessageDropsMalformedSignal(t *testing.T) {
	settlements := &recordingSettlements{}
	consumer := NewPaymentConsumer(PaymentConsumerParams{Settlements: settlements, Logger: zerolog.Nop()})

	called := false
	consumer.handleMessage(context.Background(), SubjectPaymentDefaulted, &nats.Msg{Data: []byte("{not json")}, func(context.Context, inbound.PaymentSignal) error {
		called = true
		return nil
	})
	assert.False(t, called)
}
