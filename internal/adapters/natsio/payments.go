package natsio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/inbound"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	SubjectPaymentConfirmed = "payments.confirmed"
	SubjectPaymentDefaulted = "payments.defaulted"
)

// PaymentConsumer applies payment signals published by financial processing.
// Replicas share a queue group so each signal is handled once.
type PaymentConsumer struct {
	conn        *nats.Conn
	settlements inbound.SettlementService
	queue       string
	timeout     time.Duration
	subs        []*nats.Subscription
	logger      zerolog.Logger
}

type PaymentConsumerParams struct {
	Conn        *nats.Conn
	Settlements inbound.SettlementService
	QueueGroup  string
	Timeout     time.Duration
	Logger      zerolog.Logger
}

type paymentReply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func NewPaymentConsumer(params PaymentConsumerParams) *PaymentConsumer {
	queue := params.QueueGroup
	if queue == "" {
		queue = "lot-auction-service"
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PaymentConsumer{
		conn:        params.Conn,
		settlements: params.Settlements,
		queue:       queue,
		timeout:     timeout,
		logger:      params.Logger.With().Str("component", "payment_consumer").Logger(),
	}
}

// Start subscribes to the payment subjects
func (c *PaymentConsumer) Start(ctx context.Context) error {
	handlers := map[string]func(context.Context, inbound.PaymentSignal) error{
		SubjectPaymentConfirmed: func(ctx context.Context, sig inbound.PaymentSignal) error {
			_, err := c.settlements.RecordPaymentConfirmation(ctx, sig)
			return err
		},
		SubjectPaymentDefaulted: func(ctx context.Context, sig inbound.PaymentSignal) error {
			_, err := c.settlements.RecordPaymentDefault(ctx, sig)
			return err
		},
	}

	for subject, handle := range handlers {
		handle := handle
		subject := subject
		sub, err := c.conn.QueueSubscribe(subject, c.queue, func(msg *nats.Msg) {
			c.handleMessage(ctx, subject, msg, handle)
		})
		if err != nil {
			c.Close()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		c.subs = append(c.subs, sub)
		c.logger.Info().Str("subject", subject).Str("queue", c.queue).Msg("Subscribed to payment signals")
	}
	return nil
}

func (c *PaymentConsumer) handleMessage(ctx context.Context, subject string, msg *nats.Msg, handle func(context.Context, inbound.PaymentSignal) error) {
	var sig inbound.PaymentSignal
	if err := json.Unmarshal(msg.Data, &sig); err != nil {
		c.logger.Error().Err(err).Str("subject", subject).Msg("Failed to unmarshal payment signal")
		c.reply(msg, fmt.Errorf("%w: %v", shared.ErrInvalidRequest, err))
		return
	}

	opCtx, cancel := context.WithTimeout(shared.WithActor(ctx, shared.SystemActor), c.timeout)
	defer cancel()

	err := handle(opCtx, sig)
	log := c.logger.With().
		Str("subject", subject).
		Str("lot_id", sig.LotID.String()).
		Str("bid_id", sig.BidID.String()).
		Logger()
	switch {
	case err == nil:
		log.Info().Msg("Payment signal applied")
	case errors.Is(err, shared.ErrStaleSettlement):
		log.Warn().Err(err).Msg("Stale payment signal rejected")
	default:
		log.Error().Err(err).Msg("Failed to apply payment signal")
	}
	c.reply(msg, err)
}

func (c *PaymentConsumer) reply(msg *nats.Msg, err error) {
	if msg.Reply == "" {
		return
	}
	res := paymentReply{Status: "ok"}
	if err != nil {
		res = paymentReply{Status: "error", Error: err.Error()}
	}
	body, _ := json.Marshal(res)
	if rerr := msg.Respond(body); rerr != nil {
		c.logger.Warn().Err(rerr).Msg("Failed to reply to payment signal")
	}
}

// Close drops the subscriptions; the connection is owned by the caller
func (c *PaymentConsumer) Close() {
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn().Err(err).Str("subject", sub.Subject).Msg("Failed to unsubscribe")
		}
	}
	c.subs = nil
}
