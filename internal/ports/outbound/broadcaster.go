package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of lifecycle event
type EventType string

const (
	EventTypeAuctionScheduled          EventType = "auction.scheduled"
	EventTypeAuctionStarted            EventType = "auction.started"
	EventTypeAuctionFinished           EventType = "auction.finished"
	EventTypeBidPlaced                 EventType = "bid.placed"
	EventTypeSettlementAwaitingPayment EventType = "settlement.awaiting_payment"
	EventTypeSettlementConfirmed       EventType = "settlement.confirmed"
	EventTypeSettlementDefaulted       EventType = "settlement.defaulted"
	EventTypeFailedAttemptsReset       EventType = "lot.failed_attempts_reset"
	EventTypeError                     EventType = "error"
)

// Event represents a lifecycle event of a lot
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Type      EventType              `json:"type"`
	LotID     uuid.UUID              `json:"lot_id"`
	Cycle     int                    `json:"cycle,omitempty"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// NewEvent builds an event stamped at the given time
func NewEvent(eventType EventType, lotID uuid.UUID, cycle int, at time.Time, data map[string]interface{}) Event {
	if data == nil {
		data = map[string]interface{}{}
	}
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		LotID:     lotID,
		Cycle:     cycle,
		Data:      data,
		Timestamp: at.Unix(),
	}
}

// EventSink receives lifecycle events for notification and audit
type EventSink interface {
	Publish(ctx context.Context, lotID uuid.UUID, event Event) error
}

// Broadcaster defines the interface for delivering events to live subscribers
type Broadcaster interface {
	EventSink

	// Subscribe subscribes a client to events for a specific lot
	// When a client subscribes to multiple lots, all events are delivered to the same channel
	Subscribe(ctx context.Context, lotID uuid.UUID, clientID string, eventChan chan Event) error

	// Unsubscribe unsubscribes a client from events for a specific lot
	Unsubscribe(ctx context.Context, lotID uuid.UUID, clientID string) error

	// GetSubscribers returns the list of client IDs subscribed to a lot
	GetSubscribers(ctx context.Context, lotID uuid.UUID) ([]string, error)

	// IsSubscribed checks if a client is subscribed to a lot
	IsSubscribed(ctx context.Context, lotID uuid.UUID, clientID string) bool
}
