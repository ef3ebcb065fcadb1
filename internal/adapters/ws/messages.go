package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MessageType string

const (
	// Client to Server message types
	MessageTypeSubscribe     MessageType = "subscribe"
	MessageTypeUnsubscribe   MessageType = "unsubscribe"
	MessageTypePlaceBid      MessageType = "place_bid"
	MessageTypeGetLot        MessageType = "get_lot"
	MessageTypeGetHighestBid MessageType = "get_highest_bid"
	MessageTypePing          MessageType = "ping"

	// Server to Client message types
	MessageTypeBidPlaced   MessageType = "bid_placed"
	MessageTypeBidAccepted MessageType = "bid_accepted"
	MessageTypeLotEvent    MessageType = "lot_event"
	MessageTypeLotUpdate   MessageType = "lot_update"
	MessageTypeHighestBid  MessageType = "highest_bid"
	MessageTypeError       MessageType = "error"
	MessageTypePong        MessageType = "pong"
)

type ClientMessage struct {
	Type      MessageType            `json:"type"`
	LotID     *uuid.UUID             `json:"lot_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// ServerMessage represents a message sent from server to client
type ServerMessage struct {
	Type      MessageType            `json:"type"`
	Event     string                 `json:"event,omitempty"`
	LotID     *uuid.UUID             `json:"lot_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Error     *string                `json:"error,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

func NewServerMessage(msgType MessageType) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now().Unix(),
	}
}

// NewErrorMessage builds an error reply carrying the error text and its code
func NewErrorMessage(err error, lotID *uuid.UUID) *ServerMessage {
	text := err.Error()
	return &ServerMessage{
		Type:      MessageTypeError,
		LotID:     lotID,
		Code:      shared.ErrorCode(err),
		Error:     &text,
		Timestamp: time.Now().Unix(),
	}
}

// NewEventMessage converts a lifecycle event into a push message
func NewEventMessage(event outbound.Event) *ServerMessage {
	msgType := MessageTypeLotEvent
	if event.Type == outbound.EventTypeBidPlaced {
		msgType = MessageTypeBidPlaced
	}
	lotID := event.LotID
	return &ServerMessage{
		Type:      msgType,
		Event:     string(event.Type),
		LotID:     &lotID,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	}
}

func (m *ClientMessage) validateLotID() error {
	if m.LotID == nil || *m.LotID == uuid.Nil {
		return shared.ErrLotIDRequired
	}
	return nil
}

// Amount returns the bid amount of a place_bid message. Both JSON numbers and
// decimal strings are accepted.
func (m *ClientMessage) Amount() (decimal.Decimal, error) {
	raw, ok := m.Data["amount"]
	if !ok || raw == nil {
		return decimal.Zero, shared.ErrInvalidAmount
	}
	var text string
	switch v := raw.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = v
	default:
		return decimal.Zero, shared.ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(text)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, shared.ErrInvalidAmount
	}
	return amount, nil
}

// ParseClientMessage parses a JSON message from client
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&msg); err != nil {
		return nil, fmt.Errorf("failed to parse client message: %w: %v", shared.ErrInvalidRequest, err)
	}

	// Validate required fields
	if msg.Type == "" {
		return nil, shared.ErrMessageTypeRequired
	}

	return &msg, nil
}

// Validate validates a client message
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe, MessageTypeGetLot, MessageTypeGetHighestBid:
		if err := m.validateLotID(); err != nil {
			return err
		}
	case MessageTypePlaceBid:
		if err := m.validateLotID(); err != nil {
			return err
		}
		if _, err := m.Amount(); err != nil {
			return err
		}
	case MessageTypePing:

	default:
		return shared.ErrUnknownMessageType
	}

	return nil
}
