package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lot-auction-service/internal/domain/shared"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendBufferSize = 100
	sendTimeout    = 100 * time.Millisecond
	readLimit      = 64 * 1024
)

var errClientStopped = errors.New("client is stopped")

type WsClient struct {
	id         string
	actor      shared.Actor
	conn       *websocket.Conn
	sendChan   chan *ServerMessage
	ctx        context.Context
	cancel     context.CancelFunc
	handler    *WsHandler
	workerPool *pond.WorkerPool
	stopped    bool
	mu         sync.Mutex
	logger     zerolog.Logger
}

type WsClientParams struct {
	Actor       shared.Actor
	Conn        *websocket.Conn
	Handler     *WsHandler
	MaxWorkers  int
	MaxCapacity int
	Logger      zerolog.Logger
}

// NewClient creates a new WebSocket client. Commands it issues run as its actor.
func NewClient(params WsClientParams) *WsClient {
	ctx, cancel := context.WithCancel(shared.WithActor(context.Background(), params.Actor))

	workers, capacity := params.MaxWorkers, params.MaxCapacity
	if workers <= 0 {
		workers = 10
	}
	if capacity <= 0 {
		capacity = 100
	}
	pool := pond.New(
		workers,
		capacity,
		pond.Context(ctx),
		pond.Strategy(pond.Balanced()),
	)
	id := uuid.New().String()
	return &WsClient{
		id:         id,
		actor:      params.Actor,
		conn:       params.Conn,
		sendChan:   make(chan *ServerMessage, sendBufferSize),
		ctx:        ctx,
		cancel:     cancel,
		handler:    params.Handler,
		workerPool: pool,
		logger: params.Logger.With().
			Str("client_id", id).
			Str("user_id", params.Actor.ID.String()).
			Logger(),
	}
}

func (client *WsClient) Start() {
	go client.messageSender()
	go client.messageReceiver()
}

func (client *WsClient) Stop() {
	client.mu.Lock()
	defer client.mu.Unlock()

	// Prevent double closing
	if client.stopped {
		return
	}
	client.stopped = true

	client.cancel()
	client.conn.Close()
	close(client.sendChan)

	if client.workerPool != nil {
		client.workerPool.Stop()
	}
}

// Send queues a message for the client
func (client *WsClient) Send(msg *ServerMessage) error {
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.stopped {
		return errClientStopped
	}

	select {
	case client.sendChan <- msg:
		return nil
	default:
		// Channel is full, try to send with a timeout
		timer := time.NewTimer(sendTimeout)
		defer timer.Stop()
		select {
		case client.sendChan <- msg:
			return nil
		case <-timer.C:
			return fmt.Errorf("client send channel is full")
		}
	}
}

func (client *WsClient) messageSender() {
	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}
			if err := client.conn.WriteJSON(msg); err != nil {
				client.logger.Error().Err(err).Msg("Failed to send message to client")
				client.cancel()
				return
			}
		case <-client.ctx.Done():
			return
		}
	}
}

func (client *WsClient) messageReceiver() {
	client.conn.SetReadLimit(readLimit)

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				client.logger.Error().Err(err).Msg("WebSocket read error for client")
			} else {
				client.logger.Info().Str("error", err.Error()).Msg("WebSocket connection closed for client")
			}
			// Cancel context to notify handler about disconnection
			client.cancel()
			return
		}
		client.logger.Debug().Int("bytes", len(message)).Msg("Message received from client")

		submitted := client.workerPool.TrySubmit(func() {
			if err := client.handleMessage(message); err != nil {
				client.logger.Warn().Err(err).Msg("Failed to handle client message")
				if sendErr := client.Send(NewErrorMessage(err, nil)); sendErr != nil && !errors.Is(sendErr, errClientStopped) {
					client.logger.Error().Err(sendErr).Msg("Failed to send error to client")
				}
			}
		})
		if !submitted {
			if client.ctx.Err() != nil {
				return
			}
			client.logger.Warn().Msg("Client worker pool saturated, dropping message")
			_ = client.Send(NewErrorMessage(fmt.Errorf("server busy, retry later"), nil))
		}
	}
}

func (client *WsClient) handleMessage(data []byte) error {
	msg, err := ParseClientMessage(data)
	if err != nil {
		return err
	}

	if err := msg.Validate(); err != nil {
		return fmt.Errorf("message validation failed: %w", err)
	}

	if msg.Type == MessageTypePing {
		return client.Send(NewServerMessage(MessageTypePong))
	}

	if client.handler != nil {
		return client.handler.HandleClientMessage(client, msg)
	}
	return fmt.Errorf("handler not available")
}
