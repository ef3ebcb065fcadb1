package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/inbound"
	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrLiveUpdatesUnavailable is returned on subscribe when no broadcaster is wired
var ErrLiveUpdatesUnavailable = errors.New("live updates are not available")

// WsHandler manages WebSocket connections and message routing
type WsHandler struct {
	clients        map[string]*clientState // clientID -> state
	clientsMu      sync.Mutex
	upgrader       websocket.Upgrader
	auctionService inbound.AuctionService
	bidService     inbound.BidService
	broadcaster    outbound.Broadcaster
	maxWorkers     int
	maxCapacity    int
	logger         zerolog.Logger
}

// clientState tracks a connected client's lot subscriptions. The broadcaster
// adopts the events channel on the first subscription and closes it when the
// last one ends.
type clientState struct {
	client *WsClient
	lots   map[uuid.UUID]bool
	events chan outbound.Event
}

type WsHandlerParams struct {
	Upgrader       websocket.Upgrader
	AuctionService inbound.AuctionService
	BidService     inbound.BidService
	Broadcaster    outbound.Broadcaster
	MaxWorkers     int
	MaxCapacity    int
	Logger         zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		clients:        make(map[string]*clientState),
		upgrader:       params.Upgrader,
		auctionService: params.AuctionService,
		bidService:     params.BidService,
		broadcaster:    params.Broadcaster,
		maxWorkers:     params.MaxWorkers,
		maxCapacity:    params.MaxCapacity,
		logger:         params.Logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket upgrades the connection. The caller identity comes from the
// request context, falling back to the user_id query parameter.
func (handler *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.ID == uuid.Nil {
		userIDStr := r.URL.Query().Get("user_id")
		if userIDStr == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			http.Error(w, "invalid user_id format", http.StatusBadRequest)
			return
		}
		actor = shared.Actor{ID: userID, Role: shared.RoleUser}
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := handler.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handler.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(WsClientParams{
		Actor:       actor,
		Conn:        conn,
		Handler:     handler,
		MaxWorkers:  handler.maxWorkers,
		MaxCapacity: handler.maxCapacity,
		Logger:      handler.logger,
	})

	handler.registerClient(client)
	client.Start()

	// Wait for client to disconnect
	go func() {
		<-client.ctx.Done()
		handler.unregisterClient(client)
	}()

	handler.logger.Info().Str("client_id", client.id).Str("user_id", actor.ID.String()).Msg("WebSocket client connected")
}

func (handler *WsHandler) registerClient(client *WsClient) {
	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()
	handler.clients[client.id] = &clientState{client: client, lots: make(map[uuid.UUID]bool)}
	handler.logger.Debug().Str("client_id", client.id).Int("total_clients", len(handler.clients)).Msg("Client registered")
}

func (handler *WsHandler) unregisterClient(client *WsClient) {
	handler.clientsMu.Lock()
	state, exists := handler.clients[client.id]
	delete(handler.clients, client.id)
	total := len(handler.clients)
	handler.clientsMu.Unlock()

	if exists && handler.broadcaster != nil {
		// client.ctx is already cancelled here
		for lotID := range state.lots {
			if err := handler.broadcaster.Unsubscribe(context.Background(), lotID, client.id); err != nil {
				handler.logger.Warn().Err(err).Str("client_id", client.id).Str("lot_id", lotID.String()).Msg("Failed to unsubscribe disconnected client")
			}
		}
	}

	client.Stop()

	handler.logger.Info().Str("client_id", client.id).Str("user_id", client.actor.ID.String()).Int("total_clients", total).Msg("WebSocket client disconnected")
}

// forwardEvents pushes broadcast events to the client until the broadcaster closes the channel
func (handler *WsHandler) forwardEvents(client *WsClient, events <-chan outbound.Event) {
	handler.logger.Debug().Str("client_id", client.id).Msg("Event listener started for client")

	for event := range events {
		if err := client.Send(NewEventMessage(event)); err != nil {
			if errors.Is(err, errClientStopped) {
				continue
			}
			handler.logger.Error().Err(err).Str("client_id", client.id).Msg("Failed to send event to WebSocket client")
			continue
		}
		handler.logger.Debug().Str("client_id", client.id).Str("event_type", string(event.Type)).
			Msg("Sent event to WebSocket client")
	}

	handler.logger.Debug().Str("client_id", client.id).Msg("Event listener stopped for client")
}

func (handler *WsHandler) HandleClientMessage(client *WsClient, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypeSubscribe:
		return handler.handleSubscribe(client, msg)

	case MessageTypeUnsubscribe:
		return handler.handleUnsubscribe(client, msg)

	case MessageTypePlaceBid:
		return handler.handlePlaceBid(client, msg)

	case MessageTypeGetLot:
		return handler.handleGetLot(client, msg)

	case MessageTypeGetHighestBid:
		return handler.handleGetHighestBid(client, msg)

	default:
		handler.logger.Warn().Str("client_id", client.id).Str("message_type", string(msg.Type)).Msg("Unknown message type from client")
		return shared.ErrUnknownMessageType
	}
}

// GetConnectedClients returns the number of connected clients
func (handler *WsHandler) GetConnectedClients() int {
	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()
	return len(handler.clients)
}

func (handler *WsHandler) handleSubscribe(client *WsClient, msg *ClientMessage) error {
	if handler.broadcaster == nil {
		return client.Send(NewErrorMessage(ErrLiveUpdatesUnavailable, msg.LotID))
	}
	lotID := *msg.LotID

	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()

	state, ok := handler.clients[client.id]
	if !ok {
		return errClientStopped
	}
	if !state.lots[lotID] {
		fresh := len(state.lots) == 0
		if fresh {
			state.events = make(chan outbound.Event, sendBufferSize)
		}
		if err := handler.broadcaster.Subscribe(client.ctx, lotID, client.id, state.events); err != nil {
			handler.logger.Error().Err(err).Str("client_id", client.id).Str("lot_id", lotID.String()).Msg("Failed to subscribe to lot")
			return err
		}
		if fresh {
			go handler.forwardEvents(client, state.events)
		}
		state.lots[lotID] = true
	}

	response := NewServerMessage(MessageTypeLotUpdate)
	response.LotID = msg.LotID
	response.Data["status"] = "subscribed"

	handler.logger.Info().Str("client_id", client.id).Str("lot_id", lotID.String()).Msg("Client subscribed to lot")
	return client.Send(response)
}

// handleUnsubscribe handles unsubscription from lot events
func (handler *WsHandler) handleUnsubscribe(client *WsClient, msg *ClientMessage) error {
	lotID := *msg.LotID

	handler.clientsMu.Lock()
	state, ok := handler.clients[client.id]
	if ok && state.lots[lotID] && handler.broadcaster != nil {
		if err := handler.broadcaster.Unsubscribe(client.ctx, lotID, client.id); err != nil {
			handler.clientsMu.Unlock()
			return err
		}
		delete(state.lots, lotID)
	}
	handler.clientsMu.Unlock()

	response := NewServerMessage(MessageTypeLotUpdate)
	response.LotID = msg.LotID
	response.Data["status"] = "unsubscribed"

	handler.logger.Info().Str("client_id", client.id).Str("lot_id", lotID.String()).Msg("Client unsubscribed from lot")
	return client.Send(response)
}

// handlePlaceBid handles bid placement
func (handler *WsHandler) handlePlaceBid(client *WsClient, msg *ClientMessage) error {
	amount, err := msg.Amount()
	if err != nil {
		return err
	}

	placed, err := handler.bidService.SubmitBid(client.ctx, inbound.SubmitBidRequest{
		LotID:    *msg.LotID,
		UserID:   client.actor.ID,
		ClientID: client.id,
		Amount:   amount,
	})
	if err != nil {
		return client.Send(NewErrorMessage(err, msg.LotID))
	}

	response := NewServerMessage(MessageTypeBidAccepted)
	response.LotID = msg.LotID
	response.Data["bid_id"] = placed.ID
	response.Data["cycle"] = placed.Cycle
	response.Data["amount"] = placed.Amount.String()
	response.Data["status"] = placed.Status

	handler.logger.Info().
		Str("bid_id", placed.ID.String()).
		Str("lot_id", msg.LotID.String()).
		Str("user_id", client.actor.ID.String()).
		Str("amount", placed.Amount.String()).
		Msg("Bid placed successfully")
	return client.Send(response)
}

// handleGetLot handles getting lot details
func (handler *WsHandler) handleGetLot(client *WsClient, msg *ClientMessage) error {
	view, err := handler.auctionService.GetLot(client.ctx, *msg.LotID)
	if err != nil {
		return client.Send(NewErrorMessage(err, msg.LotID))
	}

	response := NewServerMessage(MessageTypeLotUpdate)
	response.LotID = msg.LotID
	response.Data["lot"] = view
	return client.Send(response)
}

func (handler *WsHandler) handleGetHighestBid(client *WsClient, msg *ClientMessage) error {
	highest, err := handler.bidService.HighestActiveBid(client.ctx, *msg.LotID)
	if err != nil {
		return client.Send(NewErrorMessage(err, msg.LotID))
	}

	response := NewServerMessage(MessageTypeHighestBid)
	response.LotID = msg.LotID
	response.Data["bid"] = highest
	return client.Send(response)
}
