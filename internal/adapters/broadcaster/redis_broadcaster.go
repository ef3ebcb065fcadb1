package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBroadcaster implements outbound.Broadcaster using Redis pub/sub, so
// every replica's websocket clients see events published by any replica.
type RedisBroadcaster struct {
	client        *redis.Client
	channelPrefix string
	clients       map[string]*subscription // clientID -> subscription
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	logger        zerolog.Logger
}

type subscription struct {
	events chan outbound.Event
	pubsub *redis.PubSub
	lots   map[uuid.UUID]bool
	done   chan struct{}
}

type RedisBroadcasterParams struct {
	RedisClient   *redis.Client
	ChannelPrefix string
	Logger        zerolog.Logger
}

func NewBroadcaster(params RedisBroadcasterParams) *RedisBroadcaster {
	ctx, cancel := context.WithCancel(context.Background())

	prefix := params.ChannelPrefix
	if prefix == "" {
		prefix = "lot:"
	}
	return &RedisBroadcaster{
		client:        params.RedisClient,
		channelPrefix: prefix,
		clients:       make(map[string]*subscription),
		ctx:           ctx,
		cancel:        cancel,
		logger:        params.Logger.With().Str("component", "redis_broadcaster").Logger(),
	}
}

func (r *RedisBroadcaster) channelName(lotID uuid.UUID) string {
	return r.channelPrefix + lotID.String()
}

// Subscribe subscribes a client to events for a specific lot. The channel
// passed with the first subscription receives the events of every lot the
// client follows, and is closed when the client's last subscription ends.
func (r *RedisBroadcaster) Subscribe(ctx context.Context, lotID uuid.UUID, clientID string, eventChan chan outbound.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.clients[clientID]
	if exists && sub.lots[lotID] {
		r.logger.Debug().
			Str("client_id", clientID).
			Str("lot_id", lotID.String()).
			Msg("Client already subscribed to lot")
		return nil
	}

	if !exists {
		sub = &subscription{
			events: eventChan,
			pubsub: r.client.Subscribe(ctx),
			lots:   make(map[uuid.UUID]bool),
			done:   make(chan struct{}),
		}
		r.clients[clientID] = sub
		go r.listenForRedisMessages(sub, clientID)
	}

	if err := sub.pubsub.Subscribe(ctx, r.channelName(lotID)); err != nil {
		r.logger.Error().Err(err).Str("client_id", clientID).Str("lot_id", lotID.String()).Msg("Failed to subscribe to Redis channel")
		if len(sub.lots) == 0 {
			r.closeClient(clientID, sub)
		}
		return err
	}
	sub.lots[lotID] = true

	r.logger.Info().
		Str("client_id", clientID).
		Str("lot_id", lotID.String()).
		Msg("Client subscribed to lot via Redis")
	return nil
}

// Unsubscribe unsubscribes a client from events for a specific lot
func (r *RedisBroadcaster) Unsubscribe(ctx context.Context, lotID uuid.UUID, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.clients[clientID]
	if !exists || !sub.lots[lotID] {
		return nil
	}
	delete(sub.lots, lotID)

	if len(sub.lots) == 0 {
		r.closeClient(clientID, sub)
	} else if err := sub.pubsub.Unsubscribe(ctx, r.channelName(lotID)); err != nil {
		r.logger.Error().Err(err).Str("client_id", clientID).Str("lot_id", lotID.String()).Msg("Error unsubscribing from Redis channel")
	}

	r.logger.Info().
		Str("client_id", clientID).
		Str("lot_id", lotID.String()).
		Msg("Client unsubscribed from lot")
	return nil
}

// closeClient must be called with r.mu held
func (r *RedisBroadcaster) closeClient(clientID string, sub *subscription) {
	if err := sub.pubsub.Close(); err != nil {
		r.logger.Error().Err(err).Str("client_id", clientID).Msg("Error closing Redis pubsub for client")
	}
	<-sub.done
	close(sub.events)
	delete(r.clients, clientID)
}

// Publish publishes an event to all subscribers of a lot via Redis
func (r *RedisBroadcaster) Publish(ctx context.Context, lotID uuid.UUID, event outbound.Event) error {
	channelName := r.channelName(lotID)

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to marshal event")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result := r.client.Publish(ctx, channelName, eventJSON)
	if err := result.Err(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to publish to Redis")
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}

	r.logger.Debug().
		Str("event_type", string(event.Type)).
		Str("lot_id", lotID.String()).
		Int64("subscriber_count", result.Val()).
		Msg("Published event to lot")
	return nil
}

// GetSubscribers returns the client IDs subscribed to a lot
func (r *RedisBroadcaster) GetSubscribers(ctx context.Context, lotID uuid.UUID) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var subscribers []string
	for clientID, sub := range r.clients {
		if sub.lots[lotID] {
			subscribers = append(subscribers, clientID)
		}
	}
	sort.Strings(subscribers)
	return subscribers, nil
}

func (r *RedisBroadcaster) IsSubscribed(ctx context.Context, lotID uuid.UUID, clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, exists := r.clients[clientID]
	return exists && sub.lots[lotID]
}

// listenForRedisMessages forwards Redis messages to the client's local channel
func (r *RedisBroadcaster) listenForRedisMessages(sub *subscription, clientID string) {
	defer close(sub.done)

	ch := sub.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				r.logger.Debug().Str("client_id", clientID).Msg("Redis channel closed for client")
				return
			}

			var event outbound.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to unmarshal Redis message for client")
				continue
			}

			select {
			case sub.events <- event:
			default:
				r.logger.Warn().Str("client_id", clientID).Msg("Local channel full for client, dropping event")
			}

		case <-r.ctx.Done():
			return
		}
	}
}

// Close ends every subscription. The redis client is owned by the caller.
func (r *RedisBroadcaster) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for clientID, sub := range r.clients {
		r.closeClient(clientID, sub)
	}
	r.cancel()
	return nil
}
