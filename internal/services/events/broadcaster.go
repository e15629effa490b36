package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// Event is a room emission as relayed over Redis.
type Event struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Channel is the Redis channel carrying the emissions of room.
func Channel(room string) string {
	return fmt.Sprintf("room-events:%s", room)
}

// Broadcaster publishes room emissions to Redis Pub/Sub so observers that are
// not socket connections (SSE clients, other processes) can follow a game.
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Emit publishes the emission and logs failures. Emissions are fire and
// forget, like socket broadcasts.
func (b *Broadcaster) Emit(room, event string, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.Publish(ctx, room, event, payload); err != nil {
		b.logger.Warn("Room event not relayed", "error", err, "room", room, "event", event)
	}
}

// Publish sends one emission to the room's channel.
func (b *Broadcaster) Publish(ctx context.Context, room, event string, payload any) error {
	msg := Event{Room: room, Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		msg.Data = data
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := Channel(room)
	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published", "channel", channel, "event", event)
	return nil
}

// Subscription delivers the emissions of one room.
type Subscription struct {
	pubsub *redis.PubSub
	events chan Event
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// Subscribe starts following room. The subscription is confirmed before
// Subscribe returns, so no emission published afterwards is missed.
func (b *Broadcaster) Subscribe(ctx context.Context, room string) (*Subscription, error) {
	pubsub := b.redisClient.Subscribe(ctx, Channel(room))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", room, err)
	}

	s := &Subscription{
		pubsub: pubsub,
		events: make(chan Event),
		done:   make(chan struct{}),
		logger: b.logger,
	}
	go s.run()
	return s, nil
}

func (s *Subscription) run() {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			s.logger.Error("Failed to unmarshal event", "error", err, "payload", msg.Payload)
			continue
		}
		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

// Events is closed once the subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
