package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Provider event kinds.
const (
	EventSignedIn  = "SIGNED_IN"
	EventSignedOut = "SIGNED_OUT"
)

// ProviderEvent is one message on the provider's session channel.
type ProviderEvent struct {
	Event  string    `json:"event"`
	Device string    `json:"device"`
	UserID uuid.UUID `json:"userId,omitempty"`
	At     time.Time `json:"at,omitempty"`
}

// RedisSource feeds provider-pushed session events from a Redis pub/sub
// channel into a Tracker.
type RedisSource struct {
	client  *redis.Client
	channel string
	tracker *Tracker
	logger  *slog.Logger
}

func NewRedisSource(client *redis.Client, channel string, tracker *Tracker, logger *slog.Logger) *RedisSource {
	return &RedisSource{
		client:  client,
		channel: channel,
		tracker: tracker,
		logger:  logger.With("component", "session-source", "channel", channel),
	}
}

// Run consumes the channel until ctx is cancelled. Bad messages are logged
// and skipped.
func (s *RedisSource) Run(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.channel, err)
	}
	s.logger.Info("listening for session events")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.Handle(ctx, []byte(msg.Payload)); err != nil {
				s.logger.Warn("session event rejected", "error", err)
			}
		}
	}
}

// Handle applies one provider event.
func (s *RedisSource) Handle(ctx context.Context, payload []byte) error {
	var e ProviderEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return fmt.Errorf("decoding session event: %w", err)
	}
	if e.Device == "" {
		return fmt.Errorf("session event %q without device", e.Event)
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	switch e.Event {
	case EventSignedIn:
		_, err := s.tracker.SignIn(ctx, e.Device, e.UserID, e.At)
		return err
	case EventSignedOut:
		_, err := s.tracker.SignOut(ctx, e.Device)
		return err
	default:
		return fmt.Errorf("unknown session event %q", e.Event)
	}
}

// Publish sends a provider event; used by tooling and tests.
func Publish(ctx context.Context, client *redis.Client, channel string, e ProviderEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding session event: %w", err)
	}
	return client.Publish(ctx, channel, data).Err()
}
