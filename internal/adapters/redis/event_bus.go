package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
)

// DefaultEventChannel is the pub/sub channel carrying auth events.
const DefaultEventChannel = "auth:events"

// EventBus relays auth events between instances over Redis pub/sub.
type EventBus struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// NewEventBus creates an EventBus on channel (DefaultEventChannel when empty).
func NewEventBus(client redis.UniversalClient, channel string, logger *slog.Logger) *EventBus {
	if channel == "" {
		channel = DefaultEventChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{client: client, channel: channel, logger: logger.With("component", "auth_event_bus")}
}

// Publish sends ev to every listening instance, including this one.
func (b *EventBus) Publish(ctx context.Context, ev domainauth.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Listen subscribes to the channel and calls fn for each event until ctx is done.
// The subscription is confirmed before Listen starts delivering.
func (b *EventBus) Listen(ctx context.Context, fn func(domainauth.Event)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() {
		if err := sub.Close(); err != nil {
			b.logger.Debug("close subscription", "error", err)
		}
	}()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("redis subscription closed")
			}
			var ev domainauth.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("dropping malformed auth event", "error", err)
				continue
			}
			fn(ev)
		}
	}
}
