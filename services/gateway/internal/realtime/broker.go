package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisBroker shares emits between gateway instances over Redis pub/sub.
type RedisBroker struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisBroker uses channel (default "bizdesk:realtime").
func NewRedisBroker(client redis.UniversalClient, channel string) (*RedisBroker, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "bizdesk:realtime"
	}
	return &RedisBroker{client: client, channel: channel}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, handle func(Message), ready func()) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	if ready != nil {
		ready()
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return errors.New("realtime subscription closed")
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				slog.Warn("realtime dropped malformed broker message", "err", err)
				continue
			}
			handle(msg)
		}
	}
}
