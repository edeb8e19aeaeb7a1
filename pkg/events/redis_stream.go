package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamPublisher appends events to a capped Redis stream. It is used when no
// AMQP broker is configured but Redis is.
type StreamPublisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewStreamPublisher uses stream (default "bizdesk:events") trimmed to roughly maxLen entries.
func NewStreamPublisher(client redis.UniversalClient, stream string, maxLen int64) (*StreamPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		stream = "bizdesk:events"
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}, nil
}

func (p *StreamPublisher) Publish(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":         ev.ID,
			"type":       ev.Type,
			"occurredAt": ev.OccurredAt.Format(time.RFC3339Nano),
			"data":       string(ev.Data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Close is a no-op; the Redis client is shared and closed by its owner.
func (p *StreamPublisher) Close() error { return nil }
