package events

import (
	"context"
	"encoding/json"
	"time"

	"bizdesk/internal/util"
)

// Routing keys of published domain events.
const (
	OrderCreated  = "order.created"
	OrderApproved = "order.approved"
)

// Event is the envelope shared by every transport.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// NewEvent wraps payload in an envelope with a fresh id.
func NewEvent(eventType string, payload any, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{ID: util.NewID(), Type: eventType, OccurredAt: at.UTC(), Data: data}, nil
}

// Publisher delivers domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
