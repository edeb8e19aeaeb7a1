// Package realtime relays chat and order notifications to websocket clients
// grouped by room.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Envelope is the frame exchanged with websocket clients in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is one emit addressed to a room, as carried by a Broker.
type Message struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Broker fans emits out to every gateway instance, this one included.
type Broker interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe blocks until ctx ends, calling handle for each message.
	// ready is called once the subscription is live.
	Subscribe(ctx context.Context, handle func(Message), ready func()) error
}

const brokerTimeout = 2 * time.Second

// Hub tracks room membership. Without a broker emits are delivered in-process.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}

	broker    Broker
	readyOnce sync.Once
	ready     chan struct{}
}

// NewHub creates a hub. broker may be nil.
func NewHub(broker Broker) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]map[string]struct{}),
		broker:  broker,
		ready:   make(chan struct{}),
	}
}

// Run consumes the broker subscription until ctx ends. Without a broker it
// just waits for ctx.
func (h *Hub) Run(ctx context.Context) error {
	if h.broker == nil {
		h.markReady()
		<-ctx.Done()
		return nil
	}
	err := h.broker.Subscribe(ctx, func(m Message) {
		h.deliver(m.Room, m.Event, m.Data)
	}, h.markReady)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Ready is closed once emits will reach subscribers.
func (h *Hub) Ready() <-chan struct{} { return h.ready }

func (h *Hub) markReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

// Emit delivers event with payload to every client in room. Through a broker
// the local copy arrives via the subscription; a failed publish falls back to
// local delivery.
func (h *Hub) Emit(room, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("realtime encode failed", "event", event, "err", err)
		return
	}
	if h.broker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), brokerTimeout)
		defer cancel()
		err := h.broker.Publish(ctx, Message{Room: room, Event: event, Data: data})
		if err == nil {
			return
		}
		slog.Warn("realtime publish failed, delivering locally", "room", room, "event", event, "err", err)
	}
	h.deliver(room, event, data)
}

func (h *Hub) deliver(room, event string, data json.RawMessage) {
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return
	}
	var slow []*Client
	h.mu.RLock()
	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		slog.Warn("realtime client too slow, dropping", "room", room, "user", c.user.Email)
		h.unregister(c)
	}
}

// sendTo queues a frame for one client unless it is already gone.
func (h *Hub) sendTo(c *Client, frame []byte) {
	h.mu.RLock()
	_, alive := h.clients[c]
	ok := false
	if alive {
		select {
		case c.send <- frame:
			ok = true
		default:
		}
	}
	h.mu.RUnlock()
	if alive && !ok {
		h.unregister(c)
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = make(map[string]struct{})
}

// join subscribes c to room. It reports false for clients already dropped.
func (h *Hub) join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.clients[c]
	if !ok {
		return false
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	joined[room] = struct{}{}
	return true
}

// unregister removes c from every room and closes its queue once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.clients[c]
	if !ok {
		return
	}
	for room := range joined {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.clients, c)
	close(c.send)
}

// CloseAll disconnects every client; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.unregister(c)
	}
}

// Stats reports connected clients and non-empty rooms.
func (h *Hub) Stats() (clients, rooms int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients), len(h.rooms)
}

// Members returns how many clients are subscribed to room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
