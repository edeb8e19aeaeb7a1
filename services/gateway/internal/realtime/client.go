package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"bizdesk/pkg/domain"
	"bizdesk/services/gateway/internal/app"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendQueueSize  = 64
)

// Client events.
const (
	EventJoinRoom    = "join_room"
	EventSendMessage = "send_message"
)

// Sender persists and relays a chat message on behalf of a user.
type Sender interface {
	SendChatMessage(ctx context.Context, u domain.User, in app.ChatPayload) (app.ChatPayload, error)
}

// Client is one websocket connection of an authenticated user.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	user   domain.User
	sender Sender
	logger *slog.Logger
}

// Upgrader builds the websocket upgrader; checkOrigin nil accepts any origin.
func Upgrader(checkOrigin func(r *http.Request) bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
}

// Serve upgrades the request and runs the connection until it closes. The
// caller has already authenticated user.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, up *websocket.Upgrader, user domain.User, sender Sender, logger *slog.Logger) error {
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		user:   user,
		sender: sender,
		logger: logger.With("user", user.Email),
	}
	h.register(c)
	c.logger.Info("realtime client connected")
	go c.writePump()
	c.readPump(r.Context())
	return nil
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
		c.logger.Info("realtime client disconnected")
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// Detach from request cancellation; request-scoped values stay.
	ctx = context.WithoutCancel(ctx)
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.replyError("malformed frame")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("realtime read failed", "err", err)
			}
			return
		}
		c.handle(ctx, env)
	}
}

func (c *Client) handle(ctx context.Context, env Envelope) {
	switch env.Event {
	case EventJoinRoom:
		var room string
		if err := json.Unmarshal(env.Data, &room); err != nil || room == "" {
			c.replyError("room name required")
			return
		}
		if !app.CanJoinRoom(c.user, room) {
			c.logger.Warn("security_event", "event", "room_join_denied", "room", room)
			c.replyError("room not allowed")
			return
		}
		c.hub.join(c, room)
	case EventSendMessage:
		var in app.ChatPayload
		if err := json.Unmarshal(env.Data, &in); err != nil {
			c.replyError("invalid message")
			return
		}
		if _, err := c.sender.SendChatMessage(ctx, c.user, in); err != nil {
			switch {
			case errors.Is(err, app.ErrInvalidInput):
				c.replyError(err.Error())
			case errors.Is(err, app.ErrRoomForbidden):
				c.replyError("room not allowed")
			default:
				c.logger.Error("relay chat message failed", "err", err)
				c.replyError("message not delivered")
			}
		}
	default:
		c.replyError("unknown event")
	}
}

func (c *Client) replyError(msg string) {
	data, _ := json.Marshal(map[string]string{"error": msg})
	frame, _ := json.Marshal(Envelope{Event: app.EventError, Data: data})
	c.hub.sendTo(c, frame)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
