package app

import (
	"context"
	"errors"
	"time"

	"bizdesk/internal/util"
	"bizdesk/pkg/auth"
	"bizdesk/pkg/domain"
	"bizdesk/pkg/events"
	"bizdesk/pkg/storage"
	"bizdesk/pkg/store"
)

// Realtime event names pushed to websocket clients.
const (
	EventReceiveMessage = "receive_message"
	EventNewOrder       = "nueva_orden"
	EventError          = "error"
)

// Notifier pushes an event to every subscriber of a room. Delivery is best effort.
type Notifier interface {
	Emit(room, event string, payload any)
}

type nopNotifier struct{}

func (nopNotifier) Emit(string, string, any) {}

// Principal is the authenticated caller as carried by the access token.
type Principal struct {
	UserID string
	Role   domain.UserRole
}

// IsAdmin reports whether the caller has the administrator role.
func (p Principal) IsAdmin() bool { return p.Role == domain.RoleAdmin }

// Config holds the collaborators of the core application.
type Config struct {
	Store     store.Store
	Tokens    *auth.TokenManager
	Notifier  Notifier
	Publisher events.Publisher
	// Objects is optional; without it chat uploads return the placeholder attachment.
	Objects storage.ObjectStore
	// UploadURLTTL bounds presigned attachment links (default 24h).
	UploadURLTTL time.Duration
	Now          func() time.Time
}

// App is the core application service wiring together storage and domain logic.
type App struct {
	store     store.Store
	tokens    *auth.TokenManager
	notifier  Notifier
	publisher events.Publisher
	objects   storage.ObjectStore
	uploadTTL time.Duration
	now       func() time.Time
}

// New validates cfg and fills defaults for the optional collaborators.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token manager required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}
	if cfg.UploadURLTTL <= 0 {
		cfg.UploadURLTTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &App{
		store:     cfg.Store,
		tokens:    cfg.Tokens,
		notifier:  cfg.Notifier,
		publisher: cfg.Publisher,
		objects:   cfg.Objects,
		uploadTTL: cfg.UploadURLTTL,
		now:       cfg.Now,
	}, nil
}

// SetNotifier swaps the realtime notifier. The hub and the app reference each
// other, so the hub is attached after both exist.
func (a *App) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	a.notifier = n
}

func (a *App) clock() time.Time {
	return a.now().UTC()
}

// publish sends a domain event after the state change committed. Failures are
// logged and never undo the operation.
func (a *App) publish(ctx context.Context, eventType string, payload any) {
	logger := util.LoggerFromContext(ctx)
	ev, err := events.NewEvent(eventType, payload, a.clock())
	if err != nil {
		logger.Error("encode domain event failed", "type", eventType, "err", err)
		return
	}
	if err := a.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logger.Warn("publish domain event failed", "type", eventType, "event_id", ev.ID, "err", err)
	}
}

// user loads the caller, mapping absence to ErrUserNotFound.
func (a *App) user(id string) (domain.User, error) {
	u, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return u, nil
}
