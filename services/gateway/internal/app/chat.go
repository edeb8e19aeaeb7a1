package app

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"bizdesk/internal/util"
	"bizdesk/pkg/domain"
	"bizdesk/pkg/storage"
	"bizdesk/pkg/store"
)

const (
	// Returned by uploads when no object store is configured.
	PlaceholderFileURL  = "https://www.w3.org/WAI/ER/tests/xhtml/testfiles/resources/pdf/dummy.pdf"
	PlaceholderFileName = "documento.pdf"
)

// ChatPayload is the send_message body, echoed verbatim as receive_message.
type ChatPayload struct {
	Author   string `json:"author"`
	Message  string `json:"message"`
	Room     string `json:"room"`
	FileURL  string `json:"fileUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// Attachment is the result of a chat upload.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// ChatUser resolves the caller for chat operations.
func (a *App) ChatUser(p Principal) (domain.User, error) {
	return a.user(p.UserID)
}

// ChatHistory returns the latest messages visible to the caller, oldest first.
// Admins see everything not hidden for admins; customers see their own room
// and their own messages not hidden for customers.
func (a *App) ChatHistory(p Principal) ([]domain.ChatMessage, error) {
	u, err := a.user(p.UserID)
	if err != nil {
		return nil, err
	}
	msgs, err := a.store.ListChatMessages(store.ChatQuery{Admin: u.IsAdmin(), Email: u.Email})
	if err != nil {
		return nil, fmt.Errorf("list chat: %w", err)
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return msgs, nil
}

// DeleteChatHistory hides one room's messages for the caller's audience.
// Customers always clear their own room whatever room they name; admins must
// name the room.
func (a *App) DeleteChatHistory(p Principal, room string) (string, int64, error) {
	u, err := a.user(p.UserID)
	if err != nil {
		return "", 0, err
	}
	room = strings.TrimSpace(room)
	if !u.IsAdmin() {
		room = domain.CustomerRoom(u.Email)
	} else if room == "" {
		return "", 0, ErrRoomRequired
	}
	n, err := a.store.HideChatRoom(room, u.IsAdmin())
	if err != nil {
		return "", 0, fmt.Errorf("hide chat room: %w", err)
	}
	return room, n, nil
}

// UploadAttachment stores a chat file and returns a link to it. Without an
// object store the fixed placeholder document is returned regardless of input.
func (a *App) UploadAttachment(ctx context.Context, p Principal, filename, contentType string, r io.Reader, size int64) (Attachment, error) {
	if a.objects == nil {
		return Attachment{URL: PlaceholderFileURL, Name: PlaceholderFileName}, nil
	}
	if r == nil || strings.TrimSpace(filename) == "" {
		return Attachment{}, fmt.Errorf("%w: file required", ErrInvalidInput)
	}
	key := storage.AttachmentKey("chat/"+p.UserID, filename)
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return Attachment{}, fmt.Errorf("store attachment: %w", err)
	}
	url, err := a.objects.PresignGet(ctx, key, a.uploadTTL)
	if err != nil {
		return Attachment{}, fmt.Errorf("presign attachment: %w", err)
	}
	util.LoggerFromContext(ctx).Info("chat attachment stored", "user_id", p.UserID, "key", key, "size", size)
	return Attachment{URL: url, Name: path.Base(strings.ReplaceAll(filename, "\\", "/"))}, nil
}

// CanJoinRoom reports whether u may subscribe to room. Admins may join any
// room; customers only their own.
func CanJoinRoom(u domain.User, room string) bool {
	if u.IsAdmin() {
		return true
	}
	return room == domain.CustomerRoom(u.Email)
}

func canSendTo(u domain.User, room string) bool {
	return CanJoinRoom(u, room) || room == domain.DefaultRoom
}

// SendChatMessage persists a message from u, then delivers it to its room and,
// unless it already targets the admin room, mirrors it there.
func (a *App) SendChatMessage(ctx context.Context, u domain.User, in ChatPayload) (ChatPayload, error) {
	in.Message = strings.TrimSpace(in.Message)
	in.FileURL = strings.TrimSpace(in.FileURL)
	in.FileName = strings.TrimSpace(in.FileName)
	in.Room = strings.TrimSpace(in.Room)
	if in.Room == "" {
		in.Room = domain.DefaultRoom
	}
	if in.Message == "" && in.FileURL == "" {
		return ChatPayload{}, fmt.Errorf("%w: message or file required", ErrInvalidInput)
	}
	if !canSendTo(u, in.Room) {
		return ChatPayload{}, ErrRoomForbidden
	}
	// Customers always speak as themselves.
	if !u.IsAdmin() || strings.TrimSpace(in.Author) == "" {
		in.Author = u.Email
	}

	msg := domain.ChatMessage{
		ID:        util.NewID(),
		Author:    in.Author,
		Text:      in.Message,
		Room:      in.Room,
		FileURL:   in.FileURL,
		FileName:  in.FileName,
		CreatedAt: a.clock(),
	}
	if err := a.store.SaveChatMessage(msg); err != nil {
		return ChatPayload{}, fmt.Errorf("save chat message: %w", err)
	}
	a.notifier.Emit(in.Room, EventReceiveMessage, in)
	if in.Room != domain.AdminRoom {
		a.notifier.Emit(domain.AdminRoom, EventReceiveMessage, in)
	}
	util.LoggerFromContext(ctx).Debug("chat message relayed", "room", in.Room, "message_id", msg.ID)
	return in, nil
}
