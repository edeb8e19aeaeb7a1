package store

import (
	"errors"
	"time"

	"bizdesk/pkg/domain"
)

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("duplicate record")

// ChatQuery selects the chat history visible to one audience.
type ChatQuery struct {
	// Admin selects the administrator view; otherwise Email scopes a customer view.
	Admin bool
	Email string
	Limit int
}

// Store defines persistence for users, catalog, orders, billing and chat.
type Store interface {
	// users
	CreateUser(domain.User) error
	// RegisterUser inserts u as ADMIN when no user exists yet and as USER
	// otherwise; the count and the insert are atomic.
	RegisterUser(u domain.User) (domain.User, error)
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	GetFirstAdmin() (domain.User, bool, error)

	// catalog
	SaveProduct(domain.Product) error
	ListProducts() ([]domain.Product, error)
	FindProductsByName(name string) ([]domain.Product, error)
	DeleteProduct(id string) (bool, error)

	// orders
	CreateOrder(domain.Order) error
	GetOrder(id string) (domain.Order, bool, error)
	ListOrders() ([]domain.Order, error)
	ListOrdersByUser(userID string) ([]domain.Order, error)
	SetOrderStatus(id string, status domain.OrderStatus, now time.Time) (domain.Order, bool, error)
	// ApproveOrder marks the order approved and, once per order, creates the
	// client and invoice and decrements referenced stock, all atomically.
	ApproveOrder(id, approverID string, now time.Time) (domain.Approval, bool, error)

	// billing
	ListClientsByUser(userID string) ([]domain.Client, error)
	ListInvoicesByUser(userID string) ([]domain.Invoice, error)

	// chat
	SaveChatMessage(domain.ChatMessage) error
	ListChatMessages(ChatQuery) ([]domain.ChatMessage, error)
	HideChatRoom(room string, admin bool) (int64, error)
}
