package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

type OrderStatus string

const (
	OrderPending  OrderStatus = "PENDING"
	OrderApproved OrderStatus = "APPROVED"
	OrderRejected OrderStatus = "REJECTED"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderApproved, OrderRejected:
		return true
	}
	return false
}

type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "PENDING"
)

const (
	// AdminRoom aggregates copies of every customer-room message and order alerts.
	AdminRoom = "admin_room"
	// DefaultRoom is used when a message does not name a room.
	DefaultRoom = "general"
)

// CustomerRoom returns the private chat room of a customer.
func CustomerRoom(email string) string {
	return "room_" + email
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsAdmin reports whether the user has the administrator role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserRef is the owner projection embedded in listings.
type UserRef struct {
	ID    string   `json:"id,omitempty"`
	Email string   `json:"email,omitempty"`
	Name  string   `json:"name"`
	Role  UserRole `json:"role,omitempty"`
}

type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	UserID    string    `json:"userId"`
	User      *UserRef  `json:"user,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Total     float64     `json:"total"`
	Status    OrderStatus `json:"status"`
	User      *UserRef    `json:"user,omitempty"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type OrderItem struct {
	ID          string  `json:"id"`
	OrderID     string  `json:"orderId"`
	ProductID   string  `json:"productId,omitempty"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Invoice struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	ClientID  string        `json:"clientId"`
	OrderID   string        `json:"orderId"`
	Total     float64       `json:"total"`
	Status    InvoiceStatus `json:"status"`
	Client    *Client       `json:"client,omitempty"`
	Items     []InvoiceItem `json:"items"`
	CreatedAt time.Time     `json:"createdAt"`
}

type InvoiceItem struct {
	ID          string  `json:"id"`
	InvoiceID   string  `json:"invoiceId"`
	ProductID   string  `json:"productId,omitempty"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

type ChatMessage struct {
	ID                string    `json:"id"`
	Author            string    `json:"author"`
	Text              string    `json:"text"`
	Room              string    `json:"room"`
	FileURL           string    `json:"fileUrl,omitempty"`
	FileName          string    `json:"fileName,omitempty"`
	DeletedByAdmin    bool      `json:"deletedByAdmin"`
	DeletedByCustomer bool      `json:"deletedByCustomer"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Approval describes the effects of an approval transition.
type Approval struct {
	Order   Order
	Invoice *Invoice
	Client  *Client
	// Applied is false when the order already had an invoice and nothing was created.
	Applied bool
}
