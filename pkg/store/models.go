package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey;size:32"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Name         string    `gorm:"not null;default:''"`
	Role         string    `gorm:"not null;index"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type ProductModel struct {
	ID        string    `gorm:"primaryKey;size:32"`
	Name      string    `gorm:"not null;index"`
	Price     float64   `gorm:"type:decimal(12,2);not null"`
	Stock     int       `gorm:"not null"`
	UserID    string    `gorm:"size:32;not null;index"`
	User      UserModel `gorm:"foreignKey:UserID"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (ProductModel) TableName() string { return "products" }

type OrderModel struct {
	ID        string           `gorm:"primaryKey;size:32"`
	UserID    string           `gorm:"size:32;not null;index"`
	User      UserModel        `gorm:"foreignKey:UserID"`
	Total     float64          `gorm:"type:decimal(12,2);not null"`
	Status    string           `gorm:"not null;index"`
	Items     []OrderItemModel `gorm:"foreignKey:OrderID"`
	CreatedAt time.Time        `gorm:"not null;index"`
	UpdatedAt time.Time        `gorm:"not null"`
}

func (OrderModel) TableName() string { return "orders" }

type OrderItemModel struct {
	ID          string  `gorm:"primaryKey;size:32"`
	OrderID     string  `gorm:"size:32;not null;index"`
	ProductID   string  `gorm:"size:32;index"`
	Description string  `gorm:"not null"`
	Quantity    int     `gorm:"not null"`
	Price       float64 `gorm:"type:decimal(12,2);not null"`
	Position    int     `gorm:"not null"`
}

func (OrderItemModel) TableName() string { return "order_items" }

type ClientModel struct {
	ID        string    `gorm:"primaryKey;size:32"`
	Name      string    `gorm:"not null"`
	Email     string    `gorm:"not null;index"`
	UserID    string    `gorm:"size:32;not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ClientModel) TableName() string { return "clients" }

type InvoiceModel struct {
	ID        string             `gorm:"primaryKey;size:32"`
	UserID    string             `gorm:"size:32;not null;index"`
	ClientID  string             `gorm:"size:32;not null;index"`
	Client    ClientModel        `gorm:"foreignKey:ClientID"`
	OrderID   string             `gorm:"size:32;not null;uniqueIndex"`
	Total     float64            `gorm:"type:decimal(12,2);not null"`
	Status    string             `gorm:"not null"`
	Items     []InvoiceItemModel `gorm:"foreignKey:InvoiceID"`
	CreatedAt time.Time          `gorm:"not null;index"`
}

func (InvoiceModel) TableName() string { return "invoices" }

type InvoiceItemModel struct {
	ID          string  `gorm:"primaryKey;size:32"`
	InvoiceID   string  `gorm:"size:32;not null;index"`
	ProductID   string  `gorm:"size:32"`
	Description string  `gorm:"not null"`
	Quantity    int     `gorm:"not null"`
	Price       float64 `gorm:"type:decimal(12,2);not null"`
	Position    int     `gorm:"not null"`
}

func (InvoiceItemModel) TableName() string { return "invoice_items" }

type ChatMessageModel struct {
	ID                string `gorm:"primaryKey;size:32"`
	Author            string `gorm:"not null;index"`
	Text              string `gorm:"type:text;not null"`
	Room              string `gorm:"not null;index"`
	FileURL           *string
	FileName          *string
	DeletedByAdmin    bool      `gorm:"not null;default:false"`
	DeletedByCustomer bool      `gorm:"not null;default:false"`
	CreatedAt         time.Time `gorm:"not null;index"`
}

func (ChatMessageModel) TableName() string { return "chat_messages" }

func allModels() []any {
	return []any{
		&UserModel{},
		&ProductModel{},
		&OrderModel{},
		&OrderItemModel{},
		&ClientModel{},
		&InvoiceModel{},
		&InvoiceItemModel{},
		&ChatMessageModel{},
	}
}
