package store

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bizdesk/internal/util"
	"bizdesk/pkg/domain"
)

const defaultChatLimit = 100

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the Postgres DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	return NewGormStoreWithDialector(postgres.Open(dsn))
}

// NewGormStoreWithDialector opens any GORM dialector and runs auto-migrations.
func NewGormStoreWithDialector(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateUser inserts a user; a taken email yields ErrDuplicate.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// RegisterUser assigns the role and inserts in one transaction. On Postgres the
// users table is locked against concurrent inserts for the duration.
func (s *GormStore) RegisterUser(u domain.User) (domain.User, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE").Error; err != nil {
				return fmt.Errorf("lock users: %w", err)
			}
		}
		var count int64
		if err := tx.Model(&UserModel{}).Count(&count).Error; err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		u.Role = domain.RoleUser
		if count == 0 {
			u.Role = domain.RoleAdmin
		}
		model := userToModel(u)
		if err := tx.Create(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	return s.firstUser("email = ?", email)
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	return s.firstUser("id = ?", id)
}

// GetFirstAdmin returns the earliest registered administrator.
func (s *GormStore) GetFirstAdmin() (domain.User, bool, error) {
	return s.firstUser("role = ?", string(domain.RoleAdmin))
}

func (s *GormStore) firstUser(query string, args ...any) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where(query, args...).Order("created_at ASC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveProduct stores or updates a product.
func (s *GormStore) SaveProduct(p domain.Product) error {
	model := productToModel(p)
	return s.db.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price", "stock"}),
	}).Create(&model).Error
}

// ListProducts returns every product with its owner, newest first.
func (s *GormStore) ListProducts() ([]domain.Product, error) {
	var models []ProductModel
	if err := s.db.Preload("User").Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Product, 0, len(models))
	for _, m := range models {
		res = append(res, productFromModel(m))
	}
	return res, nil
}

// FindProductsByName returns products whose name matches exactly.
func (s *GormStore) FindProductsByName(name string) ([]domain.Product, error) {
	var models []ProductModel
	if err := s.db.Where("name = ?", name).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Product, 0, len(models))
	for _, m := range models {
		res = append(res, productFromModel(m))
	}
	return res, nil
}

// DeleteProduct hard-deletes a product. It reports false when nothing matched.
func (s *GormStore) DeleteProduct(id string) (bool, error) {
	res := s.db.Delete(&ProductModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CreateOrder persists an order and its items as one unit.
func (s *GormStore) CreateOrder(o domain.Order) error {
	order := orderToModel(o)
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
			return err
		}
		if len(order.Items) == 0 {
			return nil
		}
		return tx.Create(&order.Items).Error
	})
}

// GetOrder returns an order with owner and items.
func (s *GormStore) GetOrder(id string) (domain.Order, bool, error) {
	return s.getOrder(s.db, id)
}

func (s *GormStore) getOrder(tx *gorm.DB, id string) (domain.Order, bool, error) {
	var model OrderModel
	if err := preloadOrder(tx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, err
	}
	return orderFromModel(model), true, nil
}

// ListOrders returns all orders newest first.
func (s *GormStore) ListOrders() ([]domain.Order, error) {
	return s.listOrders()
}

// ListOrdersByUser returns the orders placed by userID, newest first.
func (s *GormStore) ListOrdersByUser(userID string) ([]domain.Order, error) {
	return s.listOrders("user_id = ?", userID)
}

func (s *GormStore) listOrders(conds ...any) ([]domain.Order, error) {
	var models []OrderModel
	tx := preloadOrder(s.db).Order("created_at DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Order, 0, len(models))
	for _, m := range models {
		res = append(res, orderFromModel(m))
	}
	return res, nil
}

// SetOrderStatus updates the status without side effects.
func (s *GormStore) SetOrderStatus(id string, status domain.OrderStatus, now time.Time) (domain.Order, bool, error) {
	res := s.db.Model(&OrderModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":     string(status),
		"updated_at": now,
	})
	if res.Error != nil {
		return domain.Order{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Order{}, false, nil
	}
	return s.GetOrder(id)
}

// ApproveOrder runs the approval transition in one transaction with the order row locked.
// An existing invoice for the order makes the effects a no-op.
func (s *GormStore) ApproveOrder(id, approverID string, now time.Time) (domain.Approval, bool, error) {
	var approval domain.Approval
	found := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var order OrderModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("User").
			Preload("Items", orderedItems).
			First(&order, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		found = true
		if err := tx.Model(&OrderModel{}).Where("id = ?", id).Updates(map[string]any{
			"status":     string(domain.OrderApproved),
			"updated_at": now,
		}).Error; err != nil {
			return fmt.Errorf("set status: %w", err)
		}

		var invoices int64
		if err := tx.Model(&InvoiceModel{}).Where("order_id = ?", id).Count(&invoices).Error; err != nil {
			return fmt.Errorf("check invoice: %w", err)
		}
		if invoices == 0 {
			client, err := findOrCreateClient(tx, order.User, approverID, now)
			if err != nil {
				return err
			}
			invoice := newInvoiceModel(order, client.ID, approverID, now)
			if err := tx.Omit(clause.Associations).Create(&invoice).Error; err != nil {
				return fmt.Errorf("create invoice: %w", err)
			}
			if len(invoice.Items) > 0 {
				if err := tx.Create(&invoice.Items).Error; err != nil {
					return fmt.Errorf("create invoice items: %w", err)
				}
			}
			for _, item := range order.Items {
				if err := decrementStock(tx, item); err != nil {
					return err
				}
			}
			c := clientFromModel(client)
			inv := invoiceFromModel(invoice)
			inv.Client = &c
			approval.Client = &c
			approval.Invoice = &inv
			approval.Applied = true
		}

		updated, _, err := s.getOrder(tx, id)
		if err != nil {
			return fmt.Errorf("reload order: %w", err)
		}
		approval.Order = updated
		return nil
	})
	if err != nil {
		return domain.Approval{}, false, err
	}
	return approval, found, nil
}

// decrementStock takes the quantity off the linked product, or off every
// product sharing the line's name when the line carries no product id.
func decrementStock(tx *gorm.DB, item OrderItemModel) error {
	q := tx.Model(&ProductModel{})
	if item.ProductID != "" {
		q = q.Where("id = ?", item.ProductID)
	} else {
		q = q.Where("name = ?", item.Description)
	}
	if err := q.UpdateColumn("stock", gorm.Expr("stock - ?", item.Quantity)).Error; err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	return nil
}

func findOrCreateClient(tx *gorm.DB, owner UserModel, approverID string, now time.Time) (ClientModel, error) {
	var client ClientModel
	err := tx.Where("email = ?", owner.Email).Order("created_at ASC").First(&client).Error
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ClientModel{}, fmt.Errorf("find client: %w", err)
	}
	client = ClientModel{
		ID:        util.NewID(),
		Name:      clientName(owner.Name),
		Email:     owner.Email,
		UserID:    approverID,
		CreatedAt: now,
	}
	if err := tx.Create(&client).Error; err != nil {
		return ClientModel{}, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}

func newInvoiceModel(order OrderModel, clientID, approverID string, now time.Time) InvoiceModel {
	invoice := InvoiceModel{
		ID:        util.NewID(),
		UserID:    approverID,
		ClientID:  clientID,
		OrderID:   order.ID,
		Total:     order.Total,
		Status:    string(domain.InvoicePending),
		CreatedAt: now,
	}
	for i, item := range order.Items {
		invoice.Items = append(invoice.Items, InvoiceItemModel{
			ID:          util.NewID(),
			InvoiceID:   invoice.ID,
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity,
			Price:       item.Price,
			Position:    i,
		})
	}
	return invoice
}

// ListClientsByUser returns clients owned by userID.
func (s *GormStore) ListClientsByUser(userID string) ([]domain.Client, error) {
	var models []ClientModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Client, 0, len(models))
	for _, m := range models {
		res = append(res, clientFromModel(m))
	}
	return res, nil
}

// ListInvoicesByUser returns invoices owned by userID with client and items, newest first.
func (s *GormStore) ListInvoicesByUser(userID string) ([]domain.Invoice, error) {
	var models []InvoiceModel
	err := s.db.Preload("Client").
		Preload("Items", orderedItems).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.Invoice, 0, len(models))
	for _, m := range models {
		inv := invoiceFromModel(m)
		c := clientFromModel(m.Client)
		inv.Client = &c
		res = append(res, inv)
	}
	return res, nil
}

// SaveChatMessage records a message.
func (s *GormStore) SaveChatMessage(msg domain.ChatMessage) error {
	model := chatToModel(msg)
	return s.db.Create(&model).Error
}

// ListChatMessages returns the latest visible messages in ascending order.
func (s *GormStore) ListChatMessages(q ChatQuery) ([]domain.ChatMessage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultChatLimit
	}
	tx := s.db.Model(&ChatMessageModel{})
	if q.Admin {
		tx = tx.Where("deleted_by_admin = ?", false)
	} else {
		tx = tx.Where("deleted_by_customer = ?", false).
			Where("author = ? OR room = ?", q.Email, domain.CustomerRoom(q.Email))
	}
	var models []ChatMessageModel
	if err := tx.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	slices.Reverse(models)
	res := make([]domain.ChatMessage, 0, len(models))
	for _, m := range models {
		res = append(res, chatFromModel(m))
	}
	return res, nil
}

// HideChatRoom sets the audience soft-delete flag on every message of room.
func (s *GormStore) HideChatRoom(room string, admin bool) (int64, error) {
	column := "deleted_by_customer"
	if admin {
		column = "deleted_by_admin"
	}
	res := s.db.Model(&ChatMessageModel{}).Where("room = ?", room).Update(column, true)
	return res.RowsAffected, res.Error
}

func preloadOrder(tx *gorm.DB) *gorm.DB {
	return tx.Preload("User").Preload("Items", orderedItems)
}

func orderedItems(tx *gorm.DB) *gorm.DB {
	return tx.Order("position ASC")
}

func clientName(name string) string {
	if name == "" {
		return "Cliente"
	}
	return name
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Name:         m.Name,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
	}
}

func userRefFromModel(m UserModel) *domain.UserRef {
	if m.ID == "" {
		return nil
	}
	return &domain.UserRef{ID: m.ID, Email: m.Email, Name: m.Name, Role: domain.UserRole(m.Role)}
}

func productToModel(p domain.Product) ProductModel {
	return ProductModel{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		UserID:    p.UserID,
		CreatedAt: p.CreatedAt,
	}
}

func productFromModel(m ProductModel) domain.Product {
	p := domain.Product{
		ID:        m.ID,
		Name:      m.Name,
		Price:     m.Price,
		Stock:     m.Stock,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
	}
	if m.User.ID != "" {
		p.User = &domain.UserRef{Name: m.User.Name}
	}
	return p
}

func orderToModel(o domain.Order) OrderModel {
	model := OrderModel{
		ID:        o.ID,
		UserID:    o.UserID,
		Total:     o.Total,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	for i, item := range o.Items {
		model.Items = append(model.Items, OrderItemModel{
			ID:          item.ID,
			OrderID:     o.ID,
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity,
			Price:       item.Price,
			Position:    i,
		})
	}
	return model
}

func orderFromModel(m OrderModel) domain.Order {
	o := domain.Order{
		ID:        m.ID,
		UserID:    m.UserID,
		Total:     m.Total,
		Status:    domain.OrderStatus(m.Status),
		User:      userRefFromModel(m.User),
		Items:     make([]domain.OrderItem, 0, len(m.Items)),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	for _, item := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ID:          item.ID,
			OrderID:     item.OrderID,
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
	}
	return o
}

func clientFromModel(m ClientModel) domain.Client {
	return domain.Client{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
	}
}

func invoiceFromModel(m InvoiceModel) domain.Invoice {
	inv := domain.Invoice{
		ID:        m.ID,
		UserID:    m.UserID,
		ClientID:  m.ClientID,
		OrderID:   m.OrderID,
		Total:     m.Total,
		Status:    domain.InvoiceStatus(m.Status),
		Items:     make([]domain.InvoiceItem, 0, len(m.Items)),
		CreatedAt: m.CreatedAt,
	}
	for _, item := range m.Items {
		inv.Items = append(inv.Items, domain.InvoiceItem{
			ID:          item.ID,
			InvoiceID:   item.InvoiceID,
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
	}
	return inv
}

func chatToModel(msg domain.ChatMessage) ChatMessageModel {
	return ChatMessageModel{
		ID:                msg.ID,
		Author:            msg.Author,
		Text:              msg.Text,
		Room:              msg.Room,
		FileURL:           optional(msg.FileURL),
		FileName:          optional(msg.FileName),
		DeletedByAdmin:    msg.DeletedByAdmin,
		DeletedByCustomer: msg.DeletedByCustomer,
		CreatedAt:         msg.CreatedAt,
	}
}

func chatFromModel(m ChatMessageModel) domain.ChatMessage {
	msg := domain.ChatMessage{
		ID:                m.ID,
		Author:            m.Author,
		Text:              m.Text,
		Room:              m.Room,
		DeletedByAdmin:    m.DeletedByAdmin,
		DeletedByCustomer: m.DeletedByCustomer,
		CreatedAt:         m.CreatedAt,
	}
	if m.FileURL != nil {
		msg.FileURL = *m.FileURL
	}
	if m.FileName != nil {
		msg.FileName = *m.FileName
	}
	return msg
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
