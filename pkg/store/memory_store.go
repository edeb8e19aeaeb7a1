package store

import (
	"slices"
	"sort"
	"sync"
	"time"

	"bizdesk/internal/util"
	"bizdesk/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and local runs
// without Postgres; a single mutex makes each operation atomic.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User // key: user ID
	email    map[string]string      // email -> user ID
	products map[string]domain.Product
	orders   map[string]domain.Order
	clients  []domain.Client
	invoices []domain.Invoice
	messages []domain.ChatMessage
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		email:    make(map[string]string),
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
	}
}

func (m *MemoryStore) CreateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.email[u.Email]; ok {
		return ErrDuplicate
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) RegisterUser(u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.email[u.Email]; ok {
		return domain.User{}, ErrDuplicate
	}
	u.Role = domain.RoleUser
	if len(m.users) == 0 {
		u.Role = domain.RoleAdmin
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return u, nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetFirstAdmin() (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var first domain.User
	found := false
	for _, u := range m.users {
		if u.Role != domain.RoleAdmin {
			continue
		}
		if !found || u.CreatedAt.Before(first.CreatedAt) {
			first, found = u, true
		}
	}
	return first, found, nil
}

func (m *MemoryStore) SaveProduct(p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.User = nil
	m.products[p.ID] = p
	return nil
}

func (m *MemoryStore) ListProducts() ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		if owner, ok := m.users[p.UserID]; ok {
			p.User = &domain.UserRef{Name: owner.Name}
		}
		res = append(res, p)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) FindProductsByName(name string) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Product
	for _, p := range m.products {
		if p.Name == name {
			res = append(res, p)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) DeleteProduct(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return false, nil
	}
	delete(m.products, id)
	return true, nil
}

func (m *MemoryStore) CreateOrder(o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.User = nil
	o.Items = slices.Clone(o.Items)
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MemoryStore) GetOrder(id string) (domain.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, false, nil
	}
	return m.withOwner(o), true, nil
}

func (m *MemoryStore) ListOrders() ([]domain.Order, error) {
	return m.listOrders(func(domain.Order) bool { return true }), nil
}

func (m *MemoryStore) ListOrdersByUser(userID string) ([]domain.Order, error) {
	return m.listOrders(func(o domain.Order) bool { return o.UserID == userID }), nil
}

func (m *MemoryStore) listOrders(keep func(domain.Order) bool) []domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if keep(o) {
			res = append(res, m.withOwner(o))
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res
}

func (m *MemoryStore) SetOrderStatus(id string, status domain.OrderStatus, now time.Time) (domain.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, false, nil
	}
	o.Status = status
	o.UpdatedAt = now
	m.orders[id] = o
	return m.withOwner(o), true, nil
}

func (m *MemoryStore) ApproveOrder(id, approverID string, now time.Time) (domain.Approval, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Approval{}, false, nil
	}
	o.Status = domain.OrderApproved
	o.UpdatedAt = now
	m.orders[id] = o

	approval := domain.Approval{Order: m.withOwner(o)}
	for _, inv := range m.invoices {
		if inv.OrderID == id {
			return approval, true, nil
		}
	}

	owner := m.users[o.UserID]
	client, found := domain.Client{}, false
	for _, c := range m.clients {
		if c.Email == owner.Email {
			client, found = c, true
			break
		}
	}
	if !found {
		client = domain.Client{
			ID:        util.NewID(),
			Name:      clientName(owner.Name),
			Email:     owner.Email,
			UserID:    approverID,
			CreatedAt: now,
		}
		m.clients = append(m.clients, client)
	}
	invoice := domain.Invoice{
		ID:        util.NewID(),
		UserID:    approverID,
		ClientID:  client.ID,
		OrderID:   o.ID,
		Total:     o.Total,
		Status:    domain.InvoicePending,
		Items:     make([]domain.InvoiceItem, 0, len(o.Items)),
		CreatedAt: now,
	}
	for _, item := range o.Items {
		invoice.Items = append(invoice.Items, domain.InvoiceItem{
			ID:          util.NewID(),
			InvoiceID:   invoice.ID,
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
		m.decrementStock(item)
	}
	m.invoices = append(m.invoices, invoice)

	inv := invoice
	inv.Client = &client
	approval.Invoice = &inv
	approval.Client = &client
	approval.Applied = true
	return approval, true, nil
}

// decrementStock mirrors GormStore: by id when linked, by exact name otherwise.
// Callers hold m.mu.
func (m *MemoryStore) decrementStock(item domain.OrderItem) {
	if item.ProductID != "" {
		if p, ok := m.products[item.ProductID]; ok {
			p.Stock -= item.Quantity
			m.products[p.ID] = p
		}
		return
	}
	for id, p := range m.products {
		if p.Name == item.Description {
			p.Stock -= item.Quantity
			m.products[id] = p
		}
	}
}

func (m *MemoryStore) ListClientsByUser(userID string) ([]domain.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Client, 0)
	for _, c := range m.clients {
		if c.UserID == userID {
			res = append(res, c)
		}
	}
	return res, nil
}

func (m *MemoryStore) ListInvoicesByUser(userID string) ([]domain.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Invoice, 0)
	for i := len(m.invoices) - 1; i >= 0; i-- {
		inv := m.invoices[i]
		if inv.UserID != userID {
			continue
		}
		for _, c := range m.clients {
			if c.ID == inv.ClientID {
				c := c
				inv.Client = &c
				break
			}
		}
		res = append(res, inv)
	}
	return res, nil
}

func (m *MemoryStore) SaveChatMessage(msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MemoryStore) ListChatMessages(q ChatQuery) ([]domain.ChatMessage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultChatLimit
	}
	room := domain.CustomerRoom(q.Email)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.ChatMessage
	for i := len(m.messages) - 1; i >= 0 && len(res) < limit; i-- {
		msg := m.messages[i]
		if q.Admin {
			if msg.DeletedByAdmin {
				continue
			}
		} else if msg.DeletedByCustomer || (msg.Author != q.Email && msg.Room != room) {
			continue
		}
		res = append(res, msg)
	}
	slices.Reverse(res)
	return res, nil
}

func (m *MemoryStore) HideChatRoom(room string, admin bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.messages {
		if m.messages[i].Room != room {
			continue
		}
		if admin {
			m.messages[i].DeletedByAdmin = true
		} else {
			m.messages[i].DeletedByCustomer = true
		}
		n++
	}
	return n, nil
}

// ProductStock returns the current stock of a product; used by tests and tooling.
func (m *MemoryStore) ProductStock(id string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	return p.Stock, ok
}

func (m *MemoryStore) withOwner(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	if owner, ok := m.users[o.UserID]; ok {
		o.User = &domain.UserRef{ID: owner.ID, Email: owner.Email, Name: owner.Name, Role: owner.Role}
	}
	return o
}
