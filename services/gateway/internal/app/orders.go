package app

import (
	"context"
	"fmt"
	"strings"

	"bizdesk/internal/util"
	"bizdesk/pkg/domain"
	"bizdesk/pkg/events"
)

// OrderItemInput is one requested line. ProductID is optional.
type OrderItemInput struct {
	ProductID   string
	Description string
	Quantity    int
	Price       float64
}

// OrderInput is the payload of an order creation. A zero Total is computed from the items.
type OrderInput struct {
	Items []OrderItemInput
	Total float64
}

type orderSummary struct {
	OrderID string  `json:"orderId"`
	UserID  string  `json:"userId"`
	Total   float64 `json:"total"`
	Items   int     `json:"items"`
}

type approvalSummary struct {
	OrderID    string  `json:"orderId"`
	InvoiceID  string  `json:"invoiceId"`
	ClientID   string  `json:"clientId"`
	ApprovedBy string  `json:"approvedBy"`
	Total      float64 `json:"total"`
}

// CreateOrder persists an order with its items and alerts the admin room.
func (a *App) CreateOrder(ctx context.Context, p Principal, in OrderInput) (domain.Order, error) {
	if len(in.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one item required", ErrInvalidInput)
	}
	if in.Total < 0 {
		return domain.Order{}, fmt.Errorf("%w: total must not be negative", ErrInvalidInput)
	}
	now := a.clock()
	order := domain.Order{
		ID:        util.NewID(),
		UserID:    p.UserID,
		Status:    domain.OrderPending,
		Items:     make([]domain.OrderItem, 0, len(in.Items)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	checked := map[string][]domain.Product{}
	for i, item := range in.Items {
		desc := strings.TrimSpace(item.Description)
		switch {
		case desc == "":
			return domain.Order{}, fmt.Errorf("%w: item %d: description required", ErrInvalidInput, i+1)
		case item.Quantity <= 0:
			return domain.Order{}, fmt.Errorf("%w: item %d: quantity must be positive", ErrInvalidInput, i+1)
		case item.Price < 0:
			return domain.Order{}, fmt.Errorf("%w: item %d: price must not be negative", ErrInvalidInput, i+1)
		}
		productID := strings.TrimSpace(item.ProductID)
		if productID != "" {
			known, err := a.productNamed(productID, desc, checked)
			if err != nil {
				return domain.Order{}, err
			}
			if !known {
				return domain.Order{}, fmt.Errorf("%w: item %d: unknown product %q", ErrInvalidInput, i+1, productID)
			}
		}
		order.Items = append(order.Items, domain.OrderItem{
			ID:          util.NewID(),
			OrderID:     order.ID,
			ProductID:   productID,
			Description: desc,
			Quantity:    item.Quantity,
			Price:       domain.RoundMoney(item.Price),
		})
	}
	order.Total = domain.RoundMoney(in.Total)
	if order.Total == 0 {
		order.Total = domain.ItemsTotal(order.Items)
	}

	if err := a.store.CreateOrder(order); err != nil {
		return domain.Order{}, fmt.Errorf("save order: %w", err)
	}
	summary := orderSummary{OrderID: order.ID, UserID: order.UserID, Total: order.Total, Items: len(order.Items)}
	a.notifier.Emit(domain.AdminRoom, EventNewOrder, summary)
	a.publish(ctx, events.OrderCreated, summary)
	return order, nil
}

// productNamed reports whether id is an existing product named desc.
func (a *App) productNamed(id, desc string, cache map[string][]domain.Product) (bool, error) {
	matches, ok := cache[desc]
	if !ok {
		var err error
		if matches, err = a.store.FindProductsByName(desc); err != nil {
			return false, fmt.Errorf("resolve product: %w", err)
		}
		cache[desc] = matches
	}
	for _, p := range matches {
		if p.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// ListOrders returns every order for admins and the caller's own otherwise.
func (a *App) ListOrders(p Principal) ([]domain.Order, error) {
	if p.IsAdmin() {
		return a.store.ListOrders()
	}
	return a.store.ListOrdersByUser(p.UserID)
}

// UpdateOrderStatus changes an order's status. Approval also bills the order
// once: client lookup-or-create, invoice and stock decrement happen in one
// transaction keyed by the order id.
func (a *App) UpdateOrderStatus(ctx context.Context, p Principal, id, status string) (domain.Order, error) {
	next := domain.OrderStatus(strings.TrimSpace(status))
	if !next.Valid() {
		return domain.Order{}, ErrInvalidStatus
	}
	id = strings.TrimSpace(id)
	if next != domain.OrderApproved {
		order, ok, err := a.store.SetOrderStatus(id, next, a.clock())
		if err != nil {
			return domain.Order{}, fmt.Errorf("set order status: %w", err)
		}
		if !ok {
			return domain.Order{}, ErrOrderNotFound
		}
		return order, nil
	}

	approval, ok, err := a.store.ApproveOrder(id, p.UserID, a.clock())
	if err != nil {
		return domain.Order{}, fmt.Errorf("approve order: %w", err)
	}
	if !ok {
		return domain.Order{}, ErrOrderNotFound
	}
	logger := util.LoggerFromContext(ctx)
	if !approval.Applied {
		logger.Info("order already billed", "order_id", id)
		return approval.Order, nil
	}
	logger.Info("order approved",
		"order_id", id,
		"invoice_id", approval.Invoice.ID,
		"client_id", approval.Client.ID,
		"approved_by", p.UserID,
	)
	a.publish(ctx, events.OrderApproved, approvalSummary{
		OrderID:    id,
		InvoiceID:  approval.Invoice.ID,
		ClientID:   approval.Client.ID,
		ApprovedBy: p.UserID,
		Total:      approval.Invoice.Total,
	})
	return approval.Order, nil
}
