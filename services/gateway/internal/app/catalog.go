package app

import (
	"fmt"
	"strings"

	"bizdesk/internal/util"
	"bizdesk/pkg/domain"
)

// ProductInput is the payload of a product creation.
type ProductInput struct {
	Name  string
	Price float64
	Stock int
}

// ListProducts returns the catalog, newest first, with owner names.
func (a *App) ListProducts() ([]domain.Product, error) {
	return a.store.ListProducts()
}

// CreateProduct adds a product owned by the caller.
func (a *App) CreateProduct(p Principal, in ProductInput) (domain.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	product := domain.Product{
		ID:        util.NewID(),
		Name:      name,
		Price:     domain.RoundMoney(in.Price),
		Stock:     in.Stock,
		UserID:    p.UserID,
		CreatedAt: a.clock(),
	}
	if err := a.store.SaveProduct(product); err != nil {
		return domain.Product{}, fmt.Errorf("save product: %w", err)
	}
	return product, nil
}

// DeleteProduct removes a product. Any authenticated caller may delete any product.
func (a *App) DeleteProduct(id string) error {
	ok, err := a.store.DeleteProduct(strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if !ok {
		return ErrProductNotFound
	}
	return nil
}

// SeedProducts inserts products owned by the first administrator and returns
// how many were written.
func (a *App) SeedProducts(seeds []ProductInput) (int, error) {
	admin, ok, err := a.store.GetFirstAdmin()
	if err != nil {
		return 0, fmt.Errorf("find admin: %w", err)
	}
	if !ok {
		return 0, ErrNoAdmin
	}
	owner := Principal{UserID: admin.ID, Role: admin.Role}
	n := 0
	for _, s := range seeds {
		if _, err := a.CreateProduct(owner, s); err != nil {
			return n, fmt.Errorf("seed %q: %w", s.Name, err)
		}
		n++
	}
	return n, nil
}
