package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"bizdesk/pkg/domain"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// testStores runs fn against every Store implementation.
func testStores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("gorm", func(t *testing.T) { fn(t, newTestGormStore(t)) })
}

func seedUser(t *testing.T, s Store, id, email, name string, role domain.UserRole, at time.Time) domain.User {
	t.Helper()
	u := domain.User{ID: id, Email: email, PasswordHash: "hash", Name: name, Role: role, CreatedAt: at}
	if err := s.CreateUser(u); err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func seedOrder(t *testing.T, s Store, id, userID string, items []domain.OrderItem) domain.Order {
	t.Helper()
	o := domain.Order{
		ID:        id,
		UserID:    userID,
		Total:     domain.ItemsTotal(items),
		Status:    domain.OrderPending,
		Items:     items,
		CreatedAt: base,
		UpdatedAt: base,
	}
	if err := s.CreateOrder(o); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func stockOf(t *testing.T, s Store, productID string) int {
	t.Helper()
	products, err := s.ListProducts()
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	for _, p := range products {
		if p.ID == productID {
			return p.Stock
		}
	}
	t.Fatalf("product %s not found", productID)
	return 0
}

func TestStoreUsers(t *testing.T) {
	testStores(t, func(t *testing.T, s Store) {
		seedUser(t, s, "u1", "ana@example.com", "Ana", domain.RoleAdmin, base)
		seedUser(t, s, "u2", "bob@example.com", "Bob", domain.RoleUser, base.Add(time.Minute))

		err := s.CreateUser(domain.User{ID: "u3", Email: "ana@example.com", Name: "Other", Role: domain.RoleUser})
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}

		exists, err := s.HasUserEmail("bob@example.com")
		if err != nil || !exists {
			t.Fatalf("expected bob to exist: %v", err)
		}
		u, ok, err := s.GetUserByEmail("ana@example.com")
		if err != nil || !ok || u.ID != "u1" || u.PasswordHash != "hash" {
			t.Fatalf("get by email = %+v %v %v", u, ok, err)
		}
		if _, ok, _ := s.GetUserByID("missing"); ok {
			t.Fatalf("expected missing user")
		}
		admin, ok, err := s.GetFirstAdmin()
		if err != nil || !ok || admin.Email != "ana@example.com" {
			t.Fatalf("first admin = %+v %v %v", admin, ok, err)
		}
	})
}

func TestStoreRegisterUserPromotesOnlyFirst(t *testing.T) {
	testStores(t, func(t *testing.T, s Store) {
		first, err := s.RegisterUser(domain.User{ID: "u1", Email: "ana@example.com", PasswordHash: "hash", Role: domain.RoleUser, CreatedAt: base})
		if err != nil || first.Role != domain.RoleAdmin {
			t.Fatalf("first = %+v, %v", first, err)
		}
		second, err := s.RegisterUser(domain.User{ID: "u2", Email: "bob@example.com", PasswordHash: "hash", Role: domain.RoleAdmin, CreatedAt: base})
		if err != nil || second.Role != domain.RoleUser {
			t.Fatalf("second = %+v, %v", second, err)
		}
		if _, err := s.RegisterUser(domain.User{ID: "u3", Email: "ana@example.com", PasswordHash: "hash", CreatedAt: base}); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
		stored, ok, err := s.GetUserByID("u2")
		if err != nil || !ok || stored.Role != domain.RoleUser {
			t.Fatalf("stored = %+v %v %v", stored, ok, err)
		}
	})
}

func TestStoreProducts(t *testing.T) {
	testStores(t, func(t *testing.T, s Store) {
		seedUser(t, s, "u1", "ana@example.com", "Ana", domain.RoleAdmin, base)
		for i, name := range []string{"Laptop", "Mouse", "Laptop"} {
			p := domain.Product{
				ID:        fmt.Sprintf("p%d", i+1),
				Name:      name,
				Price:     10.5,
				Stock:     3,
				UserID:    "u1",
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			if err := s.SaveProduct(p); err != nil {
				t.Fatalf("save product: %v", err)
			}
		}

		products, err := s.ListProducts()
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(products) != 3 || products[0].ID != "p3" {
			t.Fatalf("expected newest first, got %+v", products)
		}
		if products[0].User == nil || products[0].User.Name != "Ana" {
			t.Fatalf("expected owner name, got %+v", products[0].User)
		}

		matches, err := s.FindProductsByName("Laptop")
		if err != nil || len(matches) != 2 {
			t.Fatalf("find by name = %d, %v", len(matches), err)
		}

		ok, err := s.DeleteProduct("p2")
		if err != nil || !ok {
			t.Fatalf("delete = %v, %v", ok, err)
		}
		ok, err = s.DeleteProduct("p2")
		if err != nil || ok {
			t.Fatalf("second delete = %v, %v", ok, err)
		}
	})
}

func TestStoreOrdersScopedByUser(t *testing.T) {
	testStores(t, func(t *testing.T, s Store) {
		seedUser(t, s, "u1", "ana@example.com", "Ana", domain.RoleAdmin, base)
		seedUser(t, s, "u2", "bob@example.com", "Bob", domain.RoleUser, base)
		seedOrder(t, s, "o1", "u2", []domain.OrderItem{
			{ID: "i1", Description: "A", Quantity: 2, Price: 1.25},
			{ID: "i2", Description: "B", Quantity: 1, Price: 3},
		})

		all, err := s.ListOrders()
		if err != nil || len(all) != 1 {
			t.Fatalf("list all = %d, %v", len(all), err)
		}
		mine, err := s.ListOrdersByUser("u1")
		if err != nil || len(mine) != 0 {
			t.Fatalf("admin own orders = %d, %v", len(mine), err)
		}
		got, ok, err := s.GetOrder("o1")
		if err != nil || !ok {
			t.Fatalf("get order: %v %v", ok, err)
		}
		if got.Total != 5.5 || len(got.Items) != 2 || got.Items[0].Description != "A" {
			t.Fatalf("unexpected order %+v", got)
		}
		if got.User == nil || got.User.Email != "bob@example.com" {
			t.Fatalf("expected owner, got %+v", got.User)
		}

		updated, ok, err := s.SetOrderStatus("o1", domain.OrderRejected, base.Add(time.Hour))
		if err != nil || !ok || updated.Status != domain.OrderRejected {
			t.Fatalf("set status = %+v %v %v", updated, ok, err)
		}
		if _, ok, _ := s.SetOrderStatus("nope", domain.OrderRejected, base); ok {
			t.Fatalf("expected missing order")
		}
	})
}

func TestStoreApproveOrderOnce(t *testing.T) {
	testStores(t, func(t *testing.T, s Store) {
		seedUser(t, s, "admin", "ana@example.com", "Ana", domain.RoleAdmin, base)
		seedUser(t, s, "cust", "bob@example.com", "Bob", domain.RoleUser, base)
		if err := s.SaveProduct(domain.Product{ID: "p1", Name: "Laptop", Price: 100, Stock: 5, UserID: "admin", CreatedAt: base}); err != nil {
			t.Fatalf("save product: %v", err)
		}
		seedOrder(t, s, "o1", "cust", []domain.OrderItem{
			{ID: "i1", ProductID: "p1", Description: "Laptop", Quantity: 2, Price: 100},
			{ID: "i2", Description: "Cable", Quantity: 1, Price: 5},
		})

		approval, ok, err := s.ApproveOrder("o1", "admin", base.Add(time.Hour))
		if err != nil || !ok {
			t.Fatalf("approve: %v %v", ok, err)
		}
		if !approval.Applied || approval.Invoice == nil || approval.Client == nil {
			t.Fatalf("expected effects applied, got %+v", approval)
		}
		if approval.Order.Status != domain.OrderApproved {
			t.Fatalf("status = %s", approval.Order.Status)
		}
		if approval.Invoice.Total != 205 || len(approval.Invoice.Items) != 2 || approval.Invoice.Status != domain.InvoicePending {
			t.Fatalf("unexpected invoice %+v", approval.Invoice)
		}
		if approval.Client.Email != "bob@example.com" || approval.Client.Name != "Bob" || approval.Client.UserID != "admin" {
			t.Fatalf("unexpected client %+v", approval.Client)
		}
		if got := stockOf(t, s, "p1"); got != 3 {
			t.Fatalf("stock = %d, want 3", got)
		}

		again, ok, err := s.ApproveOrder("o1", "admin", base.Add(2*time.Hour))
		if err != nil || !ok {
			t.Fatalf("re-approve: %v %v", ok, err)
		}
		if again.Applied {
			t.Fatalf("re-approval must not apply effects")
		}
		if got := stockOf(t, s, "p1"); got != 3 {
			t.Fatalf("stock after re-approve = %d, want 3", got)
		}
		invoices, err := s.ListInvoicesByUser("admin")
		if err != nil || len(invoices) != 1 {
			t.Fatalf("invoices = %d, %v", len(invoices), err)
		}
		if invoices[0].Client == nil || invoices[0].Client.Email != "bob@example.com" {
			t.Fatalf("invoice client = %+v", invoices[0].Client)
		}
		clients, err := s.ListClientsByUser("admin")
		if err != nil || len(clients) != 1 {
			t.Fatalf("clients = %d, %v", len(clients), err)
		}

		if _, ok, err := s.ApproveOrder("missing", "admin", base); err != nil || ok {
			t.Fatalf("approve missing = %v %v", ok, err)
		}
	})
}

func TestStoreApproveDecrementsSameNamedProducts(t *testing.T) {
	testStores(t, func(t *testing.T, s Store) {
		seedUser(t, s, "admin", "ana@example.com", "Ana", domain.RoleAdmin, base)
		seedUser(t, s, "seller", "sol@example.com", "Sol", domain.RoleUser, base)
		seedUser(t, s, "cust", "bob@example.com", "Bob", domain.RoleUser, base)
		for _, p := range []domain.Product{
			{ID: "p1", Name: "Mouse", Price: 25, Stock: 10, UserID: "admin", CreatedAt: base},
			{ID: "p2", Name: "Mouse", Price: 20, Stock: 10, UserID: "seller", CreatedAt: base},
			{ID: "p3", Name: "Mouse Pad", Price: 5, Stock: 10, UserID: "admin", CreatedAt: base},
		} {
			if err := s.SaveProduct(p); err != nil {
				t.Fatalf("save product %s: %v", p.ID, err)
			}
		}
		seedOrder(t, s, "o1", "cust", []domain.OrderItem{{ID: "i1", Description: "Mouse", Quantity: 2, Price: 25}})

		if _, _, err := s.ApproveOrder("o1", "admin", base.Add(time.Hour)); err != nil {
			t.Fatalf("approve: %v", err)
		}
		if p1, p2, p3 := stockOf(t, s, "p1"), stockOf(t, s, "p2"), stockOf(t, s, "p3"); p1 != 8 || p2 != 8 || p3 != 10 {
			t.Fatalf("stock = %d/%d/%d, want 8/8/10", p1, p2, p3)
		}
		if _, _, err := s.ApproveOrder("o1", "admin", base.Add(2*time.Hour)); err != nil {
			t.Fatalf("re-approve: %v", err)
		}
		if p1, p2 := stockOf(t, s, "p1"), stockOf(t, s, "p2"); p1 != 8 || p2 != 8 {
			t.Fatalf("stock after re-approve = %d/%d, want 8/8", p1, p2)
		}
	})
}

func TestStoreApproveReusesClient(t *testing.T) {
	testStores(t, func(t *testing.T, s Store) {
		seedUser(t, s, "admin", "ana@example.com", "Ana", domain.RoleAdmin, base)
		seedUser(t, s, "cust", "bob@example.com", "", domain.RoleUser, base)
		seedOrder(t, s, "o1", "cust", []domain.OrderItem{{ID: "i1", Description: "A", Quantity: 1, Price: 1}})
		seedOrder(t, s, "o2", "cust", []domain.OrderItem{{ID: "i2", Description: "B", Quantity: 1, Price: 2}})

		first, _, err := s.ApproveOrder("o1", "admin", base.Add(time.Minute))
		if err != nil {
			t.Fatalf("approve o1: %v", err)
		}
		if first.Client.Name != "Cliente" {
			t.Fatalf("expected fallback client name, got %q", first.Client.Name)
		}
		second, _, err := s.ApproveOrder("o2", "admin", base.Add(2*time.Minute))
		if err != nil {
			t.Fatalf("approve o2: %v", err)
		}
		if second.Client.ID != first.Client.ID {
			t.Fatalf("expected client reuse: %s != %s", second.Client.ID, first.Client.ID)
		}
		invoices, _ := s.ListInvoicesByUser("admin")
		if len(invoices) != 2 || invoices[0].OrderID != "o2" {
			t.Fatalf("expected two invoices newest first, got %+v", invoices)
		}
	})
}

func TestStoreChatHistory(t *testing.T) {
	testStores(t, func(t *testing.T, s Store) {
		msgs := []domain.ChatMessage{
			{ID: "m1", Author: "bob@example.com", Text: "hola", Room: domain.CustomerRoom("bob@example.com")},
			{ID: "m2", Author: "ana@example.com", Text: "hi bob", Room: domain.CustomerRoom("bob@example.com")},
			{ID: "m3", Author: "carl@example.com", Text: "hey", Room: domain.CustomerRoom("carl@example.com")},
			{ID: "m4", Author: "bob@example.com", Text: "general", Room: domain.DefaultRoom, FileURL: "http://f", FileName: "f.pdf"},
		}
		for i, m := range msgs {
			m.CreatedAt = base.Add(time.Duration(i) * time.Second)
			if err := s.SaveChatMessage(m); err != nil {
				t.Fatalf("save message: %v", err)
			}
		}

		bob, err := s.ListChatMessages(ChatQuery{Email: "bob@example.com"})
		if err != nil {
			t.Fatalf("bob history: %v", err)
		}
		if ids := messageIDs(bob); ids != "m1,m2,m4" {
			t.Fatalf("bob history = %s", ids)
		}
		if bob[2].FileName != "f.pdf" {
			t.Fatalf("expected attachment, got %+v", bob[2])
		}

		admin, err := s.ListChatMessages(ChatQuery{Admin: true, Limit: 2})
		if err != nil {
			t.Fatalf("admin history: %v", err)
		}
		if ids := messageIDs(admin); ids != "m3,m4" {
			t.Fatalf("admin latest two = %s", ids)
		}

		n, err := s.HideChatRoom(domain.CustomerRoom("bob@example.com"), false)
		if err != nil || n != 2 {
			t.Fatalf("hide = %d, %v", n, err)
		}
		bob, _ = s.ListChatMessages(ChatQuery{Email: "bob@example.com"})
		if ids := messageIDs(bob); ids != "m4" {
			t.Fatalf("bob history after hide = %s", ids)
		}
		admin, _ = s.ListChatMessages(ChatQuery{Admin: true})
		if len(admin) != 4 {
			t.Fatalf("admin view must be unaffected, got %d", len(admin))
		}

		if _, err := s.HideChatRoom(domain.CustomerRoom("carl@example.com"), true); err != nil {
			t.Fatalf("admin hide: %v", err)
		}
		admin, _ = s.ListChatMessages(ChatQuery{Admin: true})
		if ids := messageIDs(admin); ids != "m1,m2,m4" {
			t.Fatalf("admin history after hide = %s", ids)
		}
	})
}

func messageIDs(msgs []domain.ChatMessage) string {
	out := ""
	for i, m := range msgs {
		if i > 0 {
			out += ","
		}
		out += m.ID
	}
	return out
}
