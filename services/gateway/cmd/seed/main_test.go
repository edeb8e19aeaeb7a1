package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadProducts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.yaml")
	body := "- name: Mouse\n  price: 25.5\n  stock: 3\n- name: Teclado\n  price: 80\n  stock: 1\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	products, err := loadProducts(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(products) != 2 || products[0].Price != 25.5 || products[1].Stock != 1 {
		t.Fatalf("products = %+v", products)
	}

	empty := filepath.Join(dir, "empty.yaml")
	_ = os.WriteFile(empty, []byte("[]\n"), 0o600)
	if _, err := loadProducts(empty); err == nil {
		t.Fatalf("expected error for empty list")
	}
}

func TestDefaultCatalogHasTenProducts(t *testing.T) {
	if len(defaultProducts) != 10 {
		t.Fatalf("default catalog = %d products", len(defaultProducts))
	}
}
