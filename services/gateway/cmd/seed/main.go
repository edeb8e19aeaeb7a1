// Command seed fills the catalog with starter products owned by the first
// administrator.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bizdesk/internal/util"
	"bizdesk/pkg/auth"
	"bizdesk/pkg/store"
	"bizdesk/services/gateway/internal/app"
	"bizdesk/services/gateway/internal/config"
)

type seedProduct struct {
	Name  string  `yaml:"name"`
	Price float64 `yaml:"price"`
	Stock int     `yaml:"stock"`
}

var defaultProducts = []seedProduct{
	{Name: `Laptop Gamer Pro 15"`, Price: 1200, Stock: 5},
	{Name: "Mouse Inalámbrico", Price: 25, Stock: 50},
	{Name: `Monitor 4K 27"`, Price: 450, Stock: 8},
	{Name: "Teclado Mecánico", Price: 80, Stock: 15},
	{Name: "Silla Ergonómica", Price: 250, Stock: 10},
	{Name: "Auriculares Noise Cancel", Price: 120, Stock: 20},
	{Name: "Webcam HD 1080p", Price: 60, Stock: 25},
	{Name: "Disco SSD 1TB", Price: 90, Stock: 30},
	{Name: "Memoria RAM 16GB", Price: 75, Stock: 40},
	{Name: "Router Wi-Fi 6", Price: 110, Stock: 12},
}

func main() {
	file := flag.String("products", "", "YAML list of {name, price, stock}; defaults to the built-in catalog")
	flag.Parse()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		exitErr(fmt.Errorf("load config: %w", err))
	}
	logger := util.InitLogger(cfg.LogLevel)

	products := defaultProducts
	if *file != "" {
		if products, err = loadProducts(*file); err != nil {
			exitErr(err)
		}
	}

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		exitErr(fmt.Errorf("open database: %w", err))
	}
	defer st.Close()
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, 0, nil)
	if err != nil {
		exitErr(err)
	}
	core, err := app.New(app.Config{Store: st, Tokens: tokens})
	if err != nil {
		exitErr(err)
	}

	inputs := make([]app.ProductInput, 0, len(products))
	for _, p := range products {
		inputs = append(inputs, app.ProductInput{Name: p.Name, Price: p.Price, Stock: p.Stock})
	}
	n, err := core.SeedProducts(inputs)
	if errors.Is(err, app.ErrNoAdmin) {
		exitErr(errors.New("no admin user yet: register the first account before seeding"))
	}
	if err != nil {
		exitErr(err)
	}
	logger.Info("catalog seeded", "products", n)
}

func loadProducts(path string) ([]seedProduct, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var products []seedProduct
	if err := yaml.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%s: no products", path)
	}
	return products, nil
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "seed: %v\n", err)
	os.Exit(1)
}
