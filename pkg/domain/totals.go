package domain

import "github.com/shopspring/decimal"

// ItemsTotal sums quantity*price over items, rounded to cents.
func ItemsTotal(items []OrderItem) float64 {
	sum := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum.Round(2).InexactFloat64()
}

// RoundMoney rounds an amount to cents.
func RoundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
