package domain

import "github.com/shopspring/decimal"

type ProductVariant struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
}

type StockAdjustment struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}
