package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Rating      float64         `json:"rating"`
	Reviews     int             `json:"reviews"`
	Stock       int             `json:"stock"`
	Features    []string        `json:"features"`
}
