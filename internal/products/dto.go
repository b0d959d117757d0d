package product

import (
	"github.com/shopspring/decimal"

	"github.com/betadomot/storefront/internal/pricing"
)

// minorUnitExponent converts the backend's major-unit prices into minor units.
const minorUnitExponent = 2

// Product is the read-only snapshot carried by cart lines and wishlists.
type Product struct {
	ID        string   `json:"id"`
	Slug      string   `json:"slug,omitempty"`
	Name      string   `json:"name"`
	Price     int64    `json:"price"`
	SalePrice *int64   `json:"sale_price,omitempty"`
	Stock     int      `json:"stock"`
	Weight    float64  `json:"weight,omitempty"`
	Category  string   `json:"category,omitempty"`
	SKU       string   `json:"sku,omitempty"`
	Images    []string `json:"images,omitempty"`
	Active    bool     `json:"active"`
}

// EffectivePrice is the unit price a shopper pays.
func (p Product) EffectivePrice() int64 {
	return pricing.EffectivePrice(p.Price, p.SalePrice)
}

// backendProduct mirrors GET /products/{id}; prices are major units.
type backendProduct struct {
	ID        string   `json:"id"`
	Slug      string   `json:"slug"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	SalePrice *float64 `json:"sale_price,omitempty"`
	Images    []string `json:"images"`
	Category  string   `json:"category"`
	Stock     int      `json:"stock"`
	SKU       string   `json:"sku"`
	Weight    float64  `json:"weight"`
	Active    bool     `json:"active"`
}

func (b backendProduct) toProduct() Product {
	p := Product{
		ID:       b.ID,
		Slug:     b.Slug,
		Name:     b.Name,
		Price:    toMinorUnits(b.Price),
		Stock:    b.Stock,
		Weight:   b.Weight,
		Category: b.Category,
		SKU:      b.SKU,
		Images:   append([]string(nil), b.Images...),
		Active:   b.Active,
	}
	if b.SalePrice != nil {
		sale := toMinorUnits(*b.SalePrice)
		p.SalePrice = &sale
	}
	if p.Stock < 0 {
		p.Stock = 0
	}
	return p
}

func toMinorUnits(v float64) int64 {
	return decimal.NewFromFloat(v).Shift(minorUnitExponent).Round(0).IntPart()
}
