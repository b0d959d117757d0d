package cart

import (
	"github.com/betadomot/storefront/internal/pricing"
	product "github.com/betadomot/storefront/internal/products"
)

// Line pairs a product snapshot with a quantity in 1..Product.Stock.
type Line struct {
	Product  product.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// Cart holds at most one line per product id, in insertion order.
type Cart struct {
	Lines []Line
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ItemCount is the sum of line quantities.
func (c Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Find returns the line for productID.
func (c Cart) Find(productID string) (Line, bool) {
	if i := c.index(productID); i >= 0 {
		return c.Lines[i], true
	}
	return Line{}, false
}

// PricingLines prices each line at its effective unit price.
func (c Cart) PricingLines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, pricing.Line{UnitPrice: l.Product.EffectivePrice(), Quantity: l.Quantity})
	}
	return lines
}

// Totals recomputes the derived totals for the cart.
func (c Cart) Totals(rules pricing.Rules) pricing.Totals {
	return pricing.Compute(c.PricingLines(), rules)
}

func (c Cart) index(productID string) int {
	for i, l := range c.Lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (c Cart) clone() Cart {
	lines := make([]Line, len(c.Lines))
	copy(lines, c.Lines)
	return Cart{Lines: lines}
}
