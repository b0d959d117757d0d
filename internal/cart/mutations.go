package cart

import (
	product "github.com/betadomot/storefront/internal/products"
)

// AddOrIncrement adds quantity of p, merging into an existing line. The
// resulting quantity is clamped to 1..p.Stock and the line's snapshot is
// refreshed to p. A product with no stock leaves the cart unchanged.
func AddOrIncrement(c Cart, p product.Product, quantity int) Cart {
	if p.Stock < 1 {
		return c
	}
	if quantity < 1 {
		quantity = 1
	}

	next := c.clone()
	if i := next.index(p.ID); i >= 0 {
		next.Lines[i] = Line{Product: p, Quantity: clamp(next.Lines[i].Quantity+quantity, p.Stock)}
		return next
	}
	next.Lines = append(next.Lines, Line{Product: p, Quantity: clamp(quantity, p.Stock)})
	return next
}

// UpdateQuantity sets the line's quantity to min(quantity, stock). Quantities
// below one and unknown ids leave the cart unchanged.
func UpdateQuantity(c Cart, productID string, quantity int) Cart {
	if quantity < 1 {
		return c
	}
	i := c.index(productID)
	if i < 0 {
		return c
	}
	next := c.clone()
	next.Lines[i].Quantity = clamp(quantity, next.Lines[i].Product.Stock)
	return next
}

// Remove drops the line for productID if present.
func Remove(c Cart, productID string) Cart {
	lines := make([]Line, 0, len(c.Lines))
	for _, l := range c.Lines {
		if l.Product.ID != productID {
			lines = append(lines, l)
		}
	}
	return Cart{Lines: lines}
}

func Clear() Cart {
	return Cart{Lines: []Line{}}
}

func clamp(quantity, stock int) int {
	if quantity > stock {
		quantity = stock
	}
	if quantity < 1 {
		quantity = 1
	}
	return quantity
}
