package wishlist

import (
	product "github.com/betadomot/storefront/internal/products"
)

// Add appends p unless an item with the same id is already saved.
func Add(items []product.Product, p product.Product) ([]product.Product, bool) {
	if Contains(items, p.ID) {
		return items, false
	}
	next := make([]product.Product, 0, len(items)+1)
	next = append(next, items...)
	return append(next, p), true
}

// Remove drops the item with the given id.
func Remove(items []product.Product, productID string) ([]product.Product, bool) {
	next := make([]product.Product, 0, len(items))
	for _, item := range items {
		if item.ID != productID {
			next = append(next, item)
		}
	}
	return next, len(next) != len(items)
}

func Contains(items []product.Product, productID string) bool {
	for _, item := range items {
		if item.ID == productID {
			return true
		}
	}
	return false
}
