package orders

import (
	"time"

	"github.com/betadomot/storefront/internal/cart"
	"github.com/betadomot/storefront/internal/pricing"
)

// Contact identifies the shopper placing the order.
type Contact struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// Address is a postal address.
type Address struct {
	Address    string `json:"address"`
	Apartment  string `json:"apartment,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Payment carries the chosen method. Card details never leave the service
// beyond the last four digits.
type Payment struct {
	Method         string `json:"method"`
	CardLast4      string `json:"card_last4,omitempty"`
	CardholderName string `json:"cardholder_name,omitempty"`
}

// Request is the order handed to a Submitter.
type Request struct {
	IdempotencyKey string         `json:"idempotency_key"`
	Customer       Contact        `json:"customer"`
	Shipping       Address        `json:"shipping_address"`
	Billing        Address        `json:"billing_address"`
	Payment        Payment        `json:"payment"`
	Newsletter     bool           `json:"newsletter"`
	SaveInfo       bool           `json:"save_info"`
	Lines          []cart.Line    `json:"lines"`
	Totals         pricing.Totals `json:"totals"`
}

// Confirmation is what the shopper sees after a successful submission.
type Confirmation struct {
	OrderID           string    `json:"order_id"`
	OrderNumber       string    `json:"order_number"`
	Email             string    `json:"email"`
	Total             int64     `json:"total"`
	PlacedAt          time.Time `json:"placed_at"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
}
