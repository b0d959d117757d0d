// Package pricing derives cart totals. All amounts are integer minor currency units.
package pricing

import (
	"github.com/betadomot/storefront/pkg/config"
	"github.com/shopspring/decimal"
)

// Line is the priced view of a cart line.
type Line struct {
	UnitPrice int64
	Quantity  int
}

// Rules are the business constants used to derive totals.
type Rules struct {
	FreeShippingThreshold int64
	FlatShippingFee       int64
	TaxRate               decimal.Decimal
	Currency              string
}

// Totals is always recomputed from the current lines and never stored.
type Totals struct {
	Subtotal int64  `json:"subtotal"`
	Shipping int64  `json:"shipping"`
	Tax      int64  `json:"tax"`
	Total    int64  `json:"total"`
	Currency string `json:"currency,omitempty"`
}

// RulesFromConfig builds Rules from the pricing section of the config.
func RulesFromConfig(cfg config.PricingConfig) (Rules, error) {
	rate, err := cfg.TaxRateDecimal()
	if err != nil {
		return Rules{}, err
	}
	return Rules{
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		FlatShippingFee:       cfg.FlatShippingFee,
		TaxRate:               rate,
		Currency:              cfg.Currency,
	}, nil
}

// Compute derives subtotal, shipping, tax and total. Shipping is waived only
// when the subtotal is strictly above the threshold. Tax rounds half away from
// zero to the minor unit.
func Compute(lines []Line, rules Rules) Totals {
	var subtotal int64
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		subtotal += l.UnitPrice * int64(l.Quantity)
	}

	shipping := rules.FlatShippingFee
	if subtotal > rules.FreeShippingThreshold {
		shipping = 0
	}

	tax := decimal.NewFromInt(subtotal).Mul(rules.TaxRate).Round(0).IntPart()

	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal + shipping + tax,
		Currency: rules.Currency,
	}
}

// EffectivePrice is the sale price when present and positive, otherwise the list price.
func EffectivePrice(price int64, salePrice *int64) int64 {
	if salePrice != nil && *salePrice > 0 {
		return *salePrice
	}
	return price
}
