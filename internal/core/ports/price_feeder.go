package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceFeeder returns the price of 1 LTC in a given fiat currency.
type PriceFeeder interface {
	// GetRate returns the current exchange rate for the currency, possibly
	// served from a short lived cache.
	GetRate(ctx context.Context, currency string) (decimal.Decimal, error)
	// Currencies returns the list of supported fiat currencies.
	Currencies() []string
}
