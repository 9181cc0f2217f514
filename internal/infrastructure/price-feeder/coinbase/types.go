package coinbasefeeder

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type spotResponse struct {
	Data struct {
		Base     string `json:"base"`
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
	} `json:"data"`
}

func (r spotResponse) rate(currency string) (decimal.Decimal, error) {
	if !strings.EqualFold(r.Data.Base, baseAsset) ||
		!strings.EqualFold(r.Data.Currency, currency) {
		return decimal.Zero, fmt.Errorf(
			"%w: got pair %s-%s", ErrBadResponse, r.Data.Base, r.Data.Currency,
		)
	}
	rate, err := decimal.NewFromString(r.Data.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrBadResponse, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: rate must be positive", ErrBadResponse)
	}
	return rate, nil
}
