package escrow

import (
	"errors"
	"fmt"

	"github.com/tdex-network/escrowd/internal/core/domain"
)

var (
	// ErrUnsupportedCurrency ...
	ErrUnsupportedCurrency = fmt.Errorf("%w: unsupported fiat currency", domain.ErrValidation)
	// ErrPriceUnavailable is returned when the exchange rate can't be
	// fetched. The amount can be submitted again later.
	ErrPriceUnavailable = errors.New("exchange rate is unavailable, try again later")
	// ErrServiceStopped ...
	ErrServiceStopped = errors.New("escrow service is stopped")
	// ErrWalletProvisioning is returned when a wallet can't be created or
	// attached to a ticket. It always requires a manual intervention.
	ErrWalletProvisioning = errors.New("failed to provision escrow wallet")
)
