package ports

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
)

// WalletBundle is the key material of a freshly provisioned single-use
// wallet. It's in clear text and must be sealed before being persisted.
type WalletBundle struct {
	Address        string
	PrivateKey     string
	Mnemonic       string
	DerivationPath string
}

// WalletProvisioner creates single-use escrow wallets and validates
// addresses for the served network.
type WalletProvisioner interface {
	// Provision returns a wallet never returned before.
	Provision(ctx context.Context) (*WalletBundle, error)
	// IsValidAddress is the same validator used for user supplied addresses.
	IsValidAddress(addr string) bool
	// PrivateKey decodes the WIF encoded key of a bundle.
	PrivateKey(wif string) (*btcec.PrivateKey, error)
	// Network returns the name of the served network.
	Network() string
}
