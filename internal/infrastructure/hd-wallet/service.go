package hdwallet

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/escrowd/internal/core/ports"
	"github.com/tdex-network/escrowd/pkg/wallet"
)

// maxDerivationTries bounds the attempts to derive an address never issued
// before. A collision is practically impossible with 128 bits of entropy.
const maxDerivationTries = 3

// ErrAddressReused ...
var ErrAddressReused = errors.New("derived an address already issued")

type service struct {
	network     *chaincfg.Params
	networkName string
	entropySize int

	lock   sync.Mutex
	issued map[string]struct{}
}

// NewService returns a provisioner creating a brand new HD wallet, from a
// fresh random mnemonic, for every ticket. Only the key at the fixed escrow
// derivation path is used. The addresses already issued, for example those
// of the tickets restored from the ledger, can be passed so that they are
// never returned again.
func NewService(
	network string, entropySize int, issued ...string,
) (ports.WalletProvisioner, error) {
	net, err := wallet.NetworkByName(network)
	if err != nil {
		return nil, err
	}
	if entropySize != 0 &&
		(entropySize < 128 || entropySize > 256 || entropySize%32 != 0) {
		return nil, wallet.ErrInvalidEntropySize
	}

	addresses := make(map[string]struct{}, len(issued))
	for _, addr := range issued {
		addresses[addr] = struct{}{}
	}
	return &service{
		network:     net,
		networkName: network,
		entropySize: entropySize,
		issued:      addresses,
	}, nil
}

func (s *service) Provision(ctx context.Context) (*ports.WalletBundle, error) {
	for i := 0; i < maxDerivationTries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		w, err := wallet.NewWallet(wallet.NewWalletOpts{
			EntropySize: s.entropySize,
			Network:     s.network,
		})
		if err != nil {
			return nil, err
		}
		key, err := w.DeriveEscrowKey()
		if err != nil {
			return nil, err
		}
		mnemonic, err := w.Mnemonic()
		if err != nil {
			return nil, err
		}

		if !s.markIssued(key.Address) {
			log.Warnf("derived address %s already issued, retrying", key.Address)
			continue
		}

		return &ports.WalletBundle{
			Address:        key.Address,
			PrivateKey:     key.PrivateKeyWIF,
			Mnemonic:       strings.Join(mnemonic, " "),
			DerivationPath: key.DerivationPath,
		}, nil
	}
	return nil, ErrAddressReused
}

func (s *service) IsValidAddress(addr string) bool {
	return wallet.IsValidAddress(addr, s.network)
}

func (s *service) PrivateKey(wif string) (*btcec.PrivateKey, error) {
	return wallet.DecodeWIF(wif, s.network)
}

func (s *service) Network() string {
	return s.networkName
}

func (s *service) markIssued(addr string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.issued[addr]; ok {
		return false
	}
	s.issued[addr] = struct{}{}
	return true
}
