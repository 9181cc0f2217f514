package wallet

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
)

// DeriveSigningKeyPairOpts is the struct given to DeriveSigningKeyPair method
type DeriveSigningKeyPairOpts struct {
	DerivationPath DerivationPath
}

func (o DeriveSigningKeyPairOpts) validate() error {
	if len(o.DerivationPath) <= 0 {
		return ErrNullDerivationPath
	}
	return nil
}

// DeriveSigningKeyPair derives the key pair at the provided derivation path,
// starting from the wallet's master key.
func (w *Wallet) DeriveSigningKeyPair(opts DeriveSigningKeyPairOpts) (
	*btcec.PrivateKey,
	*btcec.PublicKey,
	error,
) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}
	if err := w.validate(); err != nil {
		return nil, nil, err
	}

	hdNode := w.masterKey
	for _, step := range opts.DerivationPath {
		var err error
		hdNode, err = hdNode.Derive(step)
		if err != nil {
			return nil, nil, err
		}
	}

	privateKey, err := hdNode.ECPrivKey()
	if err != nil {
		return nil, nil, err
	}
	publicKey, err := hdNode.ECPubKey()
	if err != nil {
		return nil, nil, err
	}

	return privateKey, publicKey, nil
}

// KeyBundle groups the secrets and the receiving address of the single key
// derived by an escrow wallet.
type KeyBundle struct {
	Address        string
	PrivateKeyWIF  string
	DerivationPath string
}

// DeriveEscrowKey derives the key at the fixed escrow derivation path and
// returns its P2WPKH address together with the WIF encoded private key.
func (w *Wallet) DeriveEscrowKey() (*KeyBundle, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}

	path := EscrowDerivationPath(w.network)
	prvkey, pubkey, err := w.DeriveSigningKeyPair(DeriveSigningKeyPairOpts{
		DerivationPath: path,
	})
	if err != nil {
		return nil, err
	}

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pubkey.SerializeCompressed()), w.network,
	)
	if err != nil {
		return nil, err
	}

	wif, err := btcutil.NewWIF(prvkey, w.network, true)
	if err != nil {
		return nil, err
	}

	return &KeyBundle{
		Address:        addr.EncodeAddress(),
		PrivateKeyWIF:  wif.String(),
		DerivationPath: path.String(),
	}, nil
}
