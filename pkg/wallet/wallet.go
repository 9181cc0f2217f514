package wallet

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

var (
	// ErrNullNetwork ...
	ErrNullNetwork = errors.New("network params are null")
	// ErrUnknownNetwork ...
	ErrUnknownNetwork = errors.New("unknown network")
	// ErrNullMnemonic ...
	ErrNullMnemonic = errors.New("mnemonic is null")
	// ErrInvalidMnemonic ...
	ErrInvalidMnemonic = errors.New("mnemonic is invalid")
	// ErrNullMasterKey ...
	ErrNullMasterKey = errors.New("master key is null")
	// ErrNullPassphrase ...
	ErrNullPassphrase = errors.New("passphrase must not be null")
	// ErrNullPlainText ...
	ErrNullPlainText = errors.New("text to encrypt must not be null")
	// ErrNullCypherText ...
	ErrNullCypherText = errors.New("cypher to decrypt must not be null")
	// ErrNullDerivationPath ...
	ErrNullDerivationPath = errors.New("derivation path must not be null")
	// ErrNullPrivateKey ...
	ErrNullPrivateKey = errors.New("private key must not be null")
	// ErrNullTransaction ...
	ErrNullTransaction = errors.New("transaction must not be null")

	// ErrInvalidEntropySize ...
	ErrInvalidEntropySize = errors.New(
		"entropy size must be a multiple of 32 in the range [128,256]",
	)
	// ErrInvalidCypherText ...
	ErrInvalidCypherText = errors.New("cypher must be in base64 format")
	// ErrInvalidDerivationPath ...
	ErrInvalidDerivationPath = errors.New("invalid derivation path")
	// ErrInvalidAddress ...
	ErrInvalidAddress = errors.New("address is not valid for the network")
	// ErrInvalidWIF ...
	ErrInvalidWIF = errors.New("private key is not a valid WIF for the network")
	// ErrInvalidPrevOutsLength ...
	ErrInvalidPrevOutsLength = errors.New(
		"length of tx inputs and previous outputs must match",
	)
	// ErrInputScriptMismatch ...
	ErrInputScriptMismatch = errors.New(
		"previous output script is not spendable by the given key",
	)
	// ErrInvalidSignature ...
	ErrInvalidSignature = errors.New("signature verification failed")

	// ErrEmptyInputs ...
	ErrEmptyInputs = errors.New("input list must not be empty")
	// ErrEmptyOutputs ...
	ErrEmptyOutputs = errors.New("output list must not be empty")
	// ErrMalformedDerivationPath ...
	ErrMalformedDerivationPath = errors.New(
		"path must not start or end with a '/' and " +
			"can optionally start with 'm/' for absolute paths",
	)
	// ErrZeroInputAmount ...
	ErrZeroInputAmount = errors.New("input amount must not be zero")
	// ErrZeroOutputAmount ...
	ErrZeroOutputAmount = errors.New("output amount must not be zero")
)

// Wallet data structure allows to create a new HD wallet from a random or
// given mnemonic, and to derive signing keys and addresses from it.
type Wallet struct {
	mnemonic  []string
	masterKey *hdkeychain.ExtendedKey
	network   *chaincfg.Params
}

// NewWalletOpts is the struct given to the NewWallet method
type NewWalletOpts struct {
	EntropySize int
	Network     *chaincfg.Params
}

func (o NewWalletOpts) validate() error {
	if o.Network == nil {
		return ErrNullNetwork
	}
	return NewMnemonicOpts{o.EntropySize}.validate()
}

// NewWallet creates a new wallet from a freshly generated random mnemonic.
func NewWallet(opts NewWalletOpts) (*Wallet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	mnemonic, err := NewMnemonic(NewMnemonicOpts{opts.EntropySize})
	if err != nil {
		return nil, err
	}

	return NewWalletFromMnemonic(NewWalletFromMnemonicOpts{
		Mnemonic: mnemonic,
		Network:  opts.Network,
	})
}

// NewWalletFromMnemonicOpts is the struct given to the NewWalletFromMnemonic
// method
type NewWalletFromMnemonicOpts struct {
	Mnemonic []string
	Network  *chaincfg.Params
}

func (o NewWalletFromMnemonicOpts) validate() error {
	if len(o.Mnemonic) <= 0 {
		return ErrNullMnemonic
	}
	if !isMnemonicValid(o.Mnemonic) {
		return ErrInvalidMnemonic
	}
	if o.Network == nil {
		return ErrNullNetwork
	}
	return nil
}

// NewWalletFromMnemonic restores the wallet from the given mnemonic.
func NewWalletFromMnemonic(opts NewWalletFromMnemonicOpts) (*Wallet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	seed := generateSeedFromMnemonic(opts.Mnemonic)
	masterKey, err := hdkeychain.NewMaster(seed, opts.Network)
	if err != nil {
		return nil, err
	}

	mnemonic := make([]string, len(opts.Mnemonic))
	copy(mnemonic, opts.Mnemonic)

	return &Wallet{
		mnemonic:  mnemonic,
		masterKey: masterKey,
		network:   opts.Network,
	}, nil
}

// Mnemonic returns a copy of the wallet's mnemonic words
func (w *Wallet) Mnemonic() ([]string, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	mnemonic := make([]string, len(w.mnemonic))
	copy(mnemonic, w.mnemonic)
	return mnemonic, nil
}

// Network returns the chain params the wallet has been created for.
func (w *Wallet) Network() *chaincfg.Params {
	return w.network
}

func (w *Wallet) validate() error {
	if w.masterKey == nil {
		return ErrNullMasterKey
	}
	if len(w.mnemonic) <= 0 {
		return ErrNullMnemonic
	}
	if w.network == nil {
		return ErrNullNetwork
	}
	return nil
}
