package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/escrowd/internal/core/ports"
	"github.com/tdex-network/escrowd/pkg/explorer"
	"github.com/tdex-network/escrowd/pkg/wallet"
)

const (
	// DefaultFee is used when the fee rate can't be fetched.
	DefaultFee = int64(10000)
	// DustLimit is the min amount of an output.
	DustLimit = int64(546)
	// MinFeeRate is the min relay fee rate in litoshi per kilobyte.
	MinFeeRate = int64(1000)

	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
)

var (
	// ErrInsufficientFunds is returned when the funds of the wallet can't
	// cover the network fee, or when what's left after the fee is dust.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrBroadcast is returned when the signed settlement is rejected. The
	// settlement must not be repeated without checking the explorer first.
	ErrBroadcast = errors.New("failed to broadcast settlement")
	// ErrInvalidRequest ...
	ErrInvalidRequest = errors.New("invalid settlement request")
)

// Request is what the builder needs to pay out an escrow wallet.
type Request struct {
	TicketID    string
	PrivateKey  *btcec.PrivateKey
	Destination string
	// Amount is the intended amount in litoshis.
	Amount int64
}

func (r Request) validate(net *chaincfg.Params) error {
	if r.PrivateKey == nil {
		return fmt.Errorf("%w: missing private key", ErrInvalidRequest)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if !wallet.IsValidAddress(r.Destination, net) {
		return fmt.Errorf("%w: invalid destination address", ErrInvalidRequest)
	}
	return nil
}

// Result reports what has actually been sent. Actual may be lower than
// Intended when the wallet could not cover the amount plus the fee.
type Result struct {
	Intended int64
	Actual   int64
	Fee      int64
	Change   int64
	TxID     string
	TxHex    string
	Inputs   int
	Degraded bool
}

// Opts defines the parameters needed for creating a Builder with NewBuilder.
type Opts struct {
	Explorer   ports.Explorer
	Network    *chaincfg.Params
	DefaultFee int64
	DustLimit  int64
	MaxRetries int
	RetryDelay time.Duration
}

func (o Opts) validate() error {
	if o.Explorer == nil {
		return fmt.Errorf("missing explorer")
	}
	if o.Network == nil {
		return fmt.Errorf("missing network")
	}
	if o.DefaultFee < 0 {
		return fmt.Errorf("default fee must not be negative")
	}
	if o.DustLimit < 0 {
		return fmt.Errorf("dust limit must not be negative")
	}
	return nil
}

// Builder selects the unspents of an escrow wallet, estimates the fee and
// builds, signs and broadcasts the settlement transaction.
type Builder struct {
	explorer   ports.Explorer
	network    *chaincfg.Params
	defaultFee int64
	dustLimit  int64
	maxRetries int
	retryDelay time.Duration
}

// NewBuilder returns a Builder for the given options.
func NewBuilder(opts Opts) (*Builder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	defaultFee := opts.DefaultFee
	if defaultFee == 0 {
		defaultFee = DefaultFee
	}
	dustLimit := opts.DustLimit
	if dustLimit == 0 {
		dustLimit = DustLimit
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	return &Builder{
		opts.Explorer, opts.Network, defaultFee, dustLimit, maxRetries, retryDelay,
	}, nil
}

// Settle sends the intended amount, or whatever is left after the fee if
// the funds are short, from the wallet of the given key to the destination.
// The broadcast is attempted exactly once.
func (b *Builder) Settle(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(b.network); err != nil {
		return nil, err
	}

	source, script, err := b.sourceOf(req.PrivateKey)
	if err != nil {
		return nil, err
	}
	logger := log.WithFields(log.Fields{"ticket": req.TicketID, "source": source})

	utxos, err := b.getUnspents(ctx, source)
	if err != nil {
		return nil, err
	}
	spendable := spendableUnspents(utxos, script)
	if len(spendable) <= 0 {
		return nil, fmt.Errorf("%w: no spendable unspents for %s", ErrInsufficientFunds, source)
	}
	if skipped := len(utxos) - len(spendable); skipped > 0 {
		logger.Warnf("skipped %d unspents missing ownership proof", skipped)
	}
	logger = logger.WithField("available", explorer.SpendableBalance(spendable))

	fees := b.feeEstimator(ctx, logger)
	plan, err := b.plan(spendable, req.Amount, fees)
	if err != nil {
		return nil, err
	}

	outputs := []wallet.Output{{Address: req.Destination, Amount: plan.amount}}
	if plan.change > 0 {
		outputs = append(outputs, wallet.Output{Address: source, Amount: plan.change})
	}
	inputs := make([]wallet.Input, 0, len(plan.coins))
	for _, u := range plan.coins {
		inputs = append(inputs, wallet.Input{
			TxID: u.TxID, Vout: u.Vout, Value: u.Value, Script: u.Script,
		})
	}

	tx, err := wallet.CreateTransaction(wallet.CreateTransactionOpts{
		Inputs:  inputs,
		Outputs: outputs,
		Network: b.network,
	})
	if err != nil {
		return nil, err
	}
	if err := wallet.SignTransaction(wallet.SignTransactionOpts{
		Tx:         tx,
		PrevOuts:   inputs,
		PrivateKey: req.PrivateKey,
	}); err != nil {
		return nil, err
	}
	if err := wallet.VerifyTransaction(tx, inputs); err != nil {
		return nil, err
	}
	txHex, err := wallet.SerializeTransaction(tx)
	if err != nil {
		return nil, err
	}

	txid, err := b.explorer.BroadcastTransaction(ctx, txHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBroadcast, err)
	}
	if localID := tx.TxHash().String(); txid == "" {
		txid = localID
	} else if txid != localID {
		logger.Warnf("explorer returned txid %s, expected %s", txid, localID)
	}

	res := &Result{
		Intended: req.Amount,
		Actual:   plan.amount,
		Fee:      plan.fee,
		Change:   plan.change,
		TxID:     txid,
		TxHex:    txHex,
		Inputs:   len(plan.coins),
		Degraded: plan.amount < req.Amount,
	}
	logger.WithFields(log.Fields{
		"txid":     txid,
		"intended": res.Intended,
		"actual":   res.Actual,
		"fee":      res.Fee,
		"degraded": res.Degraded,
	}).Info("settlement broadcasted")
	return res, nil
}

type plan struct {
	coins  []explorer.Utxo
	amount int64
	change int64
	fee    int64
}

// plan selects coins in listing order until they cover amount plus fee.
// If all the spendable funds don't suffice, everything is spent to the
// destination minus the fee.
func (b *Builder) plan(
	spendable []explorer.Utxo, amount int64, fees feeFunc,
) (*plan, error) {
	var sum int64
	for i, u := range spendable {
		sum += u.Value
		numIns := i + 1

		feeWithChange := fees(numIns, 2)
		if sum >= amount+feeWithChange {
			change := sum - amount - feeWithChange
			if change < b.dustLimit {
				return &plan{spendable[:numIns], amount, 0, sum - amount}, nil
			}
			return &plan{spendable[:numIns], amount, change, feeWithChange}, nil
		}
		if sum >= amount+fees(numIns, 1) {
			return &plan{spendable[:numIns], amount, 0, sum - amount}, nil
		}
	}

	fee := fees(len(spendable), 1)
	if sum < fee {
		return nil, fmt.Errorf(
			"%w: available %d does not cover fee %d", ErrInsufficientFunds, sum, fee,
		)
	}
	reduced := sum - fee
	if reduced < b.dustLimit {
		return nil, fmt.Errorf(
			"%w: available %d minus fee %d is dust", ErrInsufficientFunds, sum, fee,
		)
	}
	return &plan{spendable, reduced, 0, fee}, nil
}

type feeFunc func(numIns, numOuts int) int64

// feeEstimator fetches the fee rate once and returns a function estimating
// the fee of a P2WPKH tx. It falls back to the fixed default fee if the
// rate can't be fetched.
func (b *Builder) feeEstimator(ctx context.Context, logger *log.Entry) feeFunc {
	var rate int64
	err := explorer.Retry(ctx, b.maxRetries, b.retryDelay, func() error {
		var err error
		rate, err = b.explorer.GetFeeRate(ctx)
		return err
	})
	if err != nil || rate <= 0 {
		logger.WithError(err).Warnf("using default fee of %d litoshis", b.defaultFee)
		return func(int, int) int64 { return b.defaultFee }
	}
	if rate < MinFeeRate {
		rate = MinFeeRate
	}
	return func(numIns, numOuts int) int64 {
		size := int64(wallet.EstimateP2WPKHTxSize(numIns, numOuts))
		return (rate*size + 999) / 1000
	}
}

func (b *Builder) getUnspents(
	ctx context.Context, addr string,
) ([]explorer.Utxo, error) {
	var utxos []explorer.Utxo
	if err := explorer.Retry(ctx, b.maxRetries, b.retryDelay, func() error {
		var err error
		utxos, err = b.explorer.GetUnspents(ctx, addr)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to fetch unspents: %w", err)
	}
	return utxos, nil
}

func (b *Builder) sourceOf(key *btcec.PrivateKey) (string, []byte, error) {
	script, err := wallet.P2WPKHScript(key, b.network)
	if err != nil {
		return "", nil, err
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), b.network,
	)
	if err != nil {
		return "", nil, err
	}
	return addr.EncodeAddress(), script, nil
}

// spendableUnspents returns the utxos carrying the script locked to the
// wallet key, in listing order.
func spendableUnspents(utxos []explorer.Utxo, script []byte) []explorer.Utxo {
	list := make([]explorer.Utxo, 0, len(utxos))
	for _, u := range utxos {
		if !u.HasScript() || u.Value <= 0 {
			continue
		}
		if string(u.Script) != string(script) {
			continue
		}
		list = append(list, u)
	}
	return list
}
