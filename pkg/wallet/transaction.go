package wallet

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Input references a previous output to be spent together with the data
// required to sign it.
type Input struct {
	TxID   string
	Vout   uint32
	Value  int64
	Script []byte
}

// Output is a payment to an address.
type Output struct {
	Address string
	Amount  int64
}

// CreateTransactionOpts is the struct given to CreateTransaction method
type CreateTransactionOpts struct {
	Inputs  []Input
	Outputs []Output
	Network *chaincfg.Params
}

func (o CreateTransactionOpts) validate() error {
	if o.Network == nil {
		return ErrNullNetwork
	}
	if len(o.Inputs) <= 0 {
		return ErrEmptyInputs
	}
	if len(o.Outputs) <= 0 {
		return ErrEmptyOutputs
	}
	for i, in := range o.Inputs {
		if in.Value <= 0 {
			return fmt.Errorf("input %d: %w", i, ErrZeroInputAmount)
		}
		if _, err := chainhash.NewHashFromStr(in.TxID); err != nil {
			return fmt.Errorf("input %d: invalid txid: %w", i, err)
		}
	}
	for i, out := range o.Outputs {
		if out.Amount <= 0 {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutputAmount)
		}
		if !IsValidAddress(out.Address, o.Network) {
			return fmt.Errorf("output %d: %w", i, ErrInvalidAddress)
		}
	}
	return nil
}

// CreateTransaction crafts a new unsigned version 2 transaction spending the
// given inputs to the given outputs, in the given order.
func CreateTransaction(opts CreateTransactionOpts) (*wire.MsgTx, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion + 1)
	for _, in := range opts.Inputs {
		hash, _ := chainhash.NewHashFromStr(in.TxID)
		outpoint := wire.NewOutPoint(hash, in.Vout)
		tx.AddTxIn(wire.NewTxIn(outpoint, nil, nil))
	}
	for _, out := range opts.Outputs {
		script, err := AddressToScript(out.Address, opts.Network)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(wire.NewTxOut(out.Amount, script))
	}
	return tx, nil
}

// SerializeTransaction returns the hex encoding of the given transaction,
// witnesses included.
func SerializeTransaction(tx *wire.MsgTx) (string, error) {
	if tx == nil {
		return "", ErrNullTransaction
	}
	buf := bytes.NewBuffer(make([]byte, 0, tx.SerializeSize()))
	if err := tx.Serialize(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// DeserializeTransaction parses a hex encoded transaction.
func DeserializeTransaction(txHex string) (*wire.MsgTx, error) {
	buf, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(buf)); err != nil {
		return nil, err
	}
	return tx, nil
}
