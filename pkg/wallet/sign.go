package wallet

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SignTransactionOpts is the struct given to SignTransaction method
type SignTransactionOpts struct {
	Tx         *wire.MsgTx
	PrevOuts   []Input
	PrivateKey *btcec.PrivateKey
}

func (o SignTransactionOpts) validate() error {
	if o.Tx == nil {
		return ErrNullTransaction
	}
	if o.PrivateKey == nil {
		return ErrNullPrivateKey
	}
	if len(o.Tx.TxIn) <= 0 {
		return ErrEmptyInputs
	}
	if len(o.Tx.TxIn) != len(o.PrevOuts) {
		return ErrInvalidPrevOutsLength
	}
	return nil
}

// SignTransaction adds a P2WPKH witness to every input of the transaction.
// All previous outputs must be locked to the given private key, the
// transaction is modified in place.
func SignTransaction(opts SignTransactionOpts) error {
	if err := opts.validate(); err != nil {
		return err
	}

	pubkeyHash := hash160(opts.PrivateKey.PubKey().SerializeCompressed())
	fetcher := prevOutFetcher(opts.Tx, opts.PrevOuts)
	sigHashes := txscript.NewTxSigHashes(opts.Tx, fetcher)

	for i, prevout := range opts.PrevOuts {
		if !isP2WPKHScriptFor(prevout.Script, pubkeyHash) {
			return fmt.Errorf("input %d: %w", i, ErrInputScriptMismatch)
		}
		witness, err := txscript.WitnessSignature(
			opts.Tx, sigHashes, i, prevout.Value, prevout.Script,
			txscript.SigHashAll, opts.PrivateKey, true,
		)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		opts.Tx.TxIn[i].Witness = witness
		opts.Tx.TxIn[i].SignatureScript = nil
	}
	return nil
}

// VerifyTransaction runs the script engine against every input of the
// transaction and fails if any of them is not correctly signed.
func VerifyTransaction(tx *wire.MsgTx, prevOuts []Input) error {
	if tx == nil {
		return ErrNullTransaction
	}
	if len(tx.TxIn) != len(prevOuts) {
		return ErrInvalidPrevOutsLength
	}

	fetcher := prevOutFetcher(tx, prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, prevout := range prevOuts {
		engine, err := txscript.NewEngine(
			prevout.Script, tx, i, txscript.StandardVerifyFlags, nil,
			sigHashes, prevout.Value, fetcher,
		)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		if err := engine.Execute(); err != nil {
			return fmt.Errorf("input %d: %w: %s", i, ErrInvalidSignature, err)
		}
	}
	return nil
}

func prevOutFetcher(
	tx *wire.MsgTx, prevOuts []Input,
) *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range tx.TxIn {
		prevout := prevOuts[i]
		fetcher.AddPrevOut(
			in.PreviousOutPoint, wire.NewTxOut(prevout.Value, prevout.Script),
		)
	}
	return fetcher
}

func isP2WPKHScriptFor(script, pubkeyHash []byte) bool {
	if len(script) != 22 {
		return false
	}
	if script[0] != txscript.OP_0 || script[1] != txscript.OP_DATA_20 {
		return false
	}
	return bytes.Equal(script[2:], pubkeyHash)
}
