package explorer

import (
	"context"
	"encoding/hex"
)

// TxOutput is an output of a transaction as returned by the explorer.
type TxOutput struct {
	Addresses []string
	Value     int64
	Script    string
}

// Transaction is a transaction as returned by the explorer, limited to
// what's required to detect payments and their confirmation depth.
type Transaction struct {
	TxID          string
	Confirmations int
	BlockHeight   int64
	Outputs       []TxOutput
}

// PaidTo returns the total amount the transaction pays to the given address.
func (t Transaction) PaidTo(addr string) int64 {
	var total int64
	for _, out := range t.Outputs {
		for _, a := range out.Addresses {
			if a == addr {
				total += out.Value
				break
			}
		}
	}
	return total
}

// PaysTo returns whether any output of the transaction pays the address.
func (t Transaction) PaysTo(addr string) bool {
	for _, out := range t.Outputs {
		for _, a := range out.Addresses {
			if a == addr {
				return true
			}
		}
	}
	return false
}

// Utxo is an unspent output locked to an address. Script is the output
// script proving the output can be spent by the address key, it's nil if
// the explorer could not provide it.
type Utxo struct {
	TxID          string
	Vout          uint32
	Value         int64
	Script        []byte
	Confirmations int
}

// HasScript returns whether the utxo carries its output script.
func (u Utxo) HasScript() bool {
	return len(u.Script) > 0
}

// ScriptHex returns the hex encoded output script.
func (u Utxo) ScriptHex() string {
	return hex.EncodeToString(u.Script)
}

// Service is the blockchain query surface used to watch addresses, list
// spendable coins and submit transactions. Every method can fail with an
// error wrapping one of ErrRateLimited, ErrNotFound, ErrTimeout or
// ErrMalformedResponse.
type Service interface {
	// GetTransactionsForAddress returns the most recent transactions
	// involving the given address, newest first.
	GetTransactionsForAddress(ctx context.Context, addr string) ([]Transaction, error)
	// GetTransaction returns the transaction identified by its hash.
	GetTransaction(ctx context.Context, txid string) (*Transaction, error)
	// GetTransactionHex returns the raw transaction in hex format.
	GetTransactionHex(ctx context.Context, txid string) (string, error)
	// GetUnspents returns all the unspent outputs locked to the address.
	GetUnspents(ctx context.Context, addr string) ([]Utxo, error)
	// GetFeeRate returns the estimated fee rate in litoshi per kilobyte for
	// a transaction to be included in a few blocks.
	GetFeeRate(ctx context.Context) (int64, error)
	// BroadcastTransaction submits the given tx in hex format to the
	// network and returns its hash.
	BroadcastTransaction(ctx context.Context, txHex string) (string, error)
}

// SpendableBalance returns the total value of the utxos that carry their
// output script.
func SpendableBalance(utxos []Utxo) int64 {
	var total int64
	for _, u := range utxos {
		if u.HasScript() && u.Value > 0 {
			total += u.Value
		}
	}
	return total
}
