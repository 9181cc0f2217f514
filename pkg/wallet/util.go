package wallet

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

func hash160(buf []byte) []byte {
	return btcutil.Hash160(buf)
}

// OutputIndexByScript returns the index of the first output of the
// transaction locked by the given script, or -1 if not found.
func OutputIndexByScript(tx *wire.MsgTx, script []byte) int {
	if tx == nil {
		return -1
	}
	for i, out := range tx.TxOut {
		if string(out.PkScript) == string(script) {
			return i
		}
	}
	return -1
}

// TotalInputValue sums the values of the given inputs.
func TotalInputValue(ins []Input) int64 {
	var total int64
	for _, in := range ins {
		total += in.Value
	}
	return total
}
