package blockcypher

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func fundingTxHex(t *testing.T, value int64) string {
	script, err := hex.DecodeString(testScript)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(value, script))

	buf := &bytes.Buffer{}
	require.NoError(t, tx.Serialize(buf))
	return hex.EncodeToString(buf.Bytes())
}
