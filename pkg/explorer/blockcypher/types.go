package blockcypher

import (
	"github.com/tdex-network/escrowd/pkg/explorer"
)

type txOutput struct {
	Value     int64    `json:"value"`
	Script    string   `json:"script"`
	Addresses []string `json:"addresses"`
}

type tx struct {
	Hash          string     `json:"hash"`
	BlockHeight   int64      `json:"block_height"`
	Confirmations int        `json:"confirmations"`
	Outputs       []txOutput `json:"outputs"`
	NextOutputs   string     `json:"next_outputs,omitempty"`
	Hex           string     `json:"hex,omitempty"`
}

// isTruncated returns whether the outputs of the tx were cut off.
func (t tx) isTruncated() bool {
	return t.NextOutputs != ""
}

func (t tx) toExplorer() explorer.Transaction {
	outs := make([]explorer.TxOutput, 0, len(t.Outputs))
	for _, o := range t.Outputs {
		outs = append(outs, explorer.TxOutput{
			Addresses: o.Addresses,
			Value:     o.Value,
			Script:    o.Script,
		})
	}
	return explorer.Transaction{
		TxID:          t.Hash,
		Confirmations: t.Confirmations,
		BlockHeight:   t.BlockHeight,
		Outputs:       outs,
	}
}

type fullAddress struct {
	Address string `json:"address"`
	Txs     []tx   `json:"txs"`
	HasMore bool   `json:"hasMore"`
}

type txRef struct {
	TxHash        string `json:"tx_hash"`
	BlockHeight   int64  `json:"block_height"`
	TxOutputN     int64  `json:"tx_output_n"`
	Value         int64  `json:"value"`
	Confirmations int    `json:"confirmations"`
	Script        string `json:"script"`
	Spent         bool   `json:"spent"`
}

type address struct {
	Address            string  `json:"address"`
	TxRefs             []txRef `json:"txrefs"`
	UnconfirmedTxRefs  []txRef `json:"unconfirmed_txrefs"`
	HasMore            bool    `json:"hasMore"`
	FinalBalance       int64   `json:"final_balance"`
	UnconfirmedBalance int64   `json:"unconfirmed_balance"`
}

type chain struct {
	Name           string `json:"name"`
	Height         int64  `json:"height"`
	HighFeePerKb   int64  `json:"high_fee_per_kb"`
	MediumFeePerKb int64  `json:"medium_fee_per_kb"`
	LowFeePerKb    int64  `json:"low_fee_per_kb"`
}

type pushRequest struct {
	Tx string `json:"tx"`
}

type pushResponse struct {
	Tx tx `json:"tx"`
}

type errorResponse struct {
	Error string `json:"error"`
}
