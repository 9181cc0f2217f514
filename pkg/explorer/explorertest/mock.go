// Package explorertest provides a testify mock of explorer.Service.
package explorertest

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/escrowd/pkg/explorer"
)

// MockService ...
type MockService struct {
	mock.Mock
}

var _ explorer.Service = (*MockService)(nil)

func (m *MockService) GetTransactionsForAddress(
	ctx context.Context, addr string,
) ([]explorer.Transaction, error) {
	args := m.Called(addr)

	var res []explorer.Transaction
	if a := args.Get(0); a != nil {
		res = a.([]explorer.Transaction)
	}
	return res, args.Error(1)
}

func (m *MockService) GetTransaction(
	ctx context.Context, txid string,
) (*explorer.Transaction, error) {
	args := m.Called(txid)

	var res *explorer.Transaction
	if a := args.Get(0); a != nil {
		res = a.(*explorer.Transaction)
	}
	return res, args.Error(1)
}

func (m *MockService) GetTransactionHex(
	ctx context.Context, txid string,
) (string, error) {
	args := m.Called(txid)
	return args.String(0), args.Error(1)
}

func (m *MockService) GetUnspents(
	ctx context.Context, addr string,
) ([]explorer.Utxo, error) {
	args := m.Called(addr)

	var res []explorer.Utxo
	if a := args.Get(0); a != nil {
		res = a.([]explorer.Utxo)
	}
	return res, args.Error(1)
}

func (m *MockService) GetFeeRate(ctx context.Context) (int64, error) {
	args := m.Called()

	var res int64
	if a := args.Get(0); a != nil {
		res = a.(int64)
	}
	return res, args.Error(1)
}

func (m *MockService) BroadcastTransaction(
	ctx context.Context, txHex string,
) (string, error) {
	args := m.Called(txHex)
	return args.String(0), args.Error(1)
}

// IncomingTx returns a transaction paying amount to addr.
func IncomingTx(
	txid, addr string, amount int64, confirmations int,
) explorer.Transaction {
	return explorer.Transaction{
		TxID:          txid,
		Confirmations: confirmations,
		Outputs: []explorer.TxOutput{
			{Addresses: []string{addr}, Value: amount},
		},
	}
}
