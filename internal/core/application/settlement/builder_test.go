package settlement_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/escrowd/internal/core/application/settlement"
	"github.com/tdex-network/escrowd/pkg/explorer"
	"github.com/tdex-network/escrowd/pkg/explorer/explorertest"
	"github.com/tdex-network/escrowd/pkg/wallet"
)

const fixedFee = int64(10000)

var network = wallet.LitecoinMainNetParams

func TestSettleAmounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		utxos            []int64
		amount           int64
		expectedActual   int64
		expectedFee      int64
		expectedChange   int64
		expectedInputs   int
		expectedDegraded bool
	}{
		{
			name:           "funds_cover_amount_and_fee",
			utxos:          []int64{600000, 400000},
			amount:         500000,
			expectedActual: 500000,
			expectedFee:    fixedFee,
			expectedChange: 90000,
			expectedInputs: 1,
		},
		{
			name:           "selection_spans_inputs",
			utxos:          []int64{300000, 300000, 300000},
			amount:         500000,
			expectedActual: 500000,
			expectedFee:    fixedFee,
			expectedChange: 90000,
			expectedInputs: 2,
		},
		{
			name:           "dust_change_is_folded_into_fee",
			utxos:          []int64{510300},
			amount:         500000,
			expectedActual: 500000,
			expectedFee:    10300,
			expectedInputs: 1,
		},
		{
			name:             "funds_short_of_fee_reduce_amount",
			utxos:            []int64{300000, 205000},
			amount:           500000,
			expectedActual:   495000,
			expectedFee:      fixedFee,
			expectedInputs:   2,
			expectedDegraded: true,
		},
		{
			name:             "reduced_amount_at_dust_limit",
			utxos:            []int64{fixedFee + settlement.DustLimit},
			amount:           500000,
			expectedActual:   settlement.DustLimit,
			expectedFee:      fixedFee,
			expectedInputs:   1,
			expectedDegraded: true,
		},
		{
			name:           "exact_amount_plus_fee",
			utxos:          []int64{510000},
			amount:         500000,
			expectedActual: 500000,
			expectedFee:    fixedFee,
			expectedInputs: 1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			key, source := newTestKey(t)
			_, destination := newTestKey(t)

			explorerSvc := &explorertest.MockService{}
			explorerSvc.On("GetUnspents", source).Return(newUtxos(t, key, tt.utxos...), nil)
			explorerSvc.On("GetFeeRate").Return(nil, explorer.ErrMalformedResponse)
			var broadcasted string
			explorerSvc.On("BroadcastTransaction", mock.Anything).Run(func(args mock.Arguments) {
				broadcasted = args.String(0)
			}).Return("", nil)

			builder := newTestBuilder(t, explorerSvc)
			res, err := builder.Settle(context.Background(), settlement.Request{
				TicketID:    "ticket",
				PrivateKey:  key,
				Destination: destination,
				Amount:      tt.amount,
			})
			require.NoError(t, err)
			require.Equal(t, tt.amount, res.Intended)
			require.Equal(t, tt.expectedActual, res.Actual)
			require.Equal(t, tt.expectedFee, res.Fee)
			require.Equal(t, tt.expectedChange, res.Change)
			require.Equal(t, tt.expectedInputs, res.Inputs)
			require.Equal(t, tt.expectedDegraded, res.Degraded)
			require.LessOrEqual(t, res.Actual, res.Intended)

			tx, err := wallet.DeserializeTransaction(broadcasted)
			require.NoError(t, err)
			require.Equal(t, tx.TxHash().String(), res.TxID)
			require.Len(t, tx.TxIn, tt.expectedInputs)
			require.Equal(t, tt.expectedActual, tx.TxOut[0].Value)
			if tt.expectedChange > 0 {
				require.Len(t, tx.TxOut, 2)
				require.Equal(t, tt.expectedChange, tx.TxOut[1].Value)
			} else {
				require.Len(t, tx.TxOut, 1)
			}

			var in, out int64
			for _, v := range tt.utxos[:tt.expectedInputs] {
				in += v
			}
			for _, o := range tx.TxOut {
				out += o.Value
			}
			require.Equal(t, res.Fee, in-out)
		})
	}
}

func TestSettleInsufficientFunds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		utxos []int64
	}{
		{"funds_below_fee", []int64{5000}},
		{"reduced_amount_is_dust", []int64{10300}},
		// Spending everything would leave the destination with dust.
		{"reduced_amount_below_dust", []int64{fixedFee + settlement.DustLimit - 1}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			key, source := newTestKey(t)
			_, destination := newTestKey(t)

			explorerSvc := &explorertest.MockService{}
			explorerSvc.On("GetUnspents", source).Return(newUtxos(t, key, tt.utxos...), nil)
			explorerSvc.On("GetFeeRate").Return(nil, explorer.ErrMalformedResponse)

			builder := newTestBuilder(t, explorerSvc)
			_, err := builder.Settle(context.Background(), settlement.Request{
				PrivateKey:  key,
				Destination: destination,
				Amount:      500000,
			})
			require.ErrorIs(t, err, settlement.ErrInsufficientFunds)
			explorerSvc.AssertNotCalled(t, "BroadcastTransaction", mock.Anything)
		})
	}
}

func TestSettleWithFeeRate(t *testing.T) {
	t.Parallel()

	key, source := newTestKey(t)
	_, destination := newTestKey(t)

	explorerSvc := &explorertest.MockService{}
	explorerSvc.On("GetUnspents", source).Return(newUtxos(t, key, 1000000), nil)
	explorerSvc.On("GetFeeRate").Return(
		nil, fmt.Errorf("%w: busy", explorer.ErrRateLimited),
	).Once()
	explorerSvc.On("GetFeeRate").Return(int64(20000), nil).Once()
	explorerSvc.On("BroadcastTransaction", mock.Anything).Return("", nil)

	builder := newTestBuilder(t, explorerSvc)
	res, err := builder.Settle(context.Background(), settlement.Request{
		PrivateKey:  key,
		Destination: destination,
		Amount:      500000,
	})
	require.NoError(t, err)

	expectedFee := int64(20000*wallet.EstimateP2WPKHTxSize(1, 2)+999) / 1000
	require.Equal(t, expectedFee, res.Fee)
	require.Equal(t, int64(1000000-500000)-expectedFee, res.Change)
	explorerSvc.AssertNumberOfCalls(t, "GetFeeRate", 2)
}

func TestSettleSkipsUnspentsWithoutScript(t *testing.T) {
	t.Parallel()

	key, source := newTestKey(t)
	_, destination := newTestKey(t)

	utxos := newUtxos(t, key, 900000, 600000)
	utxos[0].Script = nil

	explorerSvc := &explorertest.MockService{}
	explorerSvc.On("GetUnspents", source).Return(utxos, nil)
	explorerSvc.On("GetFeeRate").Return(nil, explorer.ErrMalformedResponse)
	explorerSvc.On("BroadcastTransaction", mock.Anything).Return("", nil)

	builder := newTestBuilder(t, explorerSvc)
	res, err := builder.Settle(context.Background(), settlement.Request{
		PrivateKey:  key,
		Destination: destination,
		Amount:      500000,
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Inputs)
	require.Equal(t, int64(500000), res.Actual)
	require.Equal(t, int64(600000-500000)-fixedFee, res.Change)
}

func TestSettleBroadcastIsNotRetried(t *testing.T) {
	t.Parallel()

	key, source := newTestKey(t)
	_, destination := newTestKey(t)

	explorerSvc := &explorertest.MockService{}
	explorerSvc.On("GetUnspents", source).Return(
		nil, explorer.ErrTimeout,
	).Once()
	explorerSvc.On("GetUnspents", source).Return(newUtxos(t, key, 1000000), nil).Once()
	explorerSvc.On("GetFeeRate").Return(nil, explorer.ErrMalformedResponse)
	explorerSvc.On("BroadcastTransaction", mock.Anything).Return(
		"", fmt.Errorf("%w: rejected", explorer.ErrTimeout),
	)

	builder := newTestBuilder(t, explorerSvc)
	_, err := builder.Settle(context.Background(), settlement.Request{
		PrivateKey:  key,
		Destination: destination,
		Amount:      500000,
	})
	require.ErrorIs(t, err, settlement.ErrBroadcast)
	explorerSvc.AssertNumberOfCalls(t, "GetUnspents", 2)
	explorerSvc.AssertNumberOfCalls(t, "BroadcastTransaction", 1)
}

func TestFailingSettle(t *testing.T) {
	t.Parallel()

	key, _ := newTestKey(t)
	_, destination := newTestKey(t)
	builder := newTestBuilder(t, &explorertest.MockService{})

	tests := []struct {
		name string
		req  settlement.Request
	}{
		{"missing_key", settlement.Request{Destination: destination, Amount: 1000}},
		{"zero_amount", settlement.Request{PrivateKey: key, Destination: destination}},
		{"bitcoin_destination", settlement.Request{
			PrivateKey:  key,
			Destination: "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
			Amount:      1000,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := builder.Settle(context.Background(), tt.req)
			require.ErrorIs(t, err, settlement.ErrInvalidRequest)
		})
	}
}

func newTestBuilder(t *testing.T, explorerSvc explorer.Service) *settlement.Builder {
	builder, err := settlement.NewBuilder(settlement.Opts{
		Explorer:   explorerSvc,
		Network:    network,
		DefaultFee: fixedFee,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return builder
}

func newTestKey(t *testing.T) (*btcec.PrivateKey, string) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), network,
	)
	require.NoError(t, err)
	return key, addr.EncodeAddress()
}

func newUtxos(t *testing.T, key *btcec.PrivateKey, values ...int64) []explorer.Utxo {
	script, err := wallet.P2WPKHScript(key, network)
	require.NoError(t, err)

	utxos := make([]explorer.Utxo, 0, len(values))
	for i, v := range values {
		utxos = append(utxos, explorer.Utxo{
			TxID:          fmt.Sprintf("%064x", i+1),
			Vout:          uint32(i),
			Value:         v,
			Script:        script,
			Confirmations: 1,
		})
	}
	return utxos
}
