package blockcypher

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/escrowd/pkg/explorer"
)

const (
	// DefaultRequestTimeout is the default timeout of every http request.
	DefaultRequestTimeout = 15 * time.Second
	// DefaultMaxPages is the default max number of pages fetched when
	// listing the unspents of an address.
	DefaultMaxPages = 20

	txsLimit      = 50
	unspentsLimit = 200
	// outputsLimit is the max number of outputs returned for every tx.
	// Larger txs come with a next_outputs link and are fetched in pages.
	outputsLimit  = 1000
	retryAttempts = 3
	retryDelay    = 2 * time.Second
)

var (
	// ErrNullURL ...
	ErrNullURL = errors.New("explorer url must not be null")
	// ErrInvalidURL ...
	ErrInvalidURL = errors.New("explorer url is invalid")
)

// Opts is the struct given to NewService.
type Opts struct {
	// BaseURL is the chain root of the API, e.g.
	// https://api.blockcypher.com/v1/ltc/main
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
	Throttle       *explorer.Throttle
	MaxPages       int
	RetryDelay     time.Duration
}

func (o Opts) validate() error {
	if len(o.BaseURL) <= 0 {
		return ErrNullURL
	}
	u, err := url.Parse(o.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

type service struct {
	client     *client
	maxPages   int
	retryDelay time.Duration
}

// NewService returns a new blockcypher service as an explorer.Service
// interface.
func NewService(opts Opts) (explorer.Service, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = retryDelay
	}

	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	return &service{
		client:     newHTTPClient(baseURL, opts.Token, timeout, opts.Throttle),
		maxPages:   maxPages,
		retryDelay: delay,
	}, nil
}

func (s *service) GetTransactionsForAddress(
	ctx context.Context, addr string,
) ([]explorer.Transaction, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(txsLimit))
	query.Set("txlimit", strconv.Itoa(outputsLimit))

	var resp fullAddress
	path := fmt.Sprintf("/addrs/%s/full", url.PathEscape(addr))
	if err := s.client.get(ctx, "address_txs", path, query, &resp); err != nil {
		return nil, err
	}

	txs := make([]explorer.Transaction, 0, len(resp.Txs))
	for _, t := range resp.Txs {
		if !t.isTruncated() {
			txs = append(txs, t.toExplorer())
			continue
		}
		full, err := s.GetTransaction(ctx, t.Hash)
		if err != nil {
			return nil, err
		}
		full.Confirmations = t.Confirmations
		txs = append(txs, *full)
	}
	return txs, nil
}

// GetTransaction pages through the outputs of the tx until none is left.
func (s *service) GetTransaction(
	ctx context.Context, txid string,
) (*explorer.Transaction, error) {
	path := fmt.Sprintf("/txs/%s", url.PathEscape(txid))

	var resp tx
	for page := 0; page < s.maxPages; page++ {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(outputsLimit))
		if page > 0 {
			query.Set("outstart", strconv.Itoa(len(resp.Outputs)))
		}

		var p tx
		if err := s.client.get(ctx, "tx", path, query, &p); err != nil {
			return nil, err
		}
		if p.Hash == "" {
			return nil, fmt.Errorf("%w: missing tx hash", explorer.ErrMalformedResponse)
		}
		if page == 0 {
			resp = p
		} else {
			resp.Outputs = append(resp.Outputs, p.Outputs...)
			resp.NextOutputs = p.NextOutputs
		}
		if !p.isTruncated() || len(p.Outputs) <= 0 {
			break
		}
	}
	if resp.isTruncated() {
		log.WithField("txid", txid).Warn(
			"max number of outputs pages reached, tx outputs are partial",
		)
	}

	t := resp.toExplorer()
	return &t, nil
}

func (s *service) GetTransactionHex(
	ctx context.Context, txid string,
) (string, error) {
	query := url.Values{}
	query.Set("includeHex", "true")
	query.Set("limit", "1")

	var resp tx
	path := fmt.Sprintf("/txs/%s", url.PathEscape(txid))
	if err := s.client.get(ctx, "tx_hex", path, query, &resp); err != nil {
		return "", err
	}
	if resp.Hex == "" {
		return "", fmt.Errorf("%w: missing tx hex", explorer.ErrMalformedResponse)
	}
	return resp.Hex, nil
}

// GetUnspents pages through the unspent outputs of the address, newest
// first. Utxos returned without their output script are completed by
// looking up the raw funding transaction, they are left without script if
// even that fails.
func (s *service) GetUnspents(
	ctx context.Context, addr string,
) ([]explorer.Utxo, error) {
	utxos := make([]explorer.Utxo, 0)
	seen := make(map[string]struct{})
	add := func(refs []txRef) {
		for _, ref := range refs {
			if ref.TxOutputN < 0 || ref.Spent {
				continue
			}
			key := fmt.Sprintf("%s:%d", ref.TxHash, ref.TxOutputN)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			script, _ := hex.DecodeString(ref.Script)
			utxos = append(utxos, explorer.Utxo{
				TxID:          ref.TxHash,
				Vout:          uint32(ref.TxOutputN),
				Value:         ref.Value,
				Script:        script,
				Confirmations: ref.Confirmations,
			})
		}
	}

	before := int64(0)
	for page := 0; page < s.maxPages; page++ {
		resp, err := s.getUnspentsPage(ctx, addr, before)
		if err != nil {
			return nil, err
		}
		if page == 0 {
			add(resp.UnconfirmedTxRefs)
		}
		add(resp.TxRefs)

		if !resp.HasMore || len(resp.TxRefs) <= 0 {
			break
		}
		// refs at the boundary height are fetched again and deduplicated
		next := resp.TxRefs[len(resp.TxRefs)-1].BlockHeight + 1
		if before > 0 && next >= before {
			log.WithFields(log.Fields{
				"address": addr,
				"height":  next - 1,
			}).Warn("unspents page doesn't advance past block height, listing is partial")
			break
		}
		before = next
		if page == s.maxPages-1 {
			log.WithField("address", addr).Warn(
				"max number of unspents pages reached, listing is partial",
			)
		}
	}

	s.fillMissingScripts(ctx, utxos)
	return utxos, nil
}

func (s *service) GetFeeRate(ctx context.Context) (int64, error) {
	var resp chain
	err := explorer.Retry(ctx, retryAttempts, s.retryDelay, func() error {
		return s.client.get(ctx, "fee_rate", "", nil, &resp)
	})
	if err != nil {
		return 0, err
	}
	if resp.MediumFeePerKb <= 0 {
		return 0, fmt.Errorf(
			"%w: invalid fee rate %d", explorer.ErrMalformedResponse, resp.MediumFeePerKb,
		)
	}
	return resp.MediumFeePerKb, nil
}

// BroadcastTransaction is never retried, the caller decides whether it's
// safe to submit the transaction again.
func (s *service) BroadcastTransaction(
	ctx context.Context, txHex string,
) (string, error) {
	var resp pushResponse
	err := s.client.post(ctx, "broadcast", "/txs/push", pushRequest{txHex}, &resp)
	if err != nil {
		var pe *explorer.PermanentError
		if errors.As(err, &pe) {
			return "", pe.Err
		}
		return "", err
	}
	if resp.Tx.Hash == "" {
		return "", fmt.Errorf("%w: missing tx hash", explorer.ErrMalformedResponse)
	}
	return resp.Tx.Hash, nil
}

func (s *service) getUnspentsPage(
	ctx context.Context, addr string, before int64,
) (*address, error) {
	query := url.Values{}
	query.Set("unspentOnly", "true")
	query.Set("includeScript", "true")
	query.Set("limit", strconv.Itoa(unspentsLimit))
	if before > 0 {
		query.Set("before", strconv.FormatInt(before, 10))
	}

	var resp address
	path := fmt.Sprintf("/addrs/%s", url.PathEscape(addr))
	err := explorer.Retry(ctx, retryAttempts, s.retryDelay, func() error {
		return s.client.get(ctx, "unspents", path, query, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *service) fillMissingScripts(ctx context.Context, utxos []explorer.Utxo) {
	txs := make(map[string]*wire.MsgTx)
	for i, u := range utxos {
		if u.HasScript() {
			continue
		}

		fundingTx, ok := txs[u.TxID]
		if !ok {
			var txHex string
			err := explorer.Retry(ctx, retryAttempts, s.retryDelay, func() error {
				var err error
				txHex, err = s.GetTransactionHex(ctx, u.TxID)
				return err
			})
			if err != nil {
				log.WithError(err).WithField("txid", u.TxID).Warn(
					"failed to fetch funding tx, utxo will be skipped",
				)
				txs[u.TxID] = nil
				continue
			}
			fundingTx, err = deserializeTx(txHex)
			if err != nil {
				log.WithError(err).WithField("txid", u.TxID).Warn(
					"failed to parse funding tx, utxo will be skipped",
				)
			}
			txs[u.TxID] = fundingTx
		}

		if fundingTx == nil || int(u.Vout) >= len(fundingTx.TxOut) {
			continue
		}
		out := fundingTx.TxOut[u.Vout]
		if out.Value != u.Value {
			log.WithField("txid", u.TxID).Warn(
				"funding tx output value mismatch, utxo will be skipped",
			)
			continue
		}
		utxos[i].Script = out.PkScript
	}
}

func deserializeTx(txHex string) (*wire.MsgTx, error) {
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
