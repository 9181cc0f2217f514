package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/internal/core/ports"
	"github.com/tdex-network/escrowd/pkg/explorer"
	"github.com/tdex-network/escrowd/pkg/stats"
)

const (
	loopAddress      = "address"
	loopConfirmation = "confirmation"
)

// StopReason tells why a monitor gave up before confirming a payment.
type StopReason string

const (
	StopTimeout             StopReason = "timeout"
	StopConfirmationTimeout StopReason = domain.StopReasonConfirmationTimeout
	StopRateLimited         StopReason = "rate_limited"
	StopAddressNotFound     StopReason = "address_not_found"
	StopTxNotFound          StopReason = domain.StopReasonTxNotFound
)

// Request describes what to watch. State is the persisted progress of a
// previous run, if any, so that a reloaded ticket resumes where it left.
type Request struct {
	TicketID       string
	Address        string
	RequiredAmount int64
	State          domain.MonitoredPayment
}

// Handler receives the events of a watch. Callbacks are invoked from the
// goroutine of the watch, one at a time.
type Handler interface {
	// OnProgress is called whenever the persisted state changes.
	OnProgress(ctx context.Context, ticketID string, state domain.MonitoredPayment)
	// OnPaymentIgnored is called once for every incoming tx paying less than
	// required.
	OnPaymentIgnored(ctx context.Context, ticketID, txid string, amount int64)
	// OnPaymentDetected is called once when a sufficient payment is seen
	// without enough confirmations.
	OnPaymentDetected(ctx context.Context, ticketID, txid string, amount int64)
	// OnPaymentConfirmed is called at most once per watch.
	OnPaymentConfirmed(
		ctx context.Context, ticketID, txid string, amount int64, confirmations int,
	)
	// OnStopped is called when the watch gives up. It's not called when the
	// watch is canceled.
	OnStopped(ctx context.Context, ticketID string, reason StopReason, err error)
}

// Opts defines the parameters needed for creating a monitor with New.
type Opts struct {
	Explorer ports.Explorer
	Config   Config
	// After defaults to time.After.
	After func(d time.Duration) <-chan time.Time
}

func (o Opts) validate() error {
	if o.Explorer == nil {
		return fmt.Errorf("missing explorer")
	}
	return o.Config.Validate()
}

// Monitor polls the explorer for payments to escrow addresses.
type Monitor struct {
	explorer ports.Explorer
	cfg      Config
	after    func(d time.Duration) <-chan time.Time
}

// New returns a Monitor for the given options.
func New(opts Opts) (*Monitor, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	after := opts.After
	if after == nil {
		after = time.After
	}
	return &Monitor{opts.Explorer, opts.Config, after}, nil
}

// Config returns the polling policy of the monitor.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Watch starts watching the address of the request in background and
// returns a handle to stop it.
func (m *Monitor) Watch(ctx context.Context, req Request, h Handler) *Watch {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		ticketID: req.TicketID,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	w.active.Store(true)

	state := req.State
	state.Address = req.Address
	state.RequiredAmount = req.RequiredAmount
	state.Stopped = false
	state.StopReason = ""
	if state.Interval <= 0 {
		state.Interval = m.cfg.BaseInterval
	}

	s := &session{
		Monitor: m,
		req:     req,
		state:   state,
		handler: h,
		watch:   w,
	}

	stats.ActiveMonitors.Inc()
	go func() {
		defer stats.ActiveMonitors.Dec()
		defer close(w.done)
		defer w.active.Store(false)
		s.run(ctx)
	}()
	return w
}

// Watch is the handle of a running monitor.
type Watch struct {
	ticketID string
	cancel   context.CancelFunc
	done     chan struct{}
	active   atomic.Bool
	once     sync.Once
}

// Stop cancels the watch. It doesn't wait for the goroutine to exit, so it
// can be called from within a handler callback.
func (w *Watch) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.active.Store(false)
		w.cancel()
	})
}

// IsActive returns whether the watch can still emit events.
func (w *Watch) IsActive() bool {
	return w != nil && w.active.Load()
}

// Done is closed once the goroutine of the watch has exited.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

type session struct {
	*Monitor
	req     Request
	state   domain.MonitoredPayment
	handler Handler
	watch   *Watch
}

func (s *session) run(ctx context.Context) {
	logger := log.WithFields(log.Fields{
		"ticket":  s.req.TicketID,
		"address": s.req.Address,
	})

	if s.state.PendingTxID != "" {
		logger.Debugf("resuming confirmation watch of tx %s", s.state.PendingTxID)
		s.watchConfirmation(ctx, s.state.PendingTxID, s.state.PaidAmount)
		return
	}

	logger.Debugf(
		"watching for a payment of %d litoshis", s.req.RequiredAmount,
	)
	s.watchAddress(ctx)
}

// watchAddress polls the transactions of the address until a sufficient
// payment is found, the attempt budget is exhausted or ctx is canceled.
func (s *session) watchAddress(ctx context.Context) {
	rateLimited := 0
	for {
		if s.state.Attempts >= s.cfg.MaxAttempts {
			s.stop(ctx, StopTimeout, fmt.Errorf(
				"no payment received after %d attempts", s.state.Attempts,
			))
			return
		}
		if !s.wait(ctx, s.state.Interval) {
			return
		}

		txs, err := s.explorer.GetTransactionsForAddress(ctx, s.req.Address)
		if err != nil {
			if !s.isActive(ctx) {
				return
			}
			switch {
			case errors.Is(err, explorer.ErrRateLimited):
				rateLimited++
				stats.MonitorPollsTotal.WithLabelValues(loopAddress, "rate_limited").Inc()
				if rateLimited >= s.cfg.MaxConsecutiveRateLimits {
					s.stop(ctx, StopRateLimited, err)
					return
				}
				s.state.Interval = backoff(s.state.Interval, s.cfg.MaxInterval)
				log.WithField("ticket", s.req.TicketID).Debugf(
					"rate limited, next poll in %s", s.state.Interval,
				)
			case errors.Is(err, explorer.ErrNotFound):
				stats.MonitorPollsTotal.WithLabelValues(loopAddress, "not_found").Inc()
				s.stop(ctx, StopAddressNotFound, err)
				return
			default:
				rateLimited = 0
				s.state.Attempts++
				stats.MonitorPollsTotal.WithLabelValues(loopAddress, "error").Inc()
				log.WithError(err).WithField("ticket", s.req.TicketID).Warn(
					"failed to fetch address transactions",
				)
			}
			s.progress(ctx)
			continue
		}

		rateLimited = 0
		s.state.Attempts++
		s.state.Interval = s.cfg.BaseInterval
		stats.MonitorPollsTotal.WithLabelValues(loopAddress, "ok").Inc()

		tx := s.nextIncomingTx(txs)
		if tx == nil {
			s.progress(ctx)
			continue
		}

		paid := tx.PaidTo(s.req.Address)
		if paid < s.req.RequiredAmount {
			s.state.IgnoredTxIDs = append(s.state.IgnoredTxIDs, tx.TxID)
			s.progress(ctx)
			if s.isActive(ctx) {
				s.handler.OnPaymentIgnored(ctx, s.req.TicketID, tx.TxID, paid)
			}
			continue
		}

		if tx.Confirmations >= s.cfg.RequiredConfirmations {
			s.confirmed(ctx, tx.TxID, paid, tx.Confirmations)
			return
		}

		s.state.PendingTxID = tx.TxID
		s.state.PaidAmount = paid
		s.state.Confirmations = tx.Confirmations
		s.state.ConfirmationAttempts = 0
		s.progress(ctx)
		if !s.isActive(ctx) {
			return
		}
		s.handler.OnPaymentDetected(ctx, s.req.TicketID, tx.TxID, paid)
		s.watchConfirmation(ctx, tx.TxID, paid)
		return
	}
}

// watchConfirmation polls the given tx until it reaches the required depth.
// It has its own attempt budget and interval.
func (s *session) watchConfirmation(ctx context.Context, txid string, paid int64) {
	interval := s.cfg.ConfirmationInterval
	maxInterval := s.cfg.MaxInterval
	if maxInterval < interval {
		maxInterval = interval
	}
	rateLimited := 0

	for {
		if s.state.ConfirmationAttempts >= s.cfg.ConfirmationMaxAttempts {
			s.stop(ctx, StopConfirmationTimeout, fmt.Errorf(
				"tx %s not confirmed after %d attempts",
				txid, s.state.ConfirmationAttempts,
			))
			return
		}
		if !s.wait(ctx, interval) {
			return
		}

		tx, err := s.explorer.GetTransaction(ctx, txid)
		if err != nil {
			if !s.isActive(ctx) {
				return
			}
			switch {
			case errors.Is(err, explorer.ErrRateLimited):
				rateLimited++
				stats.MonitorPollsTotal.WithLabelValues(loopConfirmation, "rate_limited").Inc()
				if rateLimited >= s.cfg.MaxConsecutiveRateLimits {
					s.stop(ctx, StopRateLimited, err)
					return
				}
				interval = backoff(interval, maxInterval)
				continue
			case errors.Is(err, explorer.ErrNotFound):
				stats.MonitorPollsTotal.WithLabelValues(loopConfirmation, "not_found").Inc()
				s.stop(ctx, StopTxNotFound, err)
				return
			default:
				rateLimited = 0
				s.state.ConfirmationAttempts++
				stats.MonitorPollsTotal.WithLabelValues(loopConfirmation, "error").Inc()
				log.WithError(err).WithField("ticket", s.req.TicketID).Warnf(
					"failed to fetch tx %s", txid,
				)
				s.progress(ctx)
				continue
			}
		}

		rateLimited = 0
		interval = s.cfg.ConfirmationInterval
		s.state.ConfirmationAttempts++
		s.state.Confirmations = tx.Confirmations
		stats.MonitorPollsTotal.WithLabelValues(loopConfirmation, "ok").Inc()

		if tx.Confirmations >= s.cfg.RequiredConfirmations {
			s.confirmed(ctx, txid, paid, tx.Confirmations)
			return
		}
		s.progress(ctx)
	}
}

// nextIncomingTx returns the first tx paying the address that was neither
// credited nor ignored before.
func (s *session) nextIncomingTx(txs []explorer.Transaction) *explorer.Transaction {
	for i := range txs {
		tx := txs[i]
		if !tx.PaysTo(s.req.Address) {
			continue
		}
		if tx.TxID == s.state.LastSeenTxID || s.isIgnored(tx.TxID) {
			continue
		}
		return &tx
	}
	return nil
}

func (s *session) isIgnored(txid string) bool {
	for _, id := range s.state.IgnoredTxIDs {
		if id == txid {
			return true
		}
	}
	return false
}

func (s *session) confirmed(
	ctx context.Context, txid string, paid int64, confirmations int,
) {
	if !s.isActive(ctx) {
		return
	}
	s.state.LastSeenTxID = txid
	s.state.PendingTxID = ""
	s.state.PaidAmount = paid
	s.state.Confirmations = confirmations
	s.watch.active.Store(false)
	s.handler.OnPaymentConfirmed(ctx, s.req.TicketID, txid, paid, confirmations)
}

func (s *session) stop(ctx context.Context, reason StopReason, err error) {
	if !s.isActive(ctx) {
		return
	}
	s.state.Stopped = true
	s.state.StopReason = string(reason)
	s.watch.active.Store(false)
	log.WithError(err).WithFields(log.Fields{
		"ticket": s.req.TicketID,
		"reason": reason,
	}).Debug("payment monitor giving up")
	s.handler.OnStopped(ctx, s.req.TicketID, reason, err)
}

func (s *session) progress(ctx context.Context) {
	if !s.isActive(ctx) {
		return
	}
	state := s.state
	state.IgnoredTxIDs = append([]string(nil), s.state.IgnoredTxIDs...)
	s.handler.OnProgress(ctx, s.req.TicketID, state)
}

// isActive is checked before every reschedule and every callback, so that a
// stopped watch never emits further events.
func (s *session) isActive(ctx context.Context) bool {
	return ctx.Err() == nil && s.watch.IsActive()
}

func (s *session) wait(ctx context.Context, d time.Duration) bool {
	if !s.isActive(ctx) {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.after(d):
		return s.isActive(ctx)
	}
}
