package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/escrowd/internal/core/application/monitor"
	"github.com/tdex-network/escrowd/internal/core/application/settlement"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/internal/core/ports"
)

// pendingSettlement is captured under the lock of the ticket and executed
// once the lock is released.
type pendingSettlement struct {
	req  settlement.Request
	kind domain.SettlementKind
}

// apply runs the event against the ticket under its lock, performs the
// effects that must happen atomically with the transition, and executes
// the slow ones after the lock is released.
func (s *Service) apply(
	ctx context.Context, ticketID string, ev domain.Event,
) (*EventResult, error) {
	sess, err := s.registry.lock(ticketID)
	if err != nil {
		return nil, err
	}

	outcome, err := sess.ticket.Apply(ev, s.rules)
	if err != nil {
		// Invalid addresses consume an attempt of the entry.
		if ev.Kind == domain.EventSubmitAddress && errors.Is(err, domain.ErrValidation) {
			s.persist(ctx, sess.ticket)
		}
		sess.lock.Unlock()
		log.WithError(err).WithFields(log.Fields{
			"ticket": ticketID,
			"event":  ev.Kind,
			"actor":  ev.Actor,
		}).Debug("event rejected")
		return nil, err
	}

	notifications, pending, err := s.execute(ctx, sess, outcome)
	result := s.resultOf(sess.ticket, outcome)
	sess.lock.Unlock()

	s.notify(ctx, notifications...)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return result, nil
	}
	return s.settle(ctx, ticketID, pending)
}

// execute performs the effects of the outcome that need the lock, persists
// the ticket and returns the notifications to send and the settlement to
// run, if any. The lock of the session must be held.
func (s *Service) execute(
	ctx context.Context, sess *session, outcome *domain.Outcome,
) ([]ports.Notification, *pendingSettlement, error) {
	ticket := sess.ticket
	logger := log.WithFields(log.Fields{
		"ticket": ticket.ID,
		"event":  outcome.Event,
		"status": outcome.To,
	})
	notifications := []ports.Notification{s.notificationOf(ticket, outcome)}
	s.stats.transition(outcome.From, outcome.To)

	var (
		pending *pendingSettlement
		err     error
	)
	for _, effect := range outcome.Effects {
		switch effect {
		case domain.EffectProvisionWallet:
			if err = s.provisionWallet(ctx, sess); err != nil {
				logger.WithError(err).Error("failed to provision escrow wallet")
				notifications = append(notifications, s.adminAlert(
					ticket, fmt.Sprintf("wallet provisioning failed: %s", err),
				))
			}
		case domain.EffectStartMonitor:
			if err != nil {
				continue
			}
			s.startWatch(sess)
		case domain.EffectStopMonitor:
			sess.stopWatch()
		case domain.EffectRequestAddress:
			if ticket.AddressEntry != nil {
				notifications[0].Kind = ports.NotificationAddressRequest
				notifications[0].Recipients = []string{ticket.AddressEntry.Expected}
			}
		case domain.EffectSettle:
			pending, err = s.pendingSettlement(ticket)
			if err != nil {
				logger.WithError(err).Error("failed to load escrow wallet key")
				if out, ferr := ticket.FailSettlement(err.Error()); ferr == nil {
					notifications = append(notifications, s.notificationOf(ticket, out))
				}
				notifications = append(notifications, s.adminAlert(ticket, err.Error()))
			}
		case domain.EffectAlertAdmins:
			notifications = append(notifications, s.adminAlert(ticket, outcome.Message))
		}
	}

	if ticket.IsTerminal() {
		s.finalize(ctx, sess)
	} else {
		s.persist(ctx, ticket)
	}

	logger.Debugf("event applied: %s", outcome.Message)
	return notifications, pending, err
}

// provisionWallet creates the escrow wallet of the ticket and stores it
// before the address is shown to anyone.
func (s *Service) provisionWallet(ctx context.Context, sess *session) error {
	ticket := sess.ticket
	bundle, err := s.wallets.Provision(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrWalletProvisioning, err)
	}
	if !s.wallets.IsValidAddress(bundle.Address) {
		return fmt.Errorf(
			"%w: provisioned address %s is not valid", ErrWalletProvisioning, bundle.Address,
		)
	}

	w := domain.Wallet{
		Address:        bundle.Address,
		PrivateKey:     bundle.PrivateKey,
		Mnemonic:       bundle.Mnemonic,
		DerivationPath: bundle.DerivationPath,
	}
	if s.secretBox != nil {
		if w.PrivateKey, err = s.secretBox.Seal(bundle.PrivateKey); err != nil {
			return fmt.Errorf("%w: %s", ErrWalletProvisioning, err)
		}
		if w.Mnemonic, err = s.secretBox.Seal(bundle.Mnemonic); err != nil {
			return fmt.Errorf("%w: %s", ErrWalletProvisioning, err)
		}
		w.Sealed = true
	}
	if err := ticket.AttachWallet(w); err != nil {
		return fmt.Errorf("%w: %s", ErrWalletProvisioning, err)
	}

	if err := s.repo.TicketRepository().SaveTicket(ctx, ticket); err != nil {
		// The wallet only lives in memory now. Funds sent to it can be lost
		// if the process stops before the ticket is stored again.
		log.WithError(err).WithFields(log.Fields{
			"ticket":  ticket.ID,
			"address": w.Address,
		}).Error("CRITICAL: failed to store escrow wallet in ledger")
		s.notify(ctx, s.adminAlert(ticket, fmt.Sprintf(
			"escrow wallet %s could not be stored in the ledger: %s", w.Address, err,
		)))
	}

	log.WithFields(log.Fields{
		"ticket":  ticket.ID,
		"address": w.Address,
		"amount":  ticket.Terms.Amount(),
	}).Info("escrow wallet provisioned")
	return nil
}

// startWatch starts the payment monitor of the ticket, replacing any
// previous one. The lock of the session must be held.
func (s *Service) startWatch(sess *session) {
	ticket := sess.ticket
	if ticket.Payment == nil || ticket.Payment.IsConfirmed() {
		return
	}
	sess.stopWatch()
	sess.watch = s.monitor.Watch(s.ctx, monitor.Request{
		TicketID:       ticket.ID,
		Address:        ticket.Payment.Address,
		RequiredAmount: ticket.Payment.RequiredAmount,
		State:          *ticket.Payment,
	}, &monitorHandler{s})
}

func (s *Service) pendingSettlement(ticket *domain.Ticket) (*pendingSettlement, error) {
	if ticket.Wallet == nil {
		return nil, domain.ErrMissingWallet
	}
	wif := ticket.Wallet.PrivateKey
	if ticket.Wallet.Sealed {
		if s.secretBox == nil {
			return nil, fmt.Errorf("wallet key is sealed but no secret box is configured")
		}
		var err error
		if wif, err = s.secretBox.Open(wif); err != nil {
			return nil, fmt.Errorf("failed to unseal wallet key: %w", err)
		}
	}
	key, err := s.wallets.PrivateKey(wif)
	if err != nil {
		return nil, err
	}

	return &pendingSettlement{
		kind: ticket.Settlement.Kind,
		req: settlement.Request{
			TicketID:    ticket.ID,
			PrivateKey:  key,
			Destination: ticket.Settlement.Destination,
			Amount:      ticket.Settlement.Intended,
		},
	}, nil
}

// settle broadcasts the settlement outside of the lock of the ticket. The
// in-flight flag of the settlement keeps any conflicting event out in the
// meantime.
func (s *Service) settle(
	ctx context.Context, ticketID string, pending *pendingSettlement,
) (*EventResult, error) {
	settleCtx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx), s.settlementTimeout,
	)
	defer cancel()

	res, settleErr := s.settler.Settle(settleCtx, pending.req)
	amount := int64(0)
	if res != nil {
		amount = res.Actual
	}
	s.stats.settlement(pending.kind, amount, settleErr)

	sess, err := s.registry.lock(ticketID)
	if err != nil {
		if settleErr == nil {
			log.WithError(err).WithFields(log.Fields{
				"ticket": ticketID,
				"txid":   res.TxID,
			}).Error("settlement broadcasted for a ticket no longer in memory")
		}
		return nil, err
	}

	var outcome *domain.Outcome
	if settleErr != nil {
		log.WithError(settleErr).WithField("ticket", ticketID).Warn("settlement failed")
		outcome, err = sess.ticket.FailSettlement(settleErr.Error())
	} else {
		outcome, err = sess.ticket.CompleteSettlement(domain.SettlementResult{
			Actual:   res.Actual,
			Fee:      res.Fee,
			Change:   res.Change,
			TxID:     res.TxID,
			Degraded: res.Degraded,
		})
	}
	if err != nil {
		sess.lock.Unlock()
		return nil, err
	}

	notifications, _, _ := s.execute(ctx, sess, outcome)
	if settleErr == nil {
		notifications[0].Kind = ports.NotificationSettlement
	}
	result := s.resultOf(sess.ticket, outcome)
	sess.lock.Unlock()

	s.notify(ctx, notifications...)
	if settleErr != nil {
		return result, settleErr
	}
	return result, nil
}

// finalize removes a terminal ticket from memory. Settled tickets are
// dropped from the ledger unless their wallet still holds change. Closed
// tickets holding a wallet are kept for a manual recovery. The lock of the
// session must be held.
func (s *Service) finalize(ctx context.Context, sess *session) {
	ticket := sess.ticket
	sess.stopWatch()
	sess.removed = true
	s.registry.remove(ticket.ID)

	keep := ticket.Wallet != nil
	if ticket.Settlement != nil && ticket.Settlement.TxID != "" {
		keep = ticket.Settlement.Change > 0
	}

	repo := s.repo.TicketRepository()
	logger := log.WithFields(log.Fields{
		"ticket": ticket.ID,
		"status": ticket.Status,
	})
	if keep {
		if err := repo.SaveTicket(ctx, ticket); err != nil {
			logger.WithError(err).Error("failed to store terminal ticket holding a wallet")
			return
		}
		logger.Info("ticket finalized, record retained for wallet recovery")
		return
	}
	if err := repo.DeleteTicket(ctx, ticket.ID); err != nil &&
		!errors.Is(err, domain.ErrTicketNotFound) {
		logger.WithError(err).Warn("failed to delete terminal ticket from ledger")
		return
	}
	logger.Info("ticket finalized")
}

// persist overwrites the ledger record of the ticket. Failures are logged
// and the in-memory state is kept.
func (s *Service) persist(ctx context.Context, ticket *domain.Ticket) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.repo.TicketRepository().SaveTicket(ctx, ticket); err != nil {
		log.WithError(err).WithField("ticket", ticket.ID).Warn(
			"failed to store ticket, ledger is behind memory",
		)
	}
}

func (s *Service) resultOf(ticket *domain.Ticket, outcome *domain.Outcome) *EventResult {
	res := &EventResult{
		TicketID: ticket.ID,
		Status:   ticket.Status.String(),
		Message:  outcome.Message,
		Advanced: outcome.Advanced(),
	}
	if ticket.Settlement != nil {
		cp := *ticket.Settlement
		res.Settlement = &cp
	}
	return res
}
