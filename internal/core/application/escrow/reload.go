package escrow

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/internal/core/ports"
)

const interruptedSettlement = "interrupted by restart, check the explorer before retrying"

// ReloadTickets restores the sessions of the live tickets stored in the
// ledger and resumes their payment monitors. Tickets already in memory are
// left untouched. It returns the number of restored tickets.
func (s *Service) ReloadTickets(ctx context.Context) (int, error) {
	if s.isStopped() {
		return 0, ErrServiceStopped
	}

	tickets, err := s.repo.TicketRepository().GetAllTickets(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load tickets from ledger: %w", err)
	}

	count := 0
	for _, ticket := range tickets {
		if ticket.IsTerminal() {
			continue
		}
		sess, ok := s.registry.add(ticket)
		if !ok {
			continue
		}
		count++
		s.stats.ticketLoaded(ticket.Status)

		sess.lock.Lock()
		notifications := s.resume(ctx, sess)
		sess.lock.Unlock()

		s.notify(ctx, notifications...)
	}

	log.Infof("restored %d tickets from ledger", count)
	return count, nil
}

// resume restarts what the ticket was doing when the process stopped. The
// lock of the session must be held.
func (s *Service) resume(ctx context.Context, sess *session) []ports.Notification {
	ticket := sess.ticket
	logger := log.WithFields(log.Fields{
		"ticket": ticket.ID,
		"status": ticket.Status,
	})

	// A broadcast may or may not have happened, the settlement is never
	// repeated automatically.
	if ticket.Settlement != nil && ticket.Settlement.InFlight {
		outcome, err := ticket.FailSettlement(interruptedSettlement)
		if err != nil {
			logger.WithError(err).Warn("failed to reset interrupted settlement")
			return nil
		}
		logger.Warn("settlement was interrupted by a restart")
		s.persist(ctx, ticket)
		return []ports.Notification{
			s.notificationOf(ticket, outcome),
			s.adminAlert(ticket, fmt.Sprintf(
				"settlement to %s %s", ticket.Settlement.Destination, interruptedSettlement,
			)),
		}
	}

	if ticket.Status != domain.TicketStatusPaymentMonitoring {
		return nil
	}
	if ticket.Wallet == nil || ticket.Payment == nil {
		logger.Error("ticket awaiting payment has no escrow wallet")
		return []ports.Notification{
			s.adminAlert(ticket, "ticket awaiting payment has no escrow wallet"),
		}
	}
	if ticket.Payment.Stopped {
		logger.Debug("payment monitor was stopped, waiting for a restart")
		return nil
	}

	s.startWatch(sess)
	logger.Info("payment monitor resumed")
	return nil
}
