package escrow

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/escrowd/internal/core/application/monitor"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/internal/core/ports"
)

// monitorHandler turns the events of a payment monitor into transitions of
// the watched ticket.
type monitorHandler struct {
	svc *Service
}

func (h *monitorHandler) OnProgress(
	ctx context.Context, ticketID string, state domain.MonitoredPayment,
) {
	sess, err := h.svc.registry.lock(ticketID)
	if err != nil {
		return
	}
	defer sess.lock.Unlock()

	if err := sess.ticket.UpdatePayment(state); err != nil {
		log.WithError(err).WithField("ticket", ticketID).Debug(
			"discarded payment monitor progress",
		)
		return
	}
	h.svc.persist(ctx, sess.ticket)
}

func (h *monitorHandler) OnPaymentIgnored(
	_ context.Context, ticketID, txid string, amount int64,
) {
	log.WithFields(log.Fields{
		"ticket": ticketID,
		"txid":   txid,
		"amount": amount,
	}).Info("ignored payment below the required amount")
}

func (h *monitorHandler) OnPaymentDetected(
	ctx context.Context, ticketID, txid string, amount int64,
) {
	h.transition(ctx, ticketID, ports.NotificationPaymentDetected,
		func(t *domain.Ticket) (*domain.Outcome, error) {
			return t.MarkPaymentSeen(txid, amount)
		},
	)
}

func (h *monitorHandler) OnPaymentConfirmed(
	ctx context.Context, ticketID, txid string, amount int64, confirmations int,
) {
	h.transition(ctx, ticketID, ports.NotificationPaymentConfirmed,
		func(t *domain.Ticket) (*domain.Outcome, error) {
			return t.ConfirmPayment(txid, amount, confirmations)
		},
	)
}

func (h *monitorHandler) OnStopped(
	ctx context.Context, ticketID string, reason monitor.StopReason, err error,
) {
	log.WithError(err).WithFields(log.Fields{
		"ticket": ticketID,
		"reason": reason,
	}).Warn("payment monitor stopped")

	msg := string(reason)
	if err != nil {
		msg = fmt.Sprintf("%s (%s)", reason, err)
	}
	h.transition(ctx, ticketID, ports.NotificationMonitorTimeout,
		func(t *domain.Ticket) (*domain.Outcome, error) {
			return t.MarkMonitorStopped(msg)
		},
	)
}

func (h *monitorHandler) transition(
	ctx context.Context, ticketID string, kind ports.NotificationKind,
	fn func(t *domain.Ticket) (*domain.Outcome, error),
) {
	sess, err := h.svc.registry.lock(ticketID)
	if err != nil {
		return
	}

	outcome, err := fn(sess.ticket)
	if err != nil {
		sess.lock.Unlock()
		log.WithError(err).WithField("ticket", ticketID).Debug(
			"discarded payment monitor event",
		)
		return
	}
	if kind == ports.NotificationMonitorTimeout {
		// The watch exits on its own once it gives up.
		sess.watch = nil
	}

	notifications, _, _ := h.svc.execute(ctx, sess, outcome)
	notifications[0].Kind = kind
	sess.lock.Unlock()

	h.svc.notify(ctx, notifications...)
}
