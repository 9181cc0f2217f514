package escrow

import (
	"context"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/internal/core/ports"
)

const notifyTimeout = 15 * time.Second

func (s *Service) notificationOf(
	ticket *domain.Ticket, outcome *domain.Outcome,
) ports.Notification {
	return ports.Notification{
		TicketID:   ticket.ID,
		Kind:       ports.NotificationTicketUpdate,
		Status:     ticket.Status.String(),
		Message:    outcome.Message,
		Recipients: ticket.Participants(),
		Timestamp:  time.Now().Unix(),
	}
}

func (s *Service) adminAlert(ticket *domain.Ticket, msg string) ports.Notification {
	admins := make([]string, 0, len(s.admins))
	for id := range s.admins {
		admins = append(admins, id)
	}
	sort.Strings(admins)

	return ports.Notification{
		TicketID:   ticket.ID,
		Kind:       ports.NotificationAdminAlert,
		Status:     ticket.Status.String(),
		Message:    msg,
		Recipients: admins,
		Timestamp:  time.Now().Unix(),
	}
}

// notify delivers the notifications in order. It must never be called with
// the lock of a ticket held by the caller, unless the notification is
// critical.
func (s *Service) notify(ctx context.Context, notifications ...ports.Notification) {
	if len(notifications) <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	for _, n := range notifications {
		if n.Message == "" {
			continue
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"ticket": n.TicketID,
				"kind":   n.Kind,
			}).Warn("failed to deliver notification")
		}
	}
}
