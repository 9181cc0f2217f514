package lognotifier

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/escrowd/internal/core/ports"
	"github.com/tdex-network/escrowd/pkg/stats"
)

type service struct {
	logger log.FieldLogger
}

// NewService returns a notifier that only writes notifications to the given
// logger, or the standard one if nil. Useful when no chat bot is attached.
func NewService(logger log.FieldLogger) ports.Notifier {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &service{logger}
}

func (s *service) Notify(_ context.Context, n ports.Notification) error {
	entry := s.logger.WithFields(log.Fields{
		"ticket":     n.TicketID,
		"kind":       n.Kind,
		"status":     n.Status,
		"recipients": n.Recipients,
	})
	if n.Kind == ports.NotificationAdminAlert {
		entry.Warn(n.Message)
	} else {
		entry.Info(n.Message)
	}
	stats.NotificationsTotal.WithLabelValues("log", "ok").Inc()
	return nil
}

func (s *service) Close() error {
	return nil
}
