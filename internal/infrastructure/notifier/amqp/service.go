package amqpnotifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/escrowd/internal/core/ports"
	"github.com/tdex-network/escrowd/pkg/stats"
)

const (
	// DefaultExchange is the topic exchange notifications are published to.
	DefaultExchange = "escrowd.notifications"

	routingKeyPrefix = "ticket."
)

var (
	// ErrNullURL ...
	ErrNullURL = errors.New("amqp url must not be null")
	// ErrClosed ...
	ErrClosed = errors.New("notifier is closed")
)

// Config holds the connection parameters of the broker.
type Config struct {
	URL      string
	Exchange string
}

// channel is the subset of *amqp.Channel used to publish.
type channel interface {
	PublishWithContext(
		ctx context.Context, exchange, key string, mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

type service struct {
	conn     *amqp.Connection
	exchange string

	lock   sync.Mutex
	ch     channel
	closed bool
}

// NewService connects to the broker and declares a durable topic exchange.
// Notifications are routed with the key "ticket.<kind>" so that bots can bind
// queues to the kinds they care about.
func NewService(cfg Config) (ports.Notifier, error) {
	if cfg.URL == "" {
		return nil, ErrNullURL
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, amqp.ExchangeTopic, true, false, false, false, nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare amqp exchange: %w", err)
	}

	svc := newService(ch, exchange)
	svc.conn = conn
	return svc, nil
}

func newService(ch channel, exchange string) *service {
	return &service{ch: ch, exchange: exchange}
}

func (s *service) Notify(ctx context.Context, n ports.Notification) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return ErrClosed
	}

	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	err = s.ch.PublishWithContext(
		ctx, s.exchange, RoutingKey(n.Kind), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Unix(n.Timestamp, 0),
			Type:         string(n.Kind),
			Body:         body,
		},
	)
	result := "ok"
	if err != nil {
		result = "error"
		log.WithError(err).WithField("ticket", n.TicketID).Debug(
			"failed to publish notification",
		)
	}
	stats.NotificationsTotal.WithLabelValues("amqp", result).Inc()
	return err
}

func (s *service) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.ch.Close(); err != nil {
		log.WithError(err).Warn("failed to close amqp channel")
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// RoutingKey returns the key a notification of the given kind is published
// with.
func RoutingKey(kind ports.NotificationKind) string {
	return routingKeyPrefix + string(kind)
}
