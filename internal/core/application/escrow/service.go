package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/escrowd/internal/core/application/monitor"
	"github.com/tdex-network/escrowd/internal/core/application/settlement"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/internal/core/ports"
	"github.com/tdex-network/escrowd/pkg/wallet"
)

const (
	// AdminActor is the actor recorded for admin commands.
	AdminActor = "admin"

	defaultSettlementTimeout = 2 * time.Minute
)

// Settler builds and broadcasts settlement transactions.
type Settler interface {
	Settle(ctx context.Context, req settlement.Request) (*settlement.Result, error)
}

// EventResult is what the caller replies to the actor of an event.
type EventResult struct {
	TicketID   string             `json:"ticketId"`
	Status     string             `json:"status"`
	Message    string             `json:"message"`
	Advanced   bool               `json:"advanced"`
	Settlement *domain.Settlement `json:"settlement,omitempty"`
}

// Opts defines the parameters needed for creating a Service with
// NewService.
type Opts struct {
	RepoManager ports.RepoManager
	Monitor     *monitor.Monitor
	Settler     Settler
	Wallets     ports.WalletProvisioner
	PriceFeeder ports.PriceFeeder
	Notifier    ports.Notifier
	// SecretBox seals wallet secrets before they hit the ledger. Secrets are
	// stored in clear text if nil.
	SecretBox          *wallet.SecretBox
	AdminIDs           []string
	MaxAddressAttempts int
	DefaultCurrency    string
	SettlementTimeout  time.Duration
}

func (o Opts) validate() error {
	if o.RepoManager == nil {
		return fmt.Errorf("missing repository manager")
	}
	if o.Monitor == nil {
		return fmt.Errorf("missing payment monitor")
	}
	if o.Settler == nil {
		return fmt.Errorf("missing settlement builder")
	}
	if o.Wallets == nil {
		return fmt.Errorf("missing wallet provisioner")
	}
	if o.PriceFeeder == nil {
		return fmt.Errorf("missing price feeder")
	}
	if o.Notifier == nil {
		return fmt.Errorf("missing notifier")
	}
	if o.MaxAddressAttempts < 0 {
		return fmt.Errorf("max address attempts must not be negative")
	}
	if o.DefaultCurrency == "" && len(o.PriceFeeder.Currencies()) <= 0 {
		return fmt.Errorf("missing default currency")
	}
	return nil
}

// Service is the escrow engine. Every event targeting a ticket is
// serialized by the lock of the ticket session.
type Service struct {
	repo      ports.RepoManager
	monitor   *monitor.Monitor
	settler   Settler
	wallets   ports.WalletProvisioner
	prices    ports.PriceFeeder
	notifier  ports.Notifier
	secretBox *wallet.SecretBox

	admins            map[string]struct{}
	rules             domain.Rules
	defaultCurrency   string
	settlementTimeout time.Duration

	registry registry
	stats    statsKeeper

	// ctx bounds the lifetime of the payment monitors.
	ctx     context.Context
	cancel  context.CancelFunc
	lock    sync.RWMutex
	stopped bool
}

// NewService returns a Service for the given options.
func NewService(opts Opts) (*Service, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	admins := make(map[string]struct{})
	for _, id := range opts.AdminIDs {
		if id = strings.TrimSpace(id); id != "" && id != AdminActor {
			admins[id] = struct{}{}
		}
	}
	currency := strings.ToUpper(opts.DefaultCurrency)
	if currency == "" {
		currency = strings.ToUpper(opts.PriceFeeder.Currencies()[0])
	}
	timeout := opts.SettlementTimeout
	if timeout <= 0 {
		timeout = defaultSettlementTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:      opts.RepoManager,
		monitor:   opts.Monitor,
		settler:   opts.Settler,
		wallets:   opts.Wallets,
		prices:    opts.PriceFeeder,
		notifier:  opts.Notifier,
		secretBox: opts.SecretBox,
		admins:    admins,
		rules: domain.Rules{
			MaxAddressAttempts: opts.MaxAddressAttempts,
			IsValidAddress:     opts.Wallets.IsValidAddress,
		},
		defaultCurrency:   currency,
		settlementTimeout: timeout,
		ctx:               ctx,
		cancel:            cancel,
	}, nil
}

// CreateTicket opens a new deal owned by the given user.
func (s *Service) CreateTicket(
	ctx context.Context, owner, description string,
) (string, error) {
	if s.isStopped() {
		return "", ErrServiceStopped
	}

	ticket, err := domain.NewTicket(owner, description)
	if err != nil {
		return "", err
	}
	if err := s.repo.TicketRepository().AddTicket(ctx, ticket); err != nil {
		return "", fmt.Errorf("failed to store ticket: %w", err)
	}
	s.registry.add(ticket)
	s.stats.ticketCreated()

	log.WithFields(log.Fields{
		"ticket": ticket.ID,
		"owner":  ticket.Owner,
	}).Info("ticket created")
	return ticket.ID, nil
}

// HandleEvent applies an interaction of a participant to a ticket.
func (s *Service) HandleEvent(
	ctx context.Context,
	ticketID string, kind domain.EventKind, actor, payload string,
) (*EventResult, error) {
	if s.isStopped() {
		return nil, ErrServiceStopped
	}
	if !kind.IsValid() {
		return nil, domain.ErrUnknownEvent
	}

	ev := domain.Event{
		Kind:    kind,
		Actor:   strings.TrimSpace(actor),
		IsAdmin: s.IsAdmin(actor),
		Payload: payload,
	}
	// The rate is fetched before acquiring the lock of the ticket.
	if kind == domain.EventSetAmount {
		quote, err := s.quote(ctx, payload)
		if err != nil {
			return nil, err
		}
		ev.Quote = quote
	}
	return s.apply(ctx, ticketID, ev)
}

// AdminRelease forces the release of the funds to the seller, skipping the
// decision of the buyer.
func (s *Service) AdminRelease(
	ctx context.Context, ticketID string,
) (*EventResult, error) {
	if s.isStopped() {
		return nil, ErrServiceStopped
	}
	return s.apply(ctx, ticketID, domain.Event{
		Kind: domain.EventRelease, Actor: AdminActor, IsAdmin: true,
	})
}

// AdminCancel forces the refund of the buyer, skipping the confirmations of
// the participants.
func (s *Service) AdminCancel(
	ctx context.Context, ticketID string,
) (*EventResult, error) {
	if s.isStopped() {
		return nil, ErrServiceStopped
	}
	return s.apply(ctx, ticketID, domain.Event{
		Kind: domain.EventCancel, Actor: AdminActor, IsAdmin: true,
	})
}

// GetTicket returns a copy of the ticket with the wallet secrets stripped.
// Tickets retained in the ledger after being closed are returned too.
func (s *Service) GetTicket(
	ctx context.Context, ticketID string,
) (*domain.Ticket, error) {
	if sess, err := s.registry.lock(ticketID); err == nil {
		defer sess.lock.Unlock()
		return redactedCopy(sess.ticket)
	}

	ticket, err := s.repo.TicketRepository().GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return redactedCopy(ticket)
}

// ListTickets returns a redacted copy of every live ticket, oldest first.
func (s *Service) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	sessions := s.registry.all()
	list := make([]domain.Ticket, 0, len(sessions))
	for _, sess := range sessions {
		sess.lock.Lock()
		if sess.removed {
			sess.lock.Unlock()
			continue
		}
		t, err := redactedCopy(sess.ticket)
		sess.lock.Unlock()
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	sortTickets(list)
	return list, nil
}

// Stats returns the aggregate counters of the engine.
func (s *Service) Stats() Stats {
	return s.stats.get()
}

// IsAdmin returns whether the given user is allowed to run admin commands.
// The reserved AdminActor is never granted to a user.
func (s *Service) IsAdmin(actor string) bool {
	_, ok := s.admins[strings.TrimSpace(actor)]
	return ok
}

// Stop cancels every running payment monitor. Settlements in flight are not
// interrupted.
func (s *Service) Stop() {
	s.lock.Lock()
	if s.stopped {
		s.lock.Unlock()
		return
	}
	s.stopped = true
	s.lock.Unlock()

	s.cancel()
	for _, sess := range s.registry.all() {
		sess.lock.Lock()
		sess.stopWatch()
		sess.lock.Unlock()
	}
	log.Debug("escrow service stopped")
}

func (s *Service) isStopped() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.stopped
}

// quote parses payloads like "100.00" or "100.00 EUR" and converts the
// amount at the current rate.
func (s *Service) quote(ctx context.Context, payload string) (*domain.Quote, error) {
	fields := strings.Fields(strings.ReplaceAll(payload, ",", ""))
	if len(fields) <= 0 || len(fields) > 2 {
		return nil, domain.ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(strings.TrimLeft(fields[0], "$€"))
	if err != nil || !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	currency := s.defaultCurrency
	if len(fields) == 2 {
		currency = strings.ToUpper(fields[1])
	}
	if !s.isSupportedCurrency(currency) {
		return nil, fmt.Errorf("%w %s", ErrUnsupportedCurrency, currency)
	}

	rate, err := s.prices.GetRate(ctx, currency)
	if err != nil {
		log.WithError(err).Warnf("failed to fetch LTC/%s rate", currency)
		return nil, ErrPriceUnavailable
	}
	quote, err := domain.NewQuote(amount, currency, rate)
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (s *Service) isSupportedCurrency(currency string) bool {
	for _, c := range s.prices.Currencies() {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}

// redactedCopy deep copies the ticket and strips the wallet secrets.
func redactedCopy(t *domain.Ticket) (*domain.Ticket, error) {
	buf, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	cp := &domain.Ticket{}
	if err := json.Unmarshal(buf, cp); err != nil {
		return nil, err
	}
	if cp.Wallet != nil {
		cp.Wallet.PrivateKey = ""
		cp.Wallet.Mnemonic = ""
	}
	return cp, nil
}
