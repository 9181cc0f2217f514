package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus represents the different statuses that a ticket can assume.
type TicketStatus int

const (
	TicketStatusCreated TicketStatus = iota
	TicketStatusAwaitingCounterparty
	TicketStatusRoleSelection
	TicketStatusRoleConfirmation
	TicketStatusTosAgreement
	TicketStatusAmountNegotiation
	TicketStatusAmountConfirmation
	TicketStatusPaymentMonitoring
	TicketStatusAwaitingReleaseDecision
	TicketStatusReleasing
	TicketStatusReleased
	TicketStatusCancelling
	TicketStatusConfirmCancel
	TicketStatusRefunding
	TicketStatusRefunded
	TicketStatusClosed
)

var ticketStatusToString = map[TicketStatus]string{
	TicketStatusCreated:                 "created",
	TicketStatusAwaitingCounterparty:    "awaiting_counterparty",
	TicketStatusRoleSelection:           "role_selection",
	TicketStatusRoleConfirmation:        "role_confirmation",
	TicketStatusTosAgreement:            "tos_agreement",
	TicketStatusAmountNegotiation:       "amount_negotiation",
	TicketStatusAmountConfirmation:      "amount_confirmation",
	TicketStatusPaymentMonitoring:       "payment_monitoring",
	TicketStatusAwaitingReleaseDecision: "awaiting_release_decision",
	TicketStatusReleasing:               "releasing",
	TicketStatusReleased:                "released",
	TicketStatusCancelling:              "cancelling",
	TicketStatusConfirmCancel:           "confirm_cancel",
	TicketStatusRefunding:               "refunding",
	TicketStatusRefunded:                "refunded",
	TicketStatusClosed:                  "closed",
}

// AllTicketStatuses lists every status in lifecycle order.
func AllTicketStatuses() []TicketStatus {
	list := make([]TicketStatus, 0, len(ticketStatusToString))
	for s := TicketStatusCreated; s <= TicketStatusClosed; s++ {
		list = append(list, s)
	}
	return list
}

func (s TicketStatus) String() string {
	if str, ok := ticketStatusToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// IsTerminal returns whether no further mutation is allowed in this status.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusReleased ||
		s == TicketStatusRefunded ||
		s == TicketStatusClosed
}

func (s TicketStatus) MarshalText() ([]byte, error) {
	str, ok := ticketStatusToString[s]
	if !ok {
		return nil, fmt.Errorf("unknown ticket status %d", int(s))
	}
	return []byte(str), nil
}

func (s *TicketStatus) UnmarshalText(text []byte) error {
	status, ok := TicketStatusFromString(string(text))
	if !ok {
		return fmt.Errorf("unknown ticket status %q", string(text))
	}
	*s = status
	return nil
}

// TicketStatusFromString parses the string representation of a status.
func TicketStatusFromString(str string) (TicketStatus, bool) {
	for status, s := range ticketStatusToString {
		if s == str {
			return status, true
		}
	}
	return 0, false
}

// Role is the part a participant plays in a deal.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// IsValid ...
func (r Role) IsValid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// Stage identifies a step of the workflow that requires both participants
// to confirm before the ticket can advance.
type Stage string

const (
	StageRoles      Stage = "roles"
	StageTos        Stage = "tos"
	StageAmount     Stage = "amount"
	StageCancel     Stage = "cancel"
	StagePayment    Stage = "payment"
	StageSettlement Stage = "settlement"
)

// ConfirmationSet is the set of participants that confirmed a stage.
// Insertion is idempotent and preserves arrival order.
type ConfirmationSet []string

// Has ...
func (s ConfirmationSet) Has(id string) bool {
	for _, m := range s {
		if m == id {
			return true
		}
	}
	return false
}

// Add inserts the id and returns false if it was already a member.
func (s *ConfirmationSet) Add(id string) bool {
	if s.Has(id) {
		return false
	}
	*s = append(*s, id)
	return true
}

// Len ...
func (s ConfirmationSet) Len() int {
	return len(s)
}

// ContainsAll returns whether every one of the given ids is a member. It's
// false for an empty list.
func (s ConfirmationSet) ContainsAll(ids ...string) bool {
	if len(ids) <= 0 {
		return false
	}
	for _, id := range ids {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// Quote is the conversion of a fiat amount into litoshis at a given rate.
type Quote struct {
	FiatAmount decimal.Decimal `json:"fiatAmount"`
	Currency   string          `json:"currency"`
	// Rate is the price of 1 LTC in Currency.
	Rate     decimal.Decimal `json:"rate"`
	Litoshis int64           `json:"litoshis"`
}

// NewQuote converts the fiat amount into litoshis, rounding up so that the
// seller never receives less than the agreed value.
func NewQuote(fiat decimal.Decimal, currency string, rate decimal.Decimal) (Quote, error) {
	if !fiat.IsPositive() {
		return Quote{}, ErrInvalidAmount
	}
	if !rate.IsPositive() {
		return Quote{}, ErrInvalidRate
	}
	litoshis := fiat.Div(rate).Mul(decimal.NewFromInt(LitoshisPerCoin)).Ceil()
	if !litoshis.IsPositive() || !litoshis.BigInt().IsInt64() {
		return Quote{}, ErrInvalidAmount
	}
	return Quote{
		FiatAmount: fiat,
		Currency:   currency,
		Rate:       rate,
		Litoshis:   litoshis.IntPart(),
	}, nil
}

// DealTerms are the economic terms of a ticket. They are finalized once
// both participants confirm the amount.
type DealTerms struct {
	Buyer      string `json:"buyer"`
	Seller     string `json:"seller"`
	Quote      *Quote `json:"quote,omitempty"`
	ProposedBy string `json:"proposedBy,omitempty"`
	Finalized  bool   `json:"finalized"`
}

// Amount returns the amount of litoshis owed by the buyer.
func (t DealTerms) Amount() int64 {
	if t.Quote == nil {
		return 0
	}
	return t.Quote.Litoshis
}

// Wallet is the single-use custodial wallet of a ticket. PrivateKey and
// Mnemonic are sealed when Sealed is true.
type Wallet struct {
	Address        string `json:"address"`
	PrivateKey     string `json:"privateKey"`
	Mnemonic       string `json:"mnemonic"`
	DerivationPath string `json:"derivationPath"`
	Sealed         bool   `json:"sealed"`
	CreatedAt      int64  `json:"createdAt"`
}

// Stop reasons of a payment monitor that gave up on its pending tx.
const (
	StopReasonConfirmationTimeout = "confirmation_timeout"
	StopReasonTxNotFound          = "transaction_not_found"
)

// MonitoredPayment is the persisted state of the payment monitor of a
// ticket, so that monitoring can resume after a restart.
type MonitoredPayment struct {
	Address        string `json:"address"`
	RequiredAmount int64  `json:"requiredAmount"`
	// LastSeenTxID is the dedupe key: the tx already credited, never
	// credited again.
	LastSeenTxID  string `json:"lastSeenTxId,omitempty"`
	PendingTxID   string `json:"pendingTxId,omitempty"`
	PaidAmount    int64  `json:"paidAmount"`
	Confirmations int    `json:"confirmations"`
	// IgnoredTxIDs are incoming txs paying less than required, or pending
	// txs dropped by an admin restart.
	IgnoredTxIDs         []string      `json:"ignoredTxIds,omitempty"`
	Attempts             int           `json:"attempts"`
	ConfirmationAttempts int           `json:"confirmationAttempts"`
	Interval             time.Duration `json:"interval"`
	Stopped              bool          `json:"stopped"`
	StopReason           string        `json:"stopReason,omitempty"`
	ConfirmedAt          int64         `json:"confirmedAt,omitempty"`
}

// HasDroppedPendingTx returns whether the monitor stopped because the
// pending tx vanished or never confirmed.
func (p *MonitoredPayment) HasDroppedPendingTx() bool {
	if p == nil || !p.Stopped || p.PendingTxID == "" {
		return false
	}
	return strings.HasPrefix(p.StopReason, StopReasonTxNotFound) ||
		strings.HasPrefix(p.StopReason, StopReasonConfirmationTimeout)
}

// IsConfirmed returns whether the payment has been confirmed.
func (p *MonitoredPayment) IsConfirmed() bool {
	return p != nil && p.ConfirmedAt > 0
}

// SettlementKind tells whether a settlement pays the seller or refunds the
// buyer.
type SettlementKind string

const (
	SettlementRelease SettlementKind = "release"
	SettlementRefund  SettlementKind = "refund"
)

// Settlement is the outgoing transaction that finalizes a ticket.
type Settlement struct {
	Kind        SettlementKind `json:"kind"`
	Destination string         `json:"destination"`
	Intended    int64          `json:"intended"`
	Actual      int64          `json:"actual"`
	Fee         int64          `json:"fee"`
	Change      int64          `json:"change"`
	TxID        string         `json:"txId,omitempty"`
	Degraded    bool           `json:"degraded"`
	InFlight    bool           `json:"inFlight"`
	Attempts    int            `json:"attempts"`
	LastError   string         `json:"lastError,omitempty"`
	CompletedAt int64          `json:"completedAt,omitempty"`
}

// SettlementResult is what the settlement builder reports back once the
// transaction is broadcasted.
type SettlementResult struct {
	Actual   int64
	Fee      int64
	Change   int64
	TxID     string
	Degraded bool
}

// AddressEntry is the re-entrant sub-state collecting the destination
// address of a settlement from the expected participant.
type AddressEntry struct {
	Kind      SettlementKind `json:"kind"`
	Expected  string         `json:"expected"`
	Address   string         `json:"address,omitempty"`
	Attempts  int            `json:"attempts"`
	Confirmed bool           `json:"confirmed"`
}

// IsLocked returns whether too many invalid addresses were submitted.
func (e *AddressEntry) IsLocked(maxAttempts int) bool {
	return e != nil && maxAttempts > 0 && e.Attempts >= maxAttempts
}
