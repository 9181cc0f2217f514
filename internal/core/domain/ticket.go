package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ticket is the data structure representing one escrow deal.
type Ticket struct {
	ID                 string                    `json:"id"`
	Owner              string                    `json:"owner"`
	Description        string                    `json:"description"`
	Counterparty       string                    `json:"counterparty,omitempty"`
	CounterpartyJoined bool                      `json:"counterpartyJoined"`
	Status             TicketStatus              `json:"status"`
	Roles              map[string]Role           `json:"roles"`
	Confirmations      map[Stage]ConfirmationSet `json:"confirmations"`
	// Advanced flags are set atomically with the transition they guard, so
	// that a racing confirmation can not fire the same transition twice.
	Advanced          map[Stage]bool    `json:"advanced"`
	Terms             DealTerms         `json:"terms"`
	Wallet            *Wallet           `json:"wallet,omitempty"`
	Payment           *MonitoredPayment `json:"payment,omitempty"`
	AddressEntry      *AddressEntry     `json:"addressEntry,omitempty"`
	Settlement        *Settlement       `json:"settlement,omitempty"`
	CancelRequestedBy string            `json:"cancelRequestedBy,omitempty"`
	ClosedBy          string            `json:"closedBy,omitempty"`
	CreatedAt         int64             `json:"createdAt"`
	UpdatedAt         int64             `json:"updatedAt"`
}

// NewTicket returns a ticket with a new id and Created status.
func NewTicket(owner, description string) (*Ticket, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, ErrNullOwner
	}
	now := time.Now().Unix()
	return &Ticket{
		ID:            uuid.New().String(),
		Owner:         owner,
		Description:   description,
		Status:        TicketStatusCreated,
		Roles:         make(map[string]Role),
		Confirmations: make(map[Stage]ConfirmationSet),
		Advanced:      make(map[Stage]bool),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Participants returns the owner and, once joined, the counterparty.
func (t *Ticket) Participants() []string {
	if t.CounterpartyJoined && t.Counterparty != "" {
		return []string{t.Owner, t.Counterparty}
	}
	return []string{t.Owner}
}

// IsParticipant ...
func (t *Ticket) IsParticipant(id string) bool {
	for _, p := range t.Participants() {
		if p == id {
			return true
		}
	}
	return false
}

// RoleOf returns the role of the given participant, if any.
func (t *Ticket) RoleOf(id string) (Role, bool) {
	r, ok := t.Roles[id]
	return r, ok
}

// HolderOf returns the participant holding the given role, if any.
func (t *Ticket) HolderOf(role Role) (string, bool) {
	for id, r := range t.Roles {
		if r == role {
			return id, true
		}
	}
	return "", false
}

// IsTerminal ...
func (t *Ticket) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// HasActiveWallet returns whether the ticket holds a wallet that may still
// control funds.
func (t *Ticket) HasActiveWallet() bool {
	return t.Wallet != nil &&
		t.Status != TicketStatusReleased && t.Status != TicketStatusRefunded
}

// ConfirmationsFor returns a copy of the confirmation set of the stage.
func (t *Ticket) ConfirmationsFor(stage Stage) ConfirmationSet {
	set := t.Confirmations[stage]
	out := make(ConfirmationSet, len(set))
	copy(out, set)
	return out
}

// Apply validates the event against the current status and the actor's
// permissions, and mutates the ticket accordingly. On error the ticket
// status is never changed.
func (t *Ticket) Apply(ev Event, rules Rules) (*Outcome, error) {
	if !ev.Kind.IsValid() {
		return nil, ErrUnknownEvent
	}
	if t.IsTerminal() {
		return nil, ErrTicketTerminal
	}
	t.ensureMaps()

	from := t.Status
	var (
		outcome *Outcome
		err     error
	)
	switch ev.Kind {
	case EventAddCounterparty:
		outcome, err = t.addCounterparty(ev)
	case EventJoin:
		outcome, err = t.join(ev)
	case EventPickRole:
		outcome, err = t.pickRole(ev)
	case EventResetRoles:
		outcome, err = t.resetRoles(ev)
	case EventConfirmRoles:
		outcome, err = t.confirmRoles(ev)
	case EventAgreeTos:
		outcome, err = t.agreeTos(ev)
	case EventSetAmount:
		outcome, err = t.setAmount(ev)
	case EventResetAmount:
		outcome, err = t.resetAmount(ev)
	case EventConfirmAmount:
		outcome, err = t.confirmAmount(ev)
	case EventRelease:
		outcome, err = t.release(ev)
	case EventCancel:
		outcome, err = t.cancel(ev)
	case EventConfirmCancel:
		outcome, err = t.confirmCancel(ev)
	case EventAbortCancel:
		outcome, err = t.abortCancel(ev)
	case EventSubmitAddress:
		outcome, err = t.submitAddress(ev, rules)
	case EventReenterAddress:
		outcome, err = t.reenterAddress(ev)
	case EventConfirmAddress:
		outcome, err = t.confirmAddress(ev)
	case EventClose:
		outcome, err = t.close(ev)
	case EventRestartMonitor:
		outcome, err = t.restartMonitor(ev)
	}
	if err != nil {
		return nil, err
	}

	outcome.Event = ev.Kind
	outcome.From = from
	outcome.To = t.Status
	t.UpdatedAt = time.Now().Unix()
	return outcome, nil
}

func (t *Ticket) addCounterparty(ev Event) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusCreated); err != nil {
		return nil, err
	}
	if ev.Actor != t.Owner && !ev.IsAdmin {
		return nil, ErrNotOwner
	}
	counterparty := strings.TrimSpace(ev.Payload)
	if counterparty == "" || counterparty == t.Owner {
		return nil, ErrInvalidCounterparty
	}

	t.Counterparty = counterparty
	t.Status = TicketStatusAwaitingCounterparty
	return &Outcome{
		Message: fmt.Sprintf("%s has been invited to the deal", counterparty),
	}, nil
}

func (t *Ticket) join(ev Event) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusAwaitingCounterparty); err != nil {
		return nil, err
	}
	if ev.Actor != t.Counterparty {
		return nil, ErrNotInvited
	}

	t.CounterpartyJoined = true
	t.Status = TicketStatusRoleSelection
	return &Outcome{
		Message: "both participants are in, pick your role: buyer or seller",
	}, nil
}

func (t *Ticket) pickRole(ev Event) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusRoleSelection); err != nil {
		return nil, err
	}
	if !t.IsParticipant(ev.Actor) {
		return nil, ErrNotParticipant
	}
	role := Role(strings.ToLower(strings.TrimSpace(ev.Payload)))
	if !role.IsValid() {
		return nil, ErrUnknownRole
	}
	if current, ok := t.Roles[ev.Actor]; ok && current == role {
		return nil, ErrRoleAlreadyPicked
	}
	if holder, ok := t.HolderOf(role); ok && holder != ev.Actor {
		return nil, ErrRoleTaken
	}

	t.Roles[ev.Actor] = role
	if len(t.Roles) < 2 {
		return &Outcome{
			Message: fmt.Sprintf("%s picked the %s role", ev.Actor, role),
		}, nil
	}

	t.Confirmations[StageRoles] = nil
	t.Status = TicketStatusRoleConfirmation
	buyer, _ := t.HolderOf(RoleBuyer)
	seller, _ := t.HolderOf(RoleSeller)
	return &Outcome{
		Message: fmt.Sprintf(
			"buyer: %s, seller: %s. Both participants must confirm the roles",
			buyer, seller,
		),
	}, nil
}

func (t *Ticket) resetRoles(ev Event) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusRoleConfirmation); err != nil {
		return nil, err
	}
	if !t.IsParticipant(ev.Actor) && !ev.IsAdmin {
		return nil, ErrNotParticipant
	}

	t.Roles = make(map[string]Role)
	t.Confirmations[StageRoles] = nil
	t.Advanced[StageRoles] = false
	t.Status = TicketStatusRoleSelection
	return &Outcome{Message: "roles have been reset, pick your role again"}, nil
}

func (t *Ticket) confirmRoles(ev Event) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusRoleConfirmation); err != nil {
		return nil, err
	}
	both, err := t.confirm(StageRoles, ev.Actor)
	if err != nil {
		return nil, err
	}
	if !both {
		return &Outcome{Message: fmt.Sprintf("%s confirmed the roles", ev.Actor)}, nil
	}

	t.Terms.Buyer, _ = t.HolderOf(RoleBuyer)
	t.Terms.Seller, _ = t.HolderOf(RoleSeller)
	t.Status = TicketStatusTosAgreement
	return &Outcome{
		Message: "roles confirmed, both participants must agree to the terms of service",
	}, nil
}

func (t *Ticket) agreeTos(ev Event) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusTosAgreement); err != nil {
		return nil, err
	}
	both, err := t.confirm(StageTos, ev.Actor)
	if err != nil {
		return nil, err
	}
	if !both {
		return &Outcome{Message: fmt.Sprintf("%s agreed to the terms", ev.Actor)}, nil
	}

	t.Status = TicketStatusAmountNegotiation
	return &Outcome{Message: "terms agreed, enter the deal amount"}, nil
}

func (t *Ticket) setAmount(ev Event) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusAmountNegotiation); err != nil {
		return nil, err
	}
	if !t.IsParticipant(ev.Actor) {
		return nil, ErrNotParticipant
	}
	if ev.Quote == nil || !ev.Quote.FiatAmount.IsPositive() || ev.Quote.Litoshis <= 0 {
		return nil, ErrInvalidAmount
	}

	quote := *ev.Quote
	t.Terms.Quote = &quote
	t.Terms.ProposedBy = ev.Actor
	t.Confirmations[StageAmount] = nil
	t.Advanced[StageAmount] = false
	t.Status = TicketStatusAmountConfirmation
	return &Outcome{
		Message: fmt.Sprintf(
			"amount set to %s %s (%s LTC), both participants must confirm",
			quote.FiatAmount.StringFixed(2), quote.Currency, FormatLitoshis(quote.Litoshis),
		),
	}, nil
}

func (t *Ticket) resetAmount(ev Event) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusAmountConfirmation); err != nil {
		return nil, err
	}
	if !t.IsParticipant(ev.Actor) && !ev.IsAdmin {
		return nil, ErrNotParticipant
	}

	t.Terms.Quote = nil
	t.Terms.ProposedBy = ""
	t.Confirmations[StageAmount] = nil
	t.Advanced[StageAmount] = false
	t.Status = TicketStatusAmountNegotiation
	return &Outcome{Message: "amount has been reset, enter the deal amount again"}, nil
}

func (t *Ticket) confirmAmount(ev Event) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusAmountConfirmation); err != nil {
		return nil, err
	}
	both, err := t.confirm(StageAmount, ev.Actor)
	if err != nil {
		return nil, err
	}
	if !both {
		return &Outcome{Message: fmt.Sprintf("%s confirmed the amount", ev.Actor)}, nil
	}

	t.Terms.Finalized = true
	t.Status = TicketStatusPaymentMonitoring
	return &Outcome{
		Effects: []Effect{EffectProvisionWallet, EffectStartMonitor},
		Message: "amount confirmed, generating the escrow address",
	}, nil
}

// AttachWallet binds the freshly provisioned wallet to the ticket and
// initializes the state of the payment monitor.
func (t *Ticket) AttachWallet(w Wallet) error {
	if t.Wallet != nil {
		return ErrWalletAlreadyAttached
	}
	if !t.Terms.Finalized {
		return ErrTermsNotFinalized
	}
	if err := t.requireStatus(TicketStatusPaymentMonitoring); err != nil {
		return err
	}
	if w.CreatedAt == 0 {
		w.CreatedAt = time.Now().Unix()
	}
	t.Wallet = &w
	t.Payment = &MonitoredPayment{
		Address:        w.Address,
		RequiredAmount: t.Terms.Amount(),
	}
	t.UpdatedAt = time.Now().Unix()
	return nil
}

// UpdatePayment stores the latest state of the payment monitor.
func (t *Ticket) UpdatePayment(p MonitoredPayment) error {
	if err := t.requireStatus(TicketStatusPaymentMonitoring); err != nil {
		return err
	}
	if t.Payment == nil {
		return ErrMissingWallet
	}
	p.Address = t.Payment.Address
	p.RequiredAmount = t.Payment.RequiredAmount
	t.Payment = &p
	t.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkPaymentSeen records an incoming, not yet confirmed, payment.
func (t *Ticket) MarkPaymentSeen(txid string, amount int64) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusPaymentMonitoring); err != nil {
		return nil, err
	}
	if t.Payment == nil {
		return nil, ErrMissingWallet
	}
	if t.Payment.PendingTxID == txid || t.Payment.LastSeenTxID == txid {
		return nil, ErrAlreadyAdvanced
	}
	t.Payment.PendingTxID = txid
	t.Payment.PaidAmount = amount
	t.Payment.Confirmations = 0
	t.UpdatedAt = time.Now().Unix()
	return &Outcome{
		From: t.Status,
		To:   t.Status,
		Message: fmt.Sprintf(
			"incoming payment of %s LTC detected (tx %s), waiting for confirmation",
			FormatLitoshis(amount), txid,
		),
	}, nil
}

// ConfirmPayment records that the payment has reached the required
// confirmation depth and moves the ticket to the release decision.
func (t *Ticket) ConfirmPayment(
	txid string, amount int64, confirmations int,
) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusPaymentMonitoring); err != nil {
		return nil, err
	}
	if t.Payment == nil {
		return nil, ErrMissingWallet
	}
	if t.Advanced[StagePayment] || t.Payment.IsConfirmed() {
		return nil, ErrAlreadyAdvanced
	}

	t.ensureMaps()
	t.Advanced[StagePayment] = true
	t.Payment.LastSeenTxID = txid
	t.Payment.PendingTxID = ""
	t.Payment.PaidAmount = amount
	t.Payment.Confirmations = confirmations
	t.Payment.Stopped = false
	t.Payment.StopReason = ""
	t.Payment.ConfirmedAt = time.Now().Unix()

	from := t.Status
	t.Status = TicketStatusAwaitingReleaseDecision
	t.UpdatedAt = time.Now().Unix()
	return &Outcome{
		From:    from,
		To:      t.Status,
		Effects: []Effect{EffectStopMonitor},
		Message: fmt.Sprintf(
			"payment of %s LTC confirmed (tx %s). The buyer can now release the funds",
			FormatLitoshis(amount), txid,
		),
	}, nil
}

// MarkMonitorStopped records that the payment monitor gave up. The ticket
// stays in payment monitoring until an admin restarts the monitor or
// closes the ticket.
func (t *Ticket) MarkMonitorStopped(reason string) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusPaymentMonitoring); err != nil {
		return nil, err
	}
	if t.Payment == nil {
		return nil, ErrMissingWallet
	}
	t.Payment.Stopped = true
	t.Payment.StopReason = reason
	t.UpdatedAt = time.Now().Unix()
	return &Outcome{
		From:    t.Status,
		To:      t.Status,
		Effects: []Effect{EffectAlertAdmins},
		Message: fmt.Sprintf("payment monitoring stopped: %s", reason),
	}, nil
}

func (t *Ticket) restartMonitor(ev Event) (*Outcome, error) {
	if !ev.IsAdmin {
		return nil, ErrNotAdmin
	}
	if err := t.requireStatus(TicketStatusPaymentMonitoring); err != nil {
		return nil, err
	}
	// Wallet provisioning failed when the amount was confirmed.
	if t.Wallet == nil {
		return &Outcome{
			Effects: []Effect{EffectProvisionWallet, EffectStartMonitor},
			Message: "retrying escrow wallet provisioning",
		}, nil
	}
	if t.Payment == nil {
		return nil, ErrMissingWallet
	}
	if !t.Payment.Stopped {
		return nil, ErrMonitorRunning
	}

	msg := "payment monitoring restarted"
	if t.Payment.HasDroppedPendingTx() {
		// Watch the address again for a replacement payment.
		dropped := t.Payment.PendingTxID
		t.Payment.IgnoredTxIDs = append(t.Payment.IgnoredTxIDs, dropped)
		t.Payment.PendingTxID = ""
		t.Payment.PaidAmount = 0
		t.Payment.Confirmations = 0
		msg = fmt.Sprintf("payment monitoring restarted, tx %s dropped", dropped)
	}

	t.Payment.Stopped = false
	t.Payment.StopReason = ""
	t.Payment.Attempts = 0
	t.Payment.ConfirmationAttempts = 0
	t.Payment.Interval = 0
	return &Outcome{
		Effects: []Effect{EffectStartMonitor},
		Message: msg,
	}, nil
}

func (t *Ticket) release(ev Event) (*Outcome, error) {
	if ev.IsAdmin {
		if err := t.requireStatus(
			TicketStatusAwaitingReleaseDecision, TicketStatusCancelling,
		); err != nil {
			return nil, err
		}
	} else {
		if err := t.requireStatus(TicketStatusAwaitingReleaseDecision); err != nil {
			return nil, err
		}
		if ev.Actor != t.Terms.Buyer {
			return nil, ErrWrongRole
		}
	}

	t.Confirmations[StageCancel] = nil
	t.CancelRequestedBy = ""
	t.Status = TicketStatusReleasing
	t.AddressEntry = &AddressEntry{
		Kind:     SettlementRelease,
		Expected: t.Terms.Seller,
	}
	return &Outcome{
		Effects: []Effect{EffectRequestAddress},
		Message: fmt.Sprintf(
			"funds are being released, %s please submit your LTC address",
			t.Terms.Seller,
		),
	}, nil
}

func (t *Ticket) cancel(ev Event) (*Outcome, error) {
	if ev.IsAdmin {
		return t.forceCancel()
	}
	if err := t.requireStatus(TicketStatusAwaitingReleaseDecision); err != nil {
		return nil, err
	}
	if ev.Actor != t.Terms.Buyer && ev.Actor != t.Terms.Seller {
		return nil, ErrNotParticipant
	}

	t.Confirmations[StageCancel] = nil
	t.Advanced[StageCancel] = false
	t.CancelRequestedBy = ev.Actor
	t.Status = TicketStatusCancelling
	return &Outcome{
		Message: fmt.Sprintf(
			"%s requested to cancel the deal, both participants must confirm", ev.Actor,
		),
	}, nil
}

// forceCancel moves the ticket straight to the refund address request,
// skipping participants' confirmations.
func (t *Ticket) forceCancel() (*Outcome, error) {
	if err := t.requireStatus(
		TicketStatusAwaitingReleaseDecision,
		TicketStatusCancelling,
		TicketStatusReleasing,
	); err != nil {
		return nil, err
	}
	if t.Settlement != nil && (t.Settlement.InFlight || t.Settlement.TxID != "") {
		return nil, ErrSettlementInFlight
	}

	t.Advanced[StageCancel] = true
	t.Settlement = nil
	t.Status = TicketStatusConfirmCancel
	t.AddressEntry = &AddressEntry{
		Kind:     SettlementRefund,
		Expected: t.Terms.Buyer,
	}
	return &Outcome{
		Effects: []Effect{EffectRequestAddress},
		Message: fmt.Sprintf(
			"deal cancelled by an admin, %s please submit your LTC address for the refund",
			t.Terms.Buyer,
		),
	}, nil
}

func (t *Ticket) confirmCancel(ev Event) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusCancelling); err != nil {
		return nil, err
	}
	both, err := t.confirm(StageCancel, ev.Actor)
	if err != nil {
		return nil, err
	}
	if !both {
		return &Outcome{
			Message: fmt.Sprintf("%s confirmed the cancellation", ev.Actor),
		}, nil
	}

	t.Status = TicketStatusConfirmCancel
	t.AddressEntry = &AddressEntry{
		Kind:     SettlementRefund,
		Expected: t.Terms.Buyer,
	}
	return &Outcome{
		Effects: []Effect{EffectRequestAddress},
		Message: fmt.Sprintf(
			"cancellation confirmed, %s please submit your LTC address for the refund",
			t.Terms.Buyer,
		),
	}, nil
}

func (t *Ticket) abortCancel(ev Event) (*Outcome, error) {
	if err := t.requireStatus(TicketStatusCancelling); err != nil {
		return nil, err
	}
	if !t.IsParticipant(ev.Actor) && !ev.IsAdmin {
		return nil, ErrNotParticipant
	}

	t.Confirmations[StageCancel] = nil
	t.Advanced[StageCancel] = false
	t.CancelRequestedBy = ""
	t.Status = TicketStatusAwaitingReleaseDecision
	return &Outcome{Message: "cancellation aborted"}, nil
}

func (t *Ticket) submitAddress(ev Event, rules Rules) (*Outcome, error) {
	entry, err := t.addressEntryFor(ev.Actor)
	if err != nil {
		return nil, err
	}
	if t.settlementStarted() {
		return nil, ErrSettlementInFlight
	}
	if entry.Address != "" {
		return nil, ErrAddressPending
	}
	max := rules.maxAddressAttempts()
	if entry.IsLocked(max) {
		return nil, ErrTooManyAddressAttempts
	}

	addr := strings.TrimSpace(ev.Payload)
	if rules.IsValidAddress == nil || !rules.IsValidAddress(addr) {
		entry.Attempts++
		if entry.IsLocked(max) {
			return nil, fmt.Errorf(
				"%w: %d of %d attempts used", ErrTooManyAddressAttempts, entry.Attempts, max,
			)
		}
		return nil, fmt.Errorf(
			"%w: %d of %d attempts used", ErrInvalidAddress, entry.Attempts, max,
		)
	}

	entry.Address = addr
	return &Outcome{
		Message: fmt.Sprintf("address %s submitted, confirm it or re-enter it", addr),
	}, nil
}

func (t *Ticket) reenterAddress(ev Event) (*Outcome, error) {
	var entry *AddressEntry
	if ev.IsAdmin {
		if err := t.requireStatus(
			TicketStatusReleasing, TicketStatusConfirmCancel, TicketStatusRefunding,
		); err != nil {
			return nil, err
		}
		if t.AddressEntry == nil {
			return nil, ErrMissingAddress
		}
		entry = t.AddressEntry
		entry.Attempts = 0
	} else {
		var err error
		if entry, err = t.addressEntryFor(ev.Actor); err != nil {
			return nil, err
		}
	}
	if t.settlementStarted() {
		return nil, ErrSettlementInFlight
	}

	entry.Address = ""
	entry.Confirmed = false
	if t.Status == TicketStatusRefunding {
		t.Status = TicketStatusConfirmCancel
	}
	return &Outcome{
		Effects: []Effect{EffectRequestAddress},
		Message: fmt.Sprintf("%s please submit your LTC address", entry.Expected),
	}, nil
}

func (t *Ticket) confirmAddress(ev Event) (*Outcome, error) {
	entry, err := t.addressEntryFor(ev.Actor)
	if err != nil {
		return nil, err
	}
	if entry.Address == "" {
		return nil, ErrMissingAddress
	}
	if t.Wallet == nil {
		return nil, ErrMissingWallet
	}
	if t.Settlement != nil {
		if t.Settlement.InFlight {
			return nil, ErrSettlementInFlight
		}
		if t.Settlement.TxID != "" {
			return nil, ErrAlreadySettled
		}
	}

	entry.Confirmed = true
	t.StartSettlement(entry.Kind, entry.Address)
	if entry.Kind == SettlementRefund {
		t.Status = TicketStatusRefunding
	}
	return &Outcome{
		Effects: []Effect{EffectSettle},
		Message: fmt.Sprintf(
			"sending %s LTC to %s", FormatLitoshis(t.Settlement.Intended), entry.Address,
		),
	}, nil
}

// StartSettlement marks a settlement of the agreed amount to destination as
// in flight. Attempts accumulate across explicit re-invocations.
func (t *Ticket) StartSettlement(kind SettlementKind, destination string) {
	attempts := 0
	if t.Settlement != nil {
		attempts = t.Settlement.Attempts
	}
	t.Settlement = &Settlement{
		Kind:        kind,
		Destination: destination,
		Intended:    t.Terms.Amount(),
		InFlight:    true,
		Attempts:    attempts + 1,
	}
	t.ensureMaps()
	t.Advanced[StageSettlement] = true
}

// CompleteSettlement records the broadcasted settlement and brings the
// ticket to its terminal status.
func (t *Ticket) CompleteSettlement(res SettlementResult) (*Outcome, error) {
	if t.Settlement == nil || !t.Settlement.InFlight {
		return nil, ErrNoSettlementInFlight
	}
	if res.Actual > t.Settlement.Intended && t.Settlement.Intended > 0 {
		return nil, fmt.Errorf(
			"actual amount %d exceeds intended %d", res.Actual, t.Settlement.Intended,
		)
	}

	t.Settlement.InFlight = false
	t.Settlement.Actual = res.Actual
	t.Settlement.Fee = res.Fee
	t.Settlement.Change = res.Change
	t.Settlement.TxID = res.TxID
	t.Settlement.Degraded = res.Degraded
	t.Settlement.LastError = ""
	t.Settlement.CompletedAt = time.Now().Unix()

	from := t.Status
	verb := "released to the seller"
	if t.Settlement.Kind == SettlementRefund {
		t.Status = TicketStatusRefunded
		verb = "refunded to the buyer"
	} else {
		t.Status = TicketStatusReleased
	}
	t.UpdatedAt = time.Now().Unix()

	msg := fmt.Sprintf(
		"%s LTC %s (tx %s)", FormatLitoshis(res.Actual), verb, res.TxID,
	)
	if res.Degraded {
		msg += fmt.Sprintf(
			", reduced from %s LTC to cover the network fee",
			FormatLitoshis(t.Settlement.Intended),
		)
	}
	return &Outcome{From: from, To: t.Status, Message: msg}, nil
}

// FailSettlement clears the in-flight flag so that the settlement can be
// explicitly invoked again. The status is left unchanged.
func (t *Ticket) FailSettlement(reason string) (*Outcome, error) {
	if t.Settlement == nil || !t.Settlement.InFlight {
		return nil, ErrNoSettlementInFlight
	}
	t.Settlement.InFlight = false
	t.Settlement.LastError = reason
	t.UpdatedAt = time.Now().Unix()
	return &Outcome{
		From:    t.Status,
		To:      t.Status,
		Effects: []Effect{EffectAlertAdmins},
		Message: fmt.Sprintf(
			"settlement failed: %s. Confirm the address again to retry", reason,
		),
	}, nil
}

func (t *Ticket) close(ev Event) (*Outcome, error) {
	if ev.Actor != t.Owner && !ev.IsAdmin {
		return nil, ErrNotOwner
	}
	if t.settlementStarted() {
		return nil, ErrSettlementInFlight
	}

	t.ClosedBy = ev.Actor
	t.Status = TicketStatusClosed
	msg := "ticket closed"
	effects := []Effect{EffectStopMonitor}
	if t.Wallet != nil {
		msg += ", funds left in the escrow wallet require a manual recovery"
		effects = append(effects, EffectAlertAdmins)
	}
	return &Outcome{Effects: effects, Message: msg}, nil
}

// confirm adds the actor to the confirmation set of the stage and returns
// whether this was the confirmation completing it. The advanced flag of the
// stage is flipped in the same step.
func (t *Ticket) confirm(stage Stage, actor string) (bool, error) {
	if !t.IsParticipant(actor) {
		return false, ErrNotParticipant
	}
	set := t.Confirmations[stage]
	if !set.Add(actor) {
		return false, ErrAlreadyConfirmed
	}
	t.Confirmations[stage] = set

	if !set.ContainsAll(t.Participants()...) || len(t.Participants()) < 2 {
		return false, nil
	}
	if t.Advanced[stage] {
		return false, ErrAlreadyAdvanced
	}
	t.Advanced[stage] = true
	return true, nil
}

func (t *Ticket) addressEntryFor(actor string) (*AddressEntry, error) {
	if err := t.requireStatus(
		TicketStatusReleasing, TicketStatusConfirmCancel, TicketStatusRefunding,
	); err != nil {
		return nil, err
	}
	if t.AddressEntry == nil {
		return nil, ErrInvalidTransition
	}
	if actor != t.AddressEntry.Expected {
		return nil, ErrWrongRole
	}
	return t.AddressEntry, nil
}

func (t *Ticket) settlementStarted() bool {
	return t.Settlement != nil && (t.Settlement.InFlight || t.Settlement.TxID != "")
}

func (t *Ticket) requireStatus(statuses ...TicketStatus) error {
	for _, s := range statuses {
		if t.Status == s {
			return nil
		}
	}
	if t.IsTerminal() {
		return ErrTicketTerminal
	}
	return fmt.Errorf("%w: ticket is %s", ErrInvalidTransition, t.Status)
}

func (t *Ticket) ensureMaps() {
	if t.Roles == nil {
		t.Roles = make(map[string]Role)
	}
	if t.Confirmations == nil {
		t.Confirmations = make(map[Stage]ConfirmationSet)
	}
	if t.Advanced == nil {
		t.Advanced = make(map[Stage]bool)
	}
}

// FormatLitoshis formats an amount of litoshis as LTC with 8 decimals.
func FormatLitoshis(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf(
		"%s%d.%08d", sign, amount/LitoshisPerCoin, amount%LitoshisPerCoin,
	)
}
