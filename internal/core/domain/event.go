package domain

// EventKind identifies an interaction a participant or an admin can perform
// on a ticket.
type EventKind string

const (
	EventAddCounterparty EventKind = "add_counterparty"
	EventJoin            EventKind = "join"
	EventPickRole        EventKind = "pick_role"
	EventResetRoles      EventKind = "reset_roles"
	EventConfirmRoles    EventKind = "confirm_roles"
	EventAgreeTos        EventKind = "agree_tos"
	EventSetAmount       EventKind = "set_amount"
	EventResetAmount     EventKind = "reset_amount"
	EventConfirmAmount   EventKind = "confirm_amount"
	EventRelease         EventKind = "release"
	EventCancel          EventKind = "cancel"
	EventConfirmCancel   EventKind = "confirm_cancel"
	EventAbortCancel     EventKind = "abort_cancel"
	EventSubmitAddress   EventKind = "submit_address"
	EventReenterAddress  EventKind = "reenter_address"
	EventConfirmAddress  EventKind = "confirm_address"
	EventClose           EventKind = "close"
	EventRestartMonitor  EventKind = "restart_monitor"
)

var knownEvents = map[EventKind]struct{}{
	EventAddCounterparty: {}, EventJoin: {}, EventPickRole: {},
	EventResetRoles: {}, EventConfirmRoles: {}, EventAgreeTos: {},
	EventSetAmount: {}, EventResetAmount: {}, EventConfirmAmount: {},
	EventRelease: {}, EventCancel: {}, EventConfirmCancel: {},
	EventAbortCancel: {}, EventSubmitAddress: {}, EventReenterAddress: {},
	EventConfirmAddress: {}, EventClose: {}, EventRestartMonitor: {},
}

// IsValid returns whether the event kind is known.
func (k EventKind) IsValid() bool {
	_, ok := knownEvents[k]
	return ok
}

// Event is an interaction with a ticket. Payload carries the submitted
// value for events that need one (user id, role, address). Quote is
// required by set_amount and is computed by the caller from the payload.
type Event struct {
	Kind    EventKind
	Actor   string
	IsAdmin bool
	Payload string
	Quote   *Quote
}

// Rules are the tunables the state machine is evaluated with.
type Rules struct {
	MaxAddressAttempts int
	IsValidAddress     func(addr string) bool
}

func (r Rules) maxAddressAttempts() int {
	if r.MaxAddressAttempts <= 0 {
		return DefaultMaxAddressAttempts
	}
	return r.MaxAddressAttempts
}

// Effect is a side effect the caller must perform after a transition.
type Effect int

const (
	// EffectProvisionWallet asks for a fresh wallet to be attached.
	EffectProvisionWallet Effect = iota
	// EffectStartMonitor asks to start watching the wallet address.
	EffectStartMonitor
	// EffectStopMonitor asks to cancel any running payment monitor.
	EffectStopMonitor
	// EffectRequestAddress asks the expected participant for an address.
	EffectRequestAddress
	// EffectSettle asks to build and broadcast the settlement.
	EffectSettle
	// EffectAlertAdmins asks for a manual intervention.
	EffectAlertAdmins
)

var effectToString = map[Effect]string{
	EffectProvisionWallet: "provision_wallet",
	EffectStartMonitor:    "start_monitor",
	EffectStopMonitor:     "stop_monitor",
	EffectRequestAddress:  "request_address",
	EffectSettle:          "settle",
	EffectAlertAdmins:     "alert_admins",
}

func (e Effect) String() string {
	return effectToString[e]
}

// Outcome describes what an event did to a ticket.
type Outcome struct {
	Event   EventKind
	From    TicketStatus
	To      TicketStatus
	Effects []Effect
	Message string
}

// Advanced returns whether the event changed the status of the ticket.
func (o *Outcome) Advanced() bool {
	return o != nil && o.From != o.To
}

// Has returns whether the outcome requires the given effect.
func (o *Outcome) Has(effect Effect) bool {
	if o == nil {
		return false
	}
	for _, e := range o.Effects {
		if e == effect {
			return true
		}
	}
	return false
}
