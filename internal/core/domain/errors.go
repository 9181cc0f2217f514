package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the root of errors caused by malformed input, like an
	// invalid address or amount. The ticket is left untouched.
	ErrValidation = errors.New("validation error")
	// ErrAuthorization is the root of errors caused by an actor not allowed
	// to perform the requested action.
	ErrAuthorization = errors.New("authorization error")
	// ErrConcurrencyConflict is the root of errors caused by duplicate or
	// stale events, like confirming twice. They are safe to ignore.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

var (
	// ErrTicketNotFound ...
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrInvalidTransition is returned when an event is not valid for the
	// current status of the ticket.
	ErrInvalidTransition = fmt.Errorf("%w: event not allowed in current state", ErrValidation)
	// ErrTicketTerminal is returned for any event targeting a ticket already
	// released, refunded or closed.
	ErrTicketTerminal = fmt.Errorf("%w: ticket is terminal", ErrInvalidTransition)
	// ErrUnknownEvent ...
	ErrUnknownEvent = fmt.Errorf("%w: unknown event", ErrValidation)
	// ErrNullOwner ...
	ErrNullOwner = fmt.Errorf("%w: owner must not be null", ErrValidation)
	// ErrInvalidCounterparty ...
	ErrInvalidCounterparty = fmt.Errorf("%w: invalid counterparty", ErrValidation)
	// ErrUnknownRole ...
	ErrUnknownRole = fmt.Errorf("%w: role must be either buyer or seller", ErrValidation)
	// ErrRoleTaken ...
	ErrRoleTaken = fmt.Errorf("%w: role already taken by the other participant", ErrValidation)
	// ErrInvalidAmount ...
	ErrInvalidAmount = fmt.Errorf("%w: amount must be a positive number", ErrValidation)
	// ErrInvalidRate ...
	ErrInvalidRate = fmt.Errorf("%w: exchange rate must be positive", ErrValidation)
	// ErrInvalidAddress ...
	ErrInvalidAddress = fmt.Errorf("%w: invalid address", ErrValidation)
	// ErrTooManyAddressAttempts ...
	ErrTooManyAddressAttempts = fmt.Errorf(
		"%w: too many invalid addresses, an admin must reset the entry", ErrValidation,
	)
	// ErrAddressPending ...
	ErrAddressPending = fmt.Errorf(
		"%w: an address is already waiting for confirmation", ErrValidation,
	)
	// ErrMissingAddress ...
	ErrMissingAddress = fmt.Errorf("%w: no address submitted", ErrValidation)

	// ErrNotParticipant ...
	ErrNotParticipant = fmt.Errorf("%w: actor is not a participant", ErrAuthorization)
	// ErrNotOwner ...
	ErrNotOwner = fmt.Errorf("%w: actor is not the ticket owner", ErrAuthorization)
	// ErrNotAdmin ...
	ErrNotAdmin = fmt.Errorf("%w: actor is not an admin", ErrAuthorization)
	// ErrNotInvited ...
	ErrNotInvited = fmt.Errorf("%w: actor has not been invited", ErrAuthorization)
	// ErrWrongRole ...
	ErrWrongRole = fmt.Errorf("%w: actor's role can't perform the action", ErrAuthorization)

	// ErrAlreadyConfirmed ...
	ErrAlreadyConfirmed = fmt.Errorf("%w: already confirmed", ErrConcurrencyConflict)
	// ErrAlreadyAdvanced ...
	ErrAlreadyAdvanced = fmt.Errorf("%w: transition already fired", ErrConcurrencyConflict)
	// ErrRoleAlreadyPicked ...
	ErrRoleAlreadyPicked = fmt.Errorf("%w: role already picked", ErrConcurrencyConflict)
	// ErrSettlementInFlight ...
	ErrSettlementInFlight = fmt.Errorf("%w: settlement in progress", ErrConcurrencyConflict)
	// ErrAlreadySettled ...
	ErrAlreadySettled = fmt.Errorf("%w: settlement already broadcasted", ErrConcurrencyConflict)
	// ErrWalletAlreadyAttached ...
	ErrWalletAlreadyAttached = fmt.Errorf("%w: wallet already attached", ErrConcurrencyConflict)
	// ErrMonitorRunning ...
	ErrMonitorRunning = fmt.Errorf("%w: payment monitor is running", ErrConcurrencyConflict)

	// ErrTermsNotFinalized ...
	ErrTermsNotFinalized = errors.New("terms must be finalized before creating a wallet")
	// ErrMissingWallet ...
	ErrMissingWallet = errors.New("ticket has no wallet")
	// ErrNoSettlementInFlight ...
	ErrNoSettlementInFlight = errors.New("no settlement in progress")
)
