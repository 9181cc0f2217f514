package domain

import "context"

// TicketRepository is the abstraction for any kind of database intended to
// persist Tickets. Records are stored in full under the ticket id.
type TicketRepository interface {
	// AddTicket adds a new ticket to the repository.
	AddTicket(ctx context.Context, ticket *Ticket) error
	// GetTicket returns the ticket with the given id.
	GetTicket(ctx context.Context, id string) (*Ticket, error)
	// GetAllTickets returns all the tickets stored in the repository.
	GetAllTickets(ctx context.Context) ([]*Ticket, error)
	// GetTicketsByStatus returns the tickets in any of the given statuses.
	GetTicketsByStatus(
		ctx context.Context, statuses ...TicketStatus,
	) ([]*Ticket, error)
	// SaveTicket overwrites the full record of the ticket, or adds it if not
	// found.
	SaveTicket(ctx context.Context, ticket *Ticket) error
	// UpdateTicket allows to commit multiple changes to the same ticket in a
	// transactional way.
	UpdateTicket(
		ctx context.Context,
		id string, updateFn func(t *Ticket) (*Ticket, error),
	) error
	// DeleteTicket removes a ticket from the repository.
	DeleteTicket(ctx context.Context, id string) error
}
