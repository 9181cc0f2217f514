package dbbadger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const txKey = "tx"

var (
	// ErrTicketInvalidRequest ...
	ErrTicketInvalidRequest = errors.New("requested ticket is null")
	// ErrTicketAlreadyExists ...
	ErrTicketAlreadyExists = errors.New("ticket already exists")
)

type ticketRepositoryImpl struct {
	store *badgerhold.Store
}

// NewTicketRepositoryImpl initialize a badger implementation of the
// domain.TicketRepository.
func NewTicketRepositoryImpl(store *badgerhold.Store) domain.TicketRepository {
	return ticketRepositoryImpl{store}
}

func (r ticketRepositoryImpl) AddTicket(
	ctx context.Context, ticket *domain.Ticket,
) error {
	if ticket == nil || ticket.ID == "" {
		return ErrTicketInvalidRequest
	}

	var err error
	if tx, ok := ctx.Value(txKey).(*badger.Txn); ok {
		err = r.store.TxInsert(tx, ticket.ID, *ticket)
	} else {
		err = r.store.Insert(ticket.ID, *ticket)
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return ErrTicketAlreadyExists
		}
		return err
	}
	return nil
}

func (r ticketRepositoryImpl) GetTicket(
	ctx context.Context, id string,
) (*domain.Ticket, error) {
	return r.getTicket(ctx, id)
}

func (r ticketRepositoryImpl) GetAllTickets(
	ctx context.Context,
) ([]*domain.Ticket, error) {
	return r.findTickets(ctx, &badgerhold.Query{})
}

func (r ticketRepositoryImpl) GetTicketsByStatus(
	ctx context.Context, statuses ...domain.TicketStatus,
) ([]*domain.Ticket, error) {
	if len(statuses) <= 0 {
		return []*domain.Ticket{}, nil
	}
	values := make([]interface{}, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, s)
	}
	query := badgerhold.Where("Status").In(values...)
	return r.findTickets(ctx, query)
}

func (r ticketRepositoryImpl) SaveTicket(
	ctx context.Context, ticket *domain.Ticket,
) error {
	if ticket == nil || ticket.ID == "" {
		return ErrTicketInvalidRequest
	}
	if tx, ok := ctx.Value(txKey).(*badger.Txn); ok {
		return r.store.TxUpsert(tx, ticket.ID, *ticket)
	}
	return r.store.Upsert(ticket.ID, *ticket)
}

func (r ticketRepositoryImpl) UpdateTicket(
	ctx context.Context,
	id string, updateFn func(t *domain.Ticket) (*domain.Ticket, error),
) error {
	return r.store.Badger().Update(func(tx *badger.Txn) error {
		txCtx := context.WithValue(ctx, txKey, tx)

		ticket, err := r.getTicket(txCtx, id)
		if err != nil {
			return err
		}
		updated, err := updateFn(ticket)
		if err != nil {
			return err
		}
		if updated == nil || updated.ID != id {
			return ErrTicketInvalidRequest
		}
		return r.store.TxUpdate(tx, id, *updated)
	})
}

func (r ticketRepositoryImpl) DeleteTicket(ctx context.Context, id string) error {
	var err error
	if tx, ok := ctx.Value(txKey).(*badger.Txn); ok {
		err = r.store.TxDelete(tx, id, domain.Ticket{})
	} else {
		err = r.store.Delete(id, domain.Ticket{})
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return domain.ErrTicketNotFound
	}
	return err
}

func (r ticketRepositoryImpl) getTicket(
	ctx context.Context, id string,
) (*domain.Ticket, error) {
	var (
		ticket domain.Ticket
		err    error
	)
	if tx, ok := ctx.Value(txKey).(*badger.Txn); ok {
		err = r.store.TxGet(tx, id, &ticket)
	} else {
		err = r.store.Get(id, &ticket)
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func (r ticketRepositoryImpl) findTickets(
	ctx context.Context, query *badgerhold.Query,
) ([]*domain.Ticket, error) {
	var (
		tickets []domain.Ticket
		err     error
	)
	query.SortBy("CreatedAt", "ID")
	if tx, ok := ctx.Value(txKey).(*badger.Txn); ok {
		err = r.store.TxFind(tx, &tickets, query)
	} else {
		err = r.store.Find(&tickets, query)
	}
	if err != nil {
		return nil, err
	}

	list := make([]*domain.Ticket, 0, len(tickets))
	for i := range tickets {
		list = append(list, &tickets[i])
	}
	return list, nil
}
