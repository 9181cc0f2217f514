package inmemory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tdex-network/escrowd/internal/core/domain"
)

type ticketInmemoryStore struct {
	// records are serialized so that callers never share memory with the
	// repository.
	records map[string][]byte
	locker  sync.RWMutex
}

type ticketRepositoryImpl struct {
	store *ticketInmemoryStore
}

// NewTicketRepositoryImpl returns a new empty in-memory TicketRepository.
func NewTicketRepositoryImpl() domain.TicketRepository {
	return &ticketRepositoryImpl{&ticketInmemoryStore{
		records: make(map[string][]byte),
	}}
}

func (r *ticketRepositoryImpl) AddTicket(
	_ context.Context, ticket *domain.Ticket,
) error {
	if ticket == nil || ticket.ID == "" {
		return ErrTicketInvalidRequest
	}

	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	if _, ok := r.store.records[ticket.ID]; ok {
		return ErrTicketAlreadyExists
	}
	return r.put(ticket)
}

func (r *ticketRepositoryImpl) GetTicket(
	_ context.Context, id string,
) (*domain.Ticket, error) {
	r.store.locker.RLock()
	defer r.store.locker.RUnlock()

	return r.get(id)
}

func (r *ticketRepositoryImpl) GetAllTickets(
	_ context.Context,
) ([]*domain.Ticket, error) {
	r.store.locker.RLock()
	defer r.store.locker.RUnlock()

	return r.find(func(*domain.Ticket) bool { return true })
}

func (r *ticketRepositoryImpl) GetTicketsByStatus(
	_ context.Context, statuses ...domain.TicketStatus,
) ([]*domain.Ticket, error) {
	r.store.locker.RLock()
	defer r.store.locker.RUnlock()

	return r.find(func(t *domain.Ticket) bool {
		for _, s := range statuses {
			if t.Status == s {
				return true
			}
		}
		return false
	})
}

func (r *ticketRepositoryImpl) SaveTicket(
	_ context.Context, ticket *domain.Ticket,
) error {
	if ticket == nil || ticket.ID == "" {
		return ErrTicketInvalidRequest
	}

	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	return r.put(ticket)
}

func (r *ticketRepositoryImpl) UpdateTicket(
	_ context.Context,
	id string, updateFn func(t *domain.Ticket) (*domain.Ticket, error),
) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	ticket, err := r.get(id)
	if err != nil {
		return err
	}
	updated, err := updateFn(ticket)
	if err != nil {
		return err
	}
	if updated.ID != id {
		return ErrTicketInvalidRequest
	}
	return r.put(updated)
}

func (r *ticketRepositoryImpl) DeleteTicket(_ context.Context, id string) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	if _, ok := r.store.records[id]; !ok {
		return domain.ErrTicketNotFound
	}
	delete(r.store.records, id)
	return nil
}

func (r *ticketRepositoryImpl) get(id string) (*domain.Ticket, error) {
	buf, ok := r.store.records[id]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	ticket := &domain.Ticket{}
	if err := json.Unmarshal(buf, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepositoryImpl) put(ticket *domain.Ticket) error {
	buf, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	r.store.records[ticket.ID] = buf
	return nil
}

func (r *ticketRepositoryImpl) find(
	filter func(t *domain.Ticket) bool,
) ([]*domain.Ticket, error) {
	tickets := make([]*domain.Ticket, 0, len(r.store.records))
	for id := range r.store.records {
		ticket, err := r.get(id)
		if err != nil {
			return nil, err
		}
		if filter(ticket) {
			tickets = append(tickets, ticket)
		}
	}
	sortByCreation(tickets)
	return tickets, nil
}
