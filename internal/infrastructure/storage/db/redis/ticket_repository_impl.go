package dbredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/tdex-network/escrowd/internal/core/domain"
)

// maxUpdateRetries bounds the optimistic retries of UpdateTicket when the
// record is modified concurrently.
const maxUpdateRetries = 5

var (
	// ErrTicketInvalidRequest ...
	ErrTicketInvalidRequest = errors.New("requested ticket is null")
	// ErrTicketAlreadyExists ...
	ErrTicketAlreadyExists = errors.New("ticket already exists")
	// ErrTooManyConflicts ...
	ErrTooManyConflicts = errors.New("ticket modified concurrently, update aborted")
)

// ticketRepositoryImpl stores every ticket as a JSON string under its own
// key, and keeps the set of stored ids in a dedicated index key.
type ticketRepositoryImpl struct {
	client *redis.Client
	prefix string
}

// NewTicketRepositoryImpl returns a redis implementation of the
// domain.TicketRepository.
func NewTicketRepositoryImpl(client *redis.Client, prefix string) domain.TicketRepository {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &ticketRepositoryImpl{client, prefix}
}

func (r *ticketRepositoryImpl) AddTicket(
	ctx context.Context, ticket *domain.Ticket,
) error {
	if ticket == nil || ticket.ID == "" {
		return ErrTicketInvalidRequest
	}
	buf, err := json.Marshal(ticket)
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, r.ticketKey(ticket.ID), buf, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrTicketAlreadyExists
	}
	return r.client.SAdd(ctx, r.indexKey(), ticket.ID).Err()
}

func (r *ticketRepositoryImpl) GetTicket(
	ctx context.Context, id string,
) (*domain.Ticket, error) {
	return r.getTicket(ctx, r.client, id)
}

func (r *ticketRepositoryImpl) GetAllTickets(
	ctx context.Context,
) ([]*domain.Ticket, error) {
	return r.findTickets(ctx, func(*domain.Ticket) bool { return true })
}

func (r *ticketRepositoryImpl) GetTicketsByStatus(
	ctx context.Context, statuses ...domain.TicketStatus,
) ([]*domain.Ticket, error) {
	return r.findTickets(ctx, func(t *domain.Ticket) bool {
		for _, s := range statuses {
			if t.Status == s {
				return true
			}
		}
		return false
	})
}

func (r *ticketRepositoryImpl) SaveTicket(
	ctx context.Context, ticket *domain.Ticket,
) error {
	if ticket == nil || ticket.ID == "" {
		return ErrTicketInvalidRequest
	}
	buf, err := json.Marshal(ticket)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.ticketKey(ticket.ID), buf, 0)
		pipe.SAdd(ctx, r.indexKey(), ticket.ID)
		return nil
	})
	return err
}

// UpdateTicket runs updateFn in an optimistic transaction watching the key
// of the ticket.
func (r *ticketRepositoryImpl) UpdateTicket(
	ctx context.Context,
	id string, updateFn func(t *domain.Ticket) (*domain.Ticket, error),
) error {
	key := r.ticketKey(id)
	txFn := func(tx *redis.Tx) error {
		ticket, err := r.getTicket(ctx, tx, id)
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
		buf, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txFn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrTooManyConflicts
}

func (r *ticketRepositoryImpl) DeleteTicket(ctx context.Context, id string) error {
	var deleted *redis.IntCmd
	if _, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, r.ticketKey(id))
		pipe.SRem(ctx, r.indexKey(), id)
		return nil
	}); err != nil {
		return err
	}
	if deleted.Val() <= 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

func (r *ticketRepositoryImpl) getTicket(
	ctx context.Context, client redis.Cmdable, id string,
) (*domain.Ticket, error) {
	buf, err := client.Get(ctx, r.ticketKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	ticket := &domain.Ticket{}
	if err := json.Unmarshal(buf, ticket); err != nil {
		return nil, fmt.Errorf("failed to decode ticket %s: %w", id, err)
	}
	return ticket, nil
}

func (r *ticketRepositoryImpl) findTickets(
	ctx context.Context, filter func(t *domain.Ticket) bool,
) ([]*domain.Ticket, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) <= 0 {
		return []*domain.Ticket{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.ticketKey(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	tickets := make([]*domain.Ticket, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Index entry left behind by an interrupted delete.
			continue
		}
		ticket := &domain.Ticket{}
		if err := json.Unmarshal([]byte(str), ticket); err != nil {
			return nil, fmt.Errorf("failed to decode ticket %s: %w", ids[i], err)
		}
		if filter(ticket) {
			tickets = append(tickets, ticket)
		}
	}

	sort.SliceStable(tickets, func(i, j int) bool {
		if tickets[i].CreatedAt == tickets[j].CreatedAt {
			return tickets[i].ID < tickets[j].ID
		}
		return tickets[i].CreatedAt < tickets[j].CreatedAt
	})
	return tickets, nil
}

func (r *ticketRepositoryImpl) ticketKey(id string) string {
	return fmt.Sprintf("%s:ticket:%s", r.prefix, id)
}

func (r *ticketRepositoryImpl) indexKey() string {
	return fmt.Sprintf("%s:tickets", r.prefix)
}
