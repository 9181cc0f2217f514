package inmemory

import (
	"errors"
	"sort"

	"github.com/tdex-network/escrowd/internal/core/domain"
)

var (
	// ErrTicketInvalidRequest ...
	ErrTicketInvalidRequest = errors.New("requested ticket is null")
	// ErrTicketAlreadyExists ...
	ErrTicketAlreadyExists = errors.New("ticket already exists")
)

func sortByCreation(tickets []*domain.Ticket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		if tickets[i].CreatedAt == tickets[j].CreatedAt {
			return tickets[i].ID < tickets[j].ID
		}
		return tickets[i].CreatedAt < tickets[j].CreatedAt
	})
}
